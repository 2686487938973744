package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// Вердикты проверки подлинности.
const (
	StatusAuthentic = "AUTHENTIC"
	StatusTampered  = "TAMPERED"
)

var verifyResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rm_verify_total",
	Help: "Количество проверок подлинности по вердиктам.",
}, []string{"status"})

// VerifyResult — результат проверки подлинности записи.
type VerifyResult struct {
	// Status — вердикт: AUTHENTIC или TAMPERED
	Status string
	// ContentID — проверенный content id
	ContentID string
	// Tampered — флаг подмены из реестра (симулятор)
	Tampered bool
}

// Verify проверяет подлинность записи: скачивает контент по content id,
// извлекает дайджест водяного знака и сравнивает с сохранённым.
// Вердикт выносится ТОЛЬКО по сравнению дайджестов; флаг tampered
// из реестра возвращается отдельно и на вердикт не влияет.
// Сбой кодека — ErrCodec (проверка невозможна), не TAMPERED.
func (s *RecordService) Verify(ctx context.Context, contentID string) (*VerifyResult, error) {
	if contentID == "" {
		return nil, fmt.Errorf("%w: content_id обязателен", ErrValidation)
	}

	rec, err := s.getRecord(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: content id %s", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Скачиваем контент из content store
	data, _, err := s.pin.Fetch(ctx, contentID)
	if err != nil {
		if errors.Is(err, pinclient.ErrContentNotFound) {
			return nil, fmt.Errorf("%w: контент %s недоступен", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Извлекаем дайджест с ТЕМИ ЖЕ метаданными, что при кодировании.
	// EncodeTimestamp передаётся байт в байт — без переформатирования.
	meta := mlclient.Meta{PatientID: rec.PatientID, Timestamp: rec.EncodeTimestamp}
	extracted, err := s.codec.Decode(ctx, data, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	status := StatusTampered
	if extracted == rec.WatermarkDigest {
		status = StatusAuthentic
	}
	verifyResults.WithLabelValues(status).Inc()

	s.logger.Info("Проверка подлинности завершена",
		slog.String("content_id", contentID),
		slog.String("status", status),
		slog.Bool("tampered_flag", rec.Tampered),
	)

	return &VerifyResult{
		Status:    status,
		ContentID: contentID,
		Tampered:  rec.Tampered,
	}, nil
}
