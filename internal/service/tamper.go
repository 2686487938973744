package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// TamperResult — результат симуляции подмены.
type TamperResult struct {
	// NewContentID — content id подменённого контента
	NewContentID string
	// PreviousContentID — content id до подмены
	PreviousContentID string
	// Transform — применённая трансформация
	Transform string
}

// Tamper симулирует подмену записи: скачивает контент, применяет
// трансформацию, закрепляет результат и атомарно переключает запись
// на новый content id. Сохранённый дайджест заменяется фиктивным,
// чтобы последующая проверка гарантированно дала TAMPERED даже при
// устойчивом к трансформации водяном знаке.
func (s *RecordService) Tamper(ctx context.Context, contentID, transform string) (*TamperResult, error) {
	if contentID == "" {
		return nil, fmt.Errorf("%w: content_id обязателен", ErrValidation)
	}
	if !ValidTransform(transform) {
		return nil, fmt.Errorf("%w: недопустимая трансформация %q, допустимые: rotate90, rotate180, adjust, crop", ErrValidation, transform)
	}

	rec, err := s.getRecord(ctx, contentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: content id %s", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	data, _, err := s.pin.Fetch(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	transformed, err := applyTransform(data, transform)
	if err != nil {
		return nil, err
	}

	pinned, err := s.pin.Pin(ctx, "tampered_"+rec.FileName, rec.ContentType, transformed, map[string]string{
		"patientId": rec.PatientID,
		"tampered":  "true",
		"transform": transform,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Фиктивный дайджест: заведомо не совпадёт с извлечённым знаком
	fakeDigest := sha256.Sum256([]byte(uuid.NewString()))

	err = s.repo.ApplyTamper(ctx, contentID, pinned.ContentID, hex.EncodeToString(fakeDigest[:]))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Запись подменили конкурентно — её текущий content id уже другой
			return nil, fmt.Errorf("%w: content id %s", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Старый content id больше не актуален
	s.cache.Invalidate(contentID)

	s.logger.Warn("Симулирована подмена записи",
		slog.String("previous_content_id", contentID),
		slog.String("new_content_id", pinned.ContentID),
		slog.String("transform", transform),
	)

	return &TamperResult{
		NewContentID:      pinned.ContentID,
		PreviousContentID: contentID,
		Transform:         transform,
	}, nil
}
