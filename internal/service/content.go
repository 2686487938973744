package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// Content — контент записи для выдачи клиенту.
type Content struct {
	// Data — байты контента
	Data []byte
	// ContentType — MIME-тип (из реестра, при его отсутствии — из gateway)
	ContentType string
	// FileName — имя файла из реестра
	FileName string
}

// GetContent отдаёт контент записи по content id.
// Content id должен быть известен реестру: произвольные идентификаторы
// через модуль не проксируются.
func (s *RecordService) GetContent(ctx context.Context, contentID string) (*Content, error) {
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

	data, gatewayType, err := s.pin.Fetch(ctx, contentID)
	if err != nil {
		if errors.Is(err, pinclient.ErrContentNotFound) {
			return nil, fmt.Errorf("%w: контент %s недоступен", ErrNotFound, contentID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = gatewayType
	}

	return &Content{
		Data:        data,
		ContentType: contentType,
		FileName:    rec.FileName,
	}, nil
}
