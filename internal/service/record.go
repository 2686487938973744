// Пакет service — бизнес-логика Record Module: приём записей,
// проверка подлинности, симуляция подмены и выдача контента.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// PinClient — операции сервиса закрепления контента.
type PinClient interface {
	Pin(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error)
	Fetch(ctx context.Context, contentID string) ([]byte, string, error)
}

// CodecClient — операции сервиса водяных знаков.
type CodecClient interface {
	Encode(ctx context.Context, image []byte, meta mlclient.Meta) (watermarked []byte, digest string, err error)
	Decode(ctx context.Context, image []byte, meta mlclient.Meta) (digest string, err error)
}

// RecordService — сервис медицинских записей.
// Оркестрирует кодек водяных знаков, сервис закрепления контента,
// реестр в PostgreSQL и кэш записей.
type RecordService struct {
	repo   repository.RecordRepository
	pin    PinClient
	codec  CodecClient
	cache  *CacheService
	logger *slog.Logger
}

// NewRecordService создаёт сервис медицинских записей.
func NewRecordService(
	repo repository.RecordRepository,
	pin PinClient,
	codec CodecClient,
	cache *CacheService,
	logger *slog.Logger,
) *RecordService {
	return &RecordService{
		repo:   repo,
		pin:    pin,
		codec:  codec,
		cache:  cache,
		logger: logger,
	}
}

// getRecord возвращает запись по content id, используя кэш.
func (s *RecordService) getRecord(ctx context.Context, contentID string) (*model.Record, error) {
	if cached, ok := s.cache.Get(contentID); ok {
		return cached, nil
	}

	rec, err := s.repo.GetByContentID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(contentID, rec)
	return rec, nil
}
