package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// Пагинация листинга записей.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListInput — параметры листинга записей.
type ListInput struct {
	PatientID  string
	RecordType string
	Tampered   *bool
	Limit      int
	Offset     int
}

// List возвращает записи реестра с фильтрацией и пагинацией.
// Всегда идёт в БД, минуя кэш: листинг должен видеть актуальное состояние.
func (s *RecordService) List(ctx context.Context, in ListInput) ([]*model.Record, int, error) {
	if in.Limit <= 0 {
		in.Limit = DefaultListLimit
	}
	if in.Limit > MaxListLimit {
		in.Limit = MaxListLimit
	}
	if in.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset не может быть отрицательным", ErrValidation)
	}
	if in.RecordType != "" && !model.ValidRecordType(in.RecordType) {
		return nil, 0, fmt.Errorf("%w: недопустимый тип записи %q", ErrValidation, in.RecordType)
	}

	filters := repository.ListFilters{Tampered: in.Tampered}
	if in.PatientID != "" {
		filters.PatientID = &in.PatientID
	}
	if in.RecordType != "" {
		filters.RecordType = &in.RecordType
	}

	records, total, err := s.repo.List(ctx, filters, in.Limit, in.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, total, nil
}

// Get возвращает запись реестра по content id.
func (s *RecordService) Get(ctx context.Context, contentID string) (*model.Record, error) {
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
	return rec, nil
}
