package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
)

// IngestInput — входные данные приёма записи.
type IngestInput struct {
	// PatientID — идентификатор пациента (обязательный)
	PatientID string
	// Timestamp — временная метка кодирования (обязательная).
	// Сохраняется и используется при проверке как есть, байт в байт.
	Timestamp string
	// RecordType — тип записи (prescription, labReport, imaging, other)
	RecordType string
	// FileName — имя файла
	FileName string
	// ContentType — MIME-тип файла
	ContentType string
	// OwnerName — имя врача (опционально)
	OwnerName string
	// Description — описание записи (опционально)
	Description string
	// Data — содержимое файла
	Data []byte
}

// Ingest принимает медицинскую запись: встраивает водяной знак,
// закрепляет результат в content store и сохраняет запись в реестре.
// Побочные эффекты строго упорядочены: кодирование → закрепление →
// запись в БД. Сбой на любом шаге прерывает конвейер, закреплённый
// контент при сбое БД не откатывается (content store append-only).
func (s *RecordService) Ingest(ctx context.Context, in IngestInput) (*model.Record, error) {
	if in.PatientID == "" {
		return nil, fmt.Errorf("%w: patient_id обязателен", ErrValidation)
	}
	if !model.ValidRecordType(in.RecordType) {
		return nil, fmt.Errorf("%w: недопустимый тип записи %q", ErrValidation, in.RecordType)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: файл пуст", ErrValidation)
	}
	// Метка обязательна до любых побочных эффектов: без неё контент
	// не кодируется и не закрепляется
	if in.Timestamp == "" {
		return nil, fmt.Errorf("%w: timestamp обязателен", ErrValidation)
	}

	// Шаг 1: встраивание водяного знака
	meta := mlclient.Meta{PatientID: in.PatientID, Timestamp: in.Timestamp}
	watermarked, digest, err := s.codec.Encode(ctx, in.Data, meta)
	if err != nil {
		if errors.Is(err, mlclient.ErrCodec) {
			return nil, fmt.Errorf("%w: %v", ErrCodec, err)
		}
		return nil, err
	}

	fileName := in.FileName
	if fileName == "" {
		fileName = "record"
	}

	// Шаг 2: закрепление контента со знаком
	pinned, err := s.pin.Pin(ctx, fileName, in.ContentType, watermarked, map[string]string{
		"patientId":  in.PatientID,
		"recordType": in.RecordType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Шаг 3: сохранение записи в реестре
	rec := &model.Record{
		RecordID:        uuid.NewString(),
		ContentID:       pinned.ContentID,
		FileName:        fileName,
		ContentType:     in.ContentType,
		RecordType:      in.RecordType,
		PatientID:       in.PatientID,
		WatermarkDigest: digest,
		EncodeTimestamp: in.Timestamp,
	}
	if in.OwnerName != "" {
		rec.OwnerName = &in.OwnerName
	}
	if in.Description != "" {
		rec.Description = &in.Description
	}
	size := int64(len(watermarked))
	rec.FileSize = &size

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.cache.Set(rec.ContentID, rec)

	s.logger.Info("Запись принята",
		slog.String("record_id", rec.RecordID),
		slog.String("content_id", rec.ContentID),
		slog.String("patient_id", rec.PatientID),
		slog.String("record_type", rec.RecordType),
		slog.Int64("file_size", size),
	)

	return rec, nil
}
