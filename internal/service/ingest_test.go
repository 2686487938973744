package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
)

func TestIngest(t *testing.T) {
	var pinnedData []byte
	var encodeMeta mlclient.Meta

	repo := &mockRecordRepo{
		createFn: func(_ context.Context, rec *model.Record) error {
			if rec.RecordID == "" {
				t.Error("RecordID не сгенерирован")
			}
			return nil
		},
	}
	pin := &mockPinClient{
		pinFn: func(_ context.Context, name, _ string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error) {
			pinnedData = data
			if name != "scan.png" {
				t.Errorf("Имя закрепления = %q, ожидалось scan.png", name)
			}
			if keyvalues["patientId"] != "patient-1" {
				t.Errorf("keyvalues.patientId = %q, ожидалось patient-1", keyvalues["patientId"])
			}
			return &pinclient.PinResult{ContentID: "bafynew", Size: int64(len(data))}, nil
		},
	}
	codec := &mockCodecClient{
		encodeFn: func(_ context.Context, img []byte, meta mlclient.Meta) ([]byte, string, error) {
			encodeMeta = meta
			return append([]byte("wm:"), img...), "digest-1", nil
		},
	}

	svc := newTestService(t, repo, pin, codec)

	rec, err := svc.Ingest(context.Background(), IngestInput{
		PatientID:   "patient-1",
		Timestamp:   "1700000000000",
		RecordType:  model.RecordTypeImaging,
		FileName:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("raw"),
	})
	if err != nil {
		t.Fatalf("Ingest() вернул ошибку: %v", err)
	}

	if rec.ContentID != "bafynew" {
		t.Errorf("ContentID = %q, ожидалось bafynew", rec.ContentID)
	}
	if rec.WatermarkDigest != "digest-1" {
		t.Errorf("WatermarkDigest = %q, ожидалось digest-1", rec.WatermarkDigest)
	}
	if rec.EncodeTimestamp != "1700000000000" {
		t.Errorf("EncodeTimestamp = %q, ожидалось 1700000000000", rec.EncodeTimestamp)
	}
	if rec.Tampered {
		t.Error("Новая запись не должна иметь флаг tampered")
	}
	// Закрепляется контент СО знаком, не исходный
	if string(pinnedData) != "wm:raw" {
		t.Errorf("Закреплённый контент = %q, ожидалось wm:raw", string(pinnedData))
	}
	if encodeMeta.Timestamp != "1700000000000" {
		t.Errorf("Timestamp кодирования = %q, ожидалось 1700000000000", encodeMeta.Timestamp)
	}
}

func TestIngestMissingTimestamp(t *testing.T) {
	codecCalled := false
	pinCalled := false

	pin := &mockPinClient{
		pinFn: func(_ context.Context, _, _ string, _ []byte, _ map[string]string) (*pinclient.PinResult, error) {
			pinCalled = true
			return &pinclient.PinResult{ContentID: "bafynew"}, nil
		},
	}
	codec := &mockCodecClient{
		encodeFn: func(_ context.Context, img []byte, _ mlclient.Meta) ([]byte, string, error) {
			codecCalled = true
			return img, "digest-1", nil
		},
	}

	svc := newTestService(t, &mockRecordRepo{}, pin, codec)

	_, err := svc.Ingest(context.Background(), IngestInput{
		PatientID:  "patient-1",
		RecordType: model.RecordTypeOther,
		Data:       []byte("raw"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Ingest() без timestamp = %v, ожидалась ErrValidation", err)
	}
	// Валидация до побочных эффектов: ни кодирования, ни закрепления
	if codecCalled {
		t.Error("Кодек не должен вызываться при пустой временной метке")
	}
	if pinCalled {
		t.Error("Контент не должен закрепляться при пустой временной метке")
	}
}

func TestIngestValidation(t *testing.T) {
	svc := newTestService(t, &mockRecordRepo{}, &mockPinClient{}, &mockCodecClient{})

	tests := []struct {
		name string
		in   IngestInput
	}{
		{"пустой patient_id", IngestInput{RecordType: model.RecordTypeOther, Data: []byte("x")}},
		{"недопустимый record_type", IngestInput{PatientID: "p", RecordType: "xray", Data: []byte("x")}},
		{"пустой файл", IngestInput{PatientID: "p", RecordType: model.RecordTypeOther}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Ingest() = %v, ожидалась ErrValidation", err)
			}
		})
	}
}

func TestIngestCodecFailure(t *testing.T) {
	codec := &mockCodecClient{
		encodeFn: func(_ context.Context, _ []byte, _ mlclient.Meta) ([]byte, string, error) {
			return nil, "", fmt.Errorf("%w: модель не загружена", mlclient.ErrCodec)
		},
	}

	svc := newTestService(t, &mockRecordRepo{}, &mockPinClient{}, codec)

	_, err := svc.Ingest(context.Background(), IngestInput{
		PatientID:  "p",
		Timestamp:  "1700000000000",
		RecordType: model.RecordTypeOther,
		Data:       []byte("x"),
	})
	if !errors.Is(err, ErrCodec) {
		t.Fatalf("Ingest() = %v, ожидалась ErrCodec", err)
	}
}

func TestIngestPinFailure(t *testing.T) {
	pin := &mockPinClient{
		pinFn: func(_ context.Context, _, _ string, _ []byte, _ map[string]string) (*pinclient.PinResult, error) {
			return nil, errors.New("сервис закрепления вернул статус 500")
		},
	}
	codec := &mockCodecClient{
		encodeFn: func(_ context.Context, img []byte, _ mlclient.Meta) ([]byte, string, error) {
			return img, "digest-1", nil
		},
	}

	svc := newTestService(t, &mockRecordRepo{}, pin, codec)

	_, err := svc.Ingest(context.Background(), IngestInput{
		PatientID:  "p",
		Timestamp:  "1700000000000",
		RecordType: model.RecordTypeOther,
		Data:       []byte("x"),
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Ingest() = %v, ожидалась ErrStorage", err)
	}
}
