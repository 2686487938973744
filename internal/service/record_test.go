package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"
	"time"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
)

// --- Mock-репозиторий ---

// mockRecordRepo — mock RecordRepository с настраиваемыми функциями.
type mockRecordRepo struct {
	createFn         func(ctx context.Context, rec *model.Record) error
	getByContentIDFn func(ctx context.Context, contentID string) (*model.Record, error)
	listFn           func(ctx context.Context, filters repository.ListFilters, limit, offset int) ([]*model.Record, int, error)
	applyTamperFn    func(ctx context.Context, contentID, newContentID, newDigest string) error
}

func (m *mockRecordRepo) Create(ctx context.Context, rec *model.Record) error {
	return m.createFn(ctx, rec)
}

func (m *mockRecordRepo) GetByContentID(ctx context.Context, contentID string) (*model.Record, error) {
	return m.getByContentIDFn(ctx, contentID)
}

func (m *mockRecordRepo) List(ctx context.Context, filters repository.ListFilters, limit, offset int) ([]*model.Record, int, error) {
	return m.listFn(ctx, filters, limit, offset)
}

func (m *mockRecordRepo) ApplyTamper(ctx context.Context, contentID, newContentID, newDigest string) error {
	return m.applyTamperFn(ctx, contentID, newContentID, newDigest)
}

// --- Mock-клиенты ---

// mockPinClient — mock клиента pinning-сервиса.
type mockPinClient struct {
	pinFn   func(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error)
	fetchFn func(ctx context.Context, contentID string) ([]byte, string, error)
}

func (m *mockPinClient) Pin(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error) {
	return m.pinFn(ctx, name, contentType, data, keyvalues)
}

func (m *mockPinClient) Fetch(ctx context.Context, contentID string) ([]byte, string, error) {
	return m.fetchFn(ctx, contentID)
}

// mockCodecClient — mock клиента watermark-кодека.
type mockCodecClient struct {
	encodeFn func(ctx context.Context, img []byte, meta mlclient.Meta) ([]byte, string, error)
	decodeFn func(ctx context.Context, img []byte, meta mlclient.Meta) (string, error)
}

func (m *mockCodecClient) Encode(ctx context.Context, img []byte, meta mlclient.Meta) ([]byte, string, error) {
	return m.encodeFn(ctx, img, meta)
}

func (m *mockCodecClient) Decode(ctx context.Context, img []byte, meta mlclient.Meta) (string, error) {
	return m.decodeFn(ctx, img, meta)
}

// --- Вспомогательные функции ---

// newTestService создаёт RecordService с mock-зависимостями.
func newTestService(t *testing.T, repo repository.RecordRepository, pin PinClient, codec CodecClient) *RecordService {
	t.Helper()

	cache := NewCacheService(100, 5*time.Minute, slog.Default())
	return NewRecordService(repo, pin, codec, cache, slog.Default())
}

// testRecord возвращает запись для тестов.
func testRecord() *model.Record {
	return &model.Record{
		RecordID:        "11111111-2222-3333-4444-555555555555",
		ContentID:       "bafyoriginal",
		FileName:        "scan.png",
		ContentType:     "image/png",
		RecordType:      model.RecordTypeImaging,
		PatientID:       "patient-1",
		WatermarkDigest: "digest-original",
		EncodeTimestamp: "1700000000000",
	}
}

// testPNG генерирует валидный PNG для тестов трансформаций.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: 100, A: 255})
		}
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("Ошибка кодирования тестового PNG: %v", err)
	}
	return buf.Bytes()
}
