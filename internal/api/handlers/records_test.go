package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
	"github.com/bigkaa/medrecord/record-module/internal/service"
)

// --- Mock-зависимости сервисного слоя ---

type mockRepo struct {
	createFn         func(ctx context.Context, rec *model.Record) error
	getByContentIDFn func(ctx context.Context, contentID string) (*model.Record, error)
	listFn           func(ctx context.Context, filters repository.ListFilters, limit, offset int) ([]*model.Record, int, error)
	applyTamperFn    func(ctx context.Context, contentID, newContentID, newDigest string) error
}

func (m *mockRepo) Create(ctx context.Context, rec *model.Record) error {
	return m.createFn(ctx, rec)
}

func (m *mockRepo) GetByContentID(ctx context.Context, contentID string) (*model.Record, error) {
	return m.getByContentIDFn(ctx, contentID)
}

func (m *mockRepo) List(ctx context.Context, filters repository.ListFilters, limit, offset int) ([]*model.Record, int, error) {
	return m.listFn(ctx, filters, limit, offset)
}

func (m *mockRepo) ApplyTamper(ctx context.Context, contentID, newContentID, newDigest string) error {
	return m.applyTamperFn(ctx, contentID, newContentID, newDigest)
}

type mockPin struct {
	pinFn   func(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error)
	fetchFn func(ctx context.Context, contentID string) ([]byte, string, error)
}

func (m *mockPin) Pin(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*pinclient.PinResult, error) {
	return m.pinFn(ctx, name, contentType, data, keyvalues)
}

func (m *mockPin) Fetch(ctx context.Context, contentID string) ([]byte, string, error) {
	return m.fetchFn(ctx, contentID)
}

type mockCodec struct {
	encodeFn func(ctx context.Context, img []byte, meta mlclient.Meta) ([]byte, string, error)
	decodeFn func(ctx context.Context, img []byte, meta mlclient.Meta) (string, error)
}

func (m *mockCodec) Encode(ctx context.Context, img []byte, meta mlclient.Meta) ([]byte, string, error) {
	return m.encodeFn(ctx, img, meta)
}

func (m *mockCodec) Decode(ctx context.Context, img []byte, meta mlclient.Meta) (string, error) {
	return m.decodeFn(ctx, img, meta)
}

// newTestHandler создаёт APIHandler с mock-зависимостями.
func newTestHandler(t *testing.T, repo repository.RecordRepository, pin service.PinClient, codec service.CodecClient) *APIHandler {
	t.Helper()

	logger := slog.Default()
	cache := service.NewCacheService(100, 5*time.Minute, logger)
	recordService := service.NewRecordService(repo, pin, codec, cache, logger)
	health := NewHealthHandler(nil, nil)

	return NewAPIHandler(health, recordService, 10<<20, logger)
}

// testStoredRecord — запись для тестов обработчиков.
func testStoredRecord() *model.Record {
	return &model.Record{
		RecordID:        "11111111-2222-3333-4444-555555555555",
		ContentID:       "bafystored",
		FileName:        "scan.png",
		ContentType:     "image/png",
		RecordType:      model.RecordTypeImaging,
		PatientID:       "patient-1",
		WatermarkDigest: "digest-1",
		EncodeTimestamp: "1700000000000",
		CreatedAt:       time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// decodeErrorCode извлекает код ошибки из тела ответа.
func decodeErrorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора тела ошибки: %v", err)
	}
	return resp.Error.Code
}

// --- Тесты IngestRecord ---

func TestIngestRecord(t *testing.T) {
	repo := &mockRepo{
		createFn: func(_ context.Context, _ *model.Record) error { return nil },
	}
	pin := &mockPin{
		pinFn: func(_ context.Context, _, _ string, data []byte, _ map[string]string) (*pinclient.PinResult, error) {
			return &pinclient.PinResult{ContentID: "bafynew", Size: int64(len(data))}, nil
		},
	}
	codec := &mockCodec{
		encodeFn: func(_ context.Context, img []byte, _ mlclient.Meta) ([]byte, string, error) {
			return img, "digest-new", nil
		},
	}

	h := newTestHandler(t, repo, pin, codec)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("file", "scan.png")
	_, _ = part.Write([]byte("fake-image-data"))
	_ = mw.WriteField("patient_id", "patient-1")
	_ = mw.WriteField("timestamp", "1700000000000")
	_ = mw.WriteField("record_type", "imaging")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.IngestRecord(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Статус = %d, ожидалось 201. Тело: %s", rec.Code, rec.Body.String())
	}

	var resp recordResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.ContentID != "bafynew" {
		t.Errorf("content_id = %q, ожидалось bafynew", resp.ContentID)
	}
	if resp.WatermarkDigest != "digest-new" {
		t.Errorf("watermark_digest = %q, ожидалось digest-new", resp.WatermarkDigest)
	}
	if resp.Timestamp != "1700000000000" {
		t.Errorf("timestamp = %q, ожидалось 1700000000000", resp.Timestamp)
	}
	if resp.Tampered {
		t.Error("Новая запись не должна иметь флаг tampered")
	}
}

func TestIngestRecordMissingTimestamp(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("file", "scan.png")
	_, _ = part.Write([]byte("data"))
	_ = mw.WriteField("patient_id", "patient-1")
	_ = mw.WriteField("record_type", "imaging")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.IngestRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидалось 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body); code != "VALIDATION_ERROR" {
		t.Errorf("Код ошибки = %q, ожидалось VALIDATION_ERROR", code)
	}
}

func TestIngestRecordMissingFile(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	_ = mw.WriteField("patient_id", "patient-1")
	_ = mw.WriteField("record_type", "imaging")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.IngestRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидалось 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body); code != "VALIDATION_ERROR" {
		t.Errorf("Код ошибки = %q, ожидалось VALIDATION_ERROR", code)
	}
}

func TestIngestRecordInvalidType(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("file", "scan.png")
	_, _ = part.Write([]byte("data"))
	_ = mw.WriteField("patient_id", "patient-1")
	_ = mw.WriteField("record_type", "xray")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.IngestRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидалось 400", rec.Code)
	}
}

// --- Тесты VerifyRecord ---

func TestVerifyRecord(t *testing.T) {
	stored := testStoredRecord()

	repo := &mockRepo{
		getByContentIDFn: func(_ context.Context, _ string) (*model.Record, error) {
			return stored, nil
		},
	}
	pin := &mockPin{
		fetchFn: func(_ context.Context, _ string) ([]byte, string, error) {
			return []byte("content"), "image/png", nil
		},
	}
	codec := &mockCodec{
		decodeFn: func(_ context.Context, _ []byte, _ mlclient.Meta) (string, error) {
			return stored.WatermarkDigest, nil
		},
	}

	h := newTestHandler(t, repo, pin, codec)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/verify",
		strings.NewReader(`{"content_id":"bafystored"}`))
	rec := httptest.NewRecorder()

	h.VerifyRecord(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус = %d, ожидалось 200. Тело: %s", rec.Code, rec.Body.String())
	}

	var resp verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Status != service.StatusAuthentic {
		t.Errorf("status = %q, ожидалось AUTHENTIC", resp.Status)
	}
	if resp.ContentID != "bafystored" {
		t.Errorf("content_id = %q, ожидалось bafystored", resp.ContentID)
	}
}

func TestVerifyRecordNotFound(t *testing.T) {
	repo := &mockRepo{
		getByContentIDFn: func(_ context.Context, _ string) (*model.Record, error) {
			return nil, repository.ErrNotFound
		},
	}

	h := newTestHandler(t, repo, &mockPin{}, &mockCodec{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/verify",
		strings.NewReader(`{"content_id":"bafymissing"}`))
	rec := httptest.NewRecorder()

	h.VerifyRecord(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Статус = %d, ожидалось 404", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body); code != "NOT_FOUND" {
		t.Errorf("Код ошибки = %q, ожидалось NOT_FOUND", code)
	}
}

func TestVerifyRecordCodecFailure(t *testing.T) {
	stored := testStoredRecord()

	repo := &mockRepo{
		getByContentIDFn: func(_ context.Context, _ string) (*model.Record, error) {
			return stored, nil
		},
	}
	pin := &mockPin{
		fetchFn: func(_ context.Context, _ string) ([]byte, string, error) {
			return []byte("content"), "", nil
		},
	}
	codec := &mockCodec{
		decodeFn: func(_ context.Context, _ []byte, _ mlclient.Meta) (string, error) {
			return "", mlclient.ErrCodec
		},
	}

	h := newTestHandler(t, repo, pin, codec)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/verify",
		strings.NewReader(`{"content_id":"bafystored"}`))
	rec := httptest.NewRecorder()

	h.VerifyRecord(rec, req)

	// Сбой кодека — 502 CODEC_ERROR, не вердикт TAMPERED
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Статус = %d, ожидалось 502", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body); code != "CODEC_ERROR" {
		t.Errorf("Код ошибки = %q, ожидалось CODEC_ERROR", code)
	}
}

func TestVerifyRecordBadJSON(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/verify",
		strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()

	h.VerifyRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидалось 400", rec.Code)
	}
}

// --- Тесты TamperRecord ---

func TestTamperRecordInvalidTransform(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/tamper",
		strings.NewReader(`{"content_id":"bafystored","transform":"mirror"}`))
	rec := httptest.NewRecorder()

	h.TamperRecord(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидалось 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body); code != "VALIDATION_ERROR" {
		t.Errorf("Код ошибки = %q, ожидалось VALIDATION_ERROR", code)
	}
}

// --- Тесты ListRecords ---

func TestListRecords(t *testing.T) {
	stored := testStoredRecord()

	repo := &mockRepo{
		listFn: func(_ context.Context, filters repository.ListFilters, limit, offset int) ([]*model.Record, int, error) {
			if filters.PatientID == nil || *filters.PatientID != "patient-1" {
				t.Errorf("Фильтр PatientID = %v, ожидалось patient-1", filters.PatientID)
			}
			if limit != 10 || offset != 5 {
				t.Errorf("limit/offset = %d/%d, ожидалось 10/5", limit, offset)
			}
			return []*model.Record{stored}, 1, nil
		},
	}

	h := newTestHandler(t, repo, &mockPin{}, &mockCodec{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?patient_id=patient-1&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()

	h.ListRecords(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус = %d, ожидалось 200. Тело: %s", rec.Code, rec.Body.String())
	}

	var resp recordListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Total != 1 || len(resp.Records) != 1 {
		t.Errorf("total/records = %d/%d, ожидалось 1/1", resp.Total, len(resp.Records))
	}
	if resp.Records[0].ContentID != stored.ContentID {
		t.Errorf("content_id = %q, ожидалось %q", resp.Records[0].ContentID, stored.ContentID)
	}
	if resp.Records[0].WatermarkDigest != stored.WatermarkDigest {
		t.Errorf("watermark_digest = %q, ожидалось %q", resp.Records[0].WatermarkDigest, stored.WatermarkDigest)
	}
}

func TestListRecordsBadParams(t *testing.T) {
	h := newTestHandler(t, &mockRepo{}, &mockPin{}, &mockCodec{})

	for _, query := range []string{"?tampered=maybe", "?limit=0", "?limit=abc", "?offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/records"+query, nil)
		rec := httptest.NewRecorder()

		h.ListRecords(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Запрос %q: статус = %d, ожидалось 400", query, rec.Code)
		}
	}
}

// --- Тесты GetContent ---

func TestGetContent(t *testing.T) {
	stored := testStoredRecord()

	repo := &mockRepo{
		getByContentIDFn: func(_ context.Context, _ string) (*model.Record, error) {
			return stored, nil
		},
	}
	pin := &mockPin{
		fetchFn: func(_ context.Context, contentID string) ([]byte, string, error) {
			if contentID != "bafystored" {
				t.Errorf("Запрошен content id %q, ожидался bafystored", contentID)
			}
			return []byte("pinned-bytes"), "application/octet-stream", nil
		},
	}

	h := newTestHandler(t, repo, pin, &mockCodec{})

	// chi router нужен для извлечения URL-параметра
	router := chi.NewRouter()
	router.Get("/api/v1/content/{content_id}", h.GetContent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/bafystored", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус = %d, ожидалось 200", rec.Code)
	}
	if rec.Body.String() != "pinned-bytes" {
		t.Errorf("Тело = %q, ожидалось pinned-bytes", rec.Body.String())
	}
	// Content-Type берётся из реестра
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, ожидалось image/png", ct)
	}
}

func TestGetContentNotFound(t *testing.T) {
	repo := &mockRepo{
		getByContentIDFn: func(_ context.Context, _ string) (*model.Record, error) {
			return nil, repository.ErrNotFound
		},
	}

	h := newTestHandler(t, repo, &mockPin{}, &mockCodec{})

	router := chi.NewRouter()
	router.Get("/api/v1/content/{content_id}", h.GetContent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/bafymissing", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Статус = %d, ожидалось 404", rec.Code)
	}
}
