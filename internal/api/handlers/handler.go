// handler.go — основной обработчик API Record Module.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
	"github.com/bigkaa/medrecord/record-module/internal/service"
)

// APIHandler — основной обработчик API Record Module.
type APIHandler struct {
	health      *HealthHandler
	records     *service.RecordService
	maxFileSize int64
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	records *service.RecordService,
	maxFileSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		records:     records,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- API-типы ---

// recordResponse — представление записи в API.
type recordResponse struct {
	RecordID          string  `json:"record_id"`
	ContentID         string  `json:"content_id"`
	PreviousContentID *string `json:"previous_content_id,omitempty"`
	FileName          string  `json:"file_name"`
	ContentType       string  `json:"content_type,omitempty"`
	RecordType        string  `json:"record_type"`
	OwnerName         *string `json:"owner_name,omitempty"`
	Description       *string `json:"description,omitempty"`
	FileSize          *int64  `json:"file_size,omitempty"`
	PatientID         string  `json:"patient_id"`
	WatermarkDigest   string  `json:"watermark_digest"`
	Timestamp         string  `json:"timestamp"`
	Tampered          bool    `json:"tampered"`
	CreatedAt         string  `json:"created_at"`
}

// toRecordResponse конвертирует domain модель в API-тип.
func toRecordResponse(rec *model.Record) recordResponse {
	return recordResponse{
		RecordID:          rec.RecordID,
		ContentID:         rec.ContentID,
		PreviousContentID: rec.PreviousContentID,
		FileName:          rec.FileName,
		ContentType:       rec.ContentType,
		RecordType:        rec.RecordType,
		OwnerName:         rec.OwnerName,
		Description:       rec.Description,
		FileSize:          rec.FileSize,
		PatientID:         rec.PatientID,
		WatermarkDigest:   rec.WatermarkDigest,
		Timestamp:         rec.EncodeTimestamp,
		Tampered:          rec.Tampered,
		CreatedAt:         rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
