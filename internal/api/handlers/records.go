// records.go — обработчики /api/v1/records: приём, проверка,
// симуляция подмены и листинг медицинских записей.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/medrecord/record-module/internal/api/errors"
	"github.com/bigkaa/medrecord/record-module/internal/service"
)

// IngestRecord — POST /api/v1/records.
// Multipart-запрос: file + patient_id + timestamp + record_type (+ опциональные поля).
// Авторизация: admin или readonly / records:write — на уровне middleware.
func (h *APIHandler) IngestRecord(w http.ResponseWriter, r *http.Request) {
	// Жёсткий лимит на размер тела: файл + поля формы
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		apierrors.ValidationError(w, "Некорректный multipart-запрос или превышен размер файла")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		apierrors.ValidationError(w, "Превышен максимальный размер файла")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения файла из запроса")
		return
	}

	fileName := r.FormValue("file_name")
	if fileName == "" {
		fileName = header.Filename
	}

	in := service.IngestInput{
		PatientID:   r.FormValue("patient_id"),
		Timestamp:   r.FormValue("timestamp"),
		RecordType:  r.FormValue("record_type"),
		FileName:    fileName,
		ContentType: header.Header.Get("Content-Type"),
		OwnerName:   r.FormValue("owner_name"),
		Description: r.FormValue("description"),
		Data:        data,
	}

	rec, err := h.records.Ingest(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "приёма записи")
		return
	}

	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

// verifyRequest — тело POST /api/v1/records/verify.
type verifyRequest struct {
	ContentID string `json:"content_id"`
}

// verifyResponse — ответ проверки подлинности.
type verifyResponse struct {
	Status    string `json:"status"`
	ContentID string `json:"content_id"`
	Tampered  bool   `json:"tampered"`
}

// VerifyRecord — POST /api/v1/records/verify.
// Авторизация: admin или readonly / records:read — на уровне middleware.
func (h *APIHandler) VerifyRecord(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	result, err := h.records.Verify(r.Context(), req.ContentID)
	if err != nil {
		h.writeServiceError(w, err, "проверки подлинности")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Status:    result.Status,
		ContentID: result.ContentID,
		Tampered:  result.Tampered,
	})
}

// tamperRequest — тело POST /api/v1/records/tamper.
type tamperRequest struct {
	ContentID string `json:"content_id"`
	Transform string `json:"transform"`
}

// tamperResponse — ответ симуляции подмены.
type tamperResponse struct {
	NewContentID      string `json:"new_content_id"`
	PreviousContentID string `json:"previous_content_id"`
	Transform         string `json:"transform"`
}

// TamperRecord — POST /api/v1/records/tamper.
// Авторизация: только admin / records:tamper — на уровне middleware.
func (h *APIHandler) TamperRecord(w http.ResponseWriter, r *http.Request) {
	var req tamperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	result, err := h.records.Tamper(r.Context(), req.ContentID, req.Transform)
	if err != nil {
		h.writeServiceError(w, err, "симуляции подмены")
		return
	}

	writeJSON(w, http.StatusOK, tamperResponse{
		NewContentID:      result.NewContentID,
		PreviousContentID: result.PreviousContentID,
		Transform:         result.Transform,
	})
}

// recordListResponse — страница листинга записей.
type recordListResponse struct {
	Records []recordResponse `json:"records"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListRecords — GET /api/v1/records.
// Query-параметры: patient_id, record_type, tampered, limit, offset.
// Авторизация: admin или readonly / records:read — на уровне middleware.
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	in := service.ListInput{
		PatientID:  q.Get("patient_id"),
		RecordType: q.Get("record_type"),
	}

	if v := q.Get("tampered"); v != "" {
		tampered, err := strconv.ParseBool(v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр tampered должен быть булевым")
			return
		}
		in.Tampered = &tampered
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			apierrors.ValidationError(w, "Параметр limit должен быть положительным целым")
			return
		}
		in.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			apierrors.ValidationError(w, "Параметр offset должен быть неотрицательным целым")
			return
		}
		in.Offset = offset
	}

	records, total, err := h.records.List(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "листинга записей")
		return
	}

	resp := recordListResponse{
		Records: make([]recordResponse, 0, len(records)),
		Total:   total,
		Limit:   in.Limit,
		Offset:  in.Offset,
	}
	if resp.Limit == 0 {
		resp.Limit = service.DefaultListLimit
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError маппит ошибки сервисного слоя на HTTP-ответы.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrCodec):
		h.logger.Error("Ошибка кодека водяных знаков", slog.String("error", err.Error()))
		apierrors.CodecError(w, "Кодек водяных знаков недоступен или вернул ошибку")
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("Ошибка хранилища", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Хранилище недоступно или отклонило операцию")
	default:
		h.logger.Error("Внутренняя ошибка "+operation, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка "+operation)
	}
}
