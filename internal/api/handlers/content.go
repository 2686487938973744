// content.go — обработчик GET /api/v1/content/{content_id}.
// Проксирует контент записи из content store клиенту.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GetContent — GET /api/v1/content/{content_id}.
// Отдаёт байты контента с Content-Type из реестра.
// Авторизация: admin или readonly / records:read — на уровне middleware.
func (h *APIHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "content_id")

	content, err := h.records.GetContent(r.Context(), contentID)
	if err != nil {
		h.writeServiceError(w, err, "скачивания контента")
		return
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", content.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}
