// Пакет mlclient — HTTP-клиент сервиса водяных знаков.
// Сервис встраивает в изображение невидимый водяной знак с метаданными
// пациента и извлекает его дайджест для проверки подлинности.
package mlclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrCodec — сервис водяных знаков вернул ошибку обработки.
// Это НЕ признак подделки: проверить подлинность не удалось.
var ErrCodec = errors.New("ошибка сервиса водяных знаков")

// Meta — метаданные, встраиваемые в водяной знак.
// Timestamp передаётся строкой и должен побайтово совпадать
// между кодированием и декодированием.
type Meta struct {
	PatientID string `json:"patient_id"`
	Timestamp string `json:"timestamp"`
}

// Client — клиент сервиса водяных знаков.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// encodeResponse — ответ операции кодирования.
type encodeResponse struct {
	WatermarkedImage string `json:"watermarked_image"`
	WatermarkHash    string `json:"watermark_hash"`
	Error            string `json:"error"`
}

// decodeResponse — ответ операции декодирования.
type decodeResponse struct {
	ExtractedWatermarkHash string `json:"extracted_watermark_hash"`
	Error                  string `json:"error"`
}

// New создаёт клиент сервиса водяных знаков.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Encode встраивает водяной знак в изображение.
// Возвращает изображение со знаком и дайджест знака.
func (c *Client) Encode(ctx context.Context, image []byte, meta Meta) (watermarked []byte, digest string, err error) {
	respBody, err := c.post(ctx, "/encode", image, meta)
	if err != nil {
		return nil, "", err
	}

	var er encodeResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, "", fmt.Errorf("%w: ошибка разбора ответа: %v", ErrCodec, err)
	}
	if er.Error != "" {
		return nil, "", fmt.Errorf("%w: %s", ErrCodec, er.Error)
	}
	if er.WatermarkedImage == "" || er.WatermarkHash == "" {
		return nil, "", fmt.Errorf("%w: неполный ответ кодирования", ErrCodec)
	}

	img, err := base64.StdEncoding.DecodeString(er.WatermarkedImage)
	if err != nil {
		return nil, "", fmt.Errorf("%w: ошибка декодирования base64: %v", ErrCodec, err)
	}

	return img, er.WatermarkHash, nil
}

// Decode извлекает дайджест водяного знака из изображения.
// meta должна содержать те же значения, что при кодировании.
func (c *Client) Decode(ctx context.Context, image []byte, meta Meta) (digest string, err error) {
	respBody, err := c.post(ctx, "/decode", image, meta)
	if err != nil {
		return "", err
	}

	var dr decodeResponse
	if err := json.Unmarshal(respBody, &dr); err != nil {
		return "", fmt.Errorf("%w: ошибка разбора ответа: %v", ErrCodec, err)
	}
	if dr.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrCodec, dr.Error)
	}
	if dr.ExtractedWatermarkHash == "" {
		return "", fmt.Errorf("%w: пустой дайджест в ответе", ErrCodec)
	}

	return dr.ExtractedWatermarkHash, nil
}

// post отправляет multipart-запрос (image + metadata) и возвращает тело ответа.
// Не-200 статус с JSON-телом не считается транспортной ошибкой:
// тело возвращается вызывающему для разбора поля error.
func (c *Client) post(ctx context.Context, path string, image []byte, meta Meta) ([]byte, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования multipart-запроса: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("ошибка записи изображения в запрос: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("ошибка записи метаданных в запрос: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения multipart-запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка чтения ответа: %v", ErrCodec, err)
	}

	if resp.StatusCode != http.StatusOK && !json.Valid(respBody) {
		return nil, fmt.Errorf("%w: статус %d", ErrCodec, resp.StatusCode)
	}

	return respBody, nil
}

// BaseURL возвращает базовый адрес сервиса (для dephealth-проверок).
func (c *Client) BaseURL() string {
	return c.baseURL
}
