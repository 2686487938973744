// Пакет pinclient — HTTP-клиент сервиса закрепления контента (Pinata).
// Загружает контент через pinning API и читает его через gateway.
package pinclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// Client — клиент сервиса закрепления контента.
type Client struct {
	apiURL     string
	gatewayURL string
	jwt        string
	httpClient *http.Client
}

// PinResult — результат закрепления контента.
type PinResult struct {
	// ContentID — идентификатор закреплённого контента (CID)
	ContentID string
	// Size — размер закреплённого контента в байтах
	Size int64
	// Timestamp — время закрепления по версии сервиса
	Timestamp string
}

// pinResponse — ответ pinning API.
type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// pinMetadata — метаданные закрепления (поле pinataMetadata).
type pinMetadata struct {
	Name      string            `json:"name"`
	Keyvalues map[string]string `json:"keyvalues,omitempty"`
}

// pinOptions — опции закрепления (поле pinataOptions).
type pinOptions struct {
	CidVersion int `json:"cidVersion"`
}

// New создаёт клиент сервиса закрепления контента.
// apiURL — адрес pinning API, gatewayURL — адрес gateway для чтения,
// jwt — токен авторизации, caCertPath — путь к CA-сертификату (пустая строка = системные CA).
func New(apiURL, gatewayURL, jwt string, timeout time.Duration, caCertPath string) (*Client, error) {
	tlsConfig, err := buildTLSConfig(caCertPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		apiURL:     normalizeURL(apiURL),
		gatewayURL: normalizeURL(gatewayURL),
		jwt:        jwt,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		},
	}, nil
}

// Pin загружает контент в сервис закрепления и возвращает его content id.
// name попадает в метаданные закрепления, keyvalues — произвольные
// пары ключ-значение для поиска на стороне сервиса.
func (c *Client) Pin(ctx context.Context, name, contentType string, data []byte, keyvalues map[string]string) (*PinResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	// Часть file — сам контент, с оригинальным content type
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("ошибка формирования multipart-запроса: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("ошибка записи контента в запрос: %w", err)
	}

	// pinataMetadata — имя и keyvalues
	meta, err := json.Marshal(pinMetadata{Name: name, Keyvalues: keyvalues})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, fmt.Errorf("ошибка записи метаданных в запрос: %w", err)
	}

	// pinataOptions — всегда CID v1
	opts, _ := json.Marshal(pinOptions{CidVersion: 1})
	if err := mw.WriteField("pinataOptions", string(opts)); err != nil {
		return nil, fmt.Errorf("ошибка записи опций в запрос: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения multipart-запроса: %w", err)
	}

	reqURL := c.apiURL + "/pinning/pinFileToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.jwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к сервису закрепления: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("сервис закрепления вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("ошибка разбора ответа сервиса закрепления: %w", err)
	}
	if pr.IpfsHash == "" {
		return nil, fmt.Errorf("сервис закрепления вернул пустой content id")
	}

	return &PinResult{
		ContentID: pr.IpfsHash,
		Size:      pr.PinSize,
		Timestamp: pr.Timestamp,
	}, nil
}

// Fetch читает контент по content id через gateway.
// Возвращает байты контента и content type из ответа gateway.
func (c *Client) Fetch(ctx context.Context, contentID string) ([]byte, string, error) {
	reqURL := c.gatewayURL + "/ipfs/" + contentID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка запроса к gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrContentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("gateway вернул статус %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка чтения контента: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// GatewayURL возвращает базовый адрес gateway (для dephealth-проверок).
func (c *Client) GatewayURL() string {
	return c.gatewayURL
}

// normalizeURL убирает завершающий слэш из базового URL.
func normalizeURL(u string) string {
	return strings.TrimRight(u, "/")
}

// buildTLSConfig создаёт TLS-конфигурацию.
// Если указан caCertPath, добавляет CA-сертификат к системному пулу.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	if caCertPath == "" {
		return nil, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения CA-сертификата: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("не удалось добавить CA-сертификат из %s", caCertPath)
	}

	return &tls.Config{RootCAs: pool}, nil
}
