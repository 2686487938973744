// Пакет config — загрузка и валидация конфигурации Record Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Record Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL (обязательный)
	DBHost string
	// Порт PostgreSQL (по умолчанию 5432)
	DBPort int
	// Имя базы данных (обязательный)
	DBName string
	// Пользователь БД (обязательный)
	DBUser string
	// Пароль БД (обязательный)
	DBPassword string
	// Режим SSL (disable, require, verify-ca, verify-full)
	DBSSLMode string

	// --- Pinning-сервис (content store) ---

	// Базовый URL API pinning-сервиса (по умолчанию https://api.pinata.cloud)
	PinAPIURL string
	// Базовый URL gateway для скачивания контента (по умолчанию https://gateway.pinata.cloud)
	PinGatewayURL string
	// JWT для авторизации в pinning-сервисе (обязательный)
	PinJWT string
	// Таймаут HTTP-запросов к pinning-сервису (по умолчанию 60s)
	PinTimeout time.Duration

	// --- Watermark-кодек (ML-сервис) ---

	// Базовый URL watermark-кодека (обязательный)
	MLURL string
	// Таймаут HTTP-запросов к кодеку (по умолчанию 30s)
	MLTimeout time.Duration

	// --- Загрузка файлов ---

	// Максимальный размер загружаемого файла в байтах (по умолчанию 10 MiB)
	MaxFileSize int64

	// --- JWT / JWKS ---

	// URL JWKS endpoint IdP (обязательный)
	JWKSURL string
	// Путь к CA-сертификату для TLS к IdP (опционально)
	JWKSCACertPath string
	// Ожидаемый issuer JWT (опционально, пустой — не проверяется)
	JWTIssuer string
	// Группы IdP, маппящиеся в роль admin
	AdminGroups []string
	// Группы IdP, маппящиеся в роль readonly
	ReadonlyGroups []string
	// Таймаут HTTP-клиента JWKS (по умолчанию 10s)
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей (по умолчанию 1h)
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (по умолчанию 30s)
	JWTLeeway time.Duration

	// --- Кэш записей ---

	// Максимальное количество записей в LRU-кэше (по умолчанию 1000)
	CacheSize int
	// TTL записи в кэше (по умолчанию 5m)
	CacheTTL time.Duration

	// --- Dephealth ---

	// Имя группы в метриках topologymetrics (по умолчанию medrecord)
	DephealthGroup string
	// Интервал проверки зависимостей (по умолчанию 30s)
	DephealthCheckInterval time.Duration
	// Пометка entry-вершины графа зависимостей
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны. Отсутствие кредов pinning-сервиса или
// адреса кодека — ошибка старта, не ошибка запроса.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("RM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RM_PORT: %w", err)
	}

	// RM_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("RM_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("RM_LOG_LEVEL: %w", err)
	}

	// RM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("RM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("RM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("RM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("RM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// RM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("RM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// RM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("RM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RM_DB_PORT: %w", err)
	}

	// RM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("RM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// RM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("RM_DB_USER")
	if err != nil {
		return nil, err
	}

	// RM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("RM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// RM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("RM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Pinning-сервис ---

	// RM_PIN_API_URL — API pinning-сервиса
	cfg.PinAPIURL = getEnvDefault("RM_PIN_API_URL", "https://api.pinata.cloud")

	// RM_PIN_GATEWAY_URL — gateway для скачивания
	cfg.PinGatewayURL = getEnvDefault("RM_PIN_GATEWAY_URL", "https://gateway.pinata.cloud")

	// RM_PIN_JWT — обязательный: без кредов pinning-сервиса модуль не стартует
	cfg.PinJWT, err = getEnvRequired("RM_PIN_JWT")
	if err != nil {
		return nil, err
	}

	cfg.PinTimeout, err = getEnvDuration("RM_PIN_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_PIN_TIMEOUT: %w", err)
	}

	// --- Watermark-кодек ---

	// RM_ML_URL — обязательный
	cfg.MLURL, err = getEnvRequired("RM_ML_URL")
	if err != nil {
		return nil, err
	}

	cfg.MLTimeout, err = getEnvDuration("RM_ML_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_ML_TIMEOUT: %w", err)
	}

	// --- Загрузка файлов ---

	// RM_MAX_FILE_SIZE — в байтах (по умолчанию 10 MiB, лимит исходной системы)
	maxFileSize, err := getEnvInt("RM_MAX_FILE_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("RM_MAX_FILE_SIZE: значение должно быть > 0")
	}
	cfg.MaxFileSize = int64(maxFileSize)

	// --- JWT / JWKS ---

	// RM_JWKS_URL — обязательный
	cfg.JWKSURL, err = getEnvRequired("RM_JWKS_URL")
	if err != nil {
		return nil, err
	}

	cfg.JWKSCACertPath = getEnvDefault("RM_JWKS_CA_CERT_PATH", "")
	cfg.JWTIssuer = getEnvDefault("RM_JWT_ISSUER", "")

	// RM_ADMIN_GROUPS, RM_READONLY_GROUPS — CSV списки групп IdP
	cfg.AdminGroups = parseCSV(getEnvDefault("RM_ADMIN_GROUPS", "medrecord-admins"))
	cfg.ReadonlyGroups = parseCSV(getEnvDefault("RM_READONLY_GROUPS", "medrecord-users"))

	cfg.JWKSClientTimeout, err = getEnvDuration("RM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("RM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("RM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_JWT_LEEWAY: %w", err)
	}

	// --- Кэш записей ---

	cfg.CacheSize, err = getEnvInt("RM_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("RM_CACHE_SIZE: значение должно быть > 0")
	}

	cfg.CacheTTL, err = getEnvDuration("RM_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RM_CACHE_TTL: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthGroup = getEnvDefault("RM_DEPHEALTH_GROUP", "medrecord")

	cfg.DephealthCheckInterval, err = getEnvDuration("RM_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для topologymetrics и инструментов, ожидающих URL-форму).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку со списком значений через запятую.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
