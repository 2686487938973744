// Точка входа Record Module — сервис медицинских записей с водяными знаками.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиенты pinning-сервиса и watermark-кодека, создаёт
// сервисный слой и API handlers, запускает мониторинг зависимостей
// (topologymetrics) и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/medrecord/record-module/internal/api/handlers"
	"github.com/bigkaa/medrecord/record-module/internal/api/middleware"
	"github.com/bigkaa/medrecord/record-module/internal/api/openapi"
	"github.com/bigkaa/medrecord/record-module/internal/config"
	"github.com/bigkaa/medrecord/record-module/internal/database"
	"github.com/bigkaa/medrecord/record-module/internal/mlclient"
	"github.com/bigkaa/medrecord/record-module/internal/pinclient"
	"github.com/bigkaa/medrecord/record-module/internal/repository"
	"github.com/bigkaa/medrecord/record-module/internal/server"
	"github.com/bigkaa/medrecord/record-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Record Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("RM_DEPHEALTH_GROUP") == "" {
		logger.Warn("RM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Загрузка и валидация embedded OpenAPI-спецификации
	ctx := context.Background()
	spec, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-спецификации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 6. Клиент pinning-сервиса (content store)
	pinClient, err := pinclient.New(cfg.PinAPIURL, cfg.PinGatewayURL, cfg.PinJWT, cfg.PinTimeout, "")
	if err != nil {
		logger.Error("Ошибка создания клиента pinning-сервиса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент pinning-сервиса создан",
		slog.String("api_url", cfg.PinAPIURL),
		slog.String("gateway_url", cfg.PinGatewayURL),
	)

	// 7. Клиент watermark-кодека
	codecClient := mlclient.New(cfg.MLURL, cfg.MLTimeout)
	logger.Info("Клиент watermark-кодека создан", slog.String("url", cfg.MLURL))

	// 8. Репозиторий и сервисный слой
	recordRepo := repository.NewRecordRepository(pool)
	cacheService := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL, logger)
	recordService := service.NewRecordService(recordRepo, pinClient, codecClient, cacheService, logger)

	// 9. Readiness checkers (PostgreSQL + IdP)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewIdPReadinessChecker(cfg.JWKSURL, cfg.JWKSCACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, recordService, cfg.MaxFileSize, logger)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSURL,
		cfg.JWKSCACertPath,
		cfg.JWTIssuer,
		cfg.AdminGroups,
		cfg.ReadonlyGroups,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + кодек + gateway)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"record-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.MLURL,
		cfg.PinGatewayURL,
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 13. HTTP-сервер.
	// Порядок middleware: метрики → логирование → JWT (с исключениями
	// для служебных endpoints и публичной спецификации).
	srv := server.New(cfg, logger, apiHandler, spec,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(),
			"/health/", "/metrics", "/api/v1/openapi.json",
		),
	)

	// 14. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Record Module остановлен")
}
