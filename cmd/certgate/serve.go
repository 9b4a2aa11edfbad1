package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/certgate/internal/api/handlers"
	"github.com/bigkaa/certgate/internal/api/middleware"
	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/config"
	"github.com/bigkaa/certgate/internal/database"
	"github.com/bigkaa/certgate/internal/phrasebook"
	"github.com/bigkaa/certgate/internal/repository"
	"github.com/bigkaa/certgate/internal/server"
	"github.com/bigkaa/certgate/internal/service"
	"github.com/bigkaa/certgate/internal/session"
	"github.com/bigkaa/certgate/internal/telegram"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервис",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("certgate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("target_bot", cfg.Telegram.TargetBot),
	)
	if os.Getenv("CG_DEPHEALTH_GROUP") == "" {
		logger.Warn("CG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	clk := clock.Real()

	// 3. Миграции и подключение к PostgreSQL
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg.Database, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Ключи доступа и фоновая очистка
	keyRepo := repository.NewAPIKeyRepository(pool)
	keySvc := service.NewKeyService(keyRepo, service.KeyServiceOptions{
		CacheSize:  cfg.KeyCacheSize,
		CacheTTL:   cfg.KeyCacheTTL,
		DefaultTTL: cfg.KeyDefaultTTL,
	}, clk, logger)
	sweeper := service.NewKeySweeper(keySvc, cfg.KeySweepSchedule, cfg.KeyRetention, clk, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 5. Формулировки бота
	phrases, err := phrasebook.NewStore(cfg.PhrasesFile, logger)
	if err != nil {
		return fmt.Errorf("загрузка формулировок: %w", err)
	}
	if cfg.PhrasesWatch {
		if err := phrases.Watch(ctx); err != nil {
			logger.Warn("Отслеживание файла формулировок недоступно", slog.String("error", err.Error()))
		}
	}

	// 6. Сессия мессенджера
	transport := telegram.New(telegram.Config{
		AppID:       cfg.Telegram.AppID,
		AppHash:     cfg.Telegram.AppHash,
		SessionFile: cfg.Telegram.SessionFile,
	}, logger)
	keeper := session.NewKeeper(transport, session.Options{
		KeepaliveInterval: cfg.KeepaliveInterval,
		ReconnectBackoff:  cfg.ReconnectBackoff,
		ConnectTimeout:    cfg.Telegram.ConnectTimeout,
		IOTimeout:         cfg.Telegram.IOTimeout,
		DownloadTimeout:   cfg.Telegram.DownloadTimeout,
	}, clk, logger)

	var wg sync.WaitGroup
	sessCtx, stopSession := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		keeper.Run(sessCtx)
	}()

	// 7. Оркестратор и последовательный шлюз запросов
	fetcher := service.NewAttachmentFetcher(keeper, cfg.AttachmentMaxBytes, logger)
	orchestrator := service.NewOrchestrator(keeper, phrases, fetcher, clk, service.OrchestratorOptions{
		Target:         cfg.Telegram.TargetBot,
		MaxAttempts:    cfg.MaxAttempts,
		SettleDelay:    cfg.SettleDelay,
		RetryDelay:     cfg.RetryDelay,
		FetchLimit:     cfg.FetchLimit,
		Window:         cfg.ResponseWindow,
		AttemptTimeout: cfg.AttemptTimeout,
		RestartWait:    cfg.RestartWait,
	}, logger)
	gateway := service.NewGateway(orchestrator, keeper, clk, service.GatewayOptions{
		QueueSize:       cfg.QueueSize,
		DefaultDeadline: cfg.QueryDeadline,
		RunTimeout:      cfg.RunTimeout,
	}, logger)
	gateway.Start(ctx)

	// 8. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, err := service.NewDephealthService(
		"certgate",
		cfg.DephealthGroup,
		pgDB,
		cfg.Database.URL(),
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. JWT для административных маршрутов (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTCACertPath,
			cfg.JWTIssuer,
			cfg.RoleAdminGroups,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			return fmt.Errorf("JWT middleware: %w", err)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, server.Handlers{
		Health:    handlers.NewHealthHandler(keeper, database.NewReadinessChecker(pool)),
		Query:     handlers.NewQueryHandler(gateway, clk, logger),
		Keys:      handlers.NewKeyHandler(keySvc, clk, logger),
		Validator: keySvc,
		JWT:       jwtAuth,
	})
	runErr := srv.Run(ctx)

	// 11. Остановка в обратном порядке: шлюз, сессия, фоновые задачи
	gateway.Stop()
	stopSession()
	wg.Wait()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	cancel()

	if runErr != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", runErr.Error()))
		return runErr
	}
	logger.Info("certgate остановлен")
	return nil
}
