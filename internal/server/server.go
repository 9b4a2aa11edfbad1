// Пакет server — HTTP-сервер certgate с graceful shutdown.
// Без TLS: TLS termination выполняется на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/certgate/internal/api/handlers"
	"github.com/bigkaa/certgate/internal/api/middleware"
	"github.com/bigkaa/certgate/internal/config"
	"github.com/bigkaa/certgate/internal/domain/model"
)

// Handlers — обработчики, из которых собирается маршрутизатор.
type Handlers struct {
	Health *handlers.HealthHandler
	Query  *handlers.QueryHandler
	Keys   *handlers.KeyHandler
	// Validator проверяет ключи доступа маршрутов справок
	Validator middleware.KeyValidator
	// JWT — проверка токенов административных маршрутов.
	// nil — административные маршруты не монтируются.
	JWT *middleware.JWTAuth
}

// Server — HTTP-сервер certgate.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, h),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты:
//   - публичные: /, /health, /health/live, /health/ready, /metrics;
//   - справки (ключ доступа + rate limit): /antpen, /antpol, /antjud,
//     /api/v1/queries/{kind}/{identifier};
//   - администрирование ключей (JWT, роль admin), если задан JWT.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogger(logger))

	r.Get("/", handlers.Home)
	r.Get("/health", h.Health.Health)
	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Get("/metrics", h.Health.GetMetrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(h.Validator, logger))
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

		r.Get("/antpen", h.Query.Legacy(model.KindPenal))
		r.Get("/antpol", h.Query.Legacy(model.KindPolice))
		r.Get("/antjud", h.Query.Legacy(model.KindJudicial))
		r.Get("/api/v1/queries/{kind}/{identifier}", h.Query.ByPath)
	})

	if h.JWT != nil {
		r.Group(func(r chi.Router) {
			r.Use(h.JWT.Middleware())
			r.Use(middleware.RequireRole(middleware.RoleAdmin))

			r.Post("/register-key", h.Keys.RegisterKey)
			r.Post("/delete-key", h.Keys.DeleteKey)
			r.Get("/api/v1/keys", h.Keys.ListKeys)
			r.Post("/api/v1/keys", h.Keys.CreateKey)
		})
	} else {
		logger.Warn("CG_JWT_JWKS_URL не задан: административные маршруты ключей отключены")
	}

	return r
}

// Run запускает сервер и ожидает отмены ctx или сигнала завершения
// (SIGINT, SIGTERM). Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}
	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
