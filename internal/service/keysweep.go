// keysweep.go — периодическая очистка истёкших ключей доступа по
// cron-расписанию (CG_KEY_SWEEP_SCHEDULE).
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/certgate/internal/clock"
)

var keysSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cg_keys_swept_total",
	Help: "Количество ключей, удалённых очисткой.",
})

// scheduleRetryDelay — пауза после ошибки вычисления следующего запуска.
const scheduleRetryDelay = 30 * time.Second

// KeyPurger удаляет давно истёкшие ключи. Реализуется KeyService.
type KeyPurger interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// KeySweeper — фоновая очистка ключей.
type KeySweeper struct {
	purger    KeyPurger
	schedule  string
	retention time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewKeySweeper создаёт сервис очистки. schedule — cron-выражение
// (проверяется при загрузке конфигурации).
func NewKeySweeper(purger KeyPurger, schedule string, retention time.Duration, clk clock.Clock, logger *slog.Logger) *KeySweeper {
	return &KeySweeper{
		purger:    purger,
		schedule:  schedule,
		retention: retention,
		clock:     clk,
		logger:    logger.With(slog.String("component", "key_sweeper")),
	}
}

// Start запускает фоновую горутину очистки.
func (s *KeySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Очистка истёкших ключей запущена",
			slog.String("schedule", s.schedule),
			slog.String("retention", s.retention.String()),
		)

		for {
			now := s.clock.Now()
			wait := scheduleRetryDelay
			next, schedErr := gronx.NextTickAfter(s.schedule, now, false)
			if schedErr != nil {
				s.logger.Error("Ошибка вычисления следующего запуска очистки",
					slog.String("error", schedErr.Error()),
				)
			} else {
				wait = next.Sub(now)
			}

			if err := s.clock.Sleep(ctx, wait); err != nil {
				s.logger.Info("Очистка истёкших ключей остановлена")
				return
			}
			if schedErr == nil {
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce выполняет одну очистку.
func (s *KeySweeper) RunOnce(ctx context.Context) {
	n, err := s.purger.Sweep(ctx, s.retention)
	if err != nil {
		s.logger.Error("Ошибка очистки истёкших ключей",
			slog.String("error", err.Error()),
		)
		return
	}
	keysSweptTotal.Add(float64(n))
	s.logger.Info("Очистка истёкших ключей завершена",
		slog.Int64("deleted", n),
	)
}

// Stop останавливает горутину и ждёт её завершения.
func (s *KeySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
