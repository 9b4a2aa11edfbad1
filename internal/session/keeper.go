package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
)

// Options — параметры поддержания сессии.
type Options struct {
	// KeepaliveInterval — период keepalive (по умолчанию 5s)
	KeepaliveInterval time.Duration
	// ReconnectBackoff — пауза перед повторным подключением (по умолчанию 2s)
	ReconnectBackoff time.Duration
	// ConnectTimeout — таймаут установки соединения (по умолчанию 30s)
	ConnectTimeout time.Duration
	// IOTimeout — таймаут отправки, чтения и ping (по умолчанию 10s)
	IOTimeout time.Duration
	// DownloadTimeout — таймаут скачивания вложения (по умолчанию 60s)
	DownloadTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = 5 * time.Second
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = 2 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 10 * time.Second
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 60 * time.Second
	}
}

// Keeper владеет единственной сессией процесса. Соединение, keepalive и
// переподключение выполняются в горутине Run; операции Send, FetchRecent и
// Download допустимы только в состоянии ready.
type Keeper struct {
	transport Transport
	opts      Options
	clock     clock.Clock
	logger    *slog.Logger
	sm        *machine

	mu           sync.RWMutex
	lastActivity time.Time
	readyCh      chan struct{} // закрыт, пока сессия в ready

	degradeCh chan string
}

// NewKeeper создаёт Keeper над транспортом. Соединение устанавливается в Run.
func NewKeeper(transport Transport, opts Options, clk clock.Clock, logger *slog.Logger) *Keeper {
	opts.applyDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	setStateGauge(StateDisconnected)
	return &Keeper{
		transport: transport,
		opts:      opts,
		clock:     clk,
		logger:    logger.With(slog.String("component", "session")),
		sm:        newMachine(),
		readyCh:   make(chan struct{}),
		degradeCh: make(chan string, 1),
	}
}

// State возвращает текущее состояние сессии.
func (k *Keeper) State() State {
	return k.sm.state()
}

// LastActivity возвращает время последней успешной операции или keepalive.
func (k *Keeper) LastActivity() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.lastActivity
}

// History возвращает последние переходы между состояниями.
func (k *Keeper) History() []TransitionRecord {
	return k.sm.historyCopy()
}

// WaitReady блокируется до перехода сессии в ready или отмены ctx.
func (k *Keeper) WaitReady(ctx context.Context) error {
	for {
		k.mu.RLock()
		ch := k.readyCh
		k.mu.RUnlock()

		select {
		case <-ch:
			if k.State() == StateReady {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CheckReady — проверка готовности сессии для health endpoint.
func (k *Keeper) CheckReady() (status string, message string) {
	if st := k.State(); st != StateReady {
		return "fail", fmt.Sprintf("сессия в состоянии %s", st)
	}
	return "ok", "сессия готова"
}

// Run поддерживает сессию до отмены ctx: подключается, выполняет keepalive
// и переподключается после потери соединения. Ошибки авторизации не
// прерывают цикл — попытки продолжаются с паузой ReconnectBackoff.
func (k *Keeper) Run(ctx context.Context) {
	defer k.shutdown()

	for ctx.Err() == nil {
		k.setState(StateConnecting, "connect")

		if err := k.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			level := slog.LevelWarn
			if errors.Is(err, ErrUnauthorized) {
				level = slog.LevelError
			}
			k.logger.Log(ctx, level, "Не удалось установить сессию",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", k.opts.ReconnectBackoff),
			)
			k.setState(StateDegraded, "connect failed")
			k.release()
			if k.clock.Sleep(ctx, k.opts.ReconnectBackoff) != nil {
				return
			}
			continue
		}

		// Сигналы о деградации, пришедшие до ready, устарели.
		select {
		case <-k.degradeCh:
		default:
		}
		k.touch()
		k.setState(StateReady, "connected")
		k.logger.Info("Сессия готова")

		reason := k.supervise(ctx)
		if ctx.Err() != nil {
			return
		}
		k.logger.Warn("Сессия потеряна, переподключение",
			slog.String("reason", reason),
			slog.Duration("backoff", k.opts.ReconnectBackoff),
		)
		k.release()
		if k.clock.Sleep(ctx, k.opts.ReconnectBackoff) != nil {
			return
		}
	}
}

// Restart принудительно переводит сессию из ready в degraded,
// после чего Run выполняет переподключение. Вне ready ничего не делает.
func (k *Keeper) Restart(reason string) {
	k.degrade("restart: " + reason)
}

// Send отправляет текст пользователю target.
func (k *Keeper) Send(ctx context.Context, target, text string) error {
	if err := k.guard("send"); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.opts.IOTimeout)
	defer cancel()
	return k.finish("send", k.transport.Send(ctx, target, text))
}

// FetchRecent читает до limit последних сообщений переписки с target и
// возвращает только входящие сообщения не старше since, от старых к новым.
func (k *Keeper) FetchRecent(ctx context.Context, target string, limit int, since time.Time) ([]model.InboundMessage, error) {
	if err := k.guard("fetch"); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, k.opts.IOTimeout)
	defer cancel()

	msgs, err := k.transport.FetchRecent(ctx, target, limit)
	if err := k.finish("fetch", err); err != nil {
		return nil, err
	}

	out := make([]model.InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Outgoing || m.Date.Before(since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Download записывает содержимое медиа в w.
func (k *Keeper) Download(ctx context.Context, ref *model.MediaRef, w io.Writer) error {
	if err := k.guard("download"); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.opts.DownloadTimeout)
	defer cancel()
	return k.finish("download", k.transport.Download(ctx, ref, w))
}

// --- внутренние методы ---

func (k *Keeper) connect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, k.opts.ConnectTimeout)
	defer cancel()
	return k.transport.Connect(cctx)
}

// supervise выполняет keepalive, пока сессия в ready.
// Возвращает причину деградации или пустую строку при отмене ctx.
func (k *Keeper) supervise(ctx context.Context) string {
	for {
		select {
		case <-ctx.Done():
			return ""
		case reason := <-k.degradeCh:
			return reason
		case <-k.clock.After(k.opts.KeepaliveInterval):
			// Недавняя операция уже подтвердила, что соединение живо.
			if k.clock.Now().Sub(k.LastActivity()) < k.opts.KeepaliveInterval {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, k.opts.IOTimeout)
			err := k.transport.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return ""
				}
				sessionKeepaliveFailuresTotal.Inc()
				reason := "keepalive: " + err.Error()
				k.degrade(reason)
				return reason
			}
			k.touch()
		}
	}
}

func (k *Keeper) guard(op string) error {
	if k.State() != StateReady {
		sessionOpErrorsTotal.WithLabelValues(op).Inc()
		return &TransportError{Op: op, Err: ErrNotReady}
	}
	return nil
}

func (k *Keeper) finish(op string, err error) error {
	if err == nil {
		k.touch()
		return nil
	}
	sessionOpErrorsTotal.WithLabelValues(op).Inc()
	if errors.Is(err, ErrDisconnected) {
		k.degrade(op + ": " + err.Error())
	}
	return &TransportError{Op: op, Err: err}
}

// degrade переводит ready → degraded и будит supervise.
func (k *Keeper) degrade(reason string) {
	if k.State() != StateReady {
		return
	}
	if !k.setState(StateDegraded, reason) {
		return
	}
	select {
	case k.degradeCh <- reason:
	default:
	}
}

// setState выполняет переход и обновляет readyCh и метрики.
func (k *Keeper) setState(target State, reason string) bool {
	from, err := k.sm.transitionTo(target, reason)
	if err != nil {
		k.logger.Debug("Переход состояния отклонён", slog.String("error", err.Error()))
		return false
	}

	k.mu.Lock()
	switch {
	case target == StateReady:
		close(k.readyCh)
	case from == StateReady:
		k.readyCh = make(chan struct{})
	}
	k.mu.Unlock()

	sessionTransitionsTotal.WithLabelValues(string(from), string(target)).Inc()
	setStateGauge(target)
	k.logger.Debug("Смена состояния сессии",
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.String("reason", reason),
	)
	return true
}

func (k *Keeper) touch() {
	now := k.clock.Now()
	k.mu.Lock()
	k.lastActivity = now
	k.mu.Unlock()
}

func (k *Keeper) release() {
	if err := k.transport.Disconnect(); err != nil {
		k.logger.Debug("Ошибка закрытия соединения", slog.String("error", err.Error()))
	}
}

func (k *Keeper) shutdown() {
	if k.State() != StateDisconnected {
		k.setState(StateDisconnected, "shutdown")
	}
	k.release()
	k.logger.Info("Сессия остановлена")
}
