// gateway.go — последовательный шлюз запросов.
//
// Обработчики HTTP вызывают Submit из любого числа горутин. Шлюз ставит
// запрос в ограниченную очередь FIFO, которую разбирает единственная
// горутина-исполнитель: в любой момент выполняется не более одного
// запроса к боту, иначе ответ одного запроса мог бы быть приписан другому.
//
// Вызывающая сторона ждёт результата не дольше своего срока. По истечении
// срока возвращается timeout, а уже начатое выполнение доводится до конца
// в фоне и его результат отбрасывается.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/session"
)

// Prometheus-метрики шлюза.
var (
	gatewayQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cg_gateway_queue_depth",
		Help: "Количество запросов в очереди шлюза.",
	})

	gatewayAbandonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cg_gateway_abandoned_total",
		Help: "Запросы, срок ожидания которых истёк (stage: queued — до начала выполнения, running — во время).",
	}, []string{"stage"})

	gatewayWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cg_gateway_queue_wait_seconds",
		Help:    "Время ожидания запроса в очереди до начала выполнения.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 35},
	})
)

// Executor выполняет один запрос. Реализуется Orchestrator.
type Executor interface {
	Execute(ctx context.Context, req model.QueryRequest) model.QueryResult
}

// StateReporter сообщает состояние сессии.
type StateReporter interface {
	State() session.State
}

// GatewayOptions — параметры шлюза.
type GatewayOptions struct {
	// QueueSize — ёмкость очереди (по умолчанию 16)
	QueueSize int
	// DefaultDeadline — срок ожидания, если в запросе не задан (по умолчанию 35s)
	DefaultDeadline time.Duration
	// RunTimeout — предельная длительность одного выполнения (по умолчанию 120s)
	RunTimeout time.Duration
}

func (o *GatewayOptions) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.DefaultDeadline <= 0 {
		o.DefaultDeadline = 35 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 120 * time.Second
	}
}

type job struct {
	ctx      context.Context
	req      model.QueryRequest
	enqueued time.Time
	result   chan model.QueryResult
}

// Gateway — единственная точка входа для запросов справок.
type Gateway struct {
	exec   Executor
	state  StateReporter
	opts   GatewayOptions
	clock  clock.Clock
	jobs   chan *job
	logger *slog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewGateway создаёт шлюз. Исполнитель запускается методом Start.
// clk == nil означает часы реального времени.
func NewGateway(exec Executor, state StateReporter, clk clock.Clock, opts GatewayOptions, logger *slog.Logger) *Gateway {
	opts.applyDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	return &Gateway{
		exec:   exec,
		state:  state,
		opts:   opts,
		clock:  clk,
		jobs:   make(chan *job, opts.QueueSize),
		logger: logger.With(slog.String("component", "gateway")),
		done:   make(chan struct{}),
	}
}

// Start запускает горутину-исполнитель.
func (g *Gateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	go g.worker(ctx)
	g.logger.Info("Шлюз запросов запущен", slog.Int("queue_size", g.opts.QueueSize))
}

// Stop останавливает исполнитель и дожидается завершения текущего запроса.
// Запросы, оставшиеся в очереди, получают session_unavailable.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		if g.cancel == nil {
			close(g.done)
			return
		}
		g.cancel()
		<-g.done
		g.logger.Info("Шлюз запросов остановлен")
	})
}

// Submit ставит запрос в очередь и ждёт результата не дольше срока запроса.
// Некорректный запрос и неготовая сессия отклоняются без постановки в очередь.
func (g *Gateway) Submit(ctx context.Context, req model.QueryRequest) model.QueryResult {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = g.clock.Now()
	}
	if err := req.Validate(); err != nil {
		return model.Failed(model.OutcomeValidationError, err.Error())
	}
	if st := g.state.State(); st != session.StateReady {
		return model.Failed(model.OutcomeSessionUnavailable, "сессия в состоянии "+string(st))
	}

	deadline := req.Deadline
	if deadline <= 0 {
		deadline = g.opts.DefaultDeadline
	}
	req.Deadline = deadline
	now := g.clock.Now()
	cctx, cancel := context.WithTimeout(ctx, req.SubmittedAt.Add(deadline).Sub(now))
	defer cancel()

	j := &job{ctx: cctx, req: req, enqueued: now, result: make(chan model.QueryResult, 1)}
	select {
	case g.jobs <- j:
		gatewayQueueDepth.Inc()
	case <-cctx.Done():
		gatewayAbandonedTotal.WithLabelValues("queued").Inc()
		return model.Failed(model.OutcomeTimeout, "очередь запросов переполнена")
	}

	select {
	case res := <-j.result:
		return res
	case <-cctx.Done():
		gatewayAbandonedTotal.WithLabelValues("running").Inc()
		g.logger.Warn("Срок ожидания запроса истёк",
			slog.String("identifier", req.Identifier),
			slog.String("kind", string(req.Kind)),
			slog.Duration("deadline", deadline),
		)
		return model.Failed(model.OutcomeTimeout, "срок ожидания ответа истёк")
	}
}

// QueueDepth возвращает количество запросов в очереди.
func (g *Gateway) QueueDepth() int {
	return len(g.jobs)
}

func (g *Gateway) worker(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case <-ctx.Done():
			g.drain()
			return
		case j := <-g.jobs:
			gatewayQueueDepth.Dec()
			if ctx.Err() != nil {
				j.result <- model.Failed(model.OutcomeSessionUnavailable, "сервис останавливается")
				g.drain()
				return
			}
			gatewayWaitSeconds.Observe(g.clock.Now().Sub(j.enqueued).Seconds())

			// Вызывающая сторона уже получила timeout — выполнять незачем.
			if j.ctx.Err() != nil {
				g.logger.Debug("Запрос пропущен: срок истёк в очереди",
					slog.String("identifier", j.req.Identifier),
				)
				continue
			}

			// Выполнение не привязано к контексту вызывающей стороны:
			// начатая переписка с ботом доводится до конца.
			rctx, cancel := context.WithTimeout(ctx, g.opts.RunTimeout)
			res := g.exec.Execute(rctx, j.req)
			cancel()
			j.result <- res
		}
	}
}

func (g *Gateway) drain() {
	for {
		select {
		case j := <-g.jobs:
			gatewayQueueDepth.Dec()
			j.result <- model.Failed(model.OutcomeSessionUnavailable, "сервис останавливается")
		default:
			return
		}
	}
}
