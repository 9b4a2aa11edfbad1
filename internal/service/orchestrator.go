// orchestrator.go — выполнение одного запроса справки через переписку с ботом.
//
// Попытка: отправка команды → пауза settle → опрос переписки и классификация
// сообщений. Указание подождать выполняется внутри той же попытки (в пределах
// её срока), «нет данных» завершает запрос сразу, совпадение — с вложением и
// полями. После исчерпания попыток — timeout. Сбой транспорта приводит к
// перезапуску сессии и однократному повтору всего запроса.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/matcher"
	"github.com/bigkaa/certgate/internal/phrasebook"
	"github.com/bigkaa/certgate/internal/session"
)

// Prometheus-метрики запросов.
var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cg_queries_total",
		Help: "Общее количество выполненных запросов (по типу и исходу).",
	}, []string{"kind", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cg_query_duration_seconds",
		Help:    "Длительность выполнения запроса оркестратором.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89},
	}, []string{"kind"})

	queryAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cg_query_attempts",
		Help:    "Количество попыток на запрос.",
		Buckets: []float64{1, 2, 3, 4, 5, 6},
	})

	waitDirectivesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_wait_directives_total",
		Help: "Количество выполненных указаний бота подождать.",
	})

	sessionRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_orchestrator_session_restarts_total",
		Help: "Количество перезапусков сессии после сбоя транспорта во время запроса.",
	})
)

// OrchestratorOptions — бюджеты выполнения запроса.
type OrchestratorOptions struct {
	// Target — имя бота (@username)
	Target string
	// MaxAttempts — количество попыток (по умолчанию 3)
	MaxAttempts int
	// SettleDelay — пауза после отправки команды (по умолчанию 2s)
	SettleDelay time.Duration
	// RetryDelay — пауза между попытками (по умолчанию 3s)
	RetryDelay time.Duration
	// FetchLimit — сколько последних сообщений читать (по умолчанию 10)
	FetchLimit int
	// Window — учитываются сообщения не старше Window (по умолчанию 60s)
	Window time.Duration
	// AttemptTimeout — срок одной попытки от момента отправки (по умолчанию 30s)
	AttemptTimeout time.Duration
	// RestartWait — сколько ждать готовности сессии после перезапуска (по умолчанию 10s)
	RestartWait time.Duration
}

func (o *OrchestratorOptions) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 2 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 3 * time.Second
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = 10
	}
	if o.Window <= 0 {
		o.Window = 60 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.RestartWait <= 0 {
		o.RestartWait = 10 * time.Second
	}
}

// Orchestrator выполняет запросы справок. Не допускает параллельного
// использования: последовательность обеспечивает Gateway.
type Orchestrator struct {
	session Session
	phrases *phrasebook.Store
	fetcher *AttachmentFetcher
	clock   clock.Clock
	opts    OrchestratorOptions
	logger  *slog.Logger
}

// NewOrchestrator создаёт оркестратор.
func NewOrchestrator(
	s Session,
	phrases *phrasebook.Store,
	fetcher *AttachmentFetcher,
	clk clock.Clock,
	opts OrchestratorOptions,
	logger *slog.Logger,
) *Orchestrator {
	opts.applyDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	return &Orchestrator{
		session: s,
		phrases: phrases,
		fetcher: fetcher,
		clock:   clk,
		opts:    opts,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Execute выполняет запрос до результата. Никогда не возвращает ошибку:
// все исходы представлены в QueryResult.Outcome.
func (o *Orchestrator) Execute(ctx context.Context, req model.QueryRequest) model.QueryResult {
	start := o.clock.Now()
	res := o.execute(ctx, req)

	queriesTotal.WithLabelValues(string(req.Kind), string(res.Outcome)).Inc()
	if res.Attempts > 0 {
		queryDuration.WithLabelValues(string(req.Kind)).Observe(o.clock.Now().Sub(start).Seconds())
		queryAttempts.Observe(float64(res.Attempts))
	}

	level := slog.LevelInfo
	if res.Outcome == model.OutcomeTransportError {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "Запрос выполнен",
		slog.String("kind", string(req.Kind)),
		slog.String("identifier", req.Identifier),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("attempts", res.Attempts),
		slog.Duration("elapsed", o.clock.Now().Sub(start)),
	)
	return res
}

func (o *Orchestrator) execute(ctx context.Context, req model.QueryRequest) model.QueryResult {
	if err := req.Validate(); err != nil {
		return model.Failed(model.OutcomeValidationError, err.Error())
	}
	if st := o.session.State(); st != session.StateReady {
		return model.Failed(model.OutcomeSessionUnavailable, fmt.Sprintf("сессия в состоянии %s", st))
	}

	phrases := o.phrases.Current()
	command, ok := phrases.Command(req.Kind)
	if !ok {
		return model.Failed(model.OutcomeValidationError, fmt.Sprintf("нет команды для типа %q", req.Kind))
	}
	text := command + " " + req.Identifier

	res, err := o.run(ctx, req, phrases, text)
	if err == nil {
		return res
	}
	if ctx.Err() != nil {
		return interrupted(res.Attempts)
	}

	// Сбой транспорта: перезапуск сессии и один повтор всего запроса.
	o.logger.Warn("Сбой транспорта во время запроса, перезапуск сессии",
		slog.String("identifier", req.Identifier),
		slog.String("error", err.Error()),
	)
	sessionRestartsTotal.Inc()
	attempts := res.Attempts
	o.session.Restart(err.Error())

	wctx, cancel := context.WithTimeout(ctx, o.opts.RestartWait)
	werr := o.session.WaitReady(wctx)
	cancel()
	if werr != nil {
		if ctx.Err() != nil {
			return interrupted(attempts)
		}
		r := model.Failed(model.OutcomeTransportError, "сессия не восстановилась после сбоя: "+err.Error())
		r.Attempts = attempts
		return r
	}

	res, err = o.run(ctx, req, phrases, text)
	res.Attempts += attempts
	if err == nil {
		return res
	}
	if ctx.Err() != nil {
		return interrupted(res.Attempts)
	}
	r := model.Failed(model.OutcomeTransportError, err.Error())
	r.Attempts = res.Attempts
	return r
}

// run выполняет до MaxAttempts попыток. Ошибка возвращается только при
// сбое транспорта или отмене ctx; Attempts заполняется всегда.
func (o *Orchestrator) run(ctx context.Context, req model.QueryRequest, phrases *phrasebook.Compiled, text string) (model.QueryResult, error) {
	// Указания подождать, уже выполненные в этом запросе.
	acted := make(map[int]bool)
	skip := func(id int) bool { return acted[id] }

	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		partial := model.QueryResult{Attempts: attempt}

		if err := o.session.Send(ctx, o.opts.Target, text); err != nil {
			return partial, err
		}
		deadline := o.clock.Now().Add(o.opts.AttemptTimeout)

		if err := o.clock.Sleep(ctx, o.opts.SettleDelay); err != nil {
			return partial, err
		}

	poll:
		for {
			since := o.clock.Now().Add(-o.opts.Window)
			batch, err := o.session.FetchRecent(ctx, o.opts.Target, o.opts.FetchLimit, since)
			if err != nil {
				return partial, err
			}

			d := phrases.Matcher.Scan(batch, req, skip)
			switch d.Kind {
			case matcher.NotFound:
				return model.QueryResult{
					Outcome:  model.OutcomeNotFound,
					Detail:   "бот сообщил об отсутствии данных",
					Attempts: attempt,
				}, nil

			case matcher.Match:
				att, err := o.fetcher.Fetch(ctx, d.Message)
				if err != nil {
					return partial, err
				}
				return model.QueryResult{
					Outcome:    model.OutcomeSuccess,
					RawText:    d.Message.Text,
					Attachment: att,
					Fields:     phrases.Parser.Parse(d.Message.Text, req.Kind.Label()),
					Attempts:   attempt,
				}, nil

			case matcher.Wait:
				acted[d.Message.ID] = true
				waitDirectivesTotal.Inc()
				remaining := deadline.Sub(o.clock.Now())
				if remaining <= 0 {
					break poll
				}
				delay := min(d.Delay, remaining)
				o.logger.Info("Бот просит подождать",
					slog.String("identifier", req.Identifier),
					slog.Duration("delay", d.Delay),
					slog.Duration("sleep", delay),
				)
				if err := o.clock.Sleep(ctx, delay); err != nil {
					return partial, err
				}
				continue
			}
			break poll
		}

		if attempt < o.opts.MaxAttempts {
			o.logger.Debug("Ответ не найден, следующая попытка",
				slog.String("identifier", req.Identifier),
				slog.Int("attempt", attempt),
			)
			if err := o.clock.Sleep(ctx, o.opts.RetryDelay); err != nil {
				return partial, err
			}
		}
	}

	return model.QueryResult{
		Outcome:  model.OutcomeTimeout,
		Detail:   fmt.Sprintf("ответ не получен за %d попыток", o.opts.MaxAttempts),
		Attempts: o.opts.MaxAttempts,
	}, nil
}

func interrupted(attempts int) model.QueryResult {
	r := model.Failed(model.OutcomeTimeout, "выполнение прервано по сроку")
	r.Attempts = attempts
	return r
}
