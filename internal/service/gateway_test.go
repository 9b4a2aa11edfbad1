package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/session"
)

// fakeExecutor — исполнитель с подсчётом параллельных вызовов.
type fakeExecutor struct {
	delay     time.Duration
	running   atomic.Int32
	maxSeen   atomic.Int32
	calls     atomic.Int32
	completed atomic.Int32
}

func (e *fakeExecutor) Execute(ctx context.Context, req model.QueryRequest) model.QueryResult {
	e.calls.Add(1)
	n := e.running.Add(1)
	for {
		m := e.maxSeen.Load()
		if n <= m || e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(e.delay)
	e.running.Add(-1)
	e.completed.Add(1)
	return model.QueryResult{Outcome: model.OutcomeSuccess, RawText: req.Identifier, Attempts: 1}
}

type staticState session.State

func (s staticState) State() session.State { return session.State(s) }

func startGateway(t *testing.T, exec Executor, state StateReporter, opts GatewayOptions) *Gateway {
	t.Helper()
	g := NewGateway(exec, state, nil, opts, testLogger())
	g.Start(context.Background())
	t.Cleanup(g.Stop)
	return g
}

// TestGateway_Serializes проверяет, что выполнения не пересекаются.
func TestGateway_Serializes(t *testing.T) {
	exec := &fakeExecutor{delay: 20 * time.Millisecond}
	g := startGateway(t, exec, staticState(session.StateReady), GatewayOptions{})

	ids := []string{"11111111", "22222222", "33333333", "44444444", "55555555"}
	var wg sync.WaitGroup
	results := make([]model.QueryResult, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = g.Submit(context.Background(), model.QueryRequest{Identifier: id, Kind: model.KindPenal})
		}(i, id)
	}
	wg.Wait()

	if m := exec.maxSeen.Load(); m != 1 {
		t.Errorf("максимум параллельных выполнений = %d, ожидался 1", m)
	}
	for i, res := range results {
		if res.Outcome != model.OutcomeSuccess || res.RawText != ids[i] {
			t.Errorf("результат %d = %+v, ожидался success для %s", i, res, ids[i])
		}
	}
}

// TestGateway_RejectsWithoutQueueing проверяет отказы до постановки в очередь.
func TestGateway_RejectsWithoutQueueing(t *testing.T) {
	exec := &fakeExecutor{}
	g := startGateway(t, exec, staticState(session.StateDegraded), GatewayOptions{})

	res := g.Submit(context.Background(), model.QueryRequest{Identifier: "12", Kind: model.KindPenal})
	if res.Outcome != model.OutcomeValidationError {
		t.Errorf("Outcome = %s, ожидался validation_error", res.Outcome)
	}
	res = g.Submit(context.Background(), model.QueryRequest{Identifier: "12345678", Kind: model.KindPolice})
	if res.Outcome != model.OutcomeSessionUnavailable {
		t.Errorf("Outcome = %s, ожидался session_unavailable", res.Outcome)
	}
	if exec.calls.Load() != 0 {
		t.Errorf("calls = %d, исполнитель не должен вызываться", exec.calls.Load())
	}
}

// TestGateway_DeadlineReturnsTimeoutRunContinues проверяет истечение срока вызывающей стороны.
func TestGateway_DeadlineReturnsTimeoutRunContinues(t *testing.T) {
	exec := &fakeExecutor{delay: 150 * time.Millisecond}
	g := startGateway(t, exec, staticState(session.StateReady), GatewayOptions{})

	start := time.Now()
	res := g.Submit(context.Background(), model.QueryRequest{
		Identifier: "12345678",
		Kind:       model.KindPenal,
		Deadline:   30 * time.Millisecond,
	})
	if res.Outcome != model.OutcomeTimeout {
		t.Fatalf("Outcome = %s, ожидался timeout", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed > 120*time.Millisecond {
		t.Errorf("Submit вернулся через %v, ожидался возврат по сроку", elapsed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for exec.completed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exec.completed.Load() != 1 {
		t.Error("начатое выполнение должно завершиться в фоне")
	}
}

// TestGateway_SkipsAbandonedJobs проверяет, что просроченные в очереди запросы не выполняются.
func TestGateway_SkipsAbandonedJobs(t *testing.T) {
	exec := &fakeExecutor{delay: 100 * time.Millisecond}
	g := startGateway(t, exec, staticState(session.StateReady), GatewayOptions{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Submit(context.Background(), model.QueryRequest{Identifier: "11111111", Kind: model.KindPenal})
	}()
	time.Sleep(10 * time.Millisecond)

	res := g.Submit(context.Background(), model.QueryRequest{
		Identifier: "22222222",
		Kind:       model.KindPenal,
		Deadline:   20 * time.Millisecond,
	})
	if res.Outcome != model.OutcomeTimeout {
		t.Fatalf("Outcome = %s, ожидался timeout", res.Outcome)
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	if calls := exec.calls.Load(); calls != 1 {
		t.Errorf("calls = %d, просроченный в очереди запрос не должен выполняться", calls)
	}
}

// TestGateway_WithOrchestratorNoInterleavedSends проверяет отсутствие чередования отправок
// при реальном оркестраторе.
func TestGateway_WithOrchestratorNoInterleavedSends(t *testing.T) {
	s := newFakeSession(startClock())
	o := newTestOrchestrator(t, s)
	g := startGateway(t, o, s, GatewayOptions{})

	var wg sync.WaitGroup
	for _, id := range []string{"11111111", "22222222"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := g.Submit(context.Background(), model.QueryRequest{Identifier: id, Kind: model.KindPenal})
			if res.Outcome != model.OutcomeTimeout {
				t.Errorf("%s: Outcome = %s, ожидался timeout", id, res.Outcome)
			}
		}(id)
	}
	wg.Wait()

	s.mu.Lock()
	sends := append([]string(nil), s.sends...)
	s.mu.Unlock()
	if len(sends) != 6 {
		t.Fatalf("sends = %v, ожидалось 6 отправок", sends)
	}
	// Первые три отправки принадлежат одному запросу, следующие три — другому.
	for i := 1; i < 3; i++ {
		if sends[i] != sends[0] || sends[3+i] != sends[3] {
			t.Fatalf("отправки чередуются: %v", sends)
		}
	}
	if sends[0] == sends[3] {
		t.Errorf("ожидались отправки для двух разных запросов: %v", sends)
	}
}

// TestGateway_StopDrainsQueue проверяет ответ запросам, оставшимся в очереди при остановке.
func TestGateway_StopDrainsQueue(t *testing.T) {
	exec := &fakeExecutor{delay: 50 * time.Millisecond}
	g := NewGateway(exec, staticState(session.StateReady), nil, GatewayOptions{}, testLogger())
	g.Start(context.Background())

	var wg sync.WaitGroup
	outcomes := make(chan model.Outcome, 3)
	for _, id := range []string{"11111111", "22222222", "33333333"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			outcomes <- g.Submit(context.Background(), model.QueryRequest{Identifier: id, Kind: model.KindPenal}).Outcome
		}(id)
	}
	time.Sleep(10 * time.Millisecond)
	g.Stop()
	wg.Wait()
	close(outcomes)

	var unavailable int
	for o := range outcomes {
		if o == model.OutcomeSessionUnavailable {
			unavailable++
		}
	}
	if unavailable == 0 {
		t.Error("запросы из очереди должны получить session_unavailable при остановке")
	}
}

// executorFunc — исполнитель на основе функции.
type executorFunc func(ctx context.Context, req model.QueryRequest) model.QueryResult

func (f executorFunc) Execute(ctx context.Context, req model.QueryRequest) model.QueryResult {
	return f(ctx, req)
}

// TestGateway_SubmittedAtFromClock проверяет, что время подачи берётся из часов шлюза.
func TestGateway_SubmittedAtFromClock(t *testing.T) {
	clk := startClock()
	submitted := make(chan time.Time, 2)
	exec := executorFunc(func(_ context.Context, req model.QueryRequest) model.QueryResult {
		submitted <- req.SubmittedAt
		return model.QueryResult{Outcome: model.OutcomeSuccess, Attempts: 1}
	})
	g := NewGateway(exec, staticState(session.StateReady), clk, GatewayOptions{}, testLogger())
	g.Start(context.Background())
	t.Cleanup(g.Stop)

	res := g.Submit(context.Background(), model.QueryRequest{Identifier: "12345678", Kind: model.KindPenal})
	if res.Outcome != model.OutcomeSuccess {
		t.Fatalf("Outcome = %s, ожидался success", res.Outcome)
	}
	if got := <-submitted; !got.Equal(clk.Now()) {
		t.Errorf("SubmittedAt = %v, ожидалось время часов шлюза %v", got, clk.Now())
	}

	// Явно заданное время подачи не перезаписывается, срок считается от него.
	at := clk.Now().Add(-10 * time.Second)
	res = g.Submit(context.Background(), model.QueryRequest{
		Identifier:  "87654321",
		Kind:        model.KindPenal,
		SubmittedAt: at,
		Deadline:    time.Minute,
	})
	if res.Outcome != model.OutcomeSuccess {
		t.Fatalf("Outcome = %s, ожидался success", res.Outcome)
	}
	if got := <-submitted; !got.Equal(at) {
		t.Errorf("SubmittedAt = %v, ожидалось %v", got, at)
	}
}
