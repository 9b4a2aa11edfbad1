package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
)

// fakeTransport — управляемая реализация Transport для тестов.
type fakeTransport struct {
	connectFn  func(ctx context.Context) error
	pingFn     func(ctx context.Context) error
	sendFn     func(ctx context.Context, target, text string) error
	fetchFn    func(ctx context.Context, target string, limit int) ([]model.InboundMessage, error)
	downloadFn func(ctx context.Context, ref *model.MediaRef, w io.Writer) error

	connects    atomic.Int32
	pings       atomic.Int32
	disconnects atomic.Int32
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connects.Add(1)
	if f.connectFn != nil {
		return f.connectFn(ctx)
	}
	return nil
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.pings.Add(1)
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, target, text string) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, target, text)
	}
	return nil
}

func (f *fakeTransport) FetchRecent(ctx context.Context, target string, limit int) ([]model.InboundMessage, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, target, limit)
	}
	return nil, nil
}

func (f *fakeTransport) Download(ctx context.Context, ref *model.MediaRef, w io.Writer) error {
	if f.downloadFn != nil {
		return f.downloadFn(ctx, ref, w)
	}
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.disconnects.Add(1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{
		KeepaliveInterval: 20 * time.Millisecond,
		ReconnectBackoff:  10 * time.Millisecond,
		ConnectTimeout:    time.Second,
		IOTimeout:         time.Second,
		DownloadTimeout:   time.Second,
	}
}

// startKeeper запускает Run и дожидается ready.
func startKeeper(t *testing.T, tr *fakeTransport) (*Keeper, func()) {
	t.Helper()
	k := NewKeeper(tr, fastOptions(), nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	wctx, wcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer wcancel()
	if err := k.WaitReady(wctx); err != nil {
		cancel()
		t.Fatalf("сессия не перешла в ready: %v", err)
	}
	return k, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("не дождались: %s", what)
}

// TestKeeper_ReadyAndShutdown проверяет подключение и остановку.
func TestKeeper_ReadyAndShutdown(t *testing.T) {
	tr := &fakeTransport{}
	k, stop := startKeeper(t, tr)

	if k.State() != StateReady {
		t.Fatalf("State = %s, ожидалось ready", k.State())
	}
	if status, _ := k.CheckReady(); status != "ok" {
		t.Errorf("CheckReady = %q, ожидалось ok", status)
	}

	stop()
	if k.State() != StateDisconnected {
		t.Errorf("State после остановки = %s, ожидалось disconnected", k.State())
	}
	if tr.disconnects.Load() == 0 {
		t.Error("Disconnect не вызван при остановке")
	}
}

// TestKeeper_OpsRequireReady проверяет отказ операций вне ready.
func TestKeeper_OpsRequireReady(t *testing.T) {
	k := NewKeeper(&fakeTransport{}, fastOptions(), nil, testLogger())

	err := k.Send(context.Background(), "@bot", "/antpen 12345678")
	if !errors.Is(err, ErrNotReady) || !IsTransport(err) {
		t.Errorf("Send: ожидалась TransportError(ErrNotReady), получено %v", err)
	}
	if _, err := k.FetchRecent(context.Background(), "@bot", 10, time.Time{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("FetchRecent: ожидалась ErrNotReady, получено %v", err)
	}
	if err := k.Download(context.Background(), &model.MediaRef{}, io.Discard); !errors.Is(err, ErrNotReady) {
		t.Errorf("Download: ожидалась ErrNotReady, получено %v", err)
	}
	if status, _ := k.CheckReady(); status != "fail" {
		t.Errorf("CheckReady = %q, ожидалось fail", status)
	}
}

// TestKeeper_FetchRecentFilters проверяет фильтрацию и порядок сообщений.
func TestKeeper_FetchRecentFilters(t *testing.T) {
	now := time.Now()
	tr := &fakeTransport{
		fetchFn: func(_ context.Context, _ string, limit int) ([]model.InboundMessage, error) {
			if limit != 10 {
				t.Errorf("limit = %d, ожидалось 10", limit)
			}
			// Транспорт отдаёт от новых к старым.
			return []model.InboundMessage{
				{ID: 5, Text: "новое", Date: now},
				{ID: 4, Text: "исходящее", Date: now.Add(-time.Second), Outgoing: true},
				{ID: 3, Text: "среднее", Date: now.Add(-10 * time.Second)},
				{ID: 2, Text: "старое", Date: now.Add(-2 * time.Minute)},
			}, nil
		},
	}
	k, stop := startKeeper(t, tr)
	defer stop()

	got, err := k.FetchRecent(context.Background(), "@bot", 10, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("получено %d сообщений, ожидалось 2: %+v", len(got), got)
	}
	if got[0].ID != 3 || got[1].ID != 5 {
		t.Errorf("порядок = [%d %d], ожидалось [3 5]", got[0].ID, got[1].ID)
	}
}

// TestKeeper_KeepaliveFailureReconnects проверяет переподключение после неудачного ping.
func TestKeeper_KeepaliveFailureReconnects(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	tr := &fakeTransport{
		pingFn: func(context.Context) error {
			if fail.Load() {
				return errors.New("ping timeout")
			}
			return nil
		},
	}
	k, stop := startKeeper(t, tr)
	defer stop()

	waitFor(t, "повторное подключение", func() bool { return tr.connects.Load() >= 2 })
	fail.Store(false)
	waitFor(t, "ready после переподключения", func() bool { return k.State() == StateReady })

	var sawDegraded bool
	for _, rec := range k.History() {
		if rec.From == StateReady && rec.To == StateDegraded {
			sawDegraded = true
		}
	}
	if !sawDegraded {
		t.Error("в истории нет перехода ready → degraded")
	}
}

// TestKeeper_KeepaliveOnVirtualClock проверяет keepalive на виртуальных часах:
// неудачный ping переводит сессию ready → degraded → connecting.
func TestKeeper_KeepaliveOnVirtualClock(t *testing.T) {
	opts := fastOptions()
	opts.KeepaliveInterval = time.Minute
	opts.ReconnectBackoff = 30 * time.Second
	clk := clock.Stepping(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &fakeTransport{
		pingFn: func(context.Context) error { return errors.New("ping timeout") },
	}
	tr.connectFn = func(context.Context) error {
		if tr.connects.Load() >= 2 {
			cancel()
			return context.Canceled
		}
		return nil
	}
	k := NewKeeper(tr, opts, clk, testLogger())

	done := make(chan struct{})
	go func() { k.Run(ctx); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("Run не завершился: keepalive не сработал на виртуальных часах")
	}

	if n := tr.pings.Load(); n != 1 {
		t.Errorf("pings = %d, ожидался 1", n)
	}
	var path []State
	for _, rec := range k.History() {
		if rec.From == StateReady || len(path) > 0 {
			path = append(path, rec.To)
		}
	}
	if len(path) < 2 || path[0] != StateDegraded || path[1] != StateConnecting {
		t.Errorf("переходы после ready = %v, ожидалось [degraded connecting ...]", path)
	}
	want := []time.Duration{opts.KeepaliveInterval, opts.ReconnectBackoff}
	got := clk.Sleeps()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Sleeps = %v, ожидалось %v", got, want)
	}
}

// TestKeeper_KeepaliveSkippedWhenActive проверяет, что ping не отправляется при активности.
func TestKeeper_KeepaliveSkippedWhenActive(t *testing.T) {
	tr := &fakeTransport{}
	k := NewKeeper(tr, Options{
		KeepaliveInterval: 30 * time.Millisecond,
		ReconnectBackoff:  10 * time.Millisecond,
	}, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { k.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	if err := k.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
	stopSending := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(stopSending) {
		if err := k.Send(ctx, "@bot", "x"); err != nil {
			t.Fatalf("Send: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := tr.pings.Load(); n != 0 {
		t.Errorf("pings = %d, при постоянной активности ping не нужен", n)
	}
}

// TestKeeper_Restart проверяет принудительный перезапуск.
func TestKeeper_Restart(t *testing.T) {
	tr := &fakeTransport{}
	k, stop := startKeeper(t, tr)
	defer stop()

	k.Restart("тест")
	waitFor(t, "повторное подключение", func() bool { return tr.connects.Load() >= 2 && k.State() == StateReady })
}

// TestKeeper_DisconnectedErrorDegrades проверяет деградацию при обрыве во время операции.
func TestKeeper_DisconnectedErrorDegrades(t *testing.T) {
	var once sync.Once
	tr := &fakeTransport{}
	tr.sendFn = func(context.Context, string, string) error {
		var err error
		once.Do(func() { err = ErrDisconnected })
		return err
	}
	k, stop := startKeeper(t, tr)
	defer stop()

	err := k.Send(context.Background(), "@bot", "hola")
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("ожидалась ErrDisconnected, получено %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "send" {
		t.Errorf("ожидалась TransportError{Op: send}, получено %v", err)
	}
	waitFor(t, "переподключение", func() bool { return tr.connects.Load() >= 2 && k.State() == StateReady })
}

// TestKeeper_ConnectRetry проверяет повтор подключения после ошибок авторизации.
func TestKeeper_ConnectRetry(t *testing.T) {
	tr := &fakeTransport{}
	tr.connectFn = func(context.Context) error {
		if tr.connects.Load() < 3 {
			return ErrUnauthorized
		}
		return nil
	}
	k, stop := startKeeper(t, tr)
	defer stop()

	if got := tr.connects.Load(); got < 3 {
		t.Errorf("connects = %d, ожидалось >= 3", got)
	}
	if k.State() != StateReady {
		t.Errorf("State = %s, ожидалось ready", k.State())
	}
}

// TestKeeper_WaitReadyCancel проверяет отмену ожидания готовности.
func TestKeeper_WaitReadyCancel(t *testing.T) {
	k := NewKeeper(&fakeTransport{}, fastOptions(), nil, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := k.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ожидалась DeadlineExceeded, получено %v", err)
	}
}
