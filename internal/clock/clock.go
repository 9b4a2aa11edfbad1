// Пакет clock — абстракция времени для сервисов с ожиданиями.
// В production используется Real(), в тестах — Stepping(): виртуальное
// время, которое сдвигается при каждом Sleep и After без реального ожидания.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock — источник времени и ожиданий.
type Clock interface {
	// Now возвращает текущее время.
	Now() time.Time
	// Sleep ждёт d или отмены контекста. При отмене возвращает ctx.Err().
	// d <= 0 возвращает управление сразу.
	Sleep(ctx context.Context, d time.Duration) error
	// After возвращает канал, в который придёт время по истечении d.
	// Используется в select вместе с другими событиями.
	After(d time.Duration) <-chan time.Time
}

// realClock — часы на основе пакета time.
type realClock struct{}

// Real возвращает часы реального времени.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SteppingClock — виртуальные часы: Sleep мгновенно сдвигает время на d
// и запоминает длительность. Потокобезопасны.
type SteppingClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	onStep func(time.Time)
}

// Stepping создаёт виртуальные часы с начальным временем initial.
func Stepping(initial time.Time) *SteppingClock {
	return &SteppingClock{now: initial}
}

// Now возвращает виртуальное время.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep сдвигает виртуальное время на d.
func (c *SteppingClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now, hook := c.now, c.onStep
	c.mu.Unlock()
	if hook != nil {
		hook(now)
	}
	return nil
}

// After сдвигает виртуальное время на d так же, как Sleep, и возвращает
// канал, в котором уже лежит новое время.
func (c *SteppingClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
		c.sleeps = append(c.sleeps, d)
	}
	now, hook := c.now, c.onStep
	c.mu.Unlock()
	if hook != nil && d > 0 {
		hook(now)
	}
	ch <- now
	return ch
}

// Advance сдвигает виртуальное время без записи в журнал ожиданий.
func (c *SteppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// OnStep задаёт функцию, вызываемую после каждого Sleep и After с новым временем.
func (c *SteppingClock) OnStep(fn func(now time.Time)) {
	c.mu.Lock()
	c.onStep = fn
	c.mu.Unlock()
}

// Sleeps возвращает копию журнала ожиданий.
func (c *SteppingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Slept возвращает суммарную длительность всех ожиданий.
func (c *SteppingClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}
