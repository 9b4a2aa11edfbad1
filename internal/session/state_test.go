package session

import (
	"errors"
	"testing"
)

// TestMachine_ValidTransitions проверяет допустимые переходы.
func TestMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateReady, false},
		{StateDisconnected, StateDisconnected, false},
		{StateConnecting, StateReady, true},
		{StateConnecting, StateDegraded, true},
		{StateConnecting, StateDisconnected, true},
		{StateReady, StateDegraded, true},
		{StateReady, StateConnecting, false},
		{StateReady, StateDisconnected, true},
		{StateDegraded, StateConnecting, true},
		{StateDegraded, StateReady, false},
		{StateDegraded, StateDisconnected, true},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s → %s: %v, ожидалось %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

// TestMachine_TransitionError проверяет ошибку недопустимого перехода.
func TestMachine_TransitionError(t *testing.T) {
	m := newMachine()
	_, err := m.transitionTo(StateReady, "test")
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась TransitionError, получено %v", err)
	}
	if te.Code != "INVALID_TRANSITION" {
		t.Errorf("Code = %q, ожидался INVALID_TRANSITION", te.Code)
	}
	if m.state() != StateDisconnected {
		t.Errorf("состояние изменилось после ошибки: %s", m.state())
	}
}

// TestMachine_History проверяет журнал переходов и его ограничение.
func TestMachine_History(t *testing.T) {
	m := newMachine()
	if _, err := m.transitionTo(StateConnecting, "a"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < historyLimit; i++ {
		if _, err := m.transitionTo(StateDegraded, "b"); err != nil {
			t.Fatal(err)
		}
		if _, err := m.transitionTo(StateConnecting, "c"); err != nil {
			t.Fatal(err)
		}
	}
	h := m.historyCopy()
	if len(h) != historyLimit {
		t.Errorf("len(history) = %d, ожидалось %d", len(h), historyLimit)
	}
	if last := h[len(h)-1]; last.To != StateConnecting || last.Reason != "c" {
		t.Errorf("последний переход = %+v", last)
	}
}
