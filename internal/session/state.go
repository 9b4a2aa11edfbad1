// Пакет session — единственная долгоживущая пользовательская сессия
// мессенджера: установка соединения, keepalive, переподключение и
// операции отправки, чтения переписки и скачивания вложений.
//
// Жизненный цикл:
//
//	disconnected → connecting → ready → degraded → connecting → ...
//
// Из connecting возможен переход в degraded (ошибка handshake),
// из любого состояния — в disconnected (остановка).
package session

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние сессии.
type State string

const (
	// StateDisconnected — соединение не установлено (начальное и конечное состояние)
	StateDisconnected State = "disconnected"
	// StateConnecting — идёт установка соединения и проверка авторизации
	StateConnecting State = "connecting"
	// StateReady — сессия готова к операциям
	StateReady State = "ready"
	// StateDegraded — соединение потеряно, ожидается переподключение
	StateDegraded State = "degraded"
)

// States — все состояния сессии.
var States = []State{StateDisconnected, StateConnecting, StateReady, StateDegraded}

// validTransitions — матрица допустимых переходов.
// Переход в disconnected допустим из любого состояния и проверяется отдельно.
var validTransitions = map[State]map[State]bool{
	StateDisconnected: {StateConnecting: true},
	StateConnecting:   {StateReady: true, StateDegraded: true},
	StateReady:        {StateDegraded: true},
	StateDegraded:     {StateConnecting: true},
}

// TransitionRecord — запись о смене состояния.
type TransitionRecord struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// TransitionError — ошибка недопустимого перехода.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// historyLimit — сколько последних переходов хранится для диагностики.
const historyLimit = 32

// machine — конечный автомат состояний сессии. Потокобезопасен.
type machine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

func newMachine() *machine {
	return &machine{current: StateDisconnected}
}

func (m *machine) state() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// canTransition проверяет допустимость перехода from → to.
func canTransition(from, to State) bool {
	if to == StateDisconnected {
		return from != StateDisconnected
	}
	return validTransitions[from][to]
}

// transitionTo выполняет переход и возвращает предыдущее состояние.
func (m *machine) transitionTo(target State, reason string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !canTransition(from, target) {
		return from, &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", from, target),
		}
	}

	m.current = target
	m.history = append(m.history, TransitionRecord{
		From:      from,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	return from, nil
}

func (m *machine) historyCopy() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}
