package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady — операция вызвана, когда сессия не в состоянии ready.
	ErrNotReady = errors.New("сессия не готова")
	// ErrDisconnected — транспорт сообщает о потере соединения.
	ErrDisconnected = errors.New("соединение с сервером мессенджера потеряно")
	// ErrUnauthorized — файл сессии не содержит действующей авторизации.
	ErrUnauthorized = errors.New("сессия не авторизована")
)

// TransportError — сбой операции над сессией.
type TransportError struct {
	Op  string // send, fetch, download
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport сообщает, является ли ошибка сбоем транспорта.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
