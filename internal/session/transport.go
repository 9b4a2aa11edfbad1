package session

import (
	"context"
	"io"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// Transport — низкоуровневый клиент мессенджера.
// Ошибки, означающие обрыв соединения, должны оборачивать ErrDisconnected.
type Transport interface {
	// Connect устанавливает соединение и проверяет авторизацию сессии.
	Connect(ctx context.Context) error
	// Ping проверяет, что соединение живо.
	Ping(ctx context.Context) error
	// Send отправляет текстовое сообщение пользователю target.
	Send(ctx context.Context, target, text string) error
	// FetchRecent возвращает до limit последних сообщений переписки с target
	// (входящие и исходящие, в любом порядке).
	FetchRecent(ctx context.Context, target string, limit int) ([]model.InboundMessage, error)
	// Download записывает содержимое медиа в w.
	Download(ctx context.Context, ref *model.MediaRef, w io.Writer) error
	// Disconnect закрывает соединение. Повторный вызов безопасен.
	Disconnect() error
}
