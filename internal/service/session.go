// Пакет service — бизнес-логика certgate: выполнение запросов к боту,
// последовательный шлюз запросов, ключи доступа и фоновые задачи.
package service

import (
	"context"
	"io"
	"time"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/session"
)

// Session — операции над сессией мессенджера, нужные оркестратору.
// Реализуется session.Keeper.
type Session interface {
	State() session.State
	WaitReady(ctx context.Context) error
	Restart(reason string)
	Send(ctx context.Context, target, text string) error
	FetchRecent(ctx context.Context, target string, limit int, since time.Time) ([]model.InboundMessage, error)
	Download(ctx context.Context, ref *model.MediaRef, w io.Writer) error
}

var _ Session = (*session.Keeper)(nil)
