// Пакет telegram — реализация session.Transport поверх MTProto (gotd/td).
// Одно подключение — один вызов client.Run в фоновой горутине;
// Disconnect отменяет его контекст.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/tg"

	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/session"
)

// Config — параметры клиента мессенджера.
type Config struct {
	// AppID — api_id приложения
	AppID int
	// AppHash — api_hash приложения
	AppHash string
	// SessionFile — путь к файлу авторизованной сессии
	SessionFile string
}

// connection — состояние одного вызова client.Run.
type connection struct {
	client *telegram.Client
	api    *tg.Client
	sender *message.Sender
	cancel context.CancelFunc
	done   chan struct{}
}

// alive сообщает, что client.Run ещё выполняется.
func (c *connection) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Transport — клиент мессенджера для session.Keeper.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	conn  *connection
	peers map[string]tg.InputPeerClass
}

// New создаёт транспорт. Соединение устанавливается в Connect.
func New(cfg Config, logger *slog.Logger) *Transport {
	return &Transport{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "telegram")),
		peers:  make(map[string]tg.InputPeerClass),
	}
}

var _ session.Transport = (*Transport)(nil)

func (t *Transport) newClient() *telegram.Client {
	return telegram.NewClient(t.cfg.AppID, t.cfg.AppHash, telegram.Options{
		SessionStorage: &tdsession.FileStorage{Path: t.cfg.SessionFile},
	})
}

// Connect запускает клиент и проверяет, что сессия авторизована.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil && t.conn.alive() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	client := t.newClient()
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})
	var runErr error

	go func() {
		defer close(done)
		runErr = client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				ready <- fmt.Errorf("проверка авторизации: %w", err)
				return err
			}
			if !status.Authorized {
				ready <- session.ErrUnauthorized
				return session.ErrUnauthorized
			}
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			t.logger.Warn("Клиент мессенджера завершился", slog.String("error", runErr.Error()))
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return err
		}
	case <-done:
		cancel()
		select {
		case err := <-ready:
			if err != nil {
				return err
			}
		default:
		}
		return fmt.Errorf("%w: %v", session.ErrDisconnected, runErr)
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	api := client.API()
	t.mu.Lock()
	t.conn = &connection{
		client: client,
		api:    api,
		sender: message.NewSender(api),
		cancel: cancel,
		done:   done,
	}
	t.mu.Unlock()
	return nil
}

// Disconnect останавливает client.Run текущего соединения.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.cancel()
	<-conn.done
	return nil
}

// Ping проверяет соединение служебным запросом.
func (t *Transport) Ping(ctx context.Context) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	return conn.wrap(conn.client.Ping(ctx))
}

// Send отправляет текст пользователю target (@username).
func (t *Transport) Send(ctx context.Context, target, text string) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	peer, err := t.resolve(ctx, conn, target)
	if err != nil {
		return err
	}
	if _, err := conn.sender.To(peer).Text(ctx, text); err != nil {
		return conn.wrap(fmt.Errorf("отправка сообщения: %w", err))
	}
	return nil
}

// FetchRecent возвращает до limit последних сообщений переписки с target.
func (t *Transport) FetchRecent(ctx context.Context, target string, limit int) ([]model.InboundMessage, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}
	peer, err := t.resolve(ctx, conn, target)
	if err != nil {
		return nil, err
	}
	res, err := conn.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, conn.wrap(fmt.Errorf("чтение истории: %w", err))
	}
	return convertHistory(res), nil
}

// Download скачивает документ, на который указывает ref.
func (t *Transport) Download(ctx context.Context, ref *model.MediaRef, w io.Writer) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	loc, ok := ref.Locator.(tg.InputFileLocationClass)
	if !ok || loc == nil {
		return fmt.Errorf("неподдерживаемое медиа: %s", ref.Class)
	}
	if _, err := downloader.NewDownloader().Download(conn.api, loc).Stream(ctx, w); err != nil {
		return conn.wrap(fmt.Errorf("скачивание %q: %w", ref.FileName, err))
	}
	return nil
}

func (t *Transport) current() (*connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || !t.conn.alive() {
		return nil, session.ErrDisconnected
	}
	return t.conn, nil
}

// resolve находит peer по имени пользователя; результат кэшируется.
func (t *Transport) resolve(ctx context.Context, conn *connection, target string) (tg.InputPeerClass, error) {
	t.mu.Lock()
	peer, ok := t.peers[target]
	t.mu.Unlock()
	if ok {
		return peer, nil
	}

	peer, err := conn.sender.Resolve(target).AsInputPeer(ctx)
	if err != nil {
		return nil, conn.wrap(fmt.Errorf("поиск %s: %w", target, err))
	}
	t.mu.Lock()
	t.peers[target] = peer
	t.mu.Unlock()
	return peer, nil
}

// wrap помечает ошибку как обрыв соединения, если client.Run уже завершился.
func (c *connection) wrap(err error) error {
	if err == nil {
		return nil
	}
	if !c.alive() {
		return fmt.Errorf("%w: %v", session.ErrDisconnected, err)
	}
	return err
}
