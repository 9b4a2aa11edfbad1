package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
)

// LoginResult — сведения об авторизованном пользователе.
type LoginResult struct {
	UserID    int64
	Username  string
	FirstName string
}

// Login интерактивно авторизует сессию: запрашивает код подтверждения
// через in/out, сохраняет сессию в файл и отправляет боту /start.
// Пустой bot — /start не отправляется.
func (t *Transport) Login(ctx context.Context, phone, password, bot string, in io.Reader, out io.Writer) (*LoginResult, error) {
	client := t.newClient()
	reader := bufio.NewReader(in)

	codePrompt := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		fmt.Fprint(out, "Код подтверждения: ")
		code, err := reader.ReadString('\n')
		if err != nil && code == "" {
			return "", fmt.Errorf("чтение кода: %w", err)
		}
		return strings.TrimSpace(code), nil
	})
	flow := auth.NewFlow(auth.Constant(phone, password, codePrompt), auth.SendCodeOptions{})

	var result LoginResult
	err := client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("авторизация: %w", err)
		}
		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("получение профиля: %w", err)
		}
		result = LoginResult{UserID: self.ID, Username: self.Username, FirstName: self.FirstName}

		if bot != "" {
			sender := message.NewSender(client.API())
			if _, err := sender.Resolve(bot).Text(ctx, "/start"); err != nil {
				return fmt.Errorf("отправка /start боту %s: %w", bot, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
