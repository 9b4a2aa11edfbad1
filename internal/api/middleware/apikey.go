// apikey.go — аутентификация по ключу доступа (?key= или X-API-Key).
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/certgate/internal/api/errors"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/service"
)

// HeaderAPIKey — заголовок с ключом доступа.
const HeaderAPIKey = "X-API-Key"

// ContextKeyAPIKey — проверенный ключ в контексте запроса.
const ContextKeyAPIKey contextKey = "api_key"

// KeyValidator проверяет ключ доступа. Реализуется service.KeyService.
type KeyValidator interface {
	Validate(ctx context.Context, raw string) (*model.APIKey, error)
}

// APIKeyAuth возвращает middleware проверки ключа доступа. Ключ берётся
// из параметра key, при его отсутствии — из заголовка X-API-Key.
func APIKeyAuth(validator KeyValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "api_key_auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("key")
			if raw == "" {
				raw = r.Header.Get(HeaderAPIKey)
			}

			key, err := validator.Validate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrKeyMissing):
					apierrors.Unauthorized(w, "ключ доступа не передан: используйте параметр key или заголовок X-API-Key")
				case errors.Is(err, service.ErrKeyInvalid),
					errors.Is(err, service.ErrKeyExpired),
					errors.Is(err, service.ErrKeyRevoked):
					apierrors.Unauthorized(w, err.Error())
				default:
					logger.Error("Ошибка проверки ключа доступа",
						slog.String("error", err.Error()),
					)
					apierrors.InternalError(w, "не удалось проверить ключ доступа")
				}
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAPIKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext возвращает проверенный ключ или nil.
func APIKeyFromContext(ctx context.Context) *model.APIKey {
	key, _ := ctx.Value(ContextKeyAPIKey).(*model.APIKey)
	return key
}
