// keys.go — администрирование ключей доступа.
// POST /register-key, POST /delete-key — точки интеграции панели администратора
// GET /api/v1/keys — список ключей, POST /api/v1/keys — выпуск ключа
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/certgate/internal/api/errors"
	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/service"
)

// defaultKeyDescription — описание ключа, зарегистрированного без описания.
const defaultKeyDescription = "API Key desde panel"

// KeyManager — операции над ключами доступа. Реализуется service.KeyService.
type KeyManager interface {
	Create(ctx context.Context, ttl time.Duration, description string) (string, *model.APIKey, error)
	Register(ctx context.Context, raw, description string, expiresAt time.Time) (*model.APIKey, error)
	Delete(ctx context.Context, raw string) error
	List(ctx context.Context) ([]*model.APIKey, error)
}

// KeyHandler — обработчик администрирования ключей.
type KeyHandler struct {
	keys   KeyManager
	clock  clock.Clock
	logger *slog.Logger
}

// NewKeyHandler создаёт обработчик администрирования ключей.
func NewKeyHandler(keys KeyManager, clk clock.Clock, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		keys:   keys,
		clock:  clk,
		logger: logger.With(slog.String("component", "key_handler")),
	}
}

type registerKeyRequest struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	ExpiresAt   string `json:"expires_at"`
}

type deleteKeyRequest struct {
	Key string `json:"key"`
}

type createKeyRequest struct {
	Description string `json:"description"`
	TTLMinutes  int    `json:"ttl_minutes"`
}

// keyResponse — ключ без значения: наружу отдаются только метаданные.
type keyResponse struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

type createKeyResponse struct {
	Key string `json:"key"`
	keyResponse
}

type keyListResponse struct {
	Items []keyResponse `json:"items"`
	Total int           `json:"total"`
}

// RegisterKey — POST /register-key. Регистрирует ключ, выпущенный панелью.
// Без expires_at действует срок по умолчанию.
func (h *KeyHandler) RegisterKey(w http.ResponseWriter, r *http.Request) {
	var req registerKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Key == "" {
		apierrors.ValidationError(w, "поле key обязательно")
		return
	}
	if req.Description == "" {
		req.Description = defaultKeyDescription
	}

	var expiresAt time.Time
	if req.ExpiresAt != "" {
		t, err := parseExpiresAt(req.ExpiresAt)
		if err != nil {
			apierrors.ValidationError(w, "expires_at: ожидается RFC 3339")
			return
		}
		expiresAt = t
	}

	key, err := h.keys.Register(r.Context(), req.Key, req.Description, expiresAt)
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(key))
}

// DeleteKey — POST /delete-key.
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var req deleteKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Key == "" {
		apierrors.ValidationError(w, "поле key обязательно")
		return
	}
	if err := h.keys.Delete(r.Context(), req.Key); err != nil {
		h.writeKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"key":     service.MaskKey(req.Key),
	})
}

// ListKeys — GET /api/v1/keys.
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	resp := keyListResponse{Items: make([]keyResponse, 0, len(keys)), Total: len(keys)}
	for _, k := range keys {
		resp.Items = append(resp.Items, h.toResponse(k))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateKey — POST /api/v1/keys. Значение ключа возвращается один раз.
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.TTLMinutes < 0 {
		apierrors.ValidationError(w, "ttl_minutes не может быть отрицательным")
		return
	}
	raw, key, err := h.keys.Create(r.Context(), time.Duration(req.TTLMinutes)*time.Minute, req.Description)
	if err != nil {
		h.writeKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: raw, keyResponse: h.toResponse(key)})
}

func (h *KeyHandler) toResponse(k *model.APIKey) keyResponse {
	return keyResponse{
		ID:          k.ID,
		Description: k.Description,
		Status:      k.Status(h.clock.Now()),
		CreatedAt:   k.CreatedAt,
		ExpiresAt:   k.ExpiresAt,
		RevokedAt:   k.RevokedAt,
		UsageCount:  k.UsageCount,
		LastUsedAt:  k.LastUsedAt,
	}
}

func (h *KeyHandler) writeKeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	default:
		h.logger.Error("Ошибка операции с ключом", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// parseExpiresAt принимает RFC 3339 и ISO-время без зоны (как UTC):
// панель отправляет оба варианта.
func parseExpiresAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999999", s)
}
