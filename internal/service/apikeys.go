// apikeys.go — выдача, проверка и отзыв ключей доступа к HTTP API.
//
// В БД хранится только SHA-256 хеш ключа. Проверенные ключи кешируются
// в expirable LRU, чтобы каждый запрос не читал api_keys; отзыв и удаление
// инвалидируют кеш сразу.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/certgate/internal/clock"
	"github.com/bigkaa/certgate/internal/domain/model"
	"github.com/bigkaa/certgate/internal/repository"
)

// Префикс и длина случайной части генерируемых ключей.
const (
	keyPrefix      = "cg_"
	keyRandomBytes = 24
	minKeyLength   = 16
)

// Ошибки проверки ключа.
var (
	// ErrKeyMissing — ключ не передан.
	ErrKeyMissing = errors.New("ключ доступа не передан")
	// ErrKeyInvalid — ключ не зарегистрирован.
	ErrKeyInvalid = errors.New("недействительный ключ доступа")
	// ErrKeyExpired — срок действия ключа истёк.
	ErrKeyExpired = errors.New("срок действия ключа истёк")
	// ErrKeyRevoked — ключ отозван.
	ErrKeyRevoked = errors.New("ключ доступа отозван")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — ресурс уже существует.
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// Prometheus-метрики ключей.
var (
	keyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_key_cache_hits_total",
		Help: "Попадания в кеш проверенных ключей.",
	})
	keyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_key_cache_misses_total",
		Help: "Промахи кеша проверенных ключей.",
	})
	keyValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cg_key_validations_total",
		Help: "Проверки ключей доступа по результату.",
	}, []string{"result"})
)

// KeyServiceOptions — параметры сервиса ключей.
type KeyServiceOptions struct {
	// CacheSize — размер кеша проверенных ключей (по умолчанию 1000)
	CacheSize int
	// CacheTTL — время жизни записи в кеше (по умолчанию 30s)
	CacheTTL time.Duration
	// DefaultTTL — срок действия ключа, если не задан (по умолчанию 60m)
	DefaultTTL time.Duration
}

func (o *KeyServiceOptions) applyDefaults() {
	if o.CacheSize <= 0 {
		o.CacheSize = 1000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 30 * time.Second
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 60 * time.Minute
	}
}

// KeyService управляет ключами доступа.
type KeyService struct {
	repo   repository.APIKeyRepository
	cache  *expirable.LRU[string, *model.APIKey]
	clock  clock.Clock
	opts   KeyServiceOptions
	logger *slog.Logger
}

// NewKeyService создаёт сервис ключей доступа.
func NewKeyService(repo repository.APIKeyRepository, opts KeyServiceOptions, clk clock.Clock, logger *slog.Logger) *KeyService {
	opts.applyDefaults()
	return &KeyService{
		repo:   repo,
		cache:  expirable.NewLRU[string, *model.APIKey](opts.CacheSize, nil, opts.CacheTTL),
		clock:  clk,
		opts:   opts,
		logger: logger.With(slog.String("component", "api_keys")),
	}
}

// HashKey возвращает SHA-256 (hex) значения ключа.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MaskKey сокращает ключ для логов и вывода: первые и последние 8 символов.
func MaskKey(raw string) string {
	if len(raw) <= 16 {
		return strings.Repeat("*", len(raw))
	}
	return raw[:8] + "..." + raw[len(raw)-8:]
}

// Create генерирует новый ключ со сроком действия ttl (ttl <= 0 — срок по
// умолчанию). Значение ключа возвращается только здесь.
func (s *KeyService) Create(ctx context.Context, ttl time.Duration, description string) (string, *model.APIKey, error) {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}

	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("генерация ключа: %w", err)
	}
	raw := keyPrefix + hex.EncodeToString(buf)

	key, err := s.store(ctx, raw, description, s.clock.Now().Add(ttl))
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("Ключ доступа создан",
		slog.String("key_id", key.ID),
		slog.String("expires_at", key.ExpiresAt.Format(time.RFC3339)),
		slog.String("description", description),
	)
	return raw, key, nil
}

// Register сохраняет ключ, сгенерированный вне сервиса (панель администратора).
// Нулевой expiresAt — срок по умолчанию от текущего момента.
func (s *KeyService) Register(ctx context.Context, raw, description string, expiresAt time.Time) (*model.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < minKeyLength {
		return nil, fmt.Errorf("%w: ключ короче %d символов", ErrValidation, minKeyLength)
	}
	now := s.clock.Now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.opts.DefaultTTL)
	}
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: срок действия уже истёк", ErrValidation)
	}

	key, err := s.store(ctx, raw, description, expiresAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Ключ доступа зарегистрирован",
		slog.String("key_id", key.ID),
		slog.String("key", MaskKey(raw)),
		slog.String("expires_at", key.ExpiresAt.Format(time.RFC3339)),
	)
	return key, nil
}

func (s *KeyService) store(ctx context.Context, raw, description string, expiresAt time.Time) (*model.APIKey, error) {
	key := &model.APIKey{
		ID:          uuid.New().String(),
		KeyHash:     HashKey(raw),
		Description: description,
		ExpiresAt:   expiresAt,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: ключ уже зарегистрирован", ErrConflict)
		}
		return nil, err
	}
	return key, nil
}

// Validate проверяет ключ: существует, не отозван, не истёк. Успешная
// проверка увеличивает счётчик использований ключа.
func (s *KeyService) Validate(ctx context.Context, raw string) (*model.APIKey, error) {
	if raw == "" {
		keyValidationsTotal.WithLabelValues("missing").Inc()
		return nil, ErrKeyMissing
	}
	hash := HashKey(raw)
	now := s.clock.Now()

	key, ok := s.cache.Get(hash)
	if ok {
		keyCacheHitsTotal.Inc()
	} else {
		keyCacheMissesTotal.Inc()
		var err error
		key, err = s.repo.GetByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				keyValidationsTotal.WithLabelValues("invalid").Inc()
				return nil, ErrKeyInvalid
			}
			keyValidationsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("проверка ключа: %w", err)
		}
	}

	switch key.Status(now) {
	case model.KeyStatusRevoked:
		s.cache.Remove(hash)
		keyValidationsTotal.WithLabelValues("revoked").Inc()
		return nil, ErrKeyRevoked
	case model.KeyStatusExpired:
		s.cache.Remove(hash)
		keyValidationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrKeyExpired
	}
	if !ok {
		s.cache.Add(hash, key)
	}

	if err := s.repo.IncrementUsage(ctx, hash, now); err != nil {
		s.logger.Warn("Не удалось обновить счётчик использований ключа",
			slog.String("key_id", key.ID),
			slog.String("error", err.Error()),
		)
	}
	keyValidationsTotal.WithLabelValues("ok").Inc()
	return key, nil
}

// Revoke отзывает ключ.
func (s *KeyService) Revoke(ctx context.Context, raw string) error {
	hash := HashKey(raw)
	s.cache.Remove(hash)
	if err := s.repo.Revoke(ctx, hash, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: ключ %s", ErrNotFound, MaskKey(raw))
		}
		return err
	}
	s.logger.Info("Ключ доступа отозван", slog.String("key", MaskKey(raw)))
	return nil
}

// Delete удаляет ключ.
func (s *KeyService) Delete(ctx context.Context, raw string) error {
	hash := HashKey(raw)
	s.cache.Remove(hash)
	if err := s.repo.Delete(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: ключ %s", ErrNotFound, MaskKey(raw))
		}
		return err
	}
	s.logger.Info("Ключ доступа удалён", slog.String("key", MaskKey(raw)))
	return nil
}

// List возвращает все ключи.
func (s *KeyService) List(ctx context.Context) ([]*model.APIKey, error) {
	return s.repo.List(ctx)
}

// Sweep удаляет ключи, истёкшие или отозванные раньше чем retention назад.
func (s *KeyService) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention)
	n, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Purge()
	}
	return n, nil
}
