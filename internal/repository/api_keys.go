package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/certgate/internal/domain/model"
)

// APIKeyRepository — операции над таблицей api_keys. Ключи адресуются
// SHA-256 хешем значения.
type APIKeyRepository interface {
	// Create сохраняет новый ключ. ErrConflict — хеш уже существует.
	Create(ctx context.Context, key *model.APIKey) error
	// GetByHash возвращает ключ по хешу.
	GetByHash(ctx context.Context, hash string) (*model.APIKey, error)
	// List возвращает все ключи, новые первыми.
	List(ctx context.Context) ([]*model.APIKey, error)
	// Revoke помечает ключ отозванным. Повторный отзыв не меняет время отзыва.
	Revoke(ctx context.Context, hash string, at time.Time) error
	// Delete удаляет ключ.
	Delete(ctx context.Context, hash string) error
	// IncrementUsage увеличивает счётчик использований.
	IncrementUsage(ctx context.Context, hash string, at time.Time) error
	// DeleteExpiredBefore удаляет ключи, истёкшие или отозванные до cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type apiKeyRepo struct {
	db DBTX
}

// NewAPIKeyRepository создаёт репозиторий ключей доступа.
func NewAPIKeyRepository(db DBTX) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

const apiKeyColumns = `id, key_hash, description, created_at, expires_at,
	revoked_at, usage_count, last_used_at`

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	k := &model.APIKey{}
	err := row.Scan(
		&k.ID, &k.KeyHash, &k.Description, &k.CreatedAt, &k.ExpiresAt,
		&k.RevokedAt, &k.UsageCount, &k.LastUsedAt,
	)
	return k, err
}

func (r *apiKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, key_hash, description, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		key.ID, key.KeyHash, key.Description, key.ExpiresAt,
	).Scan(&key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ключ уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания ключа: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) GetByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE key_hash = $1`, apiKeyColumns)
	k, err := scanAPIKey(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ключа: %w", err)
	}
	return k, nil
}

func (r *apiKeyRepo) List(ctx context.Context) ([]*model.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys ORDER BY created_at DESC`, apiKeyColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ключей: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключа: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка ключей: %w", err)
	}
	return keys, nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, hash string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $2) WHERE key_hash = $1`,
		hash, at,
	)
	if err != nil {
		return fmt.Errorf("ошибка отзыва ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) Delete(ctx context.Context, hash string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE key_hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("ошибка удаления ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) IncrementUsage(ctx context.Context, hash string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = $2 WHERE key_hash = $1`,
		hash, at,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiKeyRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM api_keys WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки истёкших ключей: %w", err)
	}
	return tag.RowsAffected(), nil
}
