package model

import "time"

// Статусы ключа доступа.
const (
	KeyStatusActive  = "active"
	KeyStatusExpired = "expired"
	KeyStatusRevoked = "revoked"
)

// APIKey — ключ доступа к HTTP API. Хранится только SHA-256 хеш ключа.
type APIKey struct {
	// ID — UUID записи
	ID string
	// KeyHash — SHA-256 (hex) от значения ключа
	KeyHash string
	// Description — описание (для кого выдан)
	Description string
	// CreatedAt — время создания
	CreatedAt time.Time
	// ExpiresAt — время истечения
	ExpiresAt time.Time
	// RevokedAt — время отзыва (nil — не отозван)
	RevokedAt *time.Time
	// UsageCount — количество успешных проверок ключа
	UsageCount int64
	// LastUsedAt — время последнего использования
	LastUsedAt *time.Time
}

// Status возвращает статус ключа на момент now.
func (k *APIKey) Status(now time.Time) string {
	if k.RevokedAt != nil {
		return KeyStatusRevoked
	}
	if !now.Before(k.ExpiresAt) {
		return KeyStatusExpired
	}
	return KeyStatusActive
}
