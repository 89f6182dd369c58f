package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/hubexport/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyValueRepository persists small string values under well-known keys.
// It backs the PKCE token store and the callback fallback channel.
type KeyValueRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewKeyValueRepository creates a new KeyValueRepository.
func NewKeyValueRepository(db *gorm.DB) *KeyValueRepository {
	return &KeyValueRepository{db: db, now: time.Now}
}

// Put stores value under key, replacing any previous value. A zero ttl never expires.
func (r *KeyValueRepository) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := &domain.StoredValue{Key: key, Value: value}
	if ttl > 0 {
		expires := r.now().Add(ttl)
		entry.ExpiresAt = &expires
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or domain.ErrNotFound when absent or expired.
func (r *KeyValueRepository) Get(ctx context.Context, key string) (string, error) {
	var entry domain.StoredValue
	err := r.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	if entry.Expired(r.now()) {
		return "", domain.ErrNotFound
	}
	return entry.Value, nil
}

// Take returns the value under key and deletes it in the same transaction,
// so a value is consumed at most once even with concurrent readers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: key to consume.
// Returns:
//   - string: stored value.
//   - error: domain.ErrNotFound when the key is absent or expired.
func (r *KeyValueRepository) Take(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry domain.StoredValue
		if err := tx.First(&entry, "key = ?", key).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.StoredValue{}, "key = ?", key)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another reader consumed it between the select and the delete
			return gorm.ErrRecordNotFound
		}
		if entry.Expired(r.now()) {
			return gorm.ErrRecordNotFound
		}
		value = entry.Value
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to take %s: %w", key, err)
	}
	return value, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (r *KeyValueRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Delete(&domain.StoredValue{}, "key IN ?", keys).Error; err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// PurgeExpired removes every expired entry and returns how many were removed.
func (r *KeyValueRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", r.now()).
		Delete(&domain.StoredValue{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge expired values: %w", res.Error)
	}
	return res.RowsAffected, nil
}
