package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pricesync/internal/models"
)

const settingKey = "pricing_policy"

type settingRow struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (settingRow) TableName() string { return "settings" }

// Store persists the active pricing policy as a single key-value document.
// The storage format is an implementation detail; callers only see
// get-or-default and put.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the active policy. On first read the built-in defaults are
// persisted and returned.
func (s *Store) Get(ctx context.Context) (models.PricingPolicy, error) {
	var row settingRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", settingKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.DefaultPolicy()
		if err := s.Put(ctx, defaults); err != nil {
			return models.PricingPolicy{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return models.PricingPolicy{}, fmt.Errorf("failed to read pricing policy: %w", err)
	}

	var policy models.PricingPolicy
	if err := json.Unmarshal([]byte(row.Value), &policy); err != nil {
		return models.PricingPolicy{}, fmt.Errorf("failed to decode pricing policy: %w", err)
	}
	return policy, nil
}

// Put replaces the active policy.
func (s *Store) Put(ctx context.Context, policy models.PricingPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to encode pricing policy: %w", err)
	}

	row := settingRow{Key: settingKey, Value: string(value)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write pricing policy: %w", err)
	}
	return nil
}
