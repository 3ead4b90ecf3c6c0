package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pricesync/internal/models"
)

type dayRow struct {
	Day  string `gorm:"primaryKey;column:day"`
	Runs string `gorm:"column:runs"`
}

func (dayRow) TableName() string { return "sync_run_logs" }

// Store keeps an append-only audit log of execute runs, one document per
// calendar day holding an ordered array of run records. Records are never
// mutated or deleted here; retention is someone else's job.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append adds one run record to its day bucket, creating the bucket if
// absent.
func (s *Store) Append(ctx context.Context, record models.SyncRunRecord) error {
	day := record.Timestamp.UTC().Format("2006-01-02")

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row dayRow
		err := tx.First(&row, "day = ?", day).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to read run log for %s: %w", day, err)
		}

		var runs []models.SyncRunRecord
		if row.Runs != "" {
			if err := json.Unmarshal([]byte(row.Runs), &runs); err != nil {
				return fmt.Errorf("failed to decode run log for %s: %w", day, err)
			}
		}
		runs = append(runs, record)

		encoded, err := json.Marshal(runs)
		if err != nil {
			return fmt.Errorf("failed to encode run log: %w", err)
		}

		row = dayRow{Day: day, Runs: string(encoded)}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to write run log for %s: %w", day, err)
		}
		return nil
	})
}

// Day returns the ordered run records of one calendar day (YYYY-MM-DD).
// A day with no runs yields an empty slice.
func (s *Store) Day(ctx context.Context, day string) ([]models.SyncRunRecord, error) {
	var row dayRow
	err := s.db.WithContext(ctx).First(&row, "day = ?", day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.SyncRunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run log for %s: %w", day, err)
	}

	var runs []models.SyncRunRecord
	if err := json.Unmarshal([]byte(row.Runs), &runs); err != nil {
		return nil, fmt.Errorf("failed to decode run log for %s: %w", day, err)
	}
	return runs, nil
}
