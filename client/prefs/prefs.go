// Package prefs is the durable key-value store backing the identity and session scalars.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/webtrekk/webtrekk-go/client/data"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the key-value contract the session and identity code depend on.
type Store interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
	Contains(ctx context.Context, key string) (bool, error)
	// SetIfAbsent stores value only if key has no value yet and returns whichever
	// value is stored afterwards.
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
}

// DBStore keeps preferences in the preferences table of the tracking database.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Get(ctx context.Context, key, def string) (string, error) {
	var pref data.Preference
	err := s.db.WithContext(ctx).Where("pref_key = ?", key).Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	return pref.PrefValue, nil
}

func (s *DBStore) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pref_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"pref_value"}),
	}).Create(&data.Preference{PrefKey: key, PrefValue: value}).Error
	if err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

func (s *DBStore) Contains(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&data.Preference{}).Where("pref_key = ?", key).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check preference %q: %w", key, err)
	}
	return count > 0, nil
}

func (s *DBStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	var stored string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&data.Preference{PrefKey: key, PrefValue: value}).Error
		if err != nil {
			return err
		}
		var pref data.Preference
		if err := tx.Where("pref_key = ?", key).Take(&pref).Error; err != nil {
			return err
		}
		stored = pref.PrefValue
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to initialize preference %q: %w", key, err)
	}
	return stored, nil
}
