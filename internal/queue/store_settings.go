package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// RuntimeSettings are the scheduler knobs persisted across restarts.
type RuntimeSettings struct {
	ParallelEnabled bool `json:"parallel_enabled"`
	MaxConcurrent   int  `json:"max_concurrent"`
}

const (
	settingParallelEnabled = "parallel_enabled"
	settingMaxConcurrent   = "max_concurrent"
)

// LoadRuntimeSettings reads persisted scheduler settings, applying the given
// defaults for missing keys.
func (s *Store) LoadRuntimeSettings(ctx context.Context, defaults RuntimeSettings) (RuntimeSettings, error) {
	settings := defaults

	if value, ok, err := s.getSetting(ctx, settingParallelEnabled); err != nil {
		return settings, err
	} else if ok {
		settings.ParallelEnabled = value == "1" || value == "true"
	}

	if value, ok, err := s.getSetting(ctx, settingMaxConcurrent); err != nil {
		return settings, err
	} else if ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			settings.MaxConcurrent = parsed
		}
	}

	return settings, nil
}

// SaveRuntimeSettings persists scheduler settings.
func (s *Store) SaveRuntimeSettings(ctx context.Context, settings RuntimeSettings) error {
	parallel := "0"
	if settings.ParallelEnabled {
		parallel = "1"
	}
	if err := s.setSetting(ctx, settingParallelEnabled, parallel); err != nil {
		return err
	}
	return s.setSetting(ctx, settingMaxConcurrent, strconv.Itoa(settings.MaxConcurrent))
}

func (s *Store) getSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key,
		value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
