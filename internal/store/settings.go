package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

const settingVadConfig = "vad_config"

// LoadVadConfig returns the persisted VAD configuration, if one was saved.
func (s *SQLite) LoadVadConfig(ctx context.Context) (domain.VadConfig, bool, error) {
	raw, ok, err := s.LoadSetting(ctx, settingVadConfig)
	if err != nil || !ok {
		return domain.VadConfig{}, false, err
	}
	var cfg domain.VadConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.VadConfig{}, false, apperrors.NewInternal(err)
	}
	return cfg, true, nil
}

// SaveVadConfig persists the VAD configuration.
func (s *SQLite) SaveVadConfig(ctx context.Context, cfg domain.VadConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return s.SaveSetting(ctx, settingVadConfig, string(data))
}

// LoadSetting returns a stored value and whether it exists.
func (s *SQLite) LoadSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewInternal(err)
	}
	return value, true, nil
}

// SaveSetting upserts a value.
func (s *SQLite) SaveSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}
