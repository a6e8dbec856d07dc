package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var ErrSettingNotFound = errors.New("setting not found")

const secretSaltKey = "secret_salt"

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrSettingNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// GetMany returns the stored values for keys. Missing keys are absent
// from the result.
func (s *SettingsStore) GetMany(keys []string) (map[string]string, error) {
	settings := make(map[string]string)
	for _, key := range keys {
		value, err := s.Get(key)
		if errors.Is(err, ErrSettingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, nil
}

func (s *SettingsStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SetMany writes all values in one transaction.
func (s *SettingsStore) SetMany(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, value := range values {
		_, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("set setting %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// SecretSalt returns the token encryption salt, creating it with gen on
// first use. Changing it makes every stored token unreadable.
func (s *SettingsStore) SecretSalt(gen func() ([]byte, error)) ([]byte, error) {
	value, err := s.Get(secretSaltKey)
	if err == nil {
		salt, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("decode secret salt: %w", err)
		}
		return salt, nil
	}
	if !errors.Is(err, ErrSettingNotFound) {
		return nil, err
	}

	salt, err := gen()
	if err != nil {
		return nil, err
	}
	if err := s.Set(secretSaltKey, hex.EncodeToString(salt)); err != nil {
		return nil, err
	}
	return salt, nil
}
