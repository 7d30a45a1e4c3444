package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/b0ase/clawminer/pkg/errs"
)

// GetConfigValue reads a single KV entry, returning ("", false, nil) if
// absent.
func (s *Store) GetConfigValue(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrapf(errs.ErrStoreUnavailable, "get config %q: %v", key, err)
	}
	return v, true, nil
}

// SetConfigValue upserts a single KV entry.
func (s *Store) SetConfigValue(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errs.Wrapf(errs.ErrStoreUnavailable, "set config %q: %v", key, err)
	}
	return nil
}

// GetOrCreateNodeID returns the persisted node identifier, generating and
// storing a fresh UUID on first boot.
func (s *Store) GetOrCreateNodeID() (string, error) {
	if id, ok, err := s.GetConfigValue("node_id"); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.SetConfigValue("node_id", id); err != nil {
		return "", err
	}
	return id, nil
}
