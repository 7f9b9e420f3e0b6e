// Package store persists the bot's state as independent JSON documents,
// each with a shadow backup copy. Loads recover from the backup on
// corruption and quarantine files that cannot be recovered, so a cycle can
// always continue with the best available state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrCorrupt is returned when a document and its backup are both unreadable.
// The corrupt primary has been quarantined by the time this is returned.
var ErrCorrupt = errors.New("store: document corrupt and backup unavailable")

const backupSuffix = ".bak"

// Store reads and writes the persisted documents under one directory.
type Store struct {
	dir string
	log zerolog.Logger
	now func() time.Time
}

// New creates the data directory if needed and returns a store.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "store").Logger(),
		now: time.Now,
	}, nil
}

// SetClock overrides the time source used for quarantine names. For tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// load parses the named document into v. A missing file returns
// os.ErrNotExist so callers can start from empty state. A corrupt primary
// is restored from its backup when possible; otherwise it is quarantined
// under a timestamped name and ErrCorrupt is returned.
func (s *Store) load(name string, v any) error {
	path := s.path(name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	s.log.Warn().Str("file", name).Msg("document corrupt, attempting backup recovery")

	backup, backupErr := os.ReadFile(path + backupSuffix)
	if backupErr == nil {
		if err := json.Unmarshal(backup, v); err == nil {
			// Restore the primary so the next load is clean
			if writeErr := atomicWrite(path, backup); writeErr != nil {
				s.log.Error().Str("file", name).Err(writeErr).Msg("failed to restore primary from backup")
			} else {
				s.log.Info().Str("file", name).Msg("primary restored from backup")
			}
			return nil
		}
	}

	quarantine := fmt.Sprintf("%s.corrupt.%s", path, s.now().Format("20060102150405"))
	if renameErr := os.Rename(path, quarantine); renameErr != nil {
		s.log.Error().Str("file", name).Err(renameErr).Msg("failed to quarantine corrupt document")
	} else {
		s.log.Warn().Str("file", name).Str("quarantine", quarantine).Msg("corrupt document quarantined")
	}
	return ErrCorrupt
}

// save writes the document, keeping the previous version as the backup.
func (s *Store) save(name string, v any) error {
	path := s.path(name)

	// Shadow the previous version before overwriting
	if prev, err := os.ReadFile(path); err == nil {
		if err := atomicWrite(path+backupSuffix, prev); err != nil {
			return fmt.Errorf("writing backup for %s: %w", name, err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// atomicWrite writes via a temp file and rename so readers never observe a
// partial document.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
