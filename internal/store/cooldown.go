package store

import (
	"errors"
	"os"
	"time"
)

const cooldownFile = "cooldown.json"

// LoadCooldowns returns the map of instrument code to the time it was last
// sold. Missing or unrecoverable data reads as empty.
func (s *Store) LoadCooldowns() (map[string]time.Time, error) {
	cooldowns := make(map[string]time.Time)
	err := s.load(cooldownFile, &cooldowns)
	switch {
	case err == nil:
		return cooldowns, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrCorrupt):
		return make(map[string]time.Time), nil
	default:
		return nil, err
	}
}

// SaveCooldowns persists the cooldown map.
func (s *Store) SaveCooldowns(cooldowns map[string]time.Time) error {
	return s.save(cooldownFile, cooldowns)
}

// MarkSold records a sell time for the instrument, starting its re-entry
// cooldown.
func (s *Store) MarkSold(code string, at time.Time) error {
	cooldowns, err := s.LoadCooldowns()
	if err != nil {
		return err
	}
	cooldowns[code] = at
	return s.SaveCooldowns(cooldowns)
}
