package store

import (
	"errors"
	"os"
	"time"
)

const snapshotFile = "daily_returns.json"

// DailyReturnSnapshot captures the portfolio's state at the end of a cycle.
// One entry per calendar date; re-running a cycle on the same day replaces
// that day's entry.
type DailyReturnSnapshot struct {
	Date            string  `json:"date"` // YYYY-MM-DD
	Cash            float64 `json:"cash"`
	TotalDeposit    float64 `json:"total_deposit"`
	TotalEvaluation float64 `json:"total_evaluation"`
	TotalProfit     float64 `json:"total_profit"`
	ProfitRate      float64 `json:"profit_rate"`
	HoldingCount    int     `json:"holding_count"`
	Buys            int     `json:"buys"`  // Journal buy count for the date
	Sells           int     `json:"sells"` // Journal sell count for the date
	MarketCondition string  `json:"market_condition,omitempty"`
}

// SnapshotDate formats a time as the snapshot date key.
func SnapshotDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// LoadSnapshots returns all daily snapshots, oldest first. Missing or
// unrecoverable data reads as empty.
func (s *Store) LoadSnapshots() ([]DailyReturnSnapshot, error) {
	var snapshots []DailyReturnSnapshot
	err := s.load(snapshotFile, &snapshots)
	switch {
	case err == nil:
		return snapshots, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrCorrupt):
		return nil, nil
	default:
		return nil, err
	}
}

// UpsertSnapshot inserts the snapshot, replacing any existing entry for the
// same date.
func (s *Store) UpsertSnapshot(snap DailyReturnSnapshot) error {
	snapshots, err := s.LoadSnapshots()
	if err != nil {
		return err
	}
	replaced := false
	for i := range snapshots {
		if snapshots[i].Date == snap.Date {
			snapshots[i] = snap
			replaced = true
			break
		}
	}
	if !replaced {
		snapshots = append(snapshots, snap)
	}
	return s.save(snapshotFile, snapshots)
}
