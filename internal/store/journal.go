package store

import (
	"errors"
	"os"
	"time"
)

const journalFile = "trade_journal.json"

// TradeType labels a journal entry.
type TradeType string

const (
	TradeBuy         TradeType = "BUY"
	TradeSell        TradeType = "SELL"
	TradePartialSell TradeType = "PARTIAL_SELL"
)

// TradeRecord is one executed trade. The journal is append-only and is the
// single source of truth for daily counters and profit accounting.
type TradeRecord struct {
	Type       TradeType `json:"type"`
	Code       string    `json:"code"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Profit     float64   `json:"profit,omitempty"`      // Sells only
	ProfitRate float64   `json:"profit_rate,omitempty"` // Sells only
	Reason     string    `json:"reason"`
	OrderRef   string    `json:"order_ref"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsSell reports whether the record is a full or partial sell.
func (r TradeRecord) IsSell() bool {
	return r.Type == TradeSell || r.Type == TradePartialSell
}

// AppendTrade adds a record to the journal. Existing records are never
// mutated or deleted.
func (s *Store) AppendTrade(record TradeRecord) error {
	records, err := s.LoadTrades()
	if err != nil {
		return err
	}
	records = append(records, record)
	return s.save(journalFile, records)
}

// LoadTrades returns the full journal, oldest first. A missing or
// unrecoverable journal reads as empty.
func (s *Store) LoadTrades() ([]TradeRecord, error) {
	var records []TradeRecord
	err := s.load(journalFile, &records)
	switch {
	case err == nil:
		return records, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrCorrupt):
		return nil, nil
	default:
		return nil, err
	}
}

// TradesOn returns the journal entries whose timestamp falls on the given
// calendar day in day's location.
func (s *Store) TradesOn(day time.Time) ([]TradeRecord, error) {
	records, err := s.LoadTrades()
	if err != nil {
		return nil, err
	}
	y, m, d := day.Date()
	var out []TradeRecord
	for _, r := range records {
		ry, rm, rd := r.Timestamp.In(day.Location()).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r)
		}
	}
	return out, nil
}

// DailyCounters are derived by replaying the journal for one date, never
// stored independently, so counts cannot drift from the journal.
type DailyCounters struct {
	Buys  int
	Sells int
}

// CountersOn derives the buy/sell counters for the given calendar day.
func (s *Store) CountersOn(day time.Time) (DailyCounters, error) {
	records, err := s.TradesOn(day)
	if err != nil {
		return DailyCounters{}, err
	}
	var c DailyCounters
	for _, r := range records {
		if r.Type == TradeBuy {
			c.Buys++
		} else if r.IsSell() {
			c.Sells++
		}
	}
	return c, nil
}
