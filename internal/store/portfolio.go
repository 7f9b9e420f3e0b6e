package store

import (
	"errors"
	"os"
	"time"
)

const portfolioFile = "portfolio.json"

// Holding is one open position. It is owned exclusively by the portfolio
// and mutated only by the execution orchestrator after a confirmed fill.
type Holding struct {
	Code           string          `json:"code"`
	Name           string          `json:"name,omitempty"`
	Sector         string          `json:"sector,omitempty"`
	Quantity       int             `json:"quantity"`
	OriginalQty    int             `json:"original_quantity"`
	AvgPrice       float64         `json:"avg_price"`
	BuyDate        time.Time       `json:"buy_date"`
	HighestPrice   float64         `json:"highest_price"`
	CompletedRungs map[string]bool `json:"partial_sell_levels,omitempty"`
}

// Summary is the cached account roll-up stored with the portfolio.
type Summary struct {
	Cash            float64 `json:"cash"`
	TotalEvaluation float64 `json:"total_evaluation"`
	TotalProfit     float64 `json:"total_profit"`
}

// Portfolio is the single shared mutable document. Holdings are unique by
// code with quantity > 0 and avgPrice > 0 while present.
type Portfolio struct {
	Holdings    []Holding `json:"holdings"`
	Summary     Summary   `json:"summary"`
	LastUpdated time.Time `json:"last_updated"`
}

// Find returns the holding for code, or nil.
func (p *Portfolio) Find(code string) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].Code == code {
			return &p.Holdings[i]
		}
	}
	return nil
}

// Upsert inserts or replaces the holding with the same code.
func (p *Portfolio) Upsert(h Holding) {
	for i := range p.Holdings {
		if p.Holdings[i].Code == h.Code {
			p.Holdings[i] = h
			return
		}
	}
	p.Holdings = append(p.Holdings, h)
}

// Remove deletes the holding for code, if present.
func (p *Portfolio) Remove(code string) {
	for i := range p.Holdings {
		if p.Holdings[i].Code == code {
			p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
			return
		}
	}
}

// SectorCount returns the number of holdings in the given sector.
func (p *Portfolio) SectorCount(sector string) int {
	count := 0
	for _, h := range p.Holdings {
		if h.Sector != "" && h.Sector == sector {
			count++
		}
	}
	return count
}

// LoadPortfolio reads the portfolio document, recovering from the backup on
// corruption. A missing or unrecoverable document yields an empty portfolio;
// the cycle continues with the best available state.
func (s *Store) LoadPortfolio() (*Portfolio, error) {
	var p Portfolio
	err := s.load(portfolioFile, &p)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, ErrCorrupt):
		return &Portfolio{}, nil
	default:
		return nil, err
	}
}

// SavePortfolio writes the portfolio with a shadow backup of the previous
// version.
func (s *Store) SavePortfolio(p *Portfolio) error {
	p.LastUpdated = s.now()
	return s.save(portfolioFile, p)
}
