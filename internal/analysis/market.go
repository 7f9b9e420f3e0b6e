package analysis

import (
	"context"
	"fmt"
	"time"

	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/indicator"
)

// MarketCondition classifies the broad market.
type MarketCondition string

const (
	MarketBullish MarketCondition = "BULLISH"
	MarketNeutral MarketCondition = "NEUTRAL"
	MarketBearish MarketCondition = "BEARISH"
)

// CouplingVerdict is the market/sector gate recommendation for a buy.
type CouplingVerdict string

const (
	CouplingPass  CouplingVerdict = "PASS"
	CouplingWarn  CouplingVerdict = "WARN"
	CouplingBlock CouplingVerdict = "BLOCK"
)

// MarketResult is the market/sector relative-strength detector output.
type MarketResult struct {
	Condition        MarketCondition
	MarketScore      float64
	SectorReturn     float64 // Average same-day return of the sector constituents
	RelativeStrength float64 // Instrument return minus index return
	CouplingScore    float64
	Verdict          CouplingVerdict
	Valid            bool
}

// MarketClassifier scores two broad indices, sector strength and an
// instrument's relative strength. Index and sector lookups are cached for
// the TTL to bound call volume across a cycle.
type MarketClassifier struct {
	broker      broker.Broker
	indexCodes  [2]string
	sectors     map[string][]string // sector name -> constituent codes
	indexCache  *TTLCache[indexState]
	sectorCache *TTLCache[float64]
}

type indexState struct {
	score     float64
	dayReturn float64
}

// NewMarketClassifier creates a classifier. The clock is forwarded to the
// caches so tests control expiry.
func NewMarketClassifier(b broker.Broker, indexCodes [2]string, sectors map[string][]string, ttl time.Duration, now func() time.Time) *MarketClassifier {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MarketClassifier{
		broker:      b,
		indexCodes:  indexCodes,
		sectors:     sectors,
		indexCache:  NewTTLCache[indexState](ttl, now),
		sectorCache: NewTTLCache[float64](ttl, now),
	}
}

// Classify evaluates the market condition, the instrument's sector strength
// and its relative strength versus the primary index.
func (mc *MarketClassifier) Classify(ctx context.Context, code, sector string, dayReturn float64) (MarketResult, error) {
	primary, err := mc.indexScore(ctx, mc.indexCodes[0])
	if err != nil {
		return MarketResult{}, fmt.Errorf("scoring index %s: %w", mc.indexCodes[0], err)
	}
	secondary, err := mc.indexScore(ctx, mc.indexCodes[1])
	if err != nil {
		return MarketResult{}, fmt.Errorf("scoring index %s: %w", mc.indexCodes[1], err)
	}

	marketScore := indicator.Round2(primary.score*0.6 + secondary.score*0.4)
	condition := MarketNeutral
	switch {
	case marketScore >= 0.3:
		condition = MarketBullish
	case marketScore <= -0.3:
		condition = MarketBearish
	}

	sectorReturn, err := mc.sectorReturn(ctx, sector)
	if err != nil {
		// A missing sector is neutral, not fatal: the instrument may be
		// outside the configured sector map.
		sectorReturn = 0
	}

	relative := indicator.Round2(dayReturn - primary.dayReturn)

	coupling := marketScore
	if sectorReturn > 0 {
		coupling += 0.2
	} else if sectorReturn < 0 {
		coupling -= 0.2
	}
	if relative > 0 {
		coupling += 0.2
	} else if relative < 0 {
		coupling -= 0.2
	}
	coupling = indicator.Round2(coupling)

	verdict := CouplingPass
	switch {
	case condition == MarketBearish && relative <= 0:
		verdict = CouplingBlock
	case coupling < 0:
		verdict = CouplingWarn
	}

	return MarketResult{
		Condition:        condition,
		MarketScore:      marketScore,
		SectorReturn:     sectorReturn,
		RelativeStrength: relative,
		CouplingScore:    coupling,
		Verdict:          verdict,
		Valid:            true,
	}, nil
}

// indexScore scores one index from its daily candles: price versus the
// 20-day MA plus the last-day return.
func (mc *MarketClassifier) indexScore(ctx context.Context, indexCode string) (indexState, error) {
	return mc.indexCache.GetOrCompute(indexCode, func() (indexState, error) {
		candles, err := mc.broker.GetCandles(ctx, indexCode, 30, broker.Daily)
		if err != nil {
			return indexState{}, err
		}
		if len(candles) < 21 {
			return indexState{}, fmt.Errorf("index %s: insufficient candles (%d)", indexCode, len(candles))
		}

		ma := indicator.SMA(candles, 20)
		last := candles[len(candles)-1]
		prev := candles[len(candles)-2]
		dayReturn := 0.0
		if prev.Close > 0 {
			dayReturn = indicator.Round2((last.Close - prev.Close) / prev.Close * 100)
		}

		score := 0.0
		if ma.Valid {
			if last.Close > ma.Value {
				score += 0.5
			} else {
				score -= 0.5
			}
		}
		if dayReturn > 0.5 {
			score += 0.3
		} else if dayReturn < -0.5 {
			score -= 0.3
		}
		return indexState{score: score, dayReturn: dayReturn}, nil
	})
}

// sectorReturn averages the same-day return of the sector's constituents.
func (mc *MarketClassifier) sectorReturn(ctx context.Context, sector string) (float64, error) {
	codes, ok := mc.sectors[sector]
	if !ok || len(codes) == 0 {
		return 0, fmt.Errorf("unknown sector %q", sector)
	}
	return mc.sectorCache.GetOrCompute(sector, func() (float64, error) {
		sum, count := 0.0, 0
		for _, code := range codes {
			quote, err := mc.broker.GetQuote(ctx, code)
			if err != nil {
				continue // one bad constituent must not poison the sector
			}
			sum += quote.ChangePercent
			count++
		}
		if count == 0 {
			return 0, fmt.Errorf("sector %q: no quotes available", sector)
		}
		return indicator.Round2(sum / float64(count)), nil
	})
}
