// Package analysis holds the structural detectors: support/resistance with
// liquidity sweeps, multi-timeframe trend classification, and market/sector
// relative strength.
package analysis

import (
	"math"
	"sort"

	"stock-trading-bot/internal/broker"
	"stock-trading-bot/internal/indicator"
)

// LevelKind distinguishes support from resistance.
type LevelKind string

const (
	Support    LevelKind = "support"
	Resistance LevelKind = "resistance"
)

// Level is a clustered pivot price ranked by how often it was touched.
type Level struct {
	Price   float64
	Kind    LevelKind
	Touches int
}

// Proximity classifies price position relative to the nearest levels.
type Proximity string

const (
	AtSupport     Proximity = "AT_SUPPORT"
	AtResistance  Proximity = "AT_RESISTANCE"
	BetweenLevels Proximity = "BETWEEN_LEVELS"
	AboveAll      Proximity = "ABOVE_ALL"
	BelowAll      Proximity = "BELOW_ALL"
)

// SweepDirection labels a liquidity sweep.
type SweepDirection string

const (
	SweepBullish SweepDirection = "BULLISH" // Swept a low, closed back above it
	SweepBearish SweepDirection = "BEARISH" // Swept a high, closed back below it
	SweepNone    SweepDirection = "NONE"
)

// LevelsResult is the support/resistance detector output.
type LevelsResult struct {
	Supports          []Level
	Resistances       []Level
	Proximity         Proximity
	NearestSupport    float64
	NearestResistance float64
	Sweep             SweepDirection
	Valid             bool
}

// LevelDetector finds pivot levels and liquidity sweeps.
type LevelDetector struct {
	pivotLookback int     // Symmetric window for pivot confirmation
	tolerance     float64 // Cluster band as a fraction of price
	proximityBand float64 // "At level" distance as a fraction of price
}

// NewLevelDetector creates a detector. Zero values fall back to defaults.
func NewLevelDetector(pivotLookback int, tolerance, proximityBand float64) *LevelDetector {
	if pivotLookback <= 0 {
		pivotLookback = 3
	}
	if tolerance <= 0 {
		tolerance = 0.01
	}
	if proximityBand <= 0 {
		proximityBand = 0.015
	}
	return &LevelDetector{
		pivotLookback: pivotLookback,
		tolerance:     tolerance,
		proximityBand: proximityBand,
	}
}

// Detect runs the full support/resistance and liquidity-sweep analysis.
func (d *LevelDetector) Detect(candles []broker.Candle) LevelsResult {
	if len(candles) < d.pivotLookback*2+3 {
		return LevelsResult{Proximity: BetweenLevels, Sweep: SweepNone}
	}

	pivotHighs, pivotLows := d.findPivots(candles)
	resistances := d.cluster(pivotHighs, Resistance)
	supports := d.cluster(pivotLows, Support)

	price := candles[len(candles)-1].Close
	result := LevelsResult{
		Supports:    supports,
		Resistances: resistances,
		Sweep:       d.detectSweep(candles, pivotHighs, pivotLows),
		Valid:       true,
	}
	result.Proximity, result.NearestSupport, result.NearestResistance =
		d.classifyProximity(price, supports, resistances)
	return result
}

// findPivots returns local extremes confirmed by pivotLookback candles on
// each side.
func (d *LevelDetector) findPivots(candles []broker.Candle) (highs, lows []float64) {
	n := d.pivotLookback
	for i := n; i < len(candles)-n; i++ {
		isHigh, isLow := true, true
		for j := i - n; j <= i+n; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, candles[i].High)
		}
		if isLow {
			lows = append(lows, candles[i].Low)
		}
	}
	return highs, lows
}

// cluster merges pivots within the tolerance band into levels ranked by
// touch count, strongest first.
func (d *LevelDetector) cluster(pivots []float64, kind LevelKind) []Level {
	if len(pivots) == 0 {
		return nil
	}
	sorted := append([]float64(nil), pivots...)
	sort.Float64s(sorted)

	var levels []Level
	clusterSum := sorted[0]
	clusterCount := 1
	for _, p := range sorted[1:] {
		center := clusterSum / float64(clusterCount)
		if math.Abs(p-center) <= center*d.tolerance {
			clusterSum += p
			clusterCount++
			continue
		}
		levels = append(levels, Level{Price: indicator.Round2(center), Kind: kind, Touches: clusterCount})
		clusterSum = p
		clusterCount = 1
	}
	levels = append(levels, Level{Price: indicator.Round2(clusterSum / float64(clusterCount)), Kind: kind, Touches: clusterCount})

	sort.Slice(levels, func(i, j int) bool { return levels[i].Touches > levels[j].Touches })
	return levels
}

func (d *LevelDetector) classifyProximity(price float64, supports, resistances []Level) (Proximity, float64, float64) {
	nearestSupport, nearestResistance := 0.0, 0.0
	for _, l := range supports {
		if l.Price <= price && l.Price > nearestSupport {
			nearestSupport = l.Price
		}
	}
	for _, l := range resistances {
		if l.Price >= price && (nearestResistance == 0 || l.Price < nearestResistance) {
			nearestResistance = l.Price
		}
	}

	switch {
	case nearestSupport > 0 && (price-nearestSupport) <= price*d.proximityBand:
		return AtSupport, nearestSupport, nearestResistance
	case nearestResistance > 0 && (nearestResistance-price) <= price*d.proximityBand:
		return AtResistance, nearestSupport, nearestResistance
	case nearestSupport == 0 && nearestResistance > 0:
		return BelowAll, nearestSupport, nearestResistance
	case nearestResistance == 0 && nearestSupport > 0:
		return AboveAll, nearestSupport, nearestResistance
	default:
		return BetweenLevels, nearestSupport, nearestResistance
	}
}

// detectSweep looks for a liquidity sweep on the final two candles: the
// prior candle pierces a confirmed extreme, and the last candle closes back
// inside it in the opposite direction.
func (d *LevelDetector) detectSweep(candles []broker.Candle, pivotHighs, pivotLows []float64) SweepDirection {
	pierce := candles[len(candles)-2]
	confirm := candles[len(candles)-1]

	// Bullish sweep: a prior low is pierced, then price closes back above it
	// on a bullish candle. The pierce may be the confirm candle's own wick.
	for _, low := range pivotLows {
		wickSweep := confirm.Low < low && confirm.Bullish() && confirm.Close > low
		twoBarSweep := pierce.Close < low && confirm.Bullish() && confirm.Close > low
		if wickSweep || twoBarSweep {
			return SweepBullish
		}
	}
	// Bearish sweep: mirror image around a prior high
	for _, high := range pivotHighs {
		wickSweep := confirm.High > high && !confirm.Bullish() && confirm.Close < high
		twoBarSweep := pierce.Close > high && !confirm.Bullish() && confirm.Close < high
		if wickSweep || twoBarSweep {
			return SweepBearish
		}
	}
	return SweepNone
}
