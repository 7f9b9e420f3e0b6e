// Package patterns classifies the most recent candles against named
// reversal shapes and buckets the net signed strength.
package patterns

import "stock-trading-bot/internal/broker"

// PatternType names a recognized candle shape.
type PatternType string

const (
	Hammer           PatternType = "hammer"
	InvertedHammer   PatternType = "inverted_hammer"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	MorningStar      PatternType = "morning_star"
	Doji             PatternType = "doji"
)

// Bucket classifies the net pattern score.
type Bucket string

const (
	StrongBullish Bucket = "STRONG_BULLISH"
	Bullish       Bucket = "BULLISH"
	Neutral       Bucket = "NEUTRAL"
	Bearish       Bucket = "BEARISH"
	StrongBearish Bucket = "STRONG_BEARISH"
)

// Match is one recognized pattern with its signed strength contribution.
type Match struct {
	Type     PatternType
	Strength float64 // Positive bullish, negative bearish
}

// Result aggregates recognized patterns on the latest candles.
type Result struct {
	Matches  []Match
	NetScore float64
	Bucket   Bucket
	Valid    bool
}

// Recognizer detects candle patterns. Body and shadow thresholds are
// measured relative to the trailing average candle range so the detector
// adapts to each instrument's volatility.
type Recognizer struct {
	rangePeriod int // Trailing candles used for the average range
}

// NewRecognizer creates a recognizer with the given trailing range period.
func NewRecognizer(rangePeriod int) *Recognizer {
	if rangePeriod <= 0 {
		rangePeriod = 10
	}
	return &Recognizer{rangePeriod: rangePeriod}
}

// Recognize scans the last 1-3 candles. At least rangePeriod+3 candles are
// required; fewer returns an invalid result.
func (r *Recognizer) Recognize(candles []broker.Candle) Result {
	if len(candles) < r.rangePeriod+3 {
		return Result{Bucket: Neutral}
	}

	avgRange := r.averageRange(candles)
	if avgRange == 0 {
		return Result{Bucket: Neutral}
	}

	c1 := candles[len(candles)-3]
	c2 := candles[len(candles)-2]
	c3 := candles[len(candles)-1]

	var matches []Match
	add := func(t PatternType, strength float64) {
		matches = append(matches, Match{Type: t, Strength: strength})
	}

	if r.isHammer(c3, avgRange) {
		add(Hammer, 1.0)
	}
	if r.isInvertedHammer(c3, avgRange) {
		add(InvertedHammer, 0.5)
	}
	if r.isBullishEngulfing(c2, c3, avgRange) {
		add(BullishEngulfing, 1.5)
	}
	if r.isBearishEngulfing(c2, c3, avgRange) {
		add(BearishEngulfing, -1.5)
	}
	if r.isMorningStar(c1, c2, c3, avgRange) {
		add(MorningStar, 2.0)
	}
	if r.isDoji(c3) {
		// Indecision: leans against the prior candle's direction
		if c2.Bullish() {
			add(Doji, -0.3)
		} else {
			add(Doji, 0.3)
		}
	}

	net := 0.0
	for _, m := range matches {
		net += m.Strength
	}

	return Result{
		Matches:  matches,
		NetScore: net,
		Bucket:   bucketFor(net),
		Valid:    true,
	}
}

func bucketFor(net float64) Bucket {
	switch {
	case net >= 2.0:
		return StrongBullish
	case net >= 0.5:
		return Bullish
	case net <= -2.0:
		return StrongBearish
	case net <= -0.5:
		return Bearish
	default:
		return Neutral
	}
}

func (r *Recognizer) averageRange(candles []broker.Candle) float64 {
	// Exclude the candles under classification from the trailing average
	end := len(candles) - 3
	start := end - r.rangePeriod
	sum := 0.0
	for _, c := range candles[start:end] {
		sum += c.Range()
	}
	return sum / float64(r.rangePeriod)
}

// isHammer: small body near the top, lower shadow at least twice the body,
// and a meaningful total range versus the trailing average.
func (r *Recognizer) isHammer(c broker.Candle, avgRange float64) bool {
	if c.Range() < avgRange*0.5 {
		return false
	}
	body := c.Body()
	lower := minOf(c.Open, c.Close) - c.Low
	upper := c.High - maxOf(c.Open, c.Close)
	return body > 0 && lower >= body*2 && upper <= body*0.5
}

// isInvertedHammer: mirror of the hammer with the long shadow on top.
func (r *Recognizer) isInvertedHammer(c broker.Candle, avgRange float64) bool {
	if c.Range() < avgRange*0.5 {
		return false
	}
	body := c.Body()
	lower := minOf(c.Open, c.Close) - c.Low
	upper := c.High - maxOf(c.Open, c.Close)
	return body > 0 && upper >= body*2 && lower <= body*0.5
}

func (r *Recognizer) isBullishEngulfing(c1, c2 broker.Candle, avgRange float64) bool {
	if c1.Bullish() || !c2.Bullish() {
		return false
	}
	if c2.Body() < avgRange*0.5 {
		return false
	}
	return c2.Open <= c1.Close && c2.Close >= c1.Open
}

func (r *Recognizer) isBearishEngulfing(c1, c2 broker.Candle, avgRange float64) bool {
	if !c1.Bullish() || c2.Bullish() {
		return false
	}
	if c2.Body() < avgRange*0.5 {
		return false
	}
	return c2.Open >= c1.Close && c2.Close <= c1.Open
}

// isMorningStar: long bearish candle, small-bodied gap candle, then a
// bullish candle closing above the midpoint of the first body.
func (r *Recognizer) isMorningStar(c1, c2, c3 broker.Candle, avgRange float64) bool {
	if c1.Bullish() || c1.Body() < avgRange*0.6 {
		return false
	}
	if c2.Body() > c1.Body()*0.3 {
		return false
	}
	if !c3.Bullish() || c3.Body() < avgRange*0.5 {
		return false
	}
	midpoint := c1.Close + c1.Body()/2
	return c3.Close > midpoint
}

// isDoji: body under 10% of the range.
func (r *Recognizer) isDoji(c broker.Candle) bool {
	rng := c.Range()
	if rng == 0 {
		return false
	}
	return c.Body()/rng < 0.10
}

func minOf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
