// Package strategy turns a single quote into a market timing read and a
// matched trading strategy. The thresholds are deliberately coarse; the
// point is a quick directional hint next to the quote, not a signal feed.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/wyhuang/marketdash/pkg/models"
)

// definitions lists the strategies the matcher can recommend.
var definitions = map[string]models.StrategyDefinition{
	"momentum": {
		Name:        "Momentum",
		Description: "Suits markets with a clear directional trend",
		Conditions:  []string{"high_volatility", "strong_trend"},
	},
	"mean_reversion": {
		Name:        "Mean Reversion",
		Description: "Suits volatile range-bound markets",
		Conditions:  []string{"high_volatility", "sideways_market"},
	},
	"breakout": {
		Name:        "Breakout",
		Description: "Suits key price level breaks",
		Conditions:  []string{"low_volatility", "consolidation"},
	},
	"trend_following": {
		Name:        "Trend Following",
		Description: "Suits an established trend direction",
		Conditions:  []string{"clear_trend", "moderate_volatility"},
	},
}

// All returns the selectable strategies keyed by id.
func All() map[string]models.StrategyDefinition {
	out := make(map[string]models.StrategyDefinition, len(definitions))
	for k, v := range definitions {
		out[k] = v
	}
	return out
}

// AnalyzeTiming reads a directional signal off one quote. A move past 1%
// with volume behind it is bullish, past -1% bearish, anything between
// neutral. Confidence scales with the size of the move, capped at 80.
func AnalyzeTiming(q *models.QuoteRecord) models.TimingSignal {
	if q == nil || q.CurrentPrice == 0 {
		return models.TimingSignal{
			Signal:    models.SignalUnknown,
			Reason:    "insufficient market data",
			Timestamp: time.Now().UTC(),
		}
	}

	cp := q.ChangePercent
	sig := models.TimingSignal{Timestamp: time.Now().UTC()}
	switch {
	case cp > 1 && q.Volume > 0:
		sig.Signal = models.SignalBullish
		sig.Confidence = timingConfidence(cp)
		sig.Reason = fmt.Sprintf("market up %.2f%% on active volume", cp)
	case cp < -1:
		sig.Signal = models.SignalBearish
		sig.Confidence = timingConfidence(cp)
		sig.Reason = fmt.Sprintf("market down %.2f%%, caution advised", cp)
	default:
		sig.Signal = models.SignalNeutral
		sig.Confidence = 50
		sig.Reason = fmt.Sprintf("market range-bound (%.2f%%)", cp)
	}
	return sig
}

func timingConfidence(changePercent float64) float64 {
	c := 50 + math.Abs(changePercent)*5
	if c > 80 {
		c = 80
	}
	return math.Round(c*100) / 100
}

// Match picks the strategy that fits the quote and its timing signal.
func Match(q *models.QuoteRecord, timing models.TimingSignal) models.StrategyRecommendation {
	if q == nil || timing.Signal == "" {
		return models.StrategyRecommendation{
			Reason:    "insufficient market data",
			Timestamp: time.Now().UTC(),
		}
	}

	cp := math.Abs(q.ChangePercent)
	var id, reason string
	var confidence float64
	switch {
	case timing.Signal == models.SignalBullish && cp > 2:
		id, confidence, reason = "momentum", 75, "strong rally under way, momentum setups favored"
	case timing.Signal == models.SignalBearish && cp > 2:
		id, confidence, reason = "mean_reversion", 70, "sharp selloff, a bounce favors mean reversion"
	case timing.Signal == models.SignalNeutral && cp < 0.5:
		id, confidence, reason = "breakout", 60, "market consolidating, wait for a breakout"
	case timing.Signal == models.SignalBullish:
		id, confidence, reason = "trend_following", 65, "mild uptrend, follow the trend"
	default:
		id, confidence, reason = "mean_reversion", 55, "choppy market, mean reversion favored"
	}

	def := definitions[id]
	return models.StrategyRecommendation{
		RecommendedStrategy: id,
		StrategyName:        def.Name,
		StrategyDescription: def.Description,
		Confidence:          confidence,
		Reason:              reason,
		Timestamp:           time.Now().UTC(),
	}
}
