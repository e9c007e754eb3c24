package models

import "time"

// Timing signal labels.
const (
	SignalBullish = "BULLISH"
	SignalBearish = "BEARISH"
	SignalNeutral = "NEUTRAL"
	SignalUnknown = "UNKNOWN"
)

// TimingSignal classifies the short-term direction read off one quote.
type TimingSignal struct {
	Signal     string    `json:"signal"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// StrategyDefinition describes one selectable trading strategy.
type StrategyDefinition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Conditions  []string `json:"conditions"`
}

// StrategyRecommendation is the strategy matched to the current market
// read, with the confidence and reasoning behind the pick.
type StrategyRecommendation struct {
	RecommendedStrategy string    `json:"recommended_strategy"`
	StrategyName        string    `json:"strategy_name"`
	StrategyDescription string    `json:"strategy_description"`
	Confidence          float64   `json:"confidence"`
	Reason              string    `json:"reason"`
	Timestamp           time.Time `json:"timestamp"`
}

// StrategyReport bundles the quote, timing read, and matched strategy
// for the per-symbol recommendation endpoint.
type StrategyReport struct {
	MarketData *QuoteRecord           `json:"market_data"`
	Timing     TimingSignal           `json:"timing"`
	Strategy   StrategyRecommendation `json:"strategy"`
}
