package domain

import "strings"

// Strategy is the investor's discrete risk preference.
type Strategy string

const (
	// StrategyConservative weights variance heavily.
	StrategyConservative Strategy = "conservative"
	// StrategyBalanced weights variance and return equally.
	StrategyBalanced Strategy = "balanced"
	// StrategyAggressive lets return dominate.
	StrategyAggressive Strategy = "aggressive"
)

// Strategies lists every recognized strategy, most risk-averse first.
var Strategies = []Strategy{
	StrategyConservative,
	StrategyBalanced,
	StrategyAggressive,
}

// Valid reports whether s is one of the recognized strategies.
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStrategy converts user input into a Strategy.
// Matching is case-insensitive; anything unrecognized is rejected.
func ParseStrategy(value string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", &InvalidStrategyError{Value: value}
	}
	return s, nil
}
