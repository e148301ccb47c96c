package optimization

import "github.com/aristath/allocator/internal/domain"

// riskAversion maps each strategy to its fixed coefficient λ.
var riskAversion = map[domain.Strategy]float64{
	domain.StrategyConservative: 10,
	domain.StrategyBalanced:     1,
	domain.StrategyAggressive:   0.1,
}

// RiskAversion returns λ for strategy. There is no fallback value.
func RiskAversion(strategy domain.Strategy) (float64, error) {
	lambda, ok := riskAversion[strategy]
	if !ok {
		return 0, &domain.InvalidStrategyError{Value: string(strategy)}
	}
	return lambda, nil
}
