// Package analytics turns portfolio weights into money amounts and return projections.
package analytics

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/modules/optimization"
)

// TradingDaysPerYear annualizes mean daily returns.
const TradingDaysPerYear = 252

// Report is the investment plan and its projections, keyed by ticker.
type Report struct {
	Plan              map[string]float64
	ExpectedReturn    float64
	IndividualReturns map[string]float64
	IndividualProfits map[string]float64
}

// PortfolioAnalyzer computes plans and annualized metrics.
type PortfolioAnalyzer struct{}

// NewPortfolioAnalyzer creates a new portfolio analyzer.
func NewPortfolioAnalyzer() *PortfolioAnalyzer {
	return &PortfolioAnalyzer{}
}

// Analyze splits amount by weights and projects returns from the daily means
// in stats. The portfolio return weights the daily means first and
// annualizes once.
func (pa *PortfolioAnalyzer) Analyze(weights []float64, stats *optimization.ReturnStatistics, amount float64) (*Report, error) {
	if stats == nil {
		return nil, fmt.Errorf("return statistics are required")
	}
	n := len(stats.Tickers)
	if len(weights) != n || len(stats.Mean) != n {
		return nil, fmt.Errorf("weights (%d) and statistics (%d tickers, %d means) disagree", len(weights), n, len(stats.Mean))
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("investment amount must be positive, got %g", amount)
	}

	report := &Report{
		Plan:              make(map[string]float64, n),
		IndividualReturns: make(map[string]float64, n),
		IndividualProfits: make(map[string]float64, n),
		ExpectedReturn:    AnnualizedReturn(optimization.PortfolioReturn(weights, stats.Mean)),
	}

	for i, ticker := range stats.Tickers {
		planned := weights[i] * amount
		annual := AnnualizedReturn(stats.Mean[i])
		report.Plan[ticker] = planned
		report.IndividualReturns[ticker] = annual
		report.IndividualProfits[ticker] = planned * annual
	}

	return report, nil
}

// AnnualizedReturn converts a mean daily return to an annual figure.
func AnnualizedReturn(dailyMean float64) float64 {
	return dailyMean * TradingDaysPerYear
}
