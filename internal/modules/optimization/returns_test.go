package optimization

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(ticker string, start time.Time, closes ...float64) domain.PriceSeries {
	s := domain.PriceSeries{Ticker: ticker}
	for i, c := range closes {
		s.Points = append(s.Points, domain.PricePoint{Date: start.AddDate(0, 0, i), Close: c})
	}
	return s
}

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestReturnsCalculator_Calculate(t *testing.T) {
	rc := NewReturnsCalculator()

	stats, err := rc.Calculate([]domain.PriceSeries{
		series("A", day0, 100, 110, 99),
		series("B", day0, 50, 55, 60.5),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, stats.Tickers)
	assert.Equal(t, 2, stats.Observations())
	assert.Equal(t, 2, stats.Assets())
	assert.InDelta(t, 0.0, stats.Mean[0], 1e-12)
	assert.InDelta(t, 0.1, stats.Mean[1], 1e-12)

	// A returns +10% then -10%: sample variance 0.02.
	assert.InDelta(t, 0.02, stats.Covariance.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, stats.Covariance.At(1, 1), 1e-12)
	assert.InDelta(t, 0.0, stats.Covariance.At(0, 1), 1e-12)
}

func TestReturnsCalculator_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		series []domain.PriceSeries
		assets []string
	}{
		{name: "no series", series: nil},
		{name: "too short", series: []domain.PriceSeries{
			series("A", day0, 100, 101, 102),
			series("B", day0, 10, 11),
		}, assets: []string{"B"}},
		{name: "single price", series: []domain.PriceSeries{
			series("A", day0, 100),
		}, assets: []string{"A"}},
		{name: "two prices in a basket", series: []domain.PriceSeries{
			series("A", day0, 100, 101),
			series("B", day0, 10, 11),
		}, assets: []string{"A", "B"}},
		{name: "zero price", series: []domain.PriceSeries{
			series("A", day0, 100, 0, 102),
		}, assets: []string{"A"}},
		{name: "negative price", series: []domain.PriceSeries{
			series("A", day0, 100, 101, 102),
			series("B", day0, 10, -1, 12),
		}, assets: []string{"B"}},
		{name: "NaN price", series: []domain.PriceSeries{
			series("A", day0, 100, math.NaN(), 102),
		}, assets: []string{"A"}},
		{name: "misaligned dates", series: []domain.PriceSeries{
			series("A", day0, 100, 101, 102),
			series("B", day0.AddDate(0, 0, 1), 10, 11, 12),
		}, assets: []string{"B"}},
		{name: "different lengths", series: []domain.PriceSeries{
			series("A", day0, 100, 101, 102),
			series("B", day0, 10, 11, 12, 13),
		}, assets: []string{"B"}},
	}

	rc := NewReturnsCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rc.Calculate(tt.series)

			require.Error(t, err)
			var insufficient *domain.InsufficientDataError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, tt.assets, insufficient.Assets)
		})
	}
}

func TestReturnsCalculator_SingleAssetTwoPrices(t *testing.T) {
	stats, err := NewReturnsCalculator().Calculate([]domain.PriceSeries{
		series("A", day0, 100, 105),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Observations())
	assert.InDelta(t, 0.05, stats.Mean[0], 1e-12)
	assert.Equal(t, 0.0, stats.Covariance.At(0, 0))

	alloc, err := NewMVOptimizer(nil, Options{}).Optimize(context.Background(), stats, domain.StrategyBalanced)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, alloc.Weights)
}

func TestReturnsCalculator_FeedsOptimizer(t *testing.T) {
	stats, err := NewReturnsCalculator().Calculate([]domain.PriceSeries{
		series("A", day0, 100, 102, 101, 104, 106, 105),
		series("B", day0, 40, 40.2, 40.5, 40.4, 40.9, 41.1),
	})
	require.NoError(t, err)

	alloc, err := NewMVOptimizer(nil, Options{}).Optimize(context.Background(), stats, domain.StrategyConservative)
	require.NoError(t, err)
	assertValidWeights(t, alloc.Weights)
}

func TestRiskAversion(t *testing.T) {
	tests := []struct {
		strategy domain.Strategy
		lambda   float64
	}{
		{domain.StrategyConservative, 10},
		{domain.StrategyBalanced, 1},
		{domain.StrategyAggressive, 0.1},
	}
	for _, tt := range tests {
		lambda, err := RiskAversion(tt.strategy)
		require.NoError(t, err)
		assert.Equal(t, tt.lambda, lambda)
	}

	_, err := RiskAversion("yolo")
	assert.Equal(t, domain.KindInvalidStrategy, domain.KindOf(err))
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		index   int
		valid   bool
	}{
		{name: "uniform", weights: []float64{0.5, 0.5}, valid: true},
		{name: "within tolerance", weights: []float64{1 + 5e-7, -5e-7}, valid: true},
		{name: "empty", weights: nil, index: -1},
		{name: "above one", weights: []float64{1.1, -0.1}, index: 0},
		{name: "below zero only", weights: []float64{0.9, -0.1, 0.2}, index: 1},
		{name: "bad sum", weights: []float64{0.3, 0.3}, index: -1},
		{name: "infinite", weights: []float64{math.Inf(1), 0}, index: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights, DefaultWeightTolerance)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var invalid *domain.InvalidWeightsError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.index, invalid.Index)
		})
	}
}
