package allocation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func makeSeries(ticker string, closes ...float64) domain.PriceSeries {
	points := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = domain.PricePoint{Date: day0.AddDate(0, 0, i), Close: c}
	}
	return domain.PriceSeries{Ticker: ticker, Points: points}
}

type fakeProvider struct {
	series map[string]domain.PriceSeries
	calls  int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{series: map[string]domain.PriceSeries{
		"AAPL": makeSeries("AAPL", 100, 102, 101, 104, 106, 105),
		"MSFT": makeSeries("MSFT", 50, 50.5, 50.2, 50.9, 51.3, 51.1),
		"SPY":  makeSeries("SPY", 400, 398, 401, 403, 402, 405),
	}}
}

func (p *fakeProvider) FetchPrices(ctx context.Context, tickers []string, window domain.Window) ([]domain.PriceSeries, error) {
	atomic.AddInt32(&p.calls, 1)
	out := make([]domain.PriceSeries, 0, len(tickers))
	var missing []string
	for _, t := range tickers {
		s, ok := p.series[t]
		if !ok {
			missing = append(missing, t)
			continue
		}
		out = append(out, s)
	}
	if len(missing) > 0 {
		return nil, &domain.InsufficientDataError{Assets: missing, Reason: "no stored prices"}
	}
	return out, nil
}

// flakySolver fails until relaxed, then returns its starting point.
type flakySolver struct {
	relaxed bool
}

func (s *flakySolver) Minimize(ctx context.Context, problem optimization.ConstrainedProblem, initial []float64) (*optimization.SolverResult, error) {
	if !s.relaxed {
		return nil, &domain.OptimizationNonConvergenceError{Iterations: 200, Residual: 1e-5}
	}
	x := make([]float64, len(initial))
	copy(x, initial)
	return &optimization.SolverResult{X: x, Iterations: 3, Status: optimization.StatusConverged}, nil
}

func (s *flakySolver) Relax(factor float64) optimization.ConstrainedOptimizer {
	return &flakySolver{relaxed: true}
}

func newTestService(provider domain.PriceProvider, cfg Config) *Service {
	s := NewService(provider, nil, cfg, zerolog.Nop())
	s.newID = func() string { return "req-1" }
	return s
}

func TestService_Allocate(t *testing.T) {
	provider := newFakeProvider()
	service := newTestService(provider, Config{})

	resp, err := service.Allocate(context.Background(), domain.AllocationRequest{
		Amount:   10000,
		Tickers:  []string{" aapl", "msft"},
		Strategy: "Balanced",
		Period:   "1Y",
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	require.Len(t, resp.Weights, 2)
	assert.Contains(t, resp.Weights, "AAPL")
	assert.Contains(t, resp.Weights, "MSFT")

	var weightSum, planSum float64
	for ticker, w := range resp.Weights {
		assert.GreaterOrEqual(t, w, -1e-6)
		weightSum += w
		planSum += resp.InvestmentPlan[ticker]
		assert.InDelta(t, resp.InvestmentPlan[ticker]*resp.IndividualReturns[ticker], resp.IndividualProfits[ticker], 1e-9)
	}
	assert.InDelta(t, 1.0, weightSum, 1e-6)
	assert.InDelta(t, 10000.0, planSum, 1e-2)

	assert.Equal(t, 1.0, resp.Solver.RiskAversion)
	assert.LessOrEqual(t, resp.Solver.Objective, resp.Solver.InitialObjective+1e-12)
	assert.False(t, resp.Solver.Relaxed)
	assert.Equal(t, int32(1), provider.calls)
}

func TestService_AllocateSingleTicker(t *testing.T) {
	service := newTestService(newFakeProvider(), Config{})

	resp, err := service.Allocate(context.Background(), domain.AllocationRequest{
		Amount:   2500,
		Tickers:  []string{"SPY"},
		Strategy: domain.StrategyConservative,
		Period:   domain.Window1Month,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"SPY": 1}, resp.Weights)
	assert.Equal(t, map[string]float64{"SPY": 2500}, resp.InvestmentPlan)
	assert.InDelta(t, resp.IndividualReturns["SPY"], resp.ExpectedReturn, 1e-12)
	assert.Equal(t, 0, resp.Solver.Iterations)
}

func TestService_AllocateRejectsInvalidRequests(t *testing.T) {
	valid := domain.AllocationRequest{
		Amount:   1000,
		Tickers:  []string{"AAPL", "MSFT"},
		Strategy: domain.StrategyBalanced,
		Period:   domain.Window1Year,
	}

	tests := []struct {
		name   string
		modify func(r *domain.AllocationRequest)
		kind   domain.ErrorKind
	}{
		{name: "zero amount", modify: func(r *domain.AllocationRequest) { r.Amount = 0 }, kind: domain.KindInvalidRequest},
		{name: "no tickers", modify: func(r *domain.AllocationRequest) { r.Tickers = nil }, kind: domain.KindInvalidRequest},
		{name: "too many tickers", modify: func(r *domain.AllocationRequest) {
			r.Tickers = []string{"A", "B", "C", "D", "E", "F", "G"}
		}, kind: domain.KindInvalidRequest},
		{name: "duplicate after normalization", modify: func(r *domain.AllocationRequest) {
			r.Tickers = []string{"aapl", "AAPL"}
		}, kind: domain.KindInvalidRequest},
		{name: "unknown strategy", modify: func(r *domain.AllocationRequest) { r.Strategy = "yolo" }, kind: domain.KindInvalidStrategy},
		{name: "unknown period", modify: func(r *domain.AllocationRequest) { r.Period = "5y" }, kind: domain.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			service := newTestService(provider, Config{})
			req := valid
			tt.modify(&req)

			_, err := service.Allocate(context.Background(), req)

			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, int32(0), provider.calls, "invalid requests never reach the provider")
		})
	}
}

func TestService_AllocateMissingPrices(t *testing.T) {
	service := newTestService(newFakeProvider(), Config{})

	_, err := service.Allocate(context.Background(), domain.AllocationRequest{
		Amount:   1000,
		Tickers:  []string{"AAPL", "NOPE"},
		Strategy: domain.StrategyBalanced,
		Period:   domain.Window1Year,
	})

	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, []string{"NOPE"}, insufficient.Assets)
}

func TestService_RelaxedRetry(t *testing.T) {
	req := domain.AllocationRequest{
		Amount:   1000,
		Tickers:  []string{"AAPL", "MSFT"},
		Strategy: domain.StrategyBalanced,
		Period:   domain.Window1Year,
	}

	t.Run("disabled", func(t *testing.T) {
		optimizer := optimization.NewMVOptimizer(&flakySolver{}, optimization.Options{})
		service := NewService(newFakeProvider(), optimizer, Config{}, zerolog.Nop())

		_, err := service.Allocate(context.Background(), req)
		assert.Equal(t, domain.KindNonConvergence, domain.KindOf(err))
	})

	t.Run("enabled", func(t *testing.T) {
		optimizer := optimization.NewMVOptimizer(&flakySolver{}, optimization.Options{})
		service := NewService(newFakeProvider(), optimizer, Config{RetryRelaxed: true}, zerolog.Nop())

		resp, err := service.Allocate(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, resp.Solver.Relaxed)
		assert.Equal(t, 3, resp.Solver.Iterations)
		assert.InDelta(t, 0.5, resp.Weights["AAPL"], 1e-12)
	})
}

func TestService_AllocateBatch(t *testing.T) {
	provider := newFakeProvider()
	service := newTestService(provider, Config{Parallelism: 2})

	reqs := []domain.AllocationRequest{
		{Amount: 1000, Tickers: []string{"AAPL", "MSFT"}, Strategy: domain.StrategyAggressive, Period: domain.Window1Year},
		{Amount: -5, Tickers: []string{"AAPL"}, Strategy: domain.StrategyBalanced, Period: domain.Window1Year},
		{Amount: 500, Tickers: []string{"SPY"}, Strategy: domain.StrategyConservative, Period: domain.Window6Months},
	}

	results, err := service.AllocateBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].Result)
	assert.Nil(t, results[0].Error)
	weights := make([]float64, 0, 2)
	for _, w := range results[0].Result.Weights {
		weights = append(weights, w)
	}
	assert.InDelta(t, 1.0, floats.Sum(weights), 1e-6)

	assert.Nil(t, results[1].Result)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, domain.KindInvalidRequest, results[1].Error.Kind)

	require.NotNil(t, results[2].Result)
	assert.Equal(t, map[string]float64{"SPY": 500}, results[2].Result.InvestmentPlan)
}

func TestService_AllocateBatchLimits(t *testing.T) {
	service := newTestService(newFakeProvider(), Config{})

	_, err := service.AllocateBatch(context.Background(), nil)
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = service.AllocateBatch(context.Background(), make([]domain.AllocationRequest, MaxBatchSize+1))
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestService_Strategies(t *testing.T) {
	service := newTestService(newFakeProvider(), Config{})

	assert.Equal(t, []StrategyInfo{
		{Name: domain.StrategyConservative, RiskAversion: 10},
		{Name: domain.StrategyBalanced, RiskAversion: 1},
		{Name: domain.StrategyAggressive, RiskAversion: 0.1},
	}, service.Strategies())
}
