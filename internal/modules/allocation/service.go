// Package allocation runs the allocation pipeline: request validation, price
// lookup, return statistics, optimization and analysis.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// MaxBatchSize is the largest number of requests accepted by AllocateBatch.
const MaxBatchSize = 50

// relaxFactor multiplies the solver tolerance on the single relaxed retry.
const relaxFactor = 100

// Config controls caller-side behavior around the core pipeline.
type Config struct {
	// RetryRelaxed retries a non-converged solve once with a looser tolerance.
	RetryRelaxed bool
	// Parallelism bounds concurrent requests in a batch.
	Parallelism int
}

// BatchResult is the outcome of one request in a batch. Exactly one of
// Result and Error is set.
type BatchResult struct {
	Result *domain.AllocationResponse `json:"result,omitempty" msgpack:"result,omitempty"`
	Error  *domain.ErrorResponse      `json:"error,omitempty" msgpack:"error,omitempty"`
}

// StrategyInfo describes one strategy and its risk aversion coefficient.
type StrategyInfo struct {
	Name         domain.Strategy `json:"name" msgpack:"name"`
	RiskAversion float64         `json:"risk_aversion" msgpack:"risk_aversion"`
}

// Service turns allocation requests into investment plans.
type Service struct {
	provider   domain.PriceProvider
	calculator *optimization.ReturnsCalculator
	optimizer  *optimization.MVOptimizer
	analyzer   *analytics.PortfolioAnalyzer
	cfg        Config
	fetches    singleflight.Group
	newID      func() string
	log        zerolog.Logger
}

// NewService creates a new allocation service
func NewService(
	provider domain.PriceProvider,
	optimizer *optimization.MVOptimizer,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if optimizer == nil {
		optimizer = optimization.NewMVOptimizer(nil, optimization.Options{})
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Service{
		provider:   provider,
		calculator: optimization.NewReturnsCalculator(),
		optimizer:  optimizer,
		analyzer:   analytics.NewPortfolioAnalyzer(),
		cfg:        cfg,
		newID:      uuid.NewString,
		log:        log.With().Str("component", "allocation").Logger(),
	}
}

// Allocate validates req, loads its prices and returns the optimal plan.
func (s *Service) Allocate(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationResponse, error) {
	timer := utils.NewTimer("allocation", s.log)
	req = req.Normalize()

	resp, err := s.allocate(ctx, req)
	duration := timer.Stop()
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("kind", string(domain.KindOf(err))).
			Strs("tickers", req.Tickers).
			Str("strategy", string(req.Strategy)).
			Str("period", string(req.Period)).
			Dur("duration", duration).
			Msg("Allocation failed")
		return nil, err
	}

	s.log.Info().
		Str("request_id", resp.RequestID).
		Strs("tickers", req.Tickers).
		Str("strategy", string(req.Strategy)).
		Str("period", string(req.Period)).
		Int("iterations", resp.Solver.Iterations).
		Float64("kkt_residual", resp.Solver.KKTResidual).
		Bool("relaxed", resp.Solver.Relaxed).
		Dur("duration", duration).
		Msg("Allocation computed")
	return resp, nil
}

func (s *Service) allocate(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	series, err := s.fetch(ctx, req.Tickers, req.Period)
	if err != nil {
		return nil, err
	}

	stats, err := s.calculator.Calculate(series)
	if err != nil {
		return nil, err
	}

	alloc, relaxed, err := s.optimize(ctx, stats, req.Strategy)
	if err != nil {
		return nil, err
	}

	report, err := s.analyzer.Analyze(alloc.Weights, stats, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze allocation: %w", err)
	}

	return &domain.AllocationResponse{
		RequestID:         s.newID(),
		InvestmentPlan:    report.Plan,
		ExpectedReturn:    report.ExpectedReturn,
		IndividualReturns: report.IndividualReturns,
		IndividualProfits: report.IndividualProfits,
		Weights:           alloc.WeightMap(),
		Solver: domain.SolverDiagnostics{
			Iterations:       alloc.Iterations,
			KKTResidual:      alloc.KKTResidual,
			Objective:        alloc.Objective,
			InitialObjective: alloc.InitialObjective,
			RiskAversion:     alloc.RiskAversion,
			Relaxed:          relaxed,
		},
	}, nil
}

// fetch coalesces concurrent lookups of the same basket and window.
func (s *Service) fetch(ctx context.Context, tickers []string, window domain.Window) ([]domain.PriceSeries, error) {
	key := string(window) + "|" + strings.Join(tickers, ",")
	v, err, _ := s.fetches.Do(key, func() (interface{}, error) {
		return s.provider.FetchPrices(ctx, tickers, window)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.PriceSeries), nil
}

func (s *Service) optimize(ctx context.Context, stats *optimization.ReturnStatistics, strategy domain.Strategy) (*optimization.Allocation, bool, error) {
	alloc, err := s.optimizer.Optimize(ctx, stats, strategy)
	if err == nil || !s.cfg.RetryRelaxed {
		return alloc, false, err
	}

	var nc *domain.OptimizationNonConvergenceError
	if !errors.As(err, &nc) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, false, err
	}
	relaxed, ok := s.optimizer.Relaxed(relaxFactor)
	if !ok {
		return nil, false, err
	}

	s.log.Debug().
		Int("iterations", nc.Iterations).
		Float64("kkt_residual", nc.Residual).
		Msg("Retrying optimization with relaxed tolerance")

	alloc, err = relaxed.Optimize(ctx, stats, strategy)
	if err != nil {
		return nil, false, err
	}
	return alloc, true, nil
}

// AllocateBatch runs independent requests concurrently. Results are returned
// in request order; a failing request does not affect the others.
func (s *Service) AllocateBatch(ctx context.Context, reqs []domain.AllocationRequest) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, &domain.InvalidRequestError{Field: "requests", Reason: "at least one request is required"}
	}
	if len(reqs) > MaxBatchSize {
		return nil, &domain.InvalidRequestError{Field: "requests", Reason: fmt.Sprintf("at most %d requests are allowed", MaxBatchSize)}
	}

	results := make([]BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i := range reqs {
		i := i
		g.Go(func() error {
			resp, err := s.Allocate(ctx, reqs[i])
			if err != nil {
				errResp := domain.NewErrorResponse(err)
				results[i].Error = &errResp
				return nil
			}
			results[i].Result = resp
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Strategies lists each strategy with its risk aversion coefficient.
func (s *Service) Strategies() []StrategyInfo {
	out := make([]StrategyInfo, 0, len(domain.Strategies))
	for _, strategy := range domain.Strategies {
		lambda, err := optimization.RiskAversion(strategy)
		if err != nil {
			continue
		}
		out = append(out, StrategyInfo{Name: strategy, RiskAversion: lambda})
	}
	return out
}
