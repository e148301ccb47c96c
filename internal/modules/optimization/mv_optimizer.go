package optimization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/domain"
)

// DefaultWeightTolerance is the slack allowed when checking solver weights.
const DefaultWeightTolerance = 1e-6

// Options configures an MVOptimizer.
type Options struct {
	// WeightTolerance bounds sum and bound violations of returned weights.
	WeightTolerance float64
	// Timeout caps a single solve; zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Allocation is an optimal weight vector with the data it was derived from.
type Allocation struct {
	Tickers          []string
	Weights          []float64
	Strategy         domain.Strategy
	RiskAversion     float64
	Objective        float64
	InitialObjective float64
	Variance         float64
	Iterations       int
	KKTResidual      float64
}

// WeightMap returns weights keyed by ticker.
func (a *Allocation) WeightMap() map[string]float64 {
	out := make(map[string]float64, len(a.Tickers))
	for i, t := range a.Tickers {
		out[t] = a.Weights[i]
	}
	return out
}

// MVOptimizer performs mean-variance portfolio optimization.
//
// It minimizes λ·wᵀΣw − wᵀμ subject to Σw = 1 and 0 ≤ w ≤ 1, starting from
// uniform weights, with λ fixed by the strategy.
type MVOptimizer struct {
	solver ConstrainedOptimizer
	opts   Options
}

// NewMVOptimizer creates a new mean-variance optimizer. A nil solver selects
// SQP with default settings.
func NewMVOptimizer(solver ConstrainedOptimizer, opts Options) *MVOptimizer {
	if solver == nil {
		solver = NewSQPSolver(DefaultSQPSettings())
	}
	if opts.WeightTolerance <= 0 {
		opts.WeightTolerance = DefaultWeightTolerance
	}
	return &MVOptimizer{solver: solver, opts: opts}
}

// Relaxed returns an optimizer whose solver tolerance is multiplied by
// factor. The second result is false when the solver cannot be relaxed.
func (mvo *MVOptimizer) Relaxed(factor float64) (*MVOptimizer, bool) {
	r, ok := mvo.solver.(Relaxable)
	if !ok {
		return nil, false
	}
	return &MVOptimizer{solver: r.Relax(factor), opts: mvo.opts}, true
}

// Optimize solves the allocation problem for stats under strategy.
//
// Solver failures surface as *domain.OptimizationNonConvergenceError and
// out-of-contract weights as *domain.InvalidWeightsError. Weights are never
// normalized or clipped after the solve.
func (mvo *MVOptimizer) Optimize(ctx context.Context, stats *ReturnStatistics, strategy domain.Strategy) (*Allocation, error) {
	lambda, err := RiskAversion(strategy)
	if err != nil {
		return nil, err
	}
	if stats == nil || len(stats.Mean) == 0 {
		return nil, &domain.InsufficientDataError{Reason: "no return statistics"}
	}
	n := len(stats.Mean)
	if stats.Covariance == nil || stats.Covariance.SymmetricDim() != n || len(stats.Tickers) != n {
		return nil, fmt.Errorf("return statistics are inconsistent: %d means, %d tickers", n, len(stats.Tickers))
	}

	if mvo.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mvo.opts.Timeout)
		defer cancel()
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	ones := make([]float64, n)
	for i := 0; i < n; i++ {
		upper[i] = 1
		ones[i] = 1
	}

	problem := ConstrainedProblem{
		Objective: MeanVarianceProblem(stats.Mean, stats.Covariance, lambda),
		Equality:  LinearEquality{Coefficients: ones, Value: 1},
		Lower:     lower,
		Upper:     upper,
	}
	initial := UniformWeights(n)

	result, err := mvo.solver.Minimize(ctx, problem, initial)
	if err != nil {
		var nc *domain.OptimizationNonConvergenceError
		if errors.As(err, &nc) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to run optimizer: %w", err)
	}
	if result == nil || len(result.X) != n {
		return nil, &domain.InvalidWeightsError{Index: -1, Reason: "solver returned a vector of the wrong length"}
	}
	if err := ValidateWeights(result.X, mvo.opts.WeightTolerance); err != nil {
		return nil, err
	}

	weights := make([]float64, n)
	copy(weights, result.X)
	tickers := make([]string, n)
	copy(tickers, stats.Tickers)

	return &Allocation{
		Tickers:          tickers,
		Weights:          weights,
		Strategy:         strategy,
		RiskAversion:     lambda,
		Objective:        problem.Objective.Func(weights),
		InitialObjective: problem.Objective.Func(initial),
		Variance:         PortfolioVariance(weights, stats.Covariance),
		Iterations:       result.Iterations,
		KKTResidual:      result.Residual.Max(),
	}, nil
}
