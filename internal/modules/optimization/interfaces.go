package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ConstrainedOptimizer minimizes a smooth objective under one linear equality
// and per-variable bounds. Implementations must not normalize or clip their
// result; a run that does not meet its tolerances returns
// *domain.OptimizationNonConvergenceError.
type ConstrainedOptimizer interface {
	Minimize(ctx context.Context, problem ConstrainedProblem, initial []float64) (*SolverResult, error)
}

// Relaxable is implemented by optimizers that can loosen their convergence
// tolerance.
type Relaxable interface {
	ConstrainedOptimizer
	Relax(factor float64) ConstrainedOptimizer
}

// LinearEquality is the constraint Coefficientsᵀx = Value.
type LinearEquality struct {
	Coefficients []float64
	Value        float64
}

// ConstrainedProblem describes min f(x) s.t. aᵀx = b, Lower ≤ x ≤ Upper.
// Objective.Grad and Objective.Hess are optional; finite differences are
// used when they are nil.
type ConstrainedProblem struct {
	Objective optimize.Problem
	Equality  LinearEquality
	Lower     []float64
	Upper     []float64
}

func (p ConstrainedProblem) validate(n int) error {
	if n == 0 {
		return fmt.Errorf("problem has no variables")
	}
	if p.Objective.Func == nil {
		return fmt.Errorf("objective function is nil")
	}
	if len(p.Equality.Coefficients) != n || len(p.Lower) != n || len(p.Upper) != n {
		return fmt.Errorf("constraint dimensions do not match %d variables", n)
	}
	nonzero := false
	for i := 0; i < n; i++ {
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("lower bound exceeds upper bound for variable %d", i)
		}
		if p.Equality.Coefficients[i] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		return fmt.Errorf("equality constraint has no nonzero coefficient")
	}
	return nil
}

// infeasibility returns the largest violation of any constraint at x.
func (p ConstrainedProblem) infeasibility(x []float64) float64 {
	sum := 0.0
	worst := 0.0
	for i, v := range x {
		sum += p.Equality.Coefficients[i] * v
		worst = math.Max(worst, p.Lower[i]-v)
		worst = math.Max(worst, v-p.Upper[i])
	}
	return math.Max(worst, math.Abs(sum-p.Equality.Value))
}

// SolverStatus tells how a solver run ended.
type SolverStatus string

const (
	StatusConverged         SolverStatus = "converged"
	StatusIterationLimit    SolverStatus = "iteration_limit"
	StatusLineSearchFailure SolverStatus = "line_search_failure"
	StatusCanceled          SolverStatus = "canceled"
	StatusSubproblemFailure SolverStatus = "subproblem_failure"
)

// KKTResidual measures first-order optimality of an iterate.
type KKTResidual struct {
	Stationarity      float64
	PrimalFeasibility float64
	DualFeasibility   float64
	Complementarity   float64
}

// Max returns the worst of the four measures.
func (r KKTResidual) Max() float64 {
	return math.Max(math.Max(r.Stationarity, r.PrimalFeasibility), math.Max(r.DualFeasibility, r.Complementarity))
}

// SolverResult is the outcome of a solver run. On failure it holds the last
// iterate, which callers must not treat as a solution.
type SolverResult struct {
	X          []float64
	F          float64
	Iterations int
	Residual   KKTResidual
	Status     SolverStatus
}
