package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SQPSettings controls the sequential quadratic programming solver.
type SQPSettings struct {
	MaxIterations int
	// Tolerance bounds both the step length and the KKT residual at convergence.
	Tolerance float64
	// SubproblemIterations caps each active-set QP solve; 0 picks a size-based default.
	SubproblemIterations int
	// Regularization is the initial diagonal shift applied when the Hessian
	// is not positive definite.
	Regularization float64
	ArmijoC        float64
	MinStep        float64
}

// DefaultSQPSettings returns the settings used when none are configured.
func DefaultSQPSettings() SQPSettings {
	return SQPSettings{
		MaxIterations:  200,
		Tolerance:      1e-6,
		Regularization: 1e-10,
		ArmijoC:        1e-4,
		MinStep:        1e-10,
	}
}

func (s SQPSettings) withDefaults(n int) SQPSettings {
	def := DefaultSQPSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = def.MaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = def.Tolerance
	}
	if s.SubproblemIterations <= 0 {
		s.SubproblemIterations = 10*(n+1) + 50
	}
	if s.Regularization <= 0 {
		s.Regularization = def.Regularization
	}
	if s.ArmijoC <= 0 || s.ArmijoC >= 1 {
		s.ArmijoC = def.ArmijoC
	}
	if s.MinStep <= 0 {
		s.MinStep = def.MinStep
	}
	return s
}

// SQPSolver is a sequential quadratic programming method for smooth
// objectives under a single linear equality and box bounds. Each iterate
// stays feasible: the QP step keeps the equality and bounds exactly and the
// line search only shortens it.
type SQPSolver struct {
	settings SQPSettings
}

// NewSQPSolver creates a solver with the given settings.
func NewSQPSolver(settings SQPSettings) *SQPSolver {
	return &SQPSolver{settings: settings}
}

// Settings returns the configured settings.
func (s *SQPSolver) Settings() SQPSettings {
	return s.settings
}

// WithTolerance returns a copy of the solver using tol.
func (s *SQPSolver) WithTolerance(tol float64) ConstrainedOptimizer {
	settings := s.settings
	settings.Tolerance = tol
	return NewSQPSolver(settings)
}

// Relax returns a copy of the solver with its tolerance multiplied by factor.
func (s *SQPSolver) Relax(factor float64) ConstrainedOptimizer {
	tol := s.settings.Tolerance
	if tol <= 0 {
		tol = DefaultSQPSettings().Tolerance
	}
	return s.WithTolerance(tol * factor)
}

// Minimize runs SQP from initial, which must satisfy the constraints.
func (s *SQPSolver) Minimize(ctx context.Context, problem ConstrainedProblem, initial []float64) (*SolverResult, error) {
	n := len(initial)
	if err := problem.validate(n); err != nil {
		return nil, err
	}
	settings := s.settings.withDefaults(n)
	tol := settings.Tolerance

	if v := problem.infeasibility(initial); v > tol {
		return nil, fmt.Errorf("initial point violates constraints by %g", v)
	}

	x := make([]float64, n)
	copy(x, initial)
	trial := make([]float64, n)
	grad := make([]float64, n)
	hess := mat.NewSymDense(n, nil)
	lo := make([]float64, n)
	hi := make([]float64, n)

	result := &SolverResult{X: x, Residual: KKTResidual{Stationarity: math.Inf(1)}}
	f := problem.Objective.Func(x)

	for iter := 0; ; iter++ {
		result.X, result.F, result.Iterations = x, f, iter

		if err := ctx.Err(); err != nil {
			result.Status = StatusCanceled
			return result, nonConvergence(result, err)
		}

		s.gradient(problem, grad, x)
		s.hessian(problem, hess, x)
		model, err := positiveDefiniteModel(hess, settings.Regularization)
		if err != nil {
			result.Status = StatusSubproblemFailure
			return result, nonConvergence(result, err)
		}

		for i := 0; i < n; i++ {
			lo[i] = problem.Lower[i] - x[i]
			hi[i] = problem.Upper[i] - x[i]
		}
		sub, err := solveActiveSetQP(ctx, quadraticSubproblem{
			model: model,
			grad:  grad,
			coef:  problem.Equality.Coefficients,
			lo:    lo,
			hi:    hi,
		}, settings.SubproblemIterations, tol)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Status = StatusCanceled
				return result, nonConvergence(result, ctxErr)
			}
			result.Status = StatusSubproblemFailure
			return result, nonConvergence(result, err)
		}

		result.Residual = kktResidual(problem, x, grad, sub)
		if floats.Norm(sub.d, math.Inf(1)) <= tol && result.Residual.Max() <= tol {
			result.Status = StatusConverged
			return result, nil
		}
		if iter >= settings.MaxIterations {
			result.Status = StatusIterationLimit
			return result, nonConvergence(result, nil)
		}

		slope := floats.Dot(grad, sub.d)
		slack := 1e-14 * (1 + math.Abs(f))
		alpha := 1.0
		var ft float64
		for {
			for i := range trial {
				trial[i] = x[i] + alpha*sub.d[i]
			}
			ft = problem.Objective.Func(trial)
			if ft <= f+settings.ArmijoC*alpha*slope+slack {
				break
			}
			alpha *= 0.5
			if alpha < settings.MinStep {
				result.Status = StatusLineSearchFailure
				return result, nonConvergence(result, errors.New("line search failed to decrease the objective"))
			}
		}

		if alpha == 1 {
			snapToBounds(trial, sub.working, problem.Lower, problem.Upper)
			ft = problem.Objective.Func(trial)
		}
		x, trial = trial, x
		f = ft
	}
}

func (s *SQPSolver) gradient(problem ConstrainedProblem, grad, x []float64) {
	if problem.Objective.Grad != nil {
		problem.Objective.Grad(grad, x)
		return
	}
	fd.Gradient(grad, problem.Objective.Func, x, &fd.Settings{Formula: fd.Central})
}

func (s *SQPSolver) hessian(problem ConstrainedProblem, hess *mat.SymDense, x []float64) {
	if problem.Objective.Hess != nil {
		problem.Objective.Hess(hess, x)
		return
	}
	fd.Hessian(hess, problem.Objective.Func, x, nil)
}

// maxModelCondition is the largest condition number accepted for a QP model.
// Singular covariances (assets with identical returns) can factorize through
// round-off with a condition number near 1/ε.
const maxModelCondition = 1e12

// positiveDefiniteModel returns hess, or hess + δI for the smallest tried δ
// that admits a Cholesky factorization with condition number at most
// maxModelCondition.
func positiveDefiniteModel(hess *mat.SymDense, delta0 float64) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if chol.Factorize(hess) && chol.Cond() <= maxModelCondition {
		return hess, nil
	}

	n := hess.SymmetricDim()
	scale := 1.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(hess.At(i, i)))
	}
	delta := delta0 * scale
	model := mat.NewSymDense(n, nil)
	for k := 0; k < 30; k++ {
		model.CopySym(hess)
		for i := 0; i < n; i++ {
			model.SetSym(i, i, hess.At(i, i)+delta)
		}
		if chol.Factorize(model) && chol.Cond() <= maxModelCondition {
			return model, nil
		}
		delta *= 10
	}
	return nil, errors.New("hessian could not be regularized")
}

// kktResidual evaluates first-order optimality at x using the multipliers
// of the last QP subproblem.
func kktResidual(problem ConstrainedProblem, x, grad []float64, sub *quadraticSolution) KKTResidual {
	var r KKTResidual
	r.PrimalFeasibility = problem.infeasibility(x)
	for i := range x {
		a := problem.Equality.Coefficients[i]
		stationarity := grad[i] - sub.nu*a - sub.muLower[i] + sub.muUpper[i]
		r.Stationarity = math.Max(r.Stationarity, math.Abs(stationarity))
		r.DualFeasibility = math.Max(r.DualFeasibility, math.Max(-sub.muLower[i], -sub.muUpper[i]))
		r.Complementarity = math.Max(r.Complementarity, math.Abs(sub.muLower[i]*(x[i]-problem.Lower[i])))
		r.Complementarity = math.Max(r.Complementarity, math.Abs(sub.muUpper[i]*(problem.Upper[i]-x[i])))
	}
	return r
}

// snapToBounds places variables the QP fixed at a bound exactly on it.
func snapToBounds(x []float64, working []boundState, lower, upper []float64) {
	for i, state := range working {
		switch state {
		case atLower:
			x[i] = lower[i]
		case atUpper:
			x[i] = upper[i]
		}
	}
}

func nonConvergence(result *SolverResult, cause error) error {
	return &domain.OptimizationNonConvergenceError{
		Iterations: result.Iterations,
		Residual:   result.Residual.Max(),
		Cause:      cause,
	}
}
