package optimization

import (
	"context"
	"testing"

	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

func simplexProblem(objective optimize.Problem, n int) ConstrainedProblem {
	ones := make([]float64, n)
	upper := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		upper[i] = 1
	}
	return ConstrainedProblem{
		Objective: objective,
		Equality:  LinearEquality{Coefficients: ones, Value: 1},
		Lower:     make([]float64, n),
		Upper:     upper,
	}
}

func TestSQPSolver_FiniteDifferenceFallback(t *testing.T) {
	stats := twoAssetStats()
	analytic := MeanVarianceProblem(stats.Mean, stats.Covariance, 10)
	problem := simplexProblem(optimize.Problem{Func: analytic.Func}, 2)

	result, err := NewSQPSolver(DefaultSQPSettings()).Minimize(context.Background(), problem, UniformWeights(2))
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, result.Status)
	assert.InDelta(t, 0.4375, result.X[0], 1e-4)
	assert.InDelta(t, 0.5625, result.X[1], 1e-4)
}

func TestSQPSolver_NonConvexObjective(t *testing.T) {
	// f(x) = -(x0² + x1²) is minimized on the simplex at a vertex.
	objective := optimize.Problem{
		Func: func(x []float64) float64 { return -(x[0]*x[0] + x[1]*x[1]) },
		Grad: func(grad, x []float64) {
			grad[0] = -2 * x[0]
			grad[1] = -2 * x[1]
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			hess.SetSym(0, 0, -2)
			hess.SetSym(0, 1, 0)
			hess.SetSym(1, 1, -2)
		},
	}
	problem := simplexProblem(objective, 2)

	result, err := NewSQPSolver(DefaultSQPSettings()).Minimize(context.Background(), problem, []float64{0.6, 0.4})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.X[0], 1e-9)
	assert.InDelta(t, 0.0, result.X[1], 1e-9)
}

func TestSQPSolver_RejectsInfeasibleStart(t *testing.T) {
	stats := twoAssetStats()
	problem := simplexProblem(MeanVarianceProblem(stats.Mean, stats.Covariance, 1), 2)

	_, err := NewSQPSolver(DefaultSQPSettings()).Minimize(context.Background(), problem, []float64{1, 1})

	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestSQPSolver_RejectsMalformedProblem(t *testing.T) {
	stats := twoAssetStats()
	problem := simplexProblem(MeanVarianceProblem(stats.Mean, stats.Covariance, 1), 2)
	problem.Lower = []float64{0}

	_, err := NewSQPSolver(DefaultSQPSettings()).Minimize(context.Background(), problem, UniformWeights(2))

	assert.Error(t, err)
}

func TestSQPSolver_CanceledContext(t *testing.T) {
	stats := twoAssetStats()
	problem := simplexProblem(MeanVarianceProblem(stats.Mean, stats.Covariance, 1), 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewSQPSolver(DefaultSQPSettings()).Minimize(ctx, problem, UniformWeights(2))

	require.Error(t, err)
	assert.Equal(t, domain.KindNonConvergence, domain.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, StatusCanceled, result.Status)
}

func TestSQPSolver_IterationLimit(t *testing.T) {
	// A quartic whose quadratic model never reaches the minimum in one step.
	objective := optimize.Problem{
		Func: func(x []float64) float64 {
			d := x[0] - 0.3
			return d * d * d * d
		},
	}
	problem := simplexProblem(objective, 2)
	settings := DefaultSQPSettings()
	settings.MaxIterations = 1
	settings.Tolerance = 1e-12

	result, err := NewSQPSolver(settings).Minimize(context.Background(), problem, []float64{0.9, 0.1})

	require.Error(t, err)
	var nc *domain.OptimizationNonConvergenceError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, 1, nc.Iterations)
	assert.Equal(t, StatusIterationLimit, result.Status)
}

func TestSQPSettings_WithDefaults(t *testing.T) {
	s := SQPSettings{}.withDefaults(3)

	assert.Equal(t, 200, s.MaxIterations)
	assert.Equal(t, 1e-6, s.Tolerance)
	assert.Equal(t, 90, s.SubproblemIterations)
	assert.Equal(t, 1e-4, s.ArmijoC)
}

func TestKKTResidual_Max(t *testing.T) {
	r := KKTResidual{Stationarity: 1e-7, PrimalFeasibility: 1e-9, DualFeasibility: 3e-6, Complementarity: 0}

	assert.Equal(t, 3e-6, r.Max())
}

func TestPositiveDefiniteModel(t *testing.T) {
	t.Run("well conditioned is kept", func(t *testing.T) {
		hess := twoAssetStats().Covariance

		model, err := positiveDefiniteModel(hess, DefaultSQPSettings().Regularization)
		require.NoError(t, err)
		assert.Same(t, hess, model)
	})

	t.Run("rank one is regularized", func(t *testing.T) {
		stats, err := NewReturnsCalculator().Calculate([]domain.PriceSeries{
			pricePath("GOOG", 100, sharedReturns),
			pricePath("GOOGL", 37.3, sharedReturns),
			pricePath("BRK", 612.9, sharedReturns),
		})
		require.NoError(t, err)

		model, err := positiveDefiniteModel(stats.Covariance, DefaultSQPSettings().Regularization)
		require.NoError(t, err)

		var chol mat.Cholesky
		require.True(t, chol.Factorize(model))
		assert.LessOrEqual(t, chol.Cond(), maxModelCondition)
	})
}

func TestSolveEqualityQP_SingularSystem(t *testing.T) {
	// B = 11ᵀ makes [B 1; 1ᵀ 0] singular along (1, -1, 0).
	model := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	step := make([]float64, 2)

	nu, err := solveEqualityQP(step, model, []float64{1, 1}, []float64{1, 1}, []boundState{free, free})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, step[0], 1e-9)
	assert.InDelta(t, 0.0, step[1], 1e-9)
	assert.InDelta(t, 1.0, nu, 1e-9)
}
