package optimization

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// MeanVarianceProblem builds the objective f(w) = λ·wᵀΣw − wᵀμ with its
// analytic gradient 2λΣw − μ and constant Hessian 2λΣ.
func MeanVarianceProblem(mean []float64, cov mat.Symmetric, lambda float64) optimize.Problem {
	n := len(mean)
	return optimize.Problem{
		Func: func(x []float64) float64 {
			return lambda*PortfolioVariance(x, cov) - floats.Dot(x, mean)
		},
		Grad: func(grad, x []float64) {
			gv := mat.NewVecDense(n, grad)
			gv.MulVec(cov, mat.NewVecDense(n, x))
			floats.Scale(2*lambda, grad)
			floats.Sub(grad, mean)
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			hess.ScaleSym(2*lambda, cov)
		},
	}
}

// PortfolioVariance returns wᵀΣw.
func PortfolioVariance(weights []float64, cov mat.Symmetric) float64 {
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, cov, w)
}

// PortfolioReturn returns wᵀμ.
func PortfolioReturn(weights, mean []float64) float64 {
	return floats.Dot(weights, mean)
}

// UniformWeights returns the feasible starting point 1/n for every asset.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
