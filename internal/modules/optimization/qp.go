package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type boundState int8

const (
	atLower boundState = -1
	free    boundState = 0
	atUpper boundState = 1
)

const (
	qpStepTol = 1e-13
	qpZero    = 1e-15
)

// kktShifts are the relative diagonal shifts tried when the KKT system of
// the free variables is singular.
var kktShifts = []float64{1e-10, 1e-8, 1e-6}

// quadraticSubproblem is min ½dᵀBd + gᵀd s.t. aᵀd = 0, lo ≤ d ≤ hi,
// with lo ≤ 0 ≤ hi so that d = 0 is feasible.
type quadraticSubproblem struct {
	model *mat.SymDense
	grad  []float64
	coef  []float64
	lo    []float64
	hi    []float64
}

type quadraticSolution struct {
	d          []float64
	nu         float64
	muLower    []float64
	muUpper    []float64
	working    []boundState
	iterations int
}

// solveActiveSetQP runs a primal active-set method on the subproblem. The
// model must be positive definite. Bounds that are active at d = 0 start in
// the working set; a bound is released when its multiplier has the wrong
// sign by more than tol.
func solveActiveSetQP(ctx context.Context, qp quadraticSubproblem, maxIter int, tol float64) (*quadraticSolution, error) {
	n := len(qp.grad)
	d := make([]float64, n)
	working := make([]boundState, n)
	for i := 0; i < n; i++ {
		switch {
		case qp.lo[i] >= 0:
			working[i] = atLower
		case qp.hi[i] <= 0:
			working[i] = atUpper
		}
	}
	keepEqualityFree(working, qp.coef)

	releaseTol := math.Max(tol*1e-2, 1e-12)
	r := make([]float64, n)
	step := make([]float64, n)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		modelGradient(r, qp.model, d, qp.grad)
		nu, err := solveEqualityQP(step, qp.model, r, qp.coef, working)
		if err != nil {
			return nil, err
		}

		if floats.Norm(step, math.Inf(1)) <= qpStepTol {
			release := -1
			worst := releaseTol
			for j, state := range working {
				lambda := r[j] - nu*qp.coef[j]
				var violation float64
				switch state {
				case atLower:
					violation = -lambda
				case atUpper:
					violation = lambda
				default:
					continue
				}
				if violation > worst {
					release, worst = j, violation
				}
			}
			if release < 0 {
				return finishQP(d, r, nu, qp.coef, working, iter), nil
			}
			working[release] = free
			continue
		}

		alpha := 1.0
		block, side := -1, free
		for i, state := range working {
			if state != free {
				continue
			}
			switch {
			case step[i] < -qpZero:
				if t := (qp.lo[i] - d[i]) / step[i]; t < alpha {
					alpha, block, side = math.Max(t, 0), i, atLower
				}
			case step[i] > qpZero:
				if t := (qp.hi[i] - d[i]) / step[i]; t < alpha {
					alpha, block, side = math.Max(t, 0), i, atUpper
				}
			}
		}

		floats.AddScaled(d, alpha, step)
		if block >= 0 {
			if side == atLower {
				d[block] = qp.lo[block]
			} else {
				d[block] = qp.hi[block]
			}
			working[block] = side
			keepEqualityFree(working, qp.coef)
		}
	}

	return nil, fmt.Errorf("quadratic subproblem exceeded %d iterations", maxIter)
}

// keepEqualityFree frees the variable with the largest |a_i| when every
// variable touching the equality is fixed, which would leave the KKT
// system singular.
func keepEqualityFree(working []boundState, coef []float64) {
	best := -1
	for i, state := range working {
		if coef[i] == 0 {
			continue
		}
		if state == free {
			return
		}
		if best < 0 || math.Abs(coef[i]) > math.Abs(coef[best]) {
			best = i
		}
	}
	if best >= 0 {
		working[best] = free
	}
}

// modelGradient sets r = Bd + g.
func modelGradient(r []float64, model *mat.SymDense, d, g []float64) {
	rv := mat.NewVecDense(len(r), r)
	rv.MulVec(model, mat.NewVecDense(len(d), d))
	floats.Add(r, g)
}

// solveEqualityQP solves the KKT system restricted to the free variables
//
//	[B_FF  a_F] [s_F]   [-r_F]
//	[a_Fᵀ   0 ] [ t ] = [  0 ]
//
// writes s into step (zero on fixed variables) and returns ν = -t. A
// singular system is retried with small shifts added to the diagonal of B_FF.
func solveEqualityQP(step []float64, model *mat.SymDense, r, coef []float64, working []boundState) (float64, error) {
	for i := range step {
		step[i] = 0
	}

	freeIdx := make([]int, 0, len(working))
	for i, state := range working {
		if state == free {
			freeIdx = append(freeIdx, i)
		}
	}
	m := len(freeIdx)
	if m == 0 {
		return 0, errors.New("quadratic subproblem has no free variables")
	}

	scale := 1.0
	for _, i := range freeIdx {
		scale = math.Max(scale, math.Abs(model.At(i, i)))
	}

	kkt := mat.NewDense(m+1, m+1, nil)
	rhs := mat.NewVecDense(m+1, nil)
	var sol mat.VecDense
	shift := 0.0
	for attempt := 0; ; attempt++ {
		kkt.Zero()
		for p, i := range freeIdx {
			for q, j := range freeIdx {
				kkt.Set(p, q, model.At(i, j))
			}
			kkt.Set(p, p, model.At(i, i)+shift)
			kkt.Set(p, m, coef[i])
			kkt.Set(m, p, coef[i])
			rhs.SetVec(p, -r[i])
		}

		err := sol.SolveVec(kkt, rhs)
		if err == nil {
			break
		}
		var cond mat.Condition
		finite := errors.As(err, &cond) && !math.IsInf(float64(cond), 1)
		if attempt == len(kktShifts) {
			if finite {
				break
			}
			return 0, fmt.Errorf("failed to solve KKT system: %w", err)
		}
		shift = kktShifts[attempt] * scale
	}

	for p, i := range freeIdx {
		v := sol.AtVec(p)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.New("KKT system produced a non-finite step")
		}
		step[i] = v
	}
	return -sol.AtVec(m), nil
}

func finishQP(d, r []float64, nu float64, coef []float64, working []boundState, iterations int) *quadraticSolution {
	n := len(d)
	sol := &quadraticSolution{
		d:          d,
		nu:         nu,
		muLower:    make([]float64, n),
		muUpper:    make([]float64, n),
		working:    working,
		iterations: iterations,
	}
	for j, state := range working {
		lambda := r[j] - nu*coef[j]
		switch state {
		case atLower:
			sol.muLower[j] = lambda
		case atUpper:
			sol.muUpper[j] = -lambda
		}
	}
	return sol
}
