package optimization

import (
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// ValidateWeights checks that every weight lies in [0, 1] and that the
// weights sum to 1, each within tol.
func ValidateWeights(weights []float64, tol float64) error {
	if len(weights) == 0 {
		return &domain.InvalidWeightsError{Index: -1, Reason: "empty weight vector"}
	}
	for i, w := range weights {
		switch {
		case math.IsNaN(w) || math.IsInf(w, 0):
			return &domain.InvalidWeightsError{Index: i, Value: w, Reason: "not a finite number"}
		case w < -tol:
			return &domain.InvalidWeightsError{Index: i, Value: w, Reason: "below lower bound 0"}
		case w > 1+tol:
			return &domain.InvalidWeightsError{Index: i, Value: w, Reason: "above upper bound 1"}
		}
	}
	if sum := floats.Sum(weights); math.Abs(sum-1) > tol {
		return &domain.InvalidWeightsError{Index: -1, Sum: sum, Reason: "weights do not sum to one"}
	}
	return nil
}
