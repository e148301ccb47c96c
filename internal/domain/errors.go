package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrorKind is the stable, machine-readable classification of a failure.
type ErrorKind string

const (
	KindInsufficientData ErrorKind = "insufficient_data"
	KindInvalidStrategy  ErrorKind = "invalid_strategy"
	KindNonConvergence   ErrorKind = "optimization_non_convergence"
	KindInvalidWeights   ErrorKind = "invalid_weights"
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindNotFound         ErrorKind = "not_found"
	KindInternal         ErrorKind = "internal"
)

// ErrNotFound is returned by stores when a lookup has no result.
var ErrNotFound = errors.New("not found")

// InsufficientDataError reports price data that cannot support the computation:
// too few aligned observations, non-positive prices, or misaligned time ranges.
type InsufficientDataError struct {
	Assets []string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	if len(e.Assets) == 0 {
		return "insufficient data: " + e.Reason
	}
	return fmt.Sprintf("insufficient data for %s: %s", strings.Join(e.Assets, ", "), e.Reason)
}

// InvalidStrategyError reports a strategy outside the recognized set.
type InvalidStrategyError struct {
	Value string
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid strategy %s: expected one of conservative, balanced, aggressive", quote(e.Value))
}

// OptimizationNonConvergenceError reports a solver run that stopped before
// satisfying its convergence tolerances. Cause carries context errors on timeout.
type OptimizationNonConvergenceError struct {
	Iterations int
	Residual   float64
	Cause      error
}

func (e *OptimizationNonConvergenceError) Error() string {
	msg := fmt.Sprintf("optimization did not converge after %d iterations (kkt residual %g)", e.Iterations, e.Residual)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *OptimizationNonConvergenceError) Unwrap() error {
	return e.Cause
}

// InvalidWeightsError reports a solver result that violates the weight invariants.
// Index is -1 when the violation concerns the sum rather than a component.
type InvalidWeightsError struct {
	Index  int
	Value  float64
	Sum    float64
	Reason string
}

func (e *InvalidWeightsError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid weights: component %d = %g: %s", e.Index, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid weights: sum = %g: %s", e.Sum, e.Reason)
}

// InvalidRequestError reports a request rejected at the boundary.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// KindOf classifies err, looking through wrapped errors.
func KindOf(err error) ErrorKind {
	var (
		insufficient *InsufficientDataError
		strategy     *InvalidStrategyError
		nonConverged *OptimizationNonConvergenceError
		weights      *InvalidWeightsError
		request      *InvalidRequestError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &insufficient):
		return KindInsufficientData
	case errors.As(err, &strategy):
		return KindInvalidStrategy
	case errors.As(err, &nonConverged):
		return KindNonConvergence
	case errors.As(err, &weights):
		return KindInvalidWeights
	case errors.As(err, &request):
		return KindInvalidRequest
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// HTTPStatus maps a kind to the status code used by the HTTP surface.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest, KindInvalidStrategy:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientData, KindNonConvergence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the structured failure returned to presentation layers.
type ErrorResponse struct {
	Kind    ErrorKind `json:"kind" msgpack:"kind"`
	Message string    `json:"message" msgpack:"message"`
}

// NewErrorResponse builds the structured form of err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

func quote(s string) string {
	return strconv.Quote(s)
}
