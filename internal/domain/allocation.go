package domain

import (
	"math"
	"strings"
)

// MaxTickers is the largest basket an allocation request may name.
const MaxTickers = 6

// AllocationRequest asks for the optimal split of Amount across Tickers.
type AllocationRequest struct {
	Amount   float64  `json:"investment_amount" msgpack:"investment_amount"`
	Tickers  []string `json:"tickers" msgpack:"tickers"`
	Strategy Strategy `json:"strategy" msgpack:"strategy"`
	Period   Window   `json:"period" msgpack:"period"`
}

// Normalize returns a copy with tickers trimmed and upper-cased and with
// strategy and period lower-cased.
func (r AllocationRequest) Normalize() AllocationRequest {
	out := r
	out.Tickers = make([]string, len(r.Tickers))
	for i, t := range r.Tickers {
		out.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	out.Strategy = Strategy(strings.ToLower(strings.TrimSpace(string(r.Strategy))))
	out.Period = Window(strings.ToLower(strings.TrimSpace(string(r.Period))))
	return out
}

// Validate checks a normalized request against the boundary contract.
func (r AllocationRequest) Validate() error {
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount <= 0 {
		return &InvalidRequestError{Field: "investment_amount", Reason: "must be a positive finite number"}
	}
	if len(r.Tickers) == 0 {
		return &InvalidRequestError{Field: "tickers", Reason: "at least one ticker is required"}
	}
	if len(r.Tickers) > MaxTickers {
		return &InvalidRequestError{Field: "tickers", Reason: "at most 6 tickers are allowed"}
	}
	seen := make(map[string]bool, len(r.Tickers))
	for _, t := range r.Tickers {
		if t == "" {
			return &InvalidRequestError{Field: "tickers", Reason: "tickers must be non-empty"}
		}
		if seen[t] {
			return &InvalidRequestError{Field: "tickers", Reason: "duplicate ticker " + quote(t)}
		}
		seen[t] = true
	}
	if !r.Strategy.Valid() {
		return &InvalidStrategyError{Value: string(r.Strategy)}
	}
	if !r.Period.Valid() {
		return &InvalidRequestError{Field: "period", Reason: "unsupported window " + quote(string(r.Period))}
	}
	return nil
}

// SolverDiagnostics describes how the optimizer reached its answer.
type SolverDiagnostics struct {
	Iterations       int     `json:"iterations" msgpack:"iterations"`
	KKTResidual      float64 `json:"kkt_residual" msgpack:"kkt_residual"`
	Objective        float64 `json:"objective" msgpack:"objective"`
	InitialObjective float64 `json:"initial_objective" msgpack:"initial_objective"`
	RiskAversion     float64 `json:"risk_aversion" msgpack:"risk_aversion"`
	Relaxed          bool    `json:"relaxed,omitempty" msgpack:"relaxed,omitempty"`
}

// AllocationResponse is the investment plan and its return projections.
// All maps are keyed by upper-case ticker.
type AllocationResponse struct {
	RequestID         string             `json:"request_id" msgpack:"request_id"`
	InvestmentPlan    map[string]float64 `json:"investment_plan" msgpack:"investment_plan"`
	ExpectedReturn    float64            `json:"expected_return" msgpack:"expected_return"`
	IndividualReturns map[string]float64 `json:"individual_returns" msgpack:"individual_returns"`
	IndividualProfits map[string]float64 `json:"individual_profits" msgpack:"individual_profits"`
	Weights           map[string]float64 `json:"weights" msgpack:"weights"`
	Solver            SolverDiagnostics  `json:"solver" msgpack:"solver"`
}
