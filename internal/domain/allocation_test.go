package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() AllocationRequest {
	return AllocationRequest{
		Amount:   10000,
		Tickers:  []string{"AAPL", "MSFT"},
		Strategy: StrategyBalanced,
		Period:   Window1Year,
	}
}

func TestAllocationRequest_Normalize(t *testing.T) {
	req := AllocationRequest{
		Amount:   500,
		Tickers:  []string{" aapl", "msft "},
		Strategy: "Aggressive",
		Period:   "6MO",
	}

	got := req.Normalize()

	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Tickers)
	assert.Equal(t, StrategyAggressive, got.Strategy)
	assert.Equal(t, Window6Months, got.Period)
	assert.Equal(t, []string{" aapl", "msft "}, req.Tickers, "original request must not be mutated")
}

func TestAllocationRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *AllocationRequest)
		kind   ErrorKind
		field  string
	}{
		{name: "valid", mutate: func(r *AllocationRequest) {}},
		{name: "zero amount", mutate: func(r *AllocationRequest) { r.Amount = 0 }, kind: KindInvalidRequest, field: "investment_amount"},
		{name: "negative amount", mutate: func(r *AllocationRequest) { r.Amount = -1 }, kind: KindInvalidRequest, field: "investment_amount"},
		{name: "NaN amount", mutate: func(r *AllocationRequest) { r.Amount = math.NaN() }, kind: KindInvalidRequest, field: "investment_amount"},
		{name: "no tickers", mutate: func(r *AllocationRequest) { r.Tickers = nil }, kind: KindInvalidRequest, field: "tickers"},
		{name: "too many tickers", mutate: func(r *AllocationRequest) {
			r.Tickers = []string{"A", "B", "C", "D", "E", "F", "G"}
		}, kind: KindInvalidRequest, field: "tickers"},
		{name: "six tickers", mutate: func(r *AllocationRequest) {
			r.Tickers = []string{"A", "B", "C", "D", "E", "F"}
		}},
		{name: "empty ticker", mutate: func(r *AllocationRequest) { r.Tickers = []string{"AAPL", ""} }, kind: KindInvalidRequest, field: "tickers"},
		{name: "duplicate ticker", mutate: func(r *AllocationRequest) { r.Tickers = []string{"AAPL", "AAPL"} }, kind: KindInvalidRequest, field: "tickers"},
		{name: "unknown strategy", mutate: func(r *AllocationRequest) { r.Strategy = "reckless" }, kind: KindInvalidStrategy},
		{name: "unknown period", mutate: func(r *AllocationRequest) { r.Period = "5y" }, kind: KindInvalidRequest, field: "period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()
			if tt.kind == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			if tt.field != "" {
				var reqErr *InvalidRequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, tt.field, reqErr.Field)
			}
		})
	}
}
