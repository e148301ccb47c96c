package domain

import "context"

// PriceProvider supplies adjusted closing prices for a set of tickers over a
// named window. Tickers in the result are upper case. Gaps and misalignments
// are returned as found; callers decide whether the data is usable.
type PriceProvider interface {
	FetchPrices(ctx context.Context, tickers []string, window Window) ([]PriceSeries, error)
}
