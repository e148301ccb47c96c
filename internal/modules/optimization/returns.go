// Package optimization provides mean-variance portfolio optimization.
package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/allocator/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinPriceObservations is the shortest aligned price history accepted for a
// basket. Three prices give two returns, the minimum for a sample covariance.
const MinPriceObservations = 3

// MinSingleAssetObservations is the shortest history accepted for a single
// asset, whose allocation does not depend on the covariance.
const MinSingleAssetObservations = 2

func minObservations(assets int) int {
	if assets == 1 {
		return MinSingleAssetObservations
	}
	return MinPriceObservations
}

// ReturnStatistics holds the return moments of a basket, columns ordered as Tickers.
type ReturnStatistics struct {
	Tickers    []string
	Returns    *mat.Dense    // periods-1 × assets
	Mean       []float64     // per-asset arithmetic mean return
	Covariance *mat.SymDense // sample covariance, divisor periods-2; zero for a single return
}

// Observations returns the number of return rows.
func (s *ReturnStatistics) Observations() int {
	if s == nil || s.Returns == nil {
		return 0
	}
	r, _ := s.Returns.Dims()
	return r
}

// Assets returns the number of assets.
func (s *ReturnStatistics) Assets() int {
	return len(s.Tickers)
}

// ReturnsCalculator turns aligned price histories into return statistics.
type ReturnsCalculator struct{}

// NewReturnsCalculator creates a new returns calculator.
func NewReturnsCalculator() *ReturnsCalculator {
	return &ReturnsCalculator{}
}

// Calculate computes period-over-period returns, their means and their
// sample covariance. The first period has no return and is dropped.
//
// Every series must share the same dates, have at least MinPriceObservations
// points (MinSingleAssetObservations for one series), and contain only
// positive finite prices.
func (rc *ReturnsCalculator) Calculate(series []domain.PriceSeries) (*ReturnStatistics, error) {
	if len(series) == 0 {
		return nil, &domain.InsufficientDataError{Reason: "no price series provided"}
	}

	if short := shortSeries(series); len(short) > 0 {
		return nil, &domain.InsufficientDataError{
			Assets: short,
			Reason: fmt.Sprintf("fewer than %d aligned price observations", minObservations(len(series))),
		}
	}
	if bad := nonPositiveSeries(series); len(bad) > 0 {
		return nil, &domain.InsufficientDataError{
			Assets: bad,
			Reason: "prices must be positive and finite",
		}
	}
	if misaligned := misalignedSeries(series); len(misaligned) > 0 {
		return nil, &domain.InsufficientDataError{
			Assets: misaligned,
			Reason: fmt.Sprintf("dates do not match %s", series[0].Ticker),
		}
	}

	periods := series[0].Len()
	n := len(series)
	returns := mat.NewDense(periods-1, n, nil)
	tickers := make([]string, n)

	for j, s := range series {
		tickers[j] = s.Ticker
		for t := 1; t < periods; t++ {
			prev := s.Points[t-1].Close
			returns.Set(t-1, j, (s.Points[t].Close-prev)/prev)
		}
	}

	mean := make([]float64, n)
	for j := 0; j < n; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, returns), nil)
	}

	cov := mat.NewSymDense(n, nil)
	if periods-1 > 1 {
		stat.CovarianceMatrix(cov, returns, nil)
	}

	return &ReturnStatistics{
		Tickers:    tickers,
		Returns:    returns,
		Mean:       mean,
		Covariance: cov,
	}, nil
}

func shortSeries(series []domain.PriceSeries) []string {
	minLen := minObservations(len(series))
	var out []string
	for _, s := range series {
		if s.Len() < minLen {
			out = append(out, s.Ticker)
		}
	}
	return out
}

func nonPositiveSeries(series []domain.PriceSeries) []string {
	var out []string
	for _, s := range series {
		for _, p := range s.Points {
			if p.Close <= 0 || math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
				out = append(out, s.Ticker)
				break
			}
		}
	}
	return out
}

func misalignedSeries(series []domain.PriceSeries) []string {
	ref := series[0]
	var out []string
	for _, s := range series[1:] {
		if s.Len() != ref.Len() {
			out = append(out, s.Ticker)
			continue
		}
		for t := range s.Points {
			if !s.Points[t].Date.Equal(ref.Points[t].Date) {
				out = append(out, s.Ticker)
				break
			}
		}
	}
	return out
}
