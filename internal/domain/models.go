// Package domain provides core domain models and types.
package domain

import "time"

// PricePoint is a single adjusted closing price observation.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Close float64   `json:"close" msgpack:"close"`
}

// PriceSeries is the ordered price history of one asset.
// Ticker is always upper case.
type PriceSeries struct {
	Ticker string       `json:"ticker" msgpack:"ticker"`
	Points []PricePoint `json:"points" msgpack:"points"`
}

// Len returns the number of observations in the series.
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// Dates returns the observation dates in series order.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Date
	}
	return dates
}

// Closes returns the observed prices in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}
