package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceSeries_Accessors(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	series := PriceSeries{
		Ticker: "AAPL",
		Points: []PricePoint{{Date: d1, Close: 100}, {Date: d2, Close: 101.5}},
	}

	assert.Equal(t, 2, series.Len())
	assert.Equal(t, []time.Time{d1, d2}, series.Dates())
	assert.Equal(t, []float64{100, 101.5}, series.Closes())
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Strategy
		wantErr  bool
	}{
		{name: "conservative", input: "conservative", expected: StrategyConservative},
		{name: "balanced mixed case", input: "Balanced", expected: StrategyBalanced},
		{name: "aggressive padded", input: "  aggressive ", expected: StrategyAggressive},
		{name: "unknown", input: "yolo", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var strategyErr *InvalidStrategyError
				assert.ErrorAs(t, err, &strategyErr)
				assert.Equal(t, tt.input, strategyErr.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestWindow_Start(t *testing.T) {
	anchor := time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), Window1Month.Start(anchor))
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Window6Months.Start(anchor))
	assert.Equal(t, time.Date(2023, 7, 31, 0, 0, 0, 0, time.UTC), Window1Year.Start(anchor))
	assert.Equal(t, anchor, Window("5y").Start(anchor))
}

func TestWindow_StartClampsMonthEnd(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		anchor time.Time
		want   time.Time
	}{
		{"one month into leap february", Window1Month, date(2024, 3, 31), date(2024, 2, 29)},
		{"one month into short february", Window1Month, date(2023, 3, 30), date(2023, 2, 28)},
		{"one month into thirty day month", Window1Month, date(2024, 5, 31), date(2024, 4, 30)},
		{"six months into leap february", Window6Months, date(2024, 8, 31), date(2024, 2, 29)},
		{"six months across year end", Window6Months, date(2024, 3, 31), date(2023, 9, 30)},
		{"one year from leap day", Window1Year, date(2024, 2, 29), date(2023, 2, 28)},
		{"mid month is unchanged", Window1Month, date(2024, 6, 28), date(2024, 5, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Start(tt.anchor))
		})
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("6MO")
	require.NoError(t, err)
	assert.Equal(t, Window6Months, w)

	_, err = ParseWindow("10y")
	require.Error(t, err)
	var reqErr *InvalidRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "period", reqErr.Field)
}
