package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseTickers parses a comma-separated ticker list, upper-casing each entry.
// Empty entries are dropped; duplicates are kept so validation can report them.
func ParseTickers(s string) []string {
	tickers := ParseCSV(s)
	for i, t := range tickers {
		tickers[i] = NormalizeTicker(t)
	}
	return tickers
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
