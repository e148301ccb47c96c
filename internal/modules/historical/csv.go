package historical

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParsePriceCSV reads rows of date,close[,adjusted_close]. A leading header
// row whose first field is "date" is skipped.
func ParsePriceCSV(r io.Reader) ([]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // adjusted_close is optional
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	prices := make([]DailyPrice, 0, len(records))
	for i, record := range records {
		if i == 0 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "date") {
			continue
		}
		if len(record) < 2 || len(record) > 3 {
			return nil, fmt.Errorf("line %d: expected 2 or 3 fields, got %d", i+1, len(record))
		}

		closePrice, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close %q: %w", i+1, record[1], err)
		}
		price := DailyPrice{Date: strings.TrimSpace(record[0]), Close: closePrice}

		if len(record) == 3 && strings.TrimSpace(record[2]) != "" {
			adjusted, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid adjusted close %q: %w", i+1, record[2], err)
			}
			price.AdjustedClose = &adjusted
		}

		prices = append(prices, price)
	}

	return prices, nil
}
