// Package historical stores daily price history and serves it to the allocation pipeline.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/utils"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice is one stored close. AdjustedClose falls back to Close when absent.
type DailyPrice struct {
	Date          string   `json:"date" msgpack:"date"`
	Close         float64  `json:"close" msgpack:"close"`
	AdjustedClose *float64 `json:"adjusted_close,omitempty" msgpack:"adjusted_close,omitempty"`
}

// Adjusted returns the adjusted close, or the close when none was stored.
func (p DailyPrice) Adjusted() float64 {
	if p.AdjustedClose != nil {
		return *p.AdjustedClose
	}
	return p.Close
}

// TickerSummary describes the stored history of one ticker.
type TickerSummary struct {
	Ticker string `json:"ticker" msgpack:"ticker"`
	Count  int    `json:"count" msgpack:"count"`
	First  string `json:"first" msgpack:"first"`
	Last   string `json:"last" msgpack:"last"`
}

// GetDailyPrices fetches the most recent daily prices for a ticker, newest first
func (h *HistoryDB) GetDailyPrices(ticker string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT date, close, adjusted_close
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := h.db.Query(query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	prices := make([]DailyPrice, 0)
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var adjusted sql.NullFloat64

		if err := rows.Scan(&dateUnix, &p.Close, &adjusted); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		p.Date = utils.UnixToDate(dateUnix).Format(utils.DateLayout)
		if adjusted.Valid {
			v := adjusted.Float64
			p.AdjustedClose = &v
		}

		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// GetPriceRange returns adjusted closes for ticker within [from, to], oldest first
func (h *HistoryDB) GetPriceRange(ctx context.Context, ticker string, from, to time.Time) ([]domain.PricePoint, error) {
	query := `
		SELECT date, COALESCE(adjusted_close, close)
		FROM daily_prices
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := h.db.QueryContext(ctx, query, ticker, utils.TruncateDay(from).Unix(), utils.TruncateDay(to).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query price range: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var dateUnix int64
		var p domain.PricePoint
		if err := rows.Scan(&dateUnix, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = utils.UnixToDate(dateUnix)
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price range: %w", err)
	}

	return points, nil
}

// LatestDate returns the most recent stored date among tickers. The second
// result is false when none of them has any stored price.
func (h *HistoryDB) LatestDate(ctx context.Context, tickers []string) (time.Time, bool, error) {
	if len(tickers) == 0 {
		return time.Time{}, false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tickers)), ",")
	args := make([]interface{}, len(tickers))
	for i, t := range tickers {
		args[i] = t
	}

	var latest sql.NullInt64
	query := "SELECT MAX(date) FROM daily_prices WHERE ticker IN (" + placeholders + ")"
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return utils.UnixToDate(latest.Int64), true, nil
}

// ListTickers summarizes every ticker with stored prices
func (h *HistoryDB) ListTickers() ([]TickerSummary, error) {
	rows, err := h.db.Query(`
		SELECT ticker, COUNT(*), MIN(date), MAX(date)
		FROM daily_prices
		GROUP BY ticker
		ORDER BY ticker
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	defer rows.Close()

	summaries := make([]TickerSummary, 0)
	for rows.Next() {
		var s TickerSummary
		var first, last int64
		if err := rows.Scan(&s.Ticker, &s.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan ticker summary: %w", err)
		}
		s.First = utils.UnixToDate(first).Format(utils.DateLayout)
		s.Last = utils.UnixToDate(last).Format(utils.DateLayout)
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return summaries, nil
}

// SyncHistoricalPrices writes historical price data to the database
//
// Inserts/replaces daily prices in a single transaction. Every price is
// validated before anything is written.
func (h *HistoryDB) SyncHistoricalPrices(ticker string, prices []DailyPrice) error {
	ticker = utils.NormalizeTicker(ticker)
	if ticker == "" {
		return &domain.InvalidRequestError{Field: "ticker", Reason: "must be non-empty"}
	}

	dates := make([]int64, len(prices))
	for i, price := range prices {
		dateUnix, err := utils.DateToUnix(price.Date)
		if err != nil {
			return &domain.InvalidRequestError{Field: "prices", Reason: err.Error()}
		}
		if !validPrice(price.Close) || (price.AdjustedClose != nil && !validPrice(*price.AdjustedClose)) {
			return &domain.InvalidRequestError{
				Field:  "prices",
				Reason: fmt.Sprintf("price on %s must be positive and finite", price.Date),
			}
		}
		dates[i] = dateUnix
	}

	done := utils.MeasureDBQuery("sync_historical_prices", h.log)

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO daily_prices
			(ticker, date, close, adjusted_close)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, price := range prices {
			adjusted := sql.NullFloat64{}
			if price.AdjustedClose != nil {
				adjusted = sql.NullFloat64{Float64: *price.AdjustedClose, Valid: true}
			}
			if _, err := stmt.Exec(ticker, dates[i], price.Close, adjusted); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", price.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	done(int64(len(prices)))

	h.log.Info().
		Str("ticker", ticker).
		Int("count", len(prices)).
		Msg("Synced historical prices")

	return nil
}

// DeletePricesBefore removes prices dated before olderThan
// Used by the retention job to keep the table bounded
func (h *HistoryDB) DeletePricesBefore(olderThan time.Time) (int64, error) {
	result, err := h.db.Exec("DELETE FROM daily_prices WHERE date < ?", utils.TruncateDay(olderThan).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old prices: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		h.log.Info().
			Int64("rows_deleted", rowsAffected).
			Time("older_than", olderThan).
			Msg("Deleted old prices")
	}

	return rowsAffected, nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
