// Package handlers provides HTTP handlers for historical data operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/utils"
	"github.com/rs/zerolog"
)

const maxImportBody = 8 << 20

// Handler handles historical data HTTP requests
type Handler struct {
	historyDB  *historical.HistoryDB
	provider   domain.PriceProvider
	calculator *optimization.ReturnsCalculator
	log        zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(
	historyDB *historical.HistoryDB,
	provider domain.PriceProvider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		historyDB:  historyDB,
		provider:   provider,
		calculator: optimization.NewReturnsCalculator(),
		log:        log.With().Str("handler", "historical").Logger(),
	}
}

// ImportRequest is the body of POST /api/historical/prices
type ImportRequest struct {
	Ticker string                  `json:"ticker"`
	Prices []historical.DailyPrice `json:"prices"`
}

// HandleListTickers handles GET /api/historical/tickers
func (h *Handler) HandleListTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.historyDB.ListTickers()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tickers")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	}))
}

// HandleGetDailyPrices handles GET /api/historical/prices/{ticker}
func (h *Handler) HandleGetDailyPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = utils.NormalizeTicker(ticker)
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	prices, err := h.historyDB.GetDailyPrices(ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get daily prices")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"ticker": ticker,
		"prices": prices,
		"count":  len(prices),
	}))
}

// HandleImportPrices handles POST /api/historical/prices
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody)).Decode(&req); err != nil {
		h.writeError(w, &domain.InvalidRequestError{Field: "body", Reason: err.Error()})
		return
	}

	if err := h.historyDB.SyncHistoricalPrices(req.Ticker, req.Prices); err != nil {
		h.log.Warn().Err(err).Str("ticker", req.Ticker).Msg("Failed to import prices")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"ticker":   utils.NormalizeTicker(req.Ticker),
		"imported": len(req.Prices),
	}))
}

// HandleGetReturns handles GET /api/historical/returns/{ticker}?period=1y
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request, ticker string) {
	ticker = utils.NormalizeTicker(ticker)
	period := domain.Window1Year
	if p := r.URL.Query().Get("period"); p != "" {
		parsed, err := domain.ParseWindow(p)
		if err != nil {
			h.writeError(w, err)
			return
		}
		period = parsed
	}

	series, err := h.provider.FetchPrices(r.Context(), []string{ticker}, period)
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats, err := h.calculator.Calculate(series)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dates := series[0].Dates()
	returns := make([]map[string]interface{}, 0, stats.Observations())
	for i := 0; i < stats.Observations(); i++ {
		returns = append(returns, map[string]interface{}{
			"date":   dates[i+1].Format(utils.DateLayout),
			"return": stats.Returns.At(i, 0),
		})
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"ticker":            ticker,
		"period":            period,
		"returns":           returns,
		"count":             len(returns),
		"mean_daily_return": stats.Mean[0],
		"annualized_return": analytics.AnnualizedReturn(stats.Mean[0]),
		"daily_variance":    stats.Covariance.At(0, 0),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes the structured error for err
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = &domain.InvalidRequestError{Field: "body", Reason: "request body too large"}
	}
	resp := domain.NewErrorResponse(err)
	h.writeJSON(w, resp.Kind.HTTPStatus(), map[string]interface{}{"error": resp})
}
