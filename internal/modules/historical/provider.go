package historical

import (
	"context"
	"fmt"

	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
)

// PriceProvider serves aligned adjusted closes from the history store.
type PriceProvider struct {
	history *HistoryDB
	log     zerolog.Logger
}

// NewPriceProvider creates a price provider backed by history.
func NewPriceProvider(history *HistoryDB, log zerolog.Logger) *PriceProvider {
	return &PriceProvider{
		history: history,
		log:     log.With().Str("component", "price_provider").Logger(),
	}
}

var _ domain.PriceProvider = (*PriceProvider)(nil)

// FetchPrices returns one series per ticker, in request order, covering
// window back from the most recent stored date among tickers. Gaps are
// returned as stored; alignment is checked downstream.
func (p *PriceProvider) FetchPrices(ctx context.Context, tickers []string, window domain.Window) ([]domain.PriceSeries, error) {
	if !window.Valid() {
		return nil, &domain.InvalidRequestError{Field: "period", Reason: "unsupported window " + string(window)}
	}

	anchor, ok, err := p.history.LatestDate(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve price window: %w", err)
	}
	if !ok {
		return nil, &domain.InsufficientDataError{Assets: tickers, Reason: "no stored prices"}
	}
	start := window.Start(anchor)

	out := make([]domain.PriceSeries, 0, len(tickers))
	var missing []string
	for _, ticker := range tickers {
		points, err := p.history.GetPriceRange(ctx, ticker, start, anchor)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", ticker, err)
		}
		if len(points) == 0 {
			missing = append(missing, ticker)
			continue
		}
		out = append(out, domain.PriceSeries{Ticker: ticker, Points: points})
	}

	if len(missing) > 0 {
		return nil, &domain.InsufficientDataError{Assets: missing, Reason: "no stored prices in window " + string(window)}
	}

	p.log.Debug().
		Strs("tickers", tickers).
		Str("window", string(window)).
		Time("anchor", anchor).
		Msg("Loaded price history")

	return out, nil
}
