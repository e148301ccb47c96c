package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/tickers", h.HandleListTickers)

		r.Route("/prices", func(r chi.Router) {
			r.Post("/", h.HandleImportPrices)
			r.Get("/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetDailyPrices(w, r, chi.URLParam(r, "ticker"))
			})
		})

		r.Route("/returns", func(r chi.Router) {
			r.Get("/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetReturns(w, r, chi.URLParam(r, "ticker"))
			})
		})
	})
}
