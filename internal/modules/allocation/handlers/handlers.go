// Package handlers provides HTTP handlers for portfolio allocation.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/allocation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack selects the binary encoding for requests and responses.
const ContentTypeMsgpack = "application/msgpack"

const maxRequestBody = 1 << 20

// Handler handles allocation HTTP requests
type Handler struct {
	service *allocation.Service
	log     zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(service *allocation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "allocation").Logger(),
	}
}

// BatchRequest is the body of POST /api/allocation/batch
type BatchRequest struct {
	Requests []domain.AllocationRequest `json:"requests" msgpack:"requests"`
}

// RegisterRoutes registers all allocation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Post("/", h.HandleAllocate)
		r.Post("/batch", h.HandleAllocateBatch)
		r.Get("/strategies", h.HandleGetStrategies)
	})
}

// HandleAllocate handles POST /api/allocation
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	var req domain.AllocationRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.Allocate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.write(w, r, http.StatusOK, map[string]interface{}{
		"data":     resp,
		"metadata": metadata(),
	})
}

// HandleAllocateBatch handles POST /api/allocation/batch
func (h *Handler) HandleAllocateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(r, w, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.service.AllocateBatch(r.Context(), req.Requests)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
		}
	}

	h.write(w, r, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"results":   results,
			"total":     len(results),
			"failed":    failed,
			"succeeded": len(results) - failed,
		},
		"metadata": metadata(),
	})
}

// HandleGetStrategies handles GET /api/allocation/strategies
func (h *Handler) HandleGetStrategies(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"strategies":  h.service.Strategies(),
			"windows":     domain.Windows,
			"max_tickers": domain.MaxTickers,
		},
		"metadata": metadata(),
	})
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func isMsgpack(header string) bool {
	for _, part := range strings.Split(header, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == ContentTypeMsgpack {
			return true
		}
	}
	return false
}

func decodeBody(r *http.Request, w http.ResponseWriter, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	data, err := io.ReadAll(body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return &domain.InvalidRequestError{Field: "body", Reason: "request body too large"}
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) == 0 {
		return &domain.InvalidRequestError{Field: "body", Reason: "request body is empty"}
	}

	if isMsgpack(r.Header.Get("Content-Type")) {
		err = msgpack.Unmarshal(data, v)
	} else {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return &domain.InvalidRequestError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// write encodes data as msgpack when the client accepts it, JSON otherwise.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if isMsgpack(r.Header.Get("Accept")) {
		payload, err := msgpack.Marshal(data)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to encode msgpack response")
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)
		if _, err := w.Write(payload); err != nil {
			h.log.Error().Err(err).Msg("Failed to write msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := domain.NewErrorResponse(err)
	status := resp.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("kind", string(resp.Kind)).Msg("Allocation request failed")
	}
	h.write(w, r, status, map[string]interface{}{"error": resp})
}
