package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// PricesHandler handles price table API endpoints.
type PricesHandler struct {
	store *store.Store
}

// NewPricesHandler creates a new PricesHandler.
func NewPricesHandler(s *store.Store) *PricesHandler {
	return &PricesHandler{store: s}
}

// Nearest handles GET /api/1/sessions/{id}/prices/nearest.
func (h *PricesHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveSession(h.store, w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	commodity := query.Get("commodity")
	currency := query.Get("currency")
	date := query.Get("date")
	if commodity == "" || currency == "" || date == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Missing commodity, currency, or date")
		return
	}

	price, err := h.store.NearestPrice(book.ID, commodity, currency, date)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "No price quote found")
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.PriceResponse{Price: *price})
}

// Create handles POST /api/1/sessions/{id}/prices.
func (h *PricesHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveWritableSession(h.store, w, r)
	if !ok {
		return
	}

	var req bookd.NewPrice
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	price, err := h.store.CreatePrice(book.ID, &req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.PriceResponse{Price: *price})
}
