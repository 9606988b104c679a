package api

import (
	"encoding/json"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// TransactionsHandler handles transaction API endpoints.
type TransactionsHandler struct {
	store *store.Store
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(s *store.Store) *TransactionsHandler {
	return &TransactionsHandler{store: s}
}

// List handles GET /api/1/sessions/{id}/transactions.
// Optional date_from and date_to query parameters bound the range, inclusive.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveSession(h.store, w, r)
	if !ok {
		return
	}

	dateFrom := r.URL.Query().Get("date_from")
	dateTo := r.URL.Query().Get("date_to")

	txns, err := h.store.ListTransactions(book.ID, dateFrom, dateTo)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.TransactionsResponse{Transactions: txns})
}

// Create handles POST /api/1/sessions/{id}/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveWritableSession(h.store, w, r)
	if !ok {
		return
	}

	var req bookd.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	txn, err := h.store.CreateTransaction(book, &req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.TransactionResponse{Transaction: *txn})
}
