// Package api implements the bookd emulator's HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openledgerworks/bookd-automation/internal/emulator/oauth"
	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

type contextKey string

const (
	contextKeyToken contextKey = "token"
)

// AuthMiddleware is a middleware that validates OAuth2 access tokens.
func AuthMiddleware(tokenManager *oauth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
				return
			}

			// Parse Bearer token.
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
				return
			}

			token := parts[1]

			// Validate token.
			valid, err := tokenManager.ValidateToken(token)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to validate token")
				return
			}

			if !valid {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			// Store token in context.
			ctx := context.WithValue(r.Context(), contextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, bookd.ErrorResponse{Code: code, Message: message})
}

// writeStoreError maps a store error onto an HTTP error response.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrBookExists):
		writeJSONError(w, http.StatusConflict, "book_exists", err.Error())
	case errors.Is(err, store.ErrBookLocked):
		writeJSONError(w, http.StatusConflict, "book_locked", err.Error())
	case errors.Is(err, store.ErrAccountExists):
		writeJSONError(w, http.StatusConflict, "account_exists", err.Error())
	case errors.Is(err, store.ErrReadOnlySession):
		writeJSONError(w, http.StatusUnprocessableEntity, "read_only_session", err.Error())
	case errors.Is(err, store.ErrInvalid):
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// sessionID parses the session ID route parameter.
func sessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// resolveSession loads the session named in the route together with its book.
// On failure it writes the error response and returns false.
func resolveSession(s *store.Store, w http.ResponseWriter, r *http.Request) (*bookd.Session, *bookd.Book, bool) {
	id, err := sessionID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid session ID")
		return nil, nil, false
	}

	session, err := s.GetSession(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Session not found")
			return nil, nil, false
		}
		writeStoreError(w, err)
		return nil, nil, false
	}

	book, err := s.GetBook(session.BookID)
	if err != nil {
		writeStoreError(w, err)
		return nil, nil, false
	}

	return session, book, true
}

// resolveWritableSession is resolveSession restricted to read-write sessions.
func resolveWritableSession(s *store.Store, w http.ResponseWriter, r *http.Request) (*bookd.Session, *bookd.Book, bool) {
	session, book, ok := resolveSession(s, w, r)
	if !ok {
		return nil, nil, false
	}

	if session.Mode != bookd.OpenReadWrite {
		writeStoreError(w, store.ErrReadOnlySession)
		return nil, nil, false
	}

	return session, book, true
}
