// Package main bookd API Emulator Server
//
// @title bookd API Emulator
// @version 1.0
// @description Local emulator for the bookd data API for development and testing
//
// @host localhost:8080
// @BasePath /api/1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openledgerworks/bookd-automation/internal/emulator/api"
	"github.com/openledgerworks/bookd-automation/internal/emulator/oauth"
	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
)

const (
	defaultPort   = "8080"
	defaultDBPath = "./data/bookd.db"
)

func main() {
	// Setup structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Get configuration from environment variables.
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	// Initialize store.
	st, err := store.New(dbPath)
	if err != nil {
		slog.Error("failed to initialize store", "error", err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	slog.Info("database initialized", "db_path", dbPath)

	// Initialize OAuth2 token manager.
	tokenManager := oauth.NewTokenManager(st)

	// Initialize handlers.
	oauthHandler := oauth.NewHandler(tokenManager)
	booksHandler := api.NewBooksHandler(st)
	sessionsHandler := api.NewSessionsHandler(st)
	accountsHandler := api.NewAccountsHandler(st)
	transactionsHandler := api.NewTransactionsHandler(st)
	rulesHandler := api.NewRulesHandler(st)
	pricesHandler := api.NewPricesHandler(st)

	// Setup router.
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// OAuth2 endpoint (no authentication required).
	r.Post("/oauth/token", oauthHandler.HandleToken)

	// API endpoints (authentication required).
	r.Route("/api/1", func(r chi.Router) {
		r.Use(api.AuthMiddleware(tokenManager))

		// Books endpoints.
		r.Route("/books", func(r chi.Router) {
			r.Get("/", booksHandler.Get)
			r.Post("/", booksHandler.Create)
		})

		// Sessions endpoints.
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionsHandler.Open)
			r.Post("/{id}/save", sessionsHandler.Save)
			r.Delete("/{id}", sessionsHandler.Close)

			r.Get("/{id}/accounts", accountsHandler.List)
			r.Post("/{id}/accounts", accountsHandler.Create)
			r.Get("/{id}/balances", accountsHandler.Balances)

			r.Get("/{id}/transactions", transactionsHandler.List)
			r.Post("/{id}/transactions", transactionsHandler.Create)

			r.Get("/{id}/import-rules", rulesHandler.List)
			r.Post("/{id}/import-rules", rulesHandler.Create)

			r.Get("/{id}/prices/nearest", pricesHandler.Nearest)
			r.Post("/{id}/prices", pricesHandler.Create)
		})

		// Import rules copy endpoint.
		r.Post("/import-rules/copy", rulesHandler.Copy)
	})

	// Health check endpoint.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting bookd API emulator", "addr", addr, "port", port)

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
