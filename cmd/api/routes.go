package main

import (
	"log"
	"net/http"

	httphandlers "walletai/internal/interfaces/http"
	"walletai/internal/shared/config"
	"walletai/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Public auth routes
	mux.HandleFunc("/api/auth/register", deps.AuthHandler.HandleRegister)
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/users/me", authMiddleware(http.HandlerFunc(deps.AuthHandler.HandleMe)))
	mux.Handle("/api/link/token", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleCreateLinkToken)))
	mux.Handle("/api/link/exchange", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleExchangeToken)))
	mux.Handle("/api/sync", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSync)))
	mux.Handle("/api/accounts", authMiddleware(http.HandlerFunc(deps.AccountHandler.HandleList)))
	mux.Handle("/api/transactions", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleList)))
	mux.Handle("/api/chat", authMiddleware(http.HandlerFunc(deps.ChatHandler.HandleChat)))
	mux.Handle("/api/notifications/register", authMiddleware(http.HandlerFunc(deps.NotificationHandler.HandleRegisterDevice)))

	// Apply global middleware
	var handler http.Handler = mux
	if cfg.Telemetry.Enabled {
		handler = middleware.Tracing(handler)
		handler = middleware.Telemetry(handler)
	}
	handler = middleware.Recover(middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(handler)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.RequireHTTPS(middleware.HSTS(middleware.SecureCookies(handler)))
		log.Println("TLS security middleware enabled (RequireHTTPS + HSTS + SecureCookies)")
	}

	return handler
}
