// ABOUTME: HTTP server wiring for the papergate JSON API
// ABOUTME: Registers routes on a ServeMux with auth and admin middleware

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/papergate/papergate/internal/auth"
	"github.com/papergate/papergate/internal/codes"
	"github.com/papergate/papergate/internal/documents"
	"github.com/papergate/papergate/internal/store"
	"github.com/papergate/papergate/internal/webhook"
)

// Server holds the services behind the HTTP API.
type Server struct {
	auth        *auth.Service
	codes       *codes.Service
	documents   *documents.Service
	provisioner *webhook.Provisioner
	store       store.Store
	verifier    *auth.JWTVerifier
	tokenTTL    time.Duration
	logger      *slog.Logger
}

// Config bundles the dependencies a Server needs.
type Config struct {
	Store       store.Store
	Auth        *auth.Service
	Codes       *codes.Service
	Documents   *documents.Service
	Provisioner *webhook.Provisioner
	Verifier    *auth.JWTVerifier
	TokenTTL    time.Duration
}

// New creates a Server from its dependencies.
func New(cfg Config) *Server {
	return &Server{
		auth:        cfg.Auth,
		codes:       cfg.Codes,
		documents:   cfg.Documents,
		provisioner: cfg.Provisioner,
		store:       cfg.Store,
		verifier:    cfg.Verifier,
		tokenTTL:    cfg.TokenTTL,
		logger:      slog.Default().With("component", "server"),
	}
}

// RegisterRoutes registers all API routes on the given mux. Administrative
// routes sit behind token auth plus an admin check; document creation and
// retrieval are open (creation optionally attaches the caller's identity).
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	requireAuth := auth.HTTPAuthMiddleware(s.store, s.verifier)
	requireAdmin := auth.RequireAdminHTTP()
	optionalAuth := auth.OptionalAuthMiddleware(s.store, s.verifier)

	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(requireAdmin(h))
	}

	// Public routes
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/validate-code", s.handleValidateCode)
	mux.HandleFunc("GET /documents/{id}", s.handleRetrieveDocument)
	mux.Handle("POST /documents/create-and-get-id", optionalAuth(http.HandlerFunc(s.handleCreateDocument)))
	mux.HandleFunc("POST /webhooks/purchase", s.handlePurchaseWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Administrative routes
	mux.Handle("POST /auth/create-user", admin(s.handleCreateUser))
	mux.Handle("POST /admin/generate-codes", admin(s.handleGenerateCodes))
	mux.Handle("GET /admin/codes", admin(s.handleListCodes))
	mux.Handle("GET /admin/users", admin(s.handleListUsers))
	mux.Handle("PUT /admin/users/{id}/access", admin(s.handleUpdateAccess))
	mux.Handle("GET /admin/documents", admin(s.handleListDocuments))
	mux.Handle("PUT /admin/documents/{id}", admin(s.handleUpdateDocument))
	mux.Handle("DELETE /admin/documents/{id}", admin(s.handleDeleteDocument))
}

// writeJSON encodes a response body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a structured error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
