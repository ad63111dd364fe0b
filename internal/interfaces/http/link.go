package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	domainsync "walletai/internal/domain/sync"
	"walletai/internal/shared/middleware"
)

type LinkHandler struct {
	orchestrator *domainsync.Orchestrator
}

func NewLinkHandler(orchestrator *domainsync.Orchestrator) *LinkHandler {
	return &LinkHandler{orchestrator: orchestrator}
}

type ExchangeTokenRequest struct {
	PublicToken     string `json:"public_token"`
	InstitutionName string `json:"institution_name"`
}

// HandleCreateLinkToken starts a bank-linking session for the current user.
func (h *LinkHandler) HandleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	linkToken, err := h.orchestrator.CreateLinkToken(r.Context(), userID)
	if err != nil {
		log.Printf("Error creating link token for user %s: %v", userID, err)
		http.Error(w, "Failed to create link token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"link_token": linkToken})
}

// HandleExchangeToken turns a public token into a stored linked item and
// runs the initial account import.
func (h *LinkHandler) HandleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ExchangeTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PublicToken == "" {
		http.Error(w, "public_token is required", http.StatusBadRequest)
		return
	}

	item, err := h.orchestrator.ExchangePublicToken(r.Context(), userID, req.PublicToken, req.InstitutionName)
	if err != nil {
		log.Printf("Error exchanging public token for user %s: %v", userID, err)
		http.Error(w, "Failed to link account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(item)
}
