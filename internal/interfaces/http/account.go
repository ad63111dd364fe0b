package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"walletai/internal/models"
	"walletai/internal/shared/middleware"
)

// AccountStore is the slice of the account repository the handler needs.
type AccountStore interface {
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
}

type AccountHandler struct {
	accountRepo AccountStore
}

func NewAccountHandler(accountRepo AccountStore) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo}
}

// HandleList returns all linked accounts for the current user.
func (h *AccountHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accounts, err := h.accountRepo.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing accounts for user %s: %v", userID, err)
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}
