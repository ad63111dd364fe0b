package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"walletai/internal/models"
	"walletai/internal/shared/middleware"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

// TransactionStore is the slice of the transaction repository the
// handler needs.
type TransactionStore interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

type TransactionHandler struct {
	transactionRepo TransactionStore
}

func NewTransactionHandler(transactionRepo TransactionStore) *TransactionHandler {
	return &TransactionHandler{transactionRepo: transactionRepo}
}

// HandleList returns the user's transactions, newest first, with
// limit/offset pagination.
func (h *TransactionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		if parsed > maxTransactionLimit {
			parsed = maxTransactionLimit
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	transactions, err := h.transactionRepo.ListByUserID(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("Error listing transactions for user %s: %v", userID, err)
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"limit":        limit,
		"offset":       offset,
		"count":        len(transactions),
	})
}
