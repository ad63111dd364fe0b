package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	domainsync "walletai/internal/domain/sync"
	"walletai/internal/shared/middleware"
)

type SyncHandler struct {
	orchestrator *domainsync.Orchestrator
}

func NewSyncHandler(orchestrator *domainsync.Orchestrator) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// HandleSync pulls fresh transactions for every item the user has linked.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.orchestrator.SyncUser(r.Context(), userID)
	if err != nil {
		log.Printf("Error syncing user %s: %v", userID, err)
		http.Error(w, "Failed to sync", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
