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

// DeviceTokenStore is the slice of the device token repository the
// handler needs.
type DeviceTokenStore interface {
	Register(ctx context.Context, userID uuid.UUID, token, platform string) (*models.DeviceToken, error)
}

type NotificationHandler struct {
	deviceTokenRepo DeviceTokenStore
}

func NewNotificationHandler(deviceTokenRepo DeviceTokenStore) *NotificationHandler {
	return &NotificationHandler{deviceTokenRepo: deviceTokenRepo}
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// HandleRegisterDevice stores a push token so the nightly sync can
// notify this device about new transactions.
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	device, err := h.deviceTokenRepo.Register(r.Context(), userID, req.Token, req.Platform)
	if err != nil {
		log.Printf("Error registering device token for user %s: %v", userID, err)
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(device)
}
