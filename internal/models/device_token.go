package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceToken stores an FCM registration token for push notifications.
// Tokens are deactivated (not deleted) when FCM reports them invalid.
type DeviceToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
