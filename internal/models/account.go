package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a bank account belonging to a linked item.
// AccountID is the provider-side identifier and is unique across all users.
type Account struct {
	ID             uuid.UUID `json:"id"`
	LinkedItemID   uuid.UUID `json:"linkedItemId"`
	UserID         uuid.UUID `json:"userId"`
	AccountID      string    `json:"accountId"`
	Name           string    `json:"name"`
	OfficialName   string    `json:"officialName"`
	Type           string    `json:"type"`
	Subtype        string    `json:"subtype"`
	Mask           string    `json:"mask"`
	CurrentBalance float64   `json:"currentBalance"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
