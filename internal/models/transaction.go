package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction represents a single bank transaction. TransactionID is the
// provider-side identifier and is unique across all users. Amount follows
// the provider convention: positive values are outflows (spending),
// negative values are inflows.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"accountId"`
	UserID        uuid.UUID  `json:"userId"`
	TransactionID string     `json:"transactionId"`
	Amount        float64    `json:"amount"`
	Date          time.Time  `json:"date"`
	AuthDate      *time.Time `json:"authDate,omitempty"`
	MerchantName  string     `json:"merchantName"`
	Pending       bool       `json:"pending"`
	Category      string     `json:"category"`
	Currency      string     `json:"currency"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
