package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkedItem represents a bank connection created through the provider's
// link flow. ItemID is the provider-side identifier and is unique across
// all users. AccessToken is stored encrypted at rest.
//
// Cursor is the incremental sync position for this item. A nil cursor
// means the item has never completed a full sync and the next sync starts
// from the beginning of the provider's history.
type LinkedItem struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	ItemID          string    `json:"itemId"`
	AccessToken     string    `json:"-"`
	InstitutionName string    `json:"institutionName"`
	Cursor          *string   `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
