// Package sync coordinates provider fetches with local reconciliation.
package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"walletai/internal/domain/reconcile"
	"walletai/internal/infrastructure/plaid"
	"walletai/internal/models"
)

// CreateItemParams carries the fields for a new linked item. The access
// token must already be encrypted.
type CreateItemParams struct {
	UserID          uuid.UUID
	ItemID          string
	AccessToken     string
	InstitutionName string
}

// ItemStore persists linked items.
type ItemStore interface {
	Create(ctx context.Context, params CreateItemParams) (*models.LinkedItem, error)
	// GetByExternalID returns (nil, nil) when no item matches.
	GetByExternalID(ctx context.Context, itemID string) (*models.LinkedItem, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LinkedItem, error)
}

// TokenCipher seals and opens provider access tokens for storage.
// Implemented by crypto.Encryptor.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Error wraps a failure in the sync flow.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("sync: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ItemSyncResult reports the outcome of syncing one linked item.
type ItemSyncResult struct {
	ItemID          string           `json:"itemId"`
	InstitutionName string           `json:"institutionName"`
	Success         bool             `json:"success"`
	Accounts        reconcile.Report `json:"accounts"`
	Transactions    reconcile.Report `json:"transactions"`
	Removed         int              `json:"removed"`
	Cursor          string           `json:"cursor,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// UserSyncResult reports the outcome of syncing every item a user has
// linked. ItemsSynced counts every item attempted, failures included;
// the totals sum over the items that succeeded.
type UserSyncResult struct {
	UserID        uuid.UUID         `json:"userId"`
	ItemsSynced   int               `json:"itemsSynced"`
	TotalAdded    int               `json:"totalAdded"`
	TotalModified int               `json:"totalModified"`
	TotalRemoved  int               `json:"totalRemoved"`
	Results       []*ItemSyncResult `json:"results"`
}

// Orchestrator drives the link and sync flows.
type Orchestrator struct {
	client plaid.ClientInterface
	engine *reconcile.Engine
	items  ItemStore
	cipher TokenCipher
}

func NewOrchestrator(client plaid.ClientInterface, engine *reconcile.Engine, items ItemStore, cipher TokenCipher) *Orchestrator {
	return &Orchestrator{
		client: client,
		engine: engine,
		items:  items,
		cipher: cipher,
	}
}

// CreateLinkToken requests a link token for the client-side link flow.
func (o *Orchestrator) CreateLinkToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := o.client.CreateLinkToken(ctx, userID.String())
	if err != nil {
		return "", &Error{Message: "failed to create link token", Err: err}
	}
	return token, nil
}

// ExchangePublicToken completes the link flow: it trades the public token
// for an access token, stores the new item with an empty cursor, and runs
// an initial account sync so the user sees balances immediately.
func (o *Orchestrator) ExchangePublicToken(ctx context.Context, userID uuid.UUID, publicToken, institutionName string) (*models.LinkedItem, error) {
	exchange, err := o.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, &Error{Message: "failed to exchange public token", Err: err}
	}

	// Re-linking an institution hands back the same provider item.
	// Treat that as a no-op instead of tripping the unique constraint.
	if existing, err := o.items.GetByExternalID(ctx, exchange.ItemID); err != nil {
		return nil, &Error{Message: "failed to look up linked item", Err: err}
	} else if existing != nil {
		log.Printf("SyncOrchestrator: item %s already linked for user %s", exchange.ItemID, existing.UserID)
		return existing, nil
	}

	encryptedToken, err := o.cipher.Encrypt(exchange.AccessToken)
	if err != nil {
		return nil, &Error{Message: "failed to encrypt access token", Err: err}
	}

	item, err := o.items.Create(ctx, CreateItemParams{
		UserID:          userID,
		ItemID:          exchange.ItemID,
		AccessToken:     encryptedToken,
		InstitutionName: institutionName,
	})
	if err != nil {
		return nil, &Error{Message: "failed to store linked item", Err: err}
	}

	accounts, err := o.client.GetAccounts(ctx, exchange.AccessToken)
	if err != nil {
		return nil, &Error{Message: "failed to fetch accounts", Err: err}
	}

	report, err := o.engine.UpsertAccounts(ctx, userID, item.ID, accounts)
	if err != nil {
		return nil, &Error{Message: "failed to reconcile accounts", Err: err}
	}

	log.Printf("SyncOrchestrator: linked item %s for user %s (accounts created=%d updated=%d)",
		item.ItemID, userID, report.Created, report.Updated)

	return item, nil
}

// SyncItem runs a full incremental sync for one linked item:
//
//  1. decrypt the stored access token
//  2. pull all pending changes from the provider, starting at the stored cursor
//  3. reconcile accounts (balances move with every transaction)
//  4. reconcile added and modified transactions
//  5. apply removals
//  6. advance the cursor
//
// The cursor moves only after everything else succeeded. A failure at any
// earlier step leaves it untouched, so the next run re-fetches the same
// changes and the idempotent reconciliation absorbs the replay.
func (o *Orchestrator) SyncItem(ctx context.Context, item *models.LinkedItem) (*ItemSyncResult, error) {
	result := &ItemSyncResult{
		ItemID:          item.ItemID,
		InstitutionName: item.InstitutionName,
	}

	accessToken, err := o.cipher.Decrypt(item.AccessToken)
	if err != nil {
		return result, &Error{Message: "failed to decrypt access token", Err: err}
	}

	cursor := ""
	if item.Cursor != nil {
		cursor = *item.Cursor
	}

	changes, err := o.client.SyncAllTransactions(ctx, accessToken, cursor)
	if err != nil {
		return result, &Error{Message: "failed to fetch transaction changes", Err: err}
	}

	accounts, err := o.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return result, &Error{Message: "failed to fetch accounts", Err: err}
	}

	accountReport, err := o.engine.UpsertAccounts(ctx, item.UserID, item.ID, accounts)
	if err != nil {
		return result, &Error{Message: "failed to reconcile accounts", Err: err}
	}
	result.Accounts = *accountReport

	upserts := make([]map[string]any, 0, len(changes.Added)+len(changes.Modified))
	upserts = append(upserts, changes.Added...)
	upserts = append(upserts, changes.Modified...)

	txnReport, err := o.engine.UpsertTransactions(ctx, item.UserID, upserts)
	if err != nil {
		return result, &Error{Message: "failed to reconcile transactions", Err: err}
	}
	result.Transactions = *txnReport

	removed, err := o.engine.DeleteTransactions(ctx, changes.Removed)
	if err != nil {
		return result, &Error{Message: "failed to delete removed transactions", Err: err}
	}
	result.Removed = removed

	if err := o.engine.UpdateSyncCursor(ctx, item.ItemID, changes.NextCursor); err != nil {
		return result, &Error{Message: "failed to update sync cursor", Err: err}
	}
	result.Cursor = changes.NextCursor
	result.Success = true

	log.Printf("SyncOrchestrator: item %s synced (txns created=%d updated=%d skipped=%d removed=%d)",
		item.ItemID, txnReport.Created, txnReport.Updated, txnReport.Skipped, removed)

	return result, nil
}

// SyncUser syncs every linked item the user has. One item failing does
// not stop the others; its result carries the error instead.
func (o *Orchestrator) SyncUser(ctx context.Context, userID uuid.UUID) (*UserSyncResult, error) {
	items, err := o.items.ListByUserID(ctx, userID)
	if err != nil {
		return nil, &Error{Message: "failed to list linked items", Err: err}
	}

	result := &UserSyncResult{UserID: userID, ItemsSynced: len(items)}

	succeeded := 0
	for _, item := range items {
		itemResult, err := o.SyncItem(ctx, item)
		if err != nil {
			log.Printf("SyncOrchestrator: item %s failed for user %s: %v", item.ItemID, userID, err)
			itemResult.Success = false
			itemResult.Error = err.Error()
			result.Results = append(result.Results, itemResult)
			continue
		}

		succeeded++
		result.TotalAdded += itemResult.Transactions.Created
		result.TotalModified += itemResult.Transactions.Updated
		result.TotalRemoved += itemResult.Removed
		result.Results = append(result.Results, itemResult)
	}

	log.Printf("SyncOrchestrator: user %s synced %d/%d items (added=%d modified=%d removed=%d)",
		userID, succeeded, len(items), result.TotalAdded, result.TotalModified, result.TotalRemoved)

	return result, nil
}
