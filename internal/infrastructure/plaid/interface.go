package plaid

import (
	"context"
)

// ClientInterface defines the methods required from the bank data provider client
type ClientInterface interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)
	GetAccounts(ctx context.Context, accessToken string) ([]map[string]any, error)
	// SyncTransactions fetches a single page of transaction changes.
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error)
	// SyncAllTransactions pages through all pending changes and aggregates them.
	SyncAllTransactions(ctx context.Context, accessToken, cursor string) (*SyncResult, error)
}
