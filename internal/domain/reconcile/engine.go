// Package reconcile applies raw provider payloads to the local store.
// Malformed entries are skipped and counted rather than failing the
// batch, so a single bad record never blocks a sync. All operations are
// idempotent and safe to replay.
package reconcile

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletai/internal/models"
)

const (
	defaultCurrency = "USD"
	dateLayout      = "2006-01-02"
)

// UpsertAccountParams carries the normalized fields for one account.
type UpsertAccountParams struct {
	UserID         uuid.UUID
	LinkedItemID   uuid.UUID
	AccountID      string
	Name           string
	OfficialName   string
	Type           string
	Subtype        string
	Mask           string
	CurrentBalance float64
	Currency       string
}

// UpsertTransactionParams carries the normalized fields for one transaction.
type UpsertTransactionParams struct {
	UserID        uuid.UUID
	AccountID     uuid.UUID
	TransactionID string
	Amount        float64
	Date          time.Time
	AuthDate      *time.Time
	MerchantName  string
	Pending       bool
	Category      string
	Currency      string
}

// AccountStore persists accounts keyed by their provider identifier.
type AccountStore interface {
	// GetByExternalID returns (nil, nil) when no account matches.
	GetByExternalID(ctx context.Context, accountID string) (*models.Account, error)
	Upsert(ctx context.Context, params UpsertAccountParams) (*models.Account, error)
}

// TransactionStore persists transactions keyed by their provider identifier.
type TransactionStore interface {
	Exists(ctx context.Context, transactionID string) (bool, error)
	Upsert(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error)
	// DeleteByExternalIDs returns the number of rows actually removed.
	DeleteByExternalIDs(ctx context.Context, transactionIDs []string) (int64, error)
}

// ItemStore updates sync state on linked items.
type ItemStore interface {
	// UpdateCursor returns the number of rows affected.
	UpdateCursor(ctx context.Context, itemID, cursor string) (int64, error)
}

// TxRunner scopes a function to one database transaction. Store calls
// made with the context fn receives must join that transaction.
// Implemented by postgres.DB.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Report summarizes the outcome of one upsert batch.
type Report struct {
	Created int
	Updated int
	Skipped int
}

// Engine reconciles provider payloads against the local store. Each
// upsert batch runs inside a single transaction, so a store failure
// part way through leaves nothing committed.
type Engine struct {
	accounts     AccountStore
	transactions TransactionStore
	items        ItemStore
	tx           TxRunner
}

func NewEngine(accounts AccountStore, transactions TransactionStore, items ItemStore, tx TxRunner) *Engine {
	return &Engine{
		accounts:     accounts,
		transactions: transactions,
		items:        items,
		tx:           tx,
	}
}

// UpsertAccounts reconciles a batch of raw account payloads. Entries
// without a provider account id are skipped. Replaying the same batch
// yields zero creates. The batch commits atomically: a store failure
// on any entry rolls back the whole batch.
func (e *Engine) UpsertAccounts(ctx context.Context, userID, linkedItemID uuid.UUID, raw []map[string]any) (*Report, error) {
	report := &Report{}

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		return e.upsertAccountBatch(ctx, userID, linkedItemID, raw, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) upsertAccountBatch(ctx context.Context, userID, linkedItemID uuid.UUID, raw []map[string]any, report *Report) error {
	for _, entry := range raw {
		accountID := getString(entry, "account_id")
		if accountID == "" {
			log.Printf("Reconcile: skipping account without account_id for user %s", userID)
			report.Skipped++
			continue
		}

		name := getString(entry, "name")
		officialName := getString(entry, "official_name")
		if officialName == "" {
			officialName = name
		}

		balance := 0.0
		currency := defaultCurrency
		if balances, ok := entry["balances"].(map[string]any); ok {
			if current, ok := balances["current"].(float64); ok {
				balance = current
			}
			if code := getString(balances, "iso_currency_code"); code != "" {
				currency = code
			}
		}

		existing, err := e.accounts.GetByExternalID(ctx, accountID)
		if err != nil {
			return &Error{Op: "upsert_accounts", Err: err}
		}

		params := UpsertAccountParams{
			UserID:         userID,
			LinkedItemID:   linkedItemID,
			AccountID:      accountID,
			Name:           name,
			OfficialName:   officialName,
			Type:           getString(entry, "type"),
			Subtype:        getString(entry, "subtype"),
			Mask:           getString(entry, "mask"),
			CurrentBalance: balance,
			Currency:       currency,
		}

		if _, err := e.accounts.Upsert(ctx, params); err != nil {
			return &Error{Op: "upsert_accounts", Err: err}
		}

		if existing != nil {
			report.Updated++
		} else {
			report.Created++
		}
	}

	return nil
}

// UpsertTransactions reconciles a batch of raw transaction payloads.
// Entries without a transaction id, or referencing an account that has
// not been synced yet, are skipped with a warning. Like UpsertAccounts,
// the batch commits atomically or not at all.
func (e *Engine) UpsertTransactions(ctx context.Context, userID uuid.UUID, raw []map[string]any) (*Report, error) {
	report := &Report{}

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		return e.upsertTransactionBatch(ctx, userID, raw, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Engine) upsertTransactionBatch(ctx context.Context, userID uuid.UUID, raw []map[string]any, report *Report) error {
	// Account lookups are cached per batch; nil marks a known miss.
	accountCache := make(map[string]*models.Account)

	for _, entry := range raw {
		transactionID := getString(entry, "transaction_id")
		if transactionID == "" {
			log.Printf("Reconcile: skipping transaction without transaction_id for user %s", userID)
			report.Skipped++
			continue
		}

		externalAccountID := getString(entry, "account_id")
		account, cached := accountCache[externalAccountID]
		if !cached {
			var err error
			account, err = e.accounts.GetByExternalID(ctx, externalAccountID)
			if err != nil {
				return &Error{Op: "upsert_transactions", Err: err}
			}
			accountCache[externalAccountID] = account
		}
		if account == nil {
			log.Printf("Reconcile: skipping transaction %s, unknown account %q", transactionID, externalAccountID)
			report.Skipped++
			continue
		}

		exists, err := e.transactions.Exists(ctx, transactionID)
		if err != nil {
			return &Error{Op: "upsert_transactions", Err: err}
		}

		params := UpsertTransactionParams{
			UserID:        userID,
			AccountID:     account.ID,
			TransactionID: transactionID,
			Amount:        getFloat(entry, "amount"),
			Date:          parseDate(getString(entry, "date")),
			AuthDate:      parseOptionalDate(getString(entry, "authorized_date")),
			MerchantName:  merchantName(entry),
			Pending:       getBool(entry, "pending"),
			Category:      categoryLabel(entry),
			Currency:      currencyCode(entry),
		}

		if _, err := e.transactions.Upsert(ctx, params); err != nil {
			return &Error{Op: "upsert_transactions", Err: err}
		}

		if exists {
			report.Updated++
		} else {
			report.Created++
		}
	}

	return nil
}

// DeleteTransactions removes transactions by their provider identifiers
// and returns how many rows were actually deleted. Identifiers that are
// already absent contribute nothing to the count, which keeps removed
// batches safe to replay.
func (e *Engine) DeleteTransactions(ctx context.Context, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	deleted, err := e.transactions.DeleteByExternalIDs(ctx, transactionIDs)
	if err != nil {
		return 0, &Error{Op: "delete_transactions", Err: err}
	}

	return int(deleted), nil
}

// UpdateSyncCursor advances the stored cursor for a linked item. Unlike
// the upsert paths this fails fast: a missing item means sync state
// would be silently lost, so it returns ErrItemNotFound.
func (e *Engine) UpdateSyncCursor(ctx context.Context, itemID, cursor string) error {
	affected, err := e.items.UpdateCursor(ctx, itemID, cursor)
	if err != nil {
		return &Error{Op: "update_sync_cursor", Err: err}
	}
	if affected == 0 {
		return &Error{Op: "update_sync_cursor", Err: ErrItemNotFound}
	}
	return nil
}

func merchantName(entry map[string]any) string {
	if name := getString(entry, "merchant_name"); name != "" {
		return name
	}
	if name := getString(entry, "name"); name != "" {
		return name
	}
	return "Unknown"
}

func categoryLabel(entry map[string]any) string {
	if list, ok := entry["category"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	if pfc, ok := entry["personal_finance_category"].(map[string]any); ok {
		if primary := getString(pfc, "primary"); primary != "" {
			return primary
		}
	}
	return "Other"
}

func currencyCode(entry map[string]any) string {
	if code := getString(entry, "iso_currency_code"); code != "" {
		return code
	}
	return defaultCurrency
}

func parseDate(s string) time.Time {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getFloat(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
