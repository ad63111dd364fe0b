package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"walletai/internal/models"
)

// MockAccountStore implements AccountStore
type MockAccountStore struct {
	GetByExternalIDFunc func(ctx context.Context, accountID string) (*models.Account, error)
	UpsertFunc          func(ctx context.Context, params UpsertAccountParams) (*models.Account, error)
}

func (m *MockAccountStore) GetByExternalID(ctx context.Context, accountID string) (*models.Account, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *MockAccountStore) Upsert(ctx context.Context, params UpsertAccountParams) (*models.Account, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &models.Account{ID: uuid.New(), AccountID: params.AccountID}, nil
}

// MockTransactionStore implements TransactionStore
type MockTransactionStore struct {
	ExistsFunc              func(ctx context.Context, transactionID string) (bool, error)
	UpsertFunc              func(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error)
	DeleteByExternalIDsFunc func(ctx context.Context, transactionIDs []string) (int64, error)
}

func (m *MockTransactionStore) Exists(ctx context.Context, transactionID string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, transactionID)
	}
	return false, nil
}

func (m *MockTransactionStore) Upsert(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &models.Transaction{ID: uuid.New(), TransactionID: params.TransactionID}, nil
}

func (m *MockTransactionStore) DeleteByExternalIDs(ctx context.Context, transactionIDs []string) (int64, error) {
	if m.DeleteByExternalIDsFunc != nil {
		return m.DeleteByExternalIDsFunc(ctx, transactionIDs)
	}
	return 0, nil
}

// passTx runs the batch without any transaction scope.
type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockItemStore implements ItemStore
type MockItemStore struct {
	UpdateCursorFunc func(ctx context.Context, itemID, cursor string) (int64, error)
}

func (m *MockItemStore) UpdateCursor(ctx context.Context, itemID, cursor string) (int64, error) {
	if m.UpdateCursorFunc != nil {
		return m.UpdateCursorFunc(ctx, itemID, cursor)
	}
	return 1, nil
}

// memoryAccountStore is a stateful mock for idempotency tests.
type memoryAccountStore struct {
	accounts map[string]*models.Account
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: make(map[string]*models.Account)}
}

func (s *memoryAccountStore) GetByExternalID(ctx context.Context, accountID string) (*models.Account, error) {
	return s.accounts[accountID], nil
}

func (s *memoryAccountStore) Upsert(ctx context.Context, params UpsertAccountParams) (*models.Account, error) {
	acc, ok := s.accounts[params.AccountID]
	if !ok {
		acc = &models.Account{ID: uuid.New(), AccountID: params.AccountID}
		s.accounts[params.AccountID] = acc
	}
	acc.UserID = params.UserID
	acc.LinkedItemID = params.LinkedItemID
	acc.Name = params.Name
	acc.OfficialName = params.OfficialName
	acc.CurrentBalance = params.CurrentBalance
	acc.Currency = params.Currency
	return acc, nil
}

func TestUpsertAccounts_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryAccountStore()
	engine := NewEngine(store, &MockTransactionStore{}, &MockItemStore{}, passTx{})

	raw := []map[string]any{
		{
			"account_id": "acc-1",
			"name":       "Checking",
			"balances":   map[string]any{"current": 1250.40, "iso_currency_code": "USD"},
		},
		{
			"account_id": "acc-2",
			"name":       "Savings",
			"balances":   map[string]any{"current": 9800.00, "iso_currency_code": "USD"},
		},
	}

	userID := uuid.New()
	itemID := uuid.New()

	first, err := engine.UpsertAccounts(ctx, userID, itemID, raw)
	if err != nil {
		t.Fatalf("UpsertAccounts() failed: %v", err)
	}
	if first.Created != 2 || first.Updated != 0 {
		t.Errorf("first pass: created=%d updated=%d, want 2/0", first.Created, first.Updated)
	}

	second, err := engine.UpsertAccounts(ctx, userID, itemID, raw)
	if err != nil {
		t.Fatalf("UpsertAccounts() replay failed: %v", err)
	}
	if second.Created != 0 || second.Updated != 2 {
		t.Errorf("replay: created=%d updated=%d, want 0/2", second.Created, second.Updated)
	}
	if len(store.accounts) != 2 {
		t.Errorf("store has %d accounts, want 2", len(store.accounts))
	}
}

func TestUpsertAccounts_SkipsAndDefaults(t *testing.T) {
	ctx := context.Background()

	var upserted []UpsertAccountParams
	accounts := &MockAccountStore{
		UpsertFunc: func(ctx context.Context, params UpsertAccountParams) (*models.Account, error) {
			upserted = append(upserted, params)
			return &models.Account{ID: uuid.New()}, nil
		},
	}
	engine := NewEngine(accounts, &MockTransactionStore{}, &MockItemStore{}, passTx{})

	raw := []map[string]any{
		{"name": "No ID"}, // missing account_id, must be skipped
		{
			"account_id": "acc-1",
			"name":       "Checking",
			// no official_name, no balances
		},
		{
			"account_id":    "acc-2",
			"name":          "Euro Account",
			"official_name": "Euro Current Account",
			"balances":      map[string]any{"current": 42.10, "iso_currency_code": "EUR"},
		},
	}

	report, err := engine.UpsertAccounts(ctx, uuid.New(), uuid.New(), raw)
	if err != nil {
		t.Fatalf("UpsertAccounts() failed: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
	if report.Created != 2 {
		t.Errorf("Created = %d, want 2", report.Created)
	}

	if upserted[0].OfficialName != "Checking" {
		t.Errorf("OfficialName = %q, want fallback to name", upserted[0].OfficialName)
	}
	if upserted[0].CurrentBalance != 0.0 {
		t.Errorf("CurrentBalance = %f, want default 0.0", upserted[0].CurrentBalance)
	}
	if upserted[0].Currency != "USD" {
		t.Errorf("Currency = %q, want default USD", upserted[0].Currency)
	}
	if upserted[1].OfficialName != "Euro Current Account" {
		t.Errorf("OfficialName = %q, want explicit value kept", upserted[1].OfficialName)
	}
	if upserted[1].Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", upserted[1].Currency)
	}
}

func TestUpsertTransactions_Normalization(t *testing.T) {
	ctx := context.Background()
	accountUUID := uuid.New()

	accounts := &MockAccountStore{
		GetByExternalIDFunc: func(ctx context.Context, accountID string) (*models.Account, error) {
			if accountID == "acc-1" {
				return &models.Account{ID: accountUUID, AccountID: "acc-1"}, nil
			}
			return nil, nil
		},
	}

	var upserted []UpsertTransactionParams
	transactions := &MockTransactionStore{
		UpsertFunc: func(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error) {
			upserted = append(upserted, params)
			return &models.Transaction{ID: uuid.New()}, nil
		},
	}
	engine := NewEngine(accounts, transactions, &MockItemStore{}, passTx{})

	raw := []map[string]any{
		{"account_id": "acc-1", "amount": 5.00}, // missing transaction_id
		{"transaction_id": "txn-orphan", "account_id": "acc-unknown", "amount": 9.99},
		{
			"transaction_id": "txn-1",
			"account_id":     "acc-1",
			"amount":         12.50,
			"date":           "2026-03-15",
			"merchant_name":  "Blue Bottle",
			"category":       []any{"Food and Drink", "Coffee"},
			"pending":        true,
		},
		{
			"transaction_id": "txn-2",
			"account_id":     "acc-1",
			"amount":         80.00,
			"date":           "not-a-date",
			"name":           "ACME CORP PAYROLL",
			"personal_finance_category": map[string]any{
				"primary": "INCOME",
			},
		},
		{
			"transaction_id": "txn-3",
			"account_id":     "acc-1",
			"amount":         3.25,
		},
	}

	report, err := engine.UpsertTransactions(ctx, uuid.New(), raw)
	if err != nil {
		t.Fatalf("UpsertTransactions() failed: %v", err)
	}
	if report.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (missing id + unknown account)", report.Skipped)
	}
	if report.Created != 3 {
		t.Errorf("Created = %d, want 3", report.Created)
	}

	txn1 := upserted[0]
	if txn1.AccountID != accountUUID {
		t.Errorf("txn-1 AccountID = %s, want mapped internal id", txn1.AccountID)
	}
	if txn1.MerchantName != "Blue Bottle" {
		t.Errorf("txn-1 MerchantName = %q", txn1.MerchantName)
	}
	if txn1.Category != "Food and Drink, Coffee" {
		t.Errorf("txn-1 Category = %q, want joined list", txn1.Category)
	}
	if !txn1.Pending {
		t.Error("txn-1 Pending = false, want true")
	}
	if txn1.Date.Format("2006-01-02") != "2026-03-15" {
		t.Errorf("txn-1 Date = %s", txn1.Date)
	}

	txn2 := upserted[1]
	if txn2.MerchantName != "ACME CORP PAYROLL" {
		t.Errorf("txn-2 MerchantName = %q, want name fallback", txn2.MerchantName)
	}
	if txn2.Category != "INCOME" {
		t.Errorf("txn-2 Category = %q, want personal finance primary", txn2.Category)
	}
	today := time.Now().UTC().Format("2006-01-02")
	if txn2.Date.Format("2006-01-02") != today {
		t.Errorf("txn-2 Date = %s, want today for unparseable date", txn2.Date)
	}

	txn3 := upserted[2]
	if txn3.MerchantName != "Unknown" {
		t.Errorf("txn-3 MerchantName = %q, want Unknown", txn3.MerchantName)
	}
	if txn3.Category != "Other" {
		t.Errorf("txn-3 Category = %q, want Other", txn3.Category)
	}
	if txn3.Pending {
		t.Error("txn-3 Pending = true, want default false")
	}
	if txn3.Currency != "USD" {
		t.Errorf("txn-3 Currency = %q, want default USD", txn3.Currency)
	}
}

func TestUpsertTransactions_StoreFailureWraps(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection reset")

	accounts := &MockAccountStore{
		GetByExternalIDFunc: func(ctx context.Context, accountID string) (*models.Account, error) {
			return &models.Account{ID: uuid.New()}, nil
		},
	}
	transactions := &MockTransactionStore{
		UpsertFunc: func(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error) {
			return nil, storeErr
		},
	}
	engine := NewEngine(accounts, transactions, &MockItemStore{}, passTx{})

	raw := []map[string]any{
		{"transaction_id": "txn-1", "account_id": "acc-1", "amount": 1.00},
	}

	_, err := engine.UpsertTransactions(ctx, uuid.New(), raw)
	if err == nil {
		t.Fatal("UpsertTransactions() expected error, got nil")
	}

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error type = %T, want *reconcile.Error", err)
	}
	if !errors.Is(err, storeErr) {
		t.Error("wrapped error lost the underlying store failure")
	}
}

// fakeTx mimics transactional semantics over map-backed stores: it
// snapshots state before the batch and restores it when the batch errors.
type fakeTx struct {
	begun      int
	rolledBack bool
	snapshot   func() any
	restore    func(any)
}

func (f *fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.begun++
	snap := f.snapshot()
	if err := fn(ctx); err != nil {
		f.restore(snap)
		f.rolledBack = true
		return err
	}
	return nil
}

func TestUpsertTransactions_MidBatchFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection reset")

	persisted := make(map[string]UpsertTransactionParams)
	accounts := &MockAccountStore{
		GetByExternalIDFunc: func(ctx context.Context, accountID string) (*models.Account, error) {
			return &models.Account{ID: uuid.New(), AccountID: accountID}, nil
		},
	}
	transactions := &MockTransactionStore{
		UpsertFunc: func(ctx context.Context, params UpsertTransactionParams) (*models.Transaction, error) {
			if params.TransactionID == "txn-2" {
				return nil, storeErr
			}
			persisted[params.TransactionID] = params
			return &models.Transaction{ID: uuid.New(), TransactionID: params.TransactionID}, nil
		},
	}

	tx := &fakeTx{
		snapshot: func() any {
			snap := make(map[string]UpsertTransactionParams, len(persisted))
			for k, v := range persisted {
				snap[k] = v
			}
			return snap
		},
		restore: func(s any) {
			persisted = s.(map[string]UpsertTransactionParams)
		},
	}

	engine := NewEngine(accounts, transactions, &MockItemStore{}, tx)

	raw := []map[string]any{
		{"transaction_id": "txn-1", "account_id": "acc-1", "amount": 10.00},
		{"transaction_id": "txn-2", "account_id": "acc-1", "amount": 20.00},
	}

	_, err := engine.UpsertTransactions(ctx, uuid.New(), raw)
	if err == nil {
		t.Fatal("UpsertTransactions() expected error, got nil")
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("error = %v, want wrapped store failure", err)
	}
	if tx.begun != 1 {
		t.Errorf("batch opened %d transactions, want 1", tx.begun)
	}
	if !tx.rolledBack {
		t.Error("batch error did not roll the transaction back")
	}
	if len(persisted) != 0 {
		t.Errorf("txn-1 stayed persisted after mid-batch failure, store has %d rows", len(persisted))
	}
}

func TestUpsertAccounts_MidBatchFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	persisted := make(map[string]*models.Account)
	accounts := &MockAccountStore{
		GetByExternalIDFunc: func(ctx context.Context, accountID string) (*models.Account, error) {
			return persisted[accountID], nil
		},
		UpsertFunc: func(ctx context.Context, params UpsertAccountParams) (*models.Account, error) {
			if params.AccountID == "acc-2" {
				return nil, errors.New("deadlock detected")
			}
			acc := &models.Account{ID: uuid.New(), AccountID: params.AccountID}
			persisted[params.AccountID] = acc
			return acc, nil
		},
	}

	tx := &fakeTx{
		snapshot: func() any {
			snap := make(map[string]*models.Account, len(persisted))
			for k, v := range persisted {
				snap[k] = v
			}
			return snap
		},
		restore: func(s any) {
			persisted = s.(map[string]*models.Account)
		},
	}

	engine := NewEngine(accounts, &MockTransactionStore{}, &MockItemStore{}, tx)

	raw := []map[string]any{
		{"account_id": "acc-1", "name": "Checking"},
		{"account_id": "acc-2", "name": "Savings"},
	}

	_, err := engine.UpsertAccounts(ctx, uuid.New(), uuid.New(), raw)
	if err == nil {
		t.Fatal("UpsertAccounts() expected error, got nil")
	}
	if !tx.rolledBack {
		t.Error("batch error did not roll the transaction back")
	}
	if len(persisted) != 0 {
		t.Errorf("acc-1 stayed persisted after mid-batch failure, store has %d rows", len(persisted))
	}
}

func TestDeleteTransactions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		ids         []string
		storeResult int64
		want        int
	}{
		{"deletes existing rows", []string{"txn-1", "txn-2"}, 2, 2},
		{"already absent ids count zero", []string{"txn-gone"}, 0, 0},
		{"empty batch short-circuits", nil, 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			transactions := &MockTransactionStore{
				DeleteByExternalIDsFunc: func(ctx context.Context, ids []string) (int64, error) {
					called = true
					return tt.storeResult, nil
				},
			}
			engine := NewEngine(&MockAccountStore{}, transactions, &MockItemStore{}, passTx{})

			got, err := engine.DeleteTransactions(ctx, tt.ids)
			if err != nil {
				t.Fatalf("DeleteTransactions() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DeleteTransactions() = %d, want %d", got, tt.want)
			}
			if len(tt.ids) == 0 && called {
				t.Error("store called for empty batch")
			}
		})
	}
}

func TestUpdateSyncCursor(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		var gotItem, gotCursor string
		items := &MockItemStore{
			UpdateCursorFunc: func(ctx context.Context, itemID, cursor string) (int64, error) {
				gotItem, gotCursor = itemID, cursor
				return 1, nil
			},
		}
		engine := NewEngine(&MockAccountStore{}, &MockTransactionStore{}, items, passTx{})

		if err := engine.UpdateSyncCursor(ctx, "item-1", "cursor-abc"); err != nil {
			t.Fatalf("UpdateSyncCursor() failed: %v", err)
		}
		if gotItem != "item-1" || gotCursor != "cursor-abc" {
			t.Errorf("store got (%q, %q)", gotItem, gotCursor)
		}
	})

	t.Run("missing item fails fast", func(t *testing.T) {
		items := &MockItemStore{
			UpdateCursorFunc: func(ctx context.Context, itemID, cursor string) (int64, error) {
				return 0, nil
			},
		}
		engine := NewEngine(&MockAccountStore{}, &MockTransactionStore{}, items, passTx{})

		err := engine.UpdateSyncCursor(ctx, "item-missing", "c1")
		if err == nil {
			t.Fatal("UpdateSyncCursor() expected error for missing item")
		}
		if !errors.Is(err, ErrItemNotFound) {
			t.Errorf("error = %v, want ErrItemNotFound", err)
		}
	})

	t.Run("store failure wraps", func(t *testing.T) {
		items := &MockItemStore{
			UpdateCursorFunc: func(ctx context.Context, itemID, cursor string) (int64, error) {
				return 0, fmt.Errorf("deadlock detected")
			},
		}
		engine := NewEngine(&MockAccountStore{}, &MockTransactionStore{}, items, passTx{})

		err := engine.UpdateSyncCursor(ctx, "item-1", "c1")
		var rerr *Error
		if !errors.As(err, &rerr) {
			t.Fatalf("error type = %T, want *reconcile.Error", err)
		}
	})
}
