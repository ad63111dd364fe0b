package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"walletai/internal/domain/reconcile"
	"walletai/internal/infrastructure/plaid"
	"walletai/internal/models"
)

// MockClient implements plaid.ClientInterface
type MockClient struct {
	CreateLinkTokenFunc     func(ctx context.Context, userID string) (string, error)
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (*plaid.ExchangeResult, error)
	GetAccountsFunc         func(ctx context.Context, accessToken string) ([]map[string]any, error)
	SyncAllTransactionsFunc func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResult, error)
}

func (m *MockClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if m.CreateLinkTokenFunc != nil {
		return m.CreateLinkTokenFunc(ctx, userID)
	}
	return "link-token", nil
}

func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.ExchangeResult, error) {
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return &plaid.ExchangeResult{ItemID: "item-1", AccessToken: "access-1"}, nil
}

func (m *MockClient) GetAccounts(ctx context.Context, accessToken string) ([]map[string]any, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *MockClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (*plaid.SyncPage, error) {
	return nil, errors.New("not used in tests")
}

func (m *MockClient) SyncAllTransactions(ctx context.Context, accessToken, cursor string) (*plaid.SyncResult, error) {
	if m.SyncAllTransactionsFunc != nil {
		return m.SyncAllTransactionsFunc(ctx, accessToken, cursor)
	}
	return &plaid.SyncResult{NextCursor: cursor}, nil
}

// MockItemStore implements ItemStore
type MockItemStore struct {
	CreateFunc          func(ctx context.Context, params CreateItemParams) (*models.LinkedItem, error)
	GetByExternalIDFunc func(ctx context.Context, itemID string) (*models.LinkedItem, error)
	ListByUserIDFunc    func(ctx context.Context, userID uuid.UUID) ([]*models.LinkedItem, error)
}

func (m *MockItemStore) Create(ctx context.Context, params CreateItemParams) (*models.LinkedItem, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &models.LinkedItem{ID: uuid.New(), UserID: params.UserID, ItemID: params.ItemID}, nil
}

func (m *MockItemStore) GetByExternalID(ctx context.Context, itemID string) (*models.LinkedItem, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, itemID)
	}
	return nil, nil
}

func (m *MockItemStore) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LinkedItem, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

// prefixCipher is a trivial TokenCipher for tests.
type prefixCipher struct{}

func (prefixCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (prefixCipher) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("not an encrypted value")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

// passTx runs reconcile batches without any transaction scope.
type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// In-memory reconcile stores for end-to-end orchestrator tests.

type memAccounts struct {
	byExternal map[string]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byExternal: make(map[string]*models.Account)}
}

func (s *memAccounts) GetByExternalID(ctx context.Context, accountID string) (*models.Account, error) {
	return s.byExternal[accountID], nil
}

func (s *memAccounts) Upsert(ctx context.Context, params reconcile.UpsertAccountParams) (*models.Account, error) {
	acc, ok := s.byExternal[params.AccountID]
	if !ok {
		acc = &models.Account{ID: uuid.New(), AccountID: params.AccountID}
		s.byExternal[params.AccountID] = acc
	}
	acc.CurrentBalance = params.CurrentBalance
	return acc, nil
}

type memTransactions struct {
	byExternal map[string]reconcile.UpsertTransactionParams
	upsertErr  error
}

func newMemTransactions() *memTransactions {
	return &memTransactions{byExternal: make(map[string]reconcile.UpsertTransactionParams)}
}

func (s *memTransactions) Exists(ctx context.Context, transactionID string) (bool, error) {
	_, ok := s.byExternal[transactionID]
	return ok, nil
}

func (s *memTransactions) Upsert(ctx context.Context, params reconcile.UpsertTransactionParams) (*models.Transaction, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.byExternal[params.TransactionID] = params
	return &models.Transaction{ID: uuid.New(), TransactionID: params.TransactionID}, nil
}

func (s *memTransactions) DeleteByExternalIDs(ctx context.Context, ids []string) (int64, error) {
	var deleted int64
	for _, id := range ids {
		if _, ok := s.byExternal[id]; ok {
			delete(s.byExternal, id)
			deleted++
		}
	}
	return deleted, nil
}

type cursorRecorder struct {
	itemID string
	cursor string
	calls  int
}

func (c *cursorRecorder) UpdateCursor(ctx context.Context, itemID, cursor string) (int64, error) {
	c.itemID = itemID
	c.cursor = cursor
	c.calls++
	return 1, nil
}

func TestSyncItem_EndToEnd(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	accounts := newMemAccounts()
	transactions := newMemTransactions()
	cursors := &cursorRecorder{}
	engine := reconcile.NewEngine(accounts, transactions, cursors, passTx{})

	client := &MockClient{
		GetAccountsFunc: func(ctx context.Context, accessToken string) ([]map[string]any, error) {
			return []map[string]any{
				{"account_id": "acc-1", "name": "Checking", "balances": map[string]any{"current": 500.0}},
			}, nil
		},
		SyncAllTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResult, error) {
			if accessToken != "access-1" {
				t.Errorf("accessToken = %q, want decrypted access-1", accessToken)
			}
			if cursor != "" {
				t.Errorf("cursor = %q, want empty for first sync", cursor)
			}
			return &plaid.SyncResult{
				Added: []map[string]any{
					{"transaction_id": "t1", "account_id": "acc-1", "amount": 10.0, "date": "2026-02-01"},
					{"transaction_id": "t2", "account_id": "acc-1", "amount": 20.0, "date": "2026-02-02"},
				},
				Removed:    []string{"t-gone"},
				NextCursor: "c1",
			}, nil
		},
	}

	orch := NewOrchestrator(client, engine, &MockItemStore{}, prefixCipher{})

	item := &models.LinkedItem{
		ID:          uuid.New(),
		UserID:      userID,
		ItemID:      "item-1",
		AccessToken: "enc:access-1",
	}

	result, err := orch.SyncItem(ctx, item)
	if err != nil {
		t.Fatalf("SyncItem() failed: %v", err)
	}

	if !result.Success {
		t.Error("result.Success = false")
	}
	if result.Accounts.Created != 1 {
		t.Errorf("Accounts.Created = %d, want 1", result.Accounts.Created)
	}
	if result.Transactions.Created != 2 {
		t.Errorf("Transactions.Created = %d, want 2", result.Transactions.Created)
	}
	if result.Removed != 0 {
		t.Errorf("Removed = %d, want 0 (t-gone was never stored)", result.Removed)
	}
	if cursors.calls != 1 || cursors.itemID != "item-1" || cursors.cursor != "c1" {
		t.Errorf("cursor update = %+v, want one call with (item-1, c1)", cursors)
	}
	if result.Cursor != "c1" {
		t.Errorf("result.Cursor = %q, want c1", result.Cursor)
	}
}

func TestSyncItem_CursorUntouchedOnFailure(t *testing.T) {
	ctx := context.Background()

	accounts := newMemAccounts()
	transactions := newMemTransactions()
	transactions.upsertErr = errors.New("disk full")
	cursors := &cursorRecorder{}
	engine := reconcile.NewEngine(accounts, transactions, cursors, passTx{})

	client := &MockClient{
		GetAccountsFunc: func(ctx context.Context, accessToken string) ([]map[string]any, error) {
			return []map[string]any{{"account_id": "acc-1", "name": "Checking"}}, nil
		},
		SyncAllTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResult, error) {
			return &plaid.SyncResult{
				Added:      []map[string]any{{"transaction_id": "t1", "account_id": "acc-1", "amount": 1.0}},
				NextCursor: "c2",
			}, nil
		},
	}

	orch := NewOrchestrator(client, engine, &MockItemStore{}, prefixCipher{})

	item := &models.LinkedItem{ID: uuid.New(), ItemID: "item-1", AccessToken: "enc:access-1"}

	_, err := orch.SyncItem(ctx, item)
	if err == nil {
		t.Fatal("SyncItem() expected error, got nil")
	}
	if cursors.calls != 0 {
		t.Errorf("cursor updated %d times despite reconciliation failure, want 0", cursors.calls)
	}

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *sync.Error", err)
	}
}

func TestSyncUser_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	accounts := newMemAccounts()
	transactions := newMemTransactions()
	cursors := &cursorRecorder{}
	engine := reconcile.NewEngine(accounts, transactions, cursors, passTx{})

	client := &MockClient{
		GetAccountsFunc: func(ctx context.Context, accessToken string) ([]map[string]any, error) {
			return []map[string]any{{"account_id": "acc-1", "name": "Checking"}}, nil
		},
		SyncAllTransactionsFunc: func(ctx context.Context, accessToken, cursor string) (*plaid.SyncResult, error) {
			switch accessToken {
			case "broken":
				return nil, &plaid.APIError{StatusCode: 400, ErrorCode: "ITEM_LOGIN_REQUIRED", Message: "relink required"}
			case "ok-1":
				return &plaid.SyncResult{
					Added: []map[string]any{
						{"transaction_id": "txn-a1", "account_id": "acc-1", "amount": 12.50},
					},
					NextCursor: "next",
				}, nil
			default:
				return &plaid.SyncResult{
					Added: []map[string]any{
						{"transaction_id": "txn-c1", "account_id": "acc-1", "amount": 3.00},
						{"transaction_id": "txn-c2", "account_id": "acc-1", "amount": 7.25},
					},
					NextCursor: "next",
				}, nil
			}
		},
	}

	items := &MockItemStore{
		ListByUserIDFunc: func(ctx context.Context, id uuid.UUID) ([]*models.LinkedItem, error) {
			return []*models.LinkedItem{
				{ID: uuid.New(), UserID: userID, ItemID: "item-a", AccessToken: "enc:ok-1"},
				{ID: uuid.New(), UserID: userID, ItemID: "item-b", AccessToken: "enc:broken"},
				{ID: uuid.New(), UserID: userID, ItemID: "item-c", AccessToken: "enc:ok-2"},
			}, nil
		},
	}

	orch := NewOrchestrator(client, engine, items, prefixCipher{})

	result, err := orch.SyncUser(ctx, userID)
	if err != nil {
		t.Fatalf("SyncUser() failed: %v", err)
	}

	// Every attempted item counts, the failed one included.
	if result.ItemsSynced != 3 {
		t.Errorf("ItemsSynced = %d, want 3", result.ItemsSynced)
	}
	if result.TotalAdded != 3 {
		t.Errorf("TotalAdded = %d, want 3", result.TotalAdded)
	}
	if result.TotalModified != 0 {
		t.Errorf("TotalModified = %d, want 0", result.TotalModified)
	}
	if result.TotalRemoved != 0 {
		t.Errorf("TotalRemoved = %d, want 0", result.TotalRemoved)
	}
	if len(result.Results) != 3 {
		t.Fatalf("Results = %d, want 3", len(result.Results))
	}
	if result.Results[0].Success != true || result.Results[2].Success != true {
		t.Error("healthy items did not succeed")
	}
	if result.Results[0].Transactions.Created != 1 {
		t.Errorf("item-a Created = %d, want 1", result.Results[0].Transactions.Created)
	}
	if result.Results[1].Success {
		t.Error("broken item reported success")
	}
	if result.Results[1].Error == "" {
		t.Error("broken item result carries no error message")
	}
}

func TestSyncUser_NoItems(t *testing.T) {
	accounts := newMemAccounts()
	engine := reconcile.NewEngine(accounts, newMemTransactions(), &cursorRecorder{}, passTx{})
	orch := NewOrchestrator(&MockClient{}, engine, &MockItemStore{}, prefixCipher{})

	result, err := orch.SyncUser(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("SyncUser() failed: %v", err)
	}
	if result.ItemsSynced != 0 || len(result.Results) != 0 {
		t.Errorf("SyncUser() = %+v, want empty result", result)
	}
}

func TestExchangePublicToken(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	accounts := newMemAccounts()
	engine := reconcile.NewEngine(accounts, newMemTransactions(), &cursorRecorder{}, passTx{})

	var created CreateItemParams
	items := &MockItemStore{
		CreateFunc: func(ctx context.Context, params CreateItemParams) (*models.LinkedItem, error) {
			created = params
			return &models.LinkedItem{ID: uuid.New(), UserID: params.UserID, ItemID: params.ItemID}, nil
		},
	}

	client := &MockClient{
		GetAccountsFunc: func(ctx context.Context, accessToken string) ([]map[string]any, error) {
			if accessToken != "access-1" {
				t.Errorf("GetAccounts called with %q, want plaintext token", accessToken)
			}
			return []map[string]any{{"account_id": "acc-1", "name": "Checking"}}, nil
		},
	}

	orch := NewOrchestrator(client, engine, items, prefixCipher{})

	item, err := orch.ExchangePublicToken(ctx, userID, "public-abc", "First Platypus Bank")
	if err != nil {
		t.Fatalf("ExchangePublicToken() failed: %v", err)
	}
	if item.ItemID != "item-1" {
		t.Errorf("ItemID = %q, want item-1", item.ItemID)
	}
	if created.AccessToken != "enc:access-1" {
		t.Errorf("stored token = %q, want encrypted", created.AccessToken)
	}
	if created.InstitutionName != "First Platypus Bank" {
		t.Errorf("InstitutionName = %q", created.InstitutionName)
	}
	if len(accounts.byExternal) != 1 {
		t.Errorf("initial account sync stored %d accounts, want 1", len(accounts.byExternal))
	}
}

func TestExchangePublicToken_RelinkReturnsExistingItem(t *testing.T) {
	userID := uuid.New()
	existing := &models.LinkedItem{ID: uuid.New(), UserID: userID, ItemID: "item-1"}

	items := &MockItemStore{
		GetByExternalIDFunc: func(ctx context.Context, itemID string) (*models.LinkedItem, error) {
			if itemID == "item-1" {
				return existing, nil
			}
			return nil, nil
		},
		CreateFunc: func(ctx context.Context, params CreateItemParams) (*models.LinkedItem, error) {
			t.Fatal("Create should not be called for an already linked item")
			return nil, nil
		},
	}

	engine := reconcile.NewEngine(newMemAccounts(), newMemTransactions(), &cursorRecorder{}, passTx{})
	orch := NewOrchestrator(&MockClient{}, engine, items, prefixCipher{})

	item, err := orch.ExchangePublicToken(context.Background(), userID, "public-abc", "First Platypus Bank")
	if err != nil {
		t.Fatalf("ExchangePublicToken() failed: %v", err)
	}
	if item != existing {
		t.Errorf("expected the existing item back, got %+v", item)
	}
}

func TestCreateLinkToken_WrapsProviderError(t *testing.T) {
	client := &MockClient{
		CreateLinkTokenFunc: func(ctx context.Context, userID string) (string, error) {
			return "", &plaid.APIError{StatusCode: 500, ErrorCode: "INTERNAL_SERVER_ERROR", Message: "boom"}
		},
	}
	engine := reconcile.NewEngine(newMemAccounts(), newMemTransactions(), &cursorRecorder{}, passTx{})
	orch := NewOrchestrator(client, engine, &MockItemStore{}, prefixCipher{})

	_, err := orch.CreateLinkToken(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("CreateLinkToken() expected error")
	}

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *sync.Error", err)
	}
	var apiErr *plaid.APIError
	if !errors.As(err, &apiErr) {
		t.Error("provider error not preserved in chain")
	}
}
