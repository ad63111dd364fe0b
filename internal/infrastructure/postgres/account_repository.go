package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"walletai/internal/domain/reconcile"
	"walletai/internal/models"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, linked_item_id, user_id, account_id, name, official_name,
	       type, subtype, mask, current_balance, currency, created_at, updated_at`

func (r *AccountRepository) GetByExternalID(ctx context.Context, accountID string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE account_id = $1
	`

	var account models.Account
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.ID, &account.LinkedItemID, &account.UserID, &account.AccountID,
		&account.Name, &account.OfficialName, &account.Type, &account.Subtype,
		&account.Mask, &account.CurrentBalance, &account.Currency,
		&account.CreatedAt, &account.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

func (r *AccountRepository) Upsert(ctx context.Context, params reconcile.UpsertAccountParams) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, linked_item_id, user_id, account_id, name, official_name,
		                      type, subtype, mask, current_balance, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id) DO UPDATE
		SET name = EXCLUDED.name,
		    official_name = EXCLUDED.official_name,
		    type = EXCLUDED.type,
		    subtype = EXCLUDED.subtype,
		    mask = EXCLUDED.mask,
		    current_balance = EXCLUDED.current_balance,
		    currency = EXCLUDED.currency,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING ` + accountColumns + `
	`

	var account models.Account
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New(), params.LinkedItemID, params.UserID, params.AccountID,
		params.Name, params.OfficialName, params.Type, params.Subtype,
		params.Mask, params.CurrentBalance, params.Currency,
	).Scan(
		&account.ID, &account.LinkedItemID, &account.UserID, &account.AccountID,
		&account.Name, &account.OfficialName, &account.Type, &account.Subtype,
		&account.Mask, &account.CurrentBalance, &account.Currency,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	return &account, nil
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return r.collect(rows)
}

// ListByType matches the provider account type (depository, credit,
// loan, investment) with a case-insensitive substring match.
func (r *AccountRepository) ListByType(ctx context.Context, userID uuid.UUID, accountType string) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
		  AND (type ILIKE '%' || $2 || '%' OR subtype ILIKE '%' || $2 || '%')
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, accountType)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by type: %w", err)
	}

	return r.collect(rows)
}

func (r *AccountRepository) collect(rows *sql.Rows) ([]*models.Account, error) {
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		err := rows.Scan(
			&account.ID, &account.LinkedItemID, &account.UserID, &account.AccountID,
			&account.Name, &account.OfficialName, &account.Type, &account.Subtype,
			&account.Mask, &account.CurrentBalance, &account.Currency,
			&account.CreatedAt, &account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
