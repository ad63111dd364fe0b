package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"walletai/internal/domain/reconcile"
	"walletai/internal/models"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, account_id, user_id, transaction_id, amount, date, auth_date,
	       merchant_name, pending, category, currency, created_at, updated_at`

func scanTransaction(row interface {
	Scan(dest ...any) error
}) (*models.Transaction, error) {
	var transaction models.Transaction
	var authDate sql.NullTime

	err := row.Scan(
		&transaction.ID, &transaction.AccountID, &transaction.UserID,
		&transaction.TransactionID, &transaction.Amount, &transaction.Date, &authDate,
		&transaction.MerchantName, &transaction.Pending, &transaction.Category,
		&transaction.Currency, &transaction.CreatedAt, &transaction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if authDate.Valid {
		transaction.AuthDate = &authDate.Time
	}

	return &transaction, nil
}

func (r *TransactionRepository) collect(rows *sql.Rows) ([]*models.Transaction, error) {
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, transaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

func (r *TransactionRepository) Exists(ctx context.Context, transactionID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}

	return exists, nil
}

func (r *TransactionRepository) Upsert(ctx context.Context, params reconcile.UpsertTransactionParams) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, account_id, user_id, transaction_id, amount, date, auth_date,
		                          merchant_name, pending, category, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO UPDATE
		SET account_id = EXCLUDED.account_id,
		    amount = EXCLUDED.amount,
		    date = EXCLUDED.date,
		    auth_date = EXCLUDED.auth_date,
		    merchant_name = EXCLUDED.merchant_name,
		    pending = EXCLUDED.pending,
		    category = EXCLUDED.category,
		    currency = EXCLUDED.currency,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING ` + transactionColumns + `
	`

	var authDate any
	if params.AuthDate != nil {
		authDate = *params.AuthDate
	}

	row := r.db.QueryRowContext(
		ctx, query,
		uuid.New(), params.AccountID, params.UserID, params.TransactionID,
		params.Amount, params.Date, authDate,
		params.MerchantName, params.Pending, params.Category, params.Currency,
	)

	transaction, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}

	return transaction, nil
}

func (r *TransactionRepository) DeleteByExternalIDs(ctx context.Context, transactionIDs []string) (int64, error) {
	query := `DELETE FROM transactions WHERE transaction_id = ANY($1)`

	result, err := r.db.ExecContext(ctx, query, pq.Array(transactionIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return r.collect(rows)
}

// ByCategory returns settled transactions matching a category label,
// newest first. Matching is a case-insensitive substring match so
// "food" finds "Food and Drink, Restaurants".
func (r *TransactionRepository) ByCategory(ctx context.Context, userID uuid.UUID, category string, start, end time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND category ILIKE '%' || $2 || '%'
		  AND date >= $3
		  AND date <= $4
		  AND pending = FALSE
		ORDER BY date DESC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, userID, category, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by category: %w", err)
	}

	return r.collect(rows)
}

func (r *TransactionRepository) ByMerchant(ctx context.Context, userID uuid.UUID, merchant string, start, end time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND merchant_name ILIKE '%' || $2 || '%'
		  AND date >= $3
		  AND date <= $4
		  AND pending = FALSE
		ORDER BY date DESC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, userID, merchant, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by merchant: %w", err)
	}

	return r.collect(rows)
}

func (r *TransactionRepository) ByAccountIDs(ctx context.Context, userID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time, limit int) ([]*models.Transaction, error) {
	ids := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND account_id = ANY($2::uuid[])
		  AND date >= $3
		  AND date <= $4
		  AND pending = FALSE
		ORDER BY date DESC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(ids), start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by account: %w", err)
	}

	return r.collect(rows)
}

func (r *TransactionRepository) BetweenDates(ctx context.Context, userID uuid.UUID, start, end time.Time, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		  AND date >= $2
		  AND date <= $3
		  AND pending = FALSE
		ORDER BY date DESC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, userID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions between dates: %w", err)
	}

	return r.collect(rows)
}
