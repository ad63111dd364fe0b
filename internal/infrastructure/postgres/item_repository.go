package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	domainsync "walletai/internal/domain/sync"
	"walletai/internal/models"
)

type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, user_id, item_id, access_token, institution_name, cursor, created_at, updated_at`

func (r *ItemRepository) Create(ctx context.Context, params domainsync.CreateItemParams) (*models.LinkedItem, error) {
	query := `
		INSERT INTO linked_items (id, user_id, item_id, access_token, institution_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + itemColumns + `
	`

	var item models.LinkedItem
	var cursor sql.NullString

	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New(), params.UserID, params.ItemID, params.AccessToken, params.InstitutionName,
	).Scan(
		&item.ID, &item.UserID, &item.ItemID, &item.AccessToken,
		&item.InstitutionName, &cursor, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create linked item: %w", err)
	}

	if cursor.Valid {
		item.Cursor = &cursor.String
	}

	return &item, nil
}

func (r *ItemRepository) GetByExternalID(ctx context.Context, itemID string) (*models.LinkedItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM linked_items
		WHERE item_id = $1
	`

	var item models.LinkedItem
	var cursor sql.NullString

	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID, &item.UserID, &item.ItemID, &item.AccessToken,
		&item.InstitutionName, &cursor, &item.CreatedAt, &item.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked item: %w", err)
	}

	if cursor.Valid {
		item.Cursor = &cursor.String
	}

	return &item, nil
}

func (r *ItemRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LinkedItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM linked_items
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked items: %w", err)
	}
	defer rows.Close()

	var items []*models.LinkedItem
	for rows.Next() {
		var item models.LinkedItem
		var cursor sql.NullString

		err := rows.Scan(
			&item.ID, &item.UserID, &item.ItemID, &item.AccessToken,
			&item.InstitutionName, &cursor, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked item: %w", err)
		}

		if cursor.Valid {
			item.Cursor = &cursor.String
		}

		items = append(items, &item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked items: %w", err)
	}

	return items, nil
}

// UpdateCursor advances the incremental sync position for an item and
// returns the number of rows affected, zero when the item is unknown.
func (r *ItemRepository) UpdateCursor(ctx context.Context, itemID, cursor string) (int64, error) {
	query := `
		UPDATE linked_items
		SET cursor = $1, updated_at = CURRENT_TIMESTAMP
		WHERE item_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, cursor, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to update sync cursor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected, nil
}
