package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"walletai/internal/models"
)

type DeviceTokenRepository struct {
	db *DB
}

func NewDeviceTokenRepository(db *DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// Register stores an FCM token for a user. Re-registering an existing
// token reactivates it and moves it to the given user.
func (r *DeviceTokenRepository) Register(ctx context.Context, userID uuid.UUID, token, platform string) (*models.DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (id, user_id, token, platform, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    active = TRUE,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, user_id, token, platform, active, created_at, updated_at
	`

	var deviceToken models.DeviceToken
	err := r.db.QueryRowContext(ctx, query, uuid.New(), userID, token, platform).Scan(
		&deviceToken.ID, &deviceToken.UserID, &deviceToken.Token,
		&deviceToken.Platform, &deviceToken.Active,
		&deviceToken.CreatedAt, &deviceToken.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register device token: %w", err)
	}

	return &deviceToken, nil
}

func (r *DeviceTokenRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT token
		FROM device_tokens
		WHERE user_id = $1 AND active = TRUE
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return tokens, nil
}

// DeactivateToken marks a token inactive, typically after FCM reports
// it unregistered.
func (r *DeviceTokenRepository) DeactivateToken(ctx context.Context, token string) error {
	query := `
		UPDATE device_tokens
		SET active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE token = $1
	`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to deactivate device token: %w", err)
	}

	return nil
}
