package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"walletai/internal/infrastructure/firebase"
	"walletai/internal/shared/messages"
)

// TokenLister returns the active push tokens registered for a user.
type TokenLister interface {
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// PushNotifier delivers new-transaction notifications over FCM.
type PushNotifier struct {
	fcm    *firebase.Client
	tokens TokenLister
	texts  *messages.Messages
}

func NewPushNotifier(fcm *firebase.Client, tokens TokenLister, texts *messages.Messages) *PushNotifier {
	return &PushNotifier{
		fcm:    fcm,
		tokens: tokens,
		texts:  texts,
	}
}

// NotifyNewTransactions sends a push to every active device the user has.
// Users with no registered devices are skipped silently.
func (n *PushNotifier) NotifyNewTransactions(ctx context.Context, userID uuid.UUID, count int) error {
	tokens, err := n.tokens.ListActiveByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	title := n.texts.NewTransactions.Title
	body := fmt.Sprintf(n.texts.NewTransactions.Body, count)
	data := map[string]string{
		"type":  "new_transactions",
		"count": strconv.Itoa(count),
	}

	return n.fcm.SendMulticast(ctx, tokens, title, body, data)
}
