package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	domainsync "walletai/internal/domain/sync"
	"walletai/internal/models"
)

// Syncer pulls fresh provider data for a user.
type Syncer interface {
	SyncUser(ctx context.Context, userID uuid.UUID) (*domainsync.UserSyncResult, error)
}

// Notifier pushes a message about newly imported transactions.
type Notifier interface {
	NotifyNewTransactions(ctx context.Context, userID uuid.UUID, count int) error
}

// UserLister returns the users whose linked items should be synced.
type UserLister interface {
	ListWithLinkedItems(ctx context.Context) ([]*models.User, error)
}

// UserSyncJob syncs every linked item a user has and notifies their
// devices when new transactions arrive.
type UserSyncJob struct {
	userID   uuid.UUID
	syncer   Syncer
	notifier Notifier
}

func NewUserSyncJob(userID uuid.UUID, syncer Syncer, notifier Notifier) *UserSyncJob {
	return &UserSyncJob{
		userID:   userID,
		syncer:   syncer,
		notifier: notifier,
	}
}

// Execute runs the sync and reports per-item failures as a job error so
// the run shows up as failed in metrics.
func (j *UserSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting sync for user %s", j.userID)

	result, err := j.syncer.SyncUser(ctx, j.userID)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	created := result.TotalAdded
	failed := 0
	for _, item := range result.Results {
		if !item.Success {
			failed++
		}
	}

	if created > 0 && j.notifier != nil {
		if err := j.notifier.NotifyNewTransactions(ctx, j.userID, created); err != nil {
			// Notification failures never fail the sync itself.
			log.Printf("Failed to notify user %s: %v", j.userID, err)
		}
	}

	if failed > 0 {
		log.Printf("Sync for user %s completed with errors: Items=%d, Failed=%d, NewTransactions=%d",
			j.userID, len(result.Results), failed, created)
		return fmt.Errorf("sync completed with %d failed items", failed)
	}

	log.Printf("Sync for user %s completed: Items=%d, NewTransactions=%d",
		j.userID, result.ItemsSynced, created)

	return nil
}

func (j *UserSyncJob) UserID() string {
	return j.userID.String()
}

func (j *UserSyncJob) Description() string {
	return fmt.Sprintf("Nightly sync for user %s", j.userID)
}

// NightlySyncProvider builds one sync job per user with at least one
// linked item. Wire it into Config.JobProvider.
func NightlySyncProvider(users UserLister, syncer Syncer, notifier Notifier) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		list, err := users.ListWithLinkedItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users for sync: %w", err)
		}

		jobs := make([]Job, 0, len(list))
		for _, u := range list {
			jobs = append(jobs, NewUserSyncJob(u.ID, syncer, notifier))
		}
		return jobs, nil
	}
}
