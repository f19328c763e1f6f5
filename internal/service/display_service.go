package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

const upcomingLimit = 50

// DisplayService hands paid transactions to the single screen, oldest first,
// one at a time. The store's conditional claim is the only lock.
type DisplayService struct {
	storage *storage.Storage
	bus     *events.Bus
	now     func() time.Time
}

func NewDisplayService(store *storage.Storage, bus *events.Bus) *DisplayService {
	return &DisplayService{storage: store, bus: bus, now: time.Now}
}

// ClaimNext returns the transaction on screen, claiming the oldest paid one if
// the screen is free. It returns nil, nil when the queue is empty.
func (s *DisplayService) ClaimNext(ctx context.Context) (*sqlconfig.Transaction, error) {
	logData := logging.GetLogData(ctx)

	current, err := s.storage.Transactions.FindDisplaying(ctx)
	if err != nil || current != nil {
		return current, err
	}

	endClaim := logData.AddTiming("claimMs")
	claimed, err := s.storage.Transactions.ClaimNextPaid(ctx, s.now())
	endClaim()
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		// Either the queue is empty or a concurrent caller claimed first.
		return s.storage.Transactions.FindDisplaying(ctx)
	}

	if err := s.storage.Transactions.AppendActivity(ctx, claimed.ID, sqlconfig.Activity{
		Action:      ActionDisplayStarted,
		Description: fmt.Sprintf("Display started for %d seconds", claimed.DisplaySeconds),
		Actor:       ActorDisplay,
	}); err != nil {
		return nil, err
	}
	logData.AddData("claimedTransactionID", claimed.ID.String())
	s.bus.PublishAll(claimed.ID, events.TopicQueueUpdated)
	return claimed, nil
}

// Complete marks the transaction on screen as shown. Any other id, including
// one already completed, yields ErrNotDisplaying.
func (s *DisplayService) Complete(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error) {
	updated, err := s.storage.Transactions.UpdateStatus(ctx, id, sqlconfig.StatusDisplaying, sqlconfig.StatusDisplayed, &sqlconfig.TransactionPatch{
		DisplayCompletedAt: omit.From(s.now().UTC()),
		Activity: &sqlconfig.Activity{
			Action:      ActionDisplayCompleted,
			Description: "Display completed",
			Actor:       ActorDisplay,
		},
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotDisplaying
	}
	s.bus.PublishAll(id, events.TopicQueueUpdated, events.TopicLeaderboardUpdated)
	return updated, nil
}

// Snapshot returns what is on screen and what is waiting, in serve order.
func (s *DisplayService) Snapshot(ctx context.Context) (*QueueSnapshot, error) {
	current, err := s.storage.Transactions.FindDisplaying(ctx)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.storage.Transactions.ListQueue(ctx, upcomingLimit)
	if err != nil {
		return nil, err
	}
	return &QueueSnapshot{
		Current:     current,
		Upcoming:    upcoming,
		GeneratedAt: s.now().UTC(),
	}, nil
}
