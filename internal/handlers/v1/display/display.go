package display

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// Item is what the screen needs to show a transaction. Payment details stay
// out of public responses.
type Item struct {
	ID                    string `json:"id" doc:"Transaction UUID"`
	Code                  string `json:"code" doc:"Warp profile code"`
	CustomerName          string `json:"customerName"`
	AvatarURL             string `json:"avatarUrl,omitempty"`
	SocialLink            string `json:"socialLink"`
	Quote                 string `json:"quote,omitempty"`
	DisplaySeconds        int    `json:"displaySeconds"`
	Status                string `json:"status"`
	DisplayStartedAt      string `json:"displayStartedAt,omitempty"`
	DisplayEstimatedEndAt string `json:"displayEstimatedEndAt,omitempty"`
}

// QueueState is the screen's view of the queue.
type QueueState struct {
	Current     *Item  `json:"current" doc:"Transaction on screen, null when idle"`
	Upcoming    []Item `json:"upcoming" doc:"Paid transactions in serve order"`
	GeneratedAt string `json:"generatedAt"`
}

type displayService interface {
	ClaimNext(ctx context.Context) (*sqlconfig.Transaction, error)
	Complete(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error)
	Snapshot(ctx context.Context) (*service.QueueSnapshot, error)
}

func toItem(tx *sqlconfig.Transaction) Item {
	item := Item{
		ID:             tx.ID.String(),
		Code:           tx.Code,
		CustomerName:   tx.CustomerName,
		AvatarURL:      tx.AvatarURL,
		SocialLink:     tx.SocialLink,
		Quote:          tx.Quote,
		DisplaySeconds: tx.DisplaySeconds,
		Status:         string(tx.Status),
	}
	if tx.DisplayStartedAt != nil {
		item.DisplayStartedAt = tx.DisplayStartedAt.Format(time.RFC3339)
	}
	if tx.DisplayEstimatedEndAt != nil {
		item.DisplayEstimatedEndAt = tx.DisplayEstimatedEndAt.Format(time.RFC3339)
	}
	return item
}

func toQueueState(snapshot *service.QueueSnapshot) QueueState {
	state := QueueState{
		Upcoming:    make([]Item, len(snapshot.Upcoming)),
		GeneratedAt: snapshot.GeneratedAt.Format(time.RFC3339),
	}
	if snapshot.Current != nil {
		current := toItem(snapshot.Current)
		state.Current = &current
	}
	for i, tx := range snapshot.Upcoming {
		state.Upcoming[i] = toItem(tx)
	}
	return state
}
