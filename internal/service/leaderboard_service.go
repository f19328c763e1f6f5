package service

import (
	"context"
	"net/url"

	"github.com/carson-networks/warp-server/internal/storage"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100

	placeholderAvatarURL = "https://ui-avatars.com/api/?name="
)

// LeaderboardService ranks supporters. Nothing is stored; every call
// aggregates the committed transactions.
type LeaderboardService struct {
	storage *storage.Storage
}

func NewLeaderboardService(store *storage.Storage) *LeaderboardService {
	return &LeaderboardService{storage: store}
}

// TopSupporters returns up to limit supporters, ranked from 1. A limit
// outside 1..100 falls back to the default.
func (s *LeaderboardService) TopSupporters(ctx context.Context, limit int) ([]Supporter, error) {
	if limit <= 0 || limit > maxLeaderboardLimit {
		limit = defaultLeaderboardLimit
	}

	rows, err := s.storage.Transactions.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	supporters := make([]Supporter, len(rows))
	for i, row := range rows {
		supporters[i] = Supporter{
			Rank:             i + 1,
			CustomerName:     row.CustomerName,
			TotalAmount:      row.TotalAmount,
			TotalSeconds:     row.TotalSeconds,
			TransactionCount: row.TransactionCount,
			AvatarURL:        resolveAvatar(row.CustomerName, row.LastAvatarURL),
			LastSupportedAt:  row.LastSupportedAt,
		}
	}
	return supporters, nil
}

// resolveAvatar uses the avatar from the supporter's most recent transaction
// that carried one, falling back to a generated placeholder.
func resolveAvatar(name, lastAvatar string) string {
	if lastAvatar != "" {
		return lastAvatar
	}
	return placeholderAvatarURL + url.QueryEscape(name)
}
