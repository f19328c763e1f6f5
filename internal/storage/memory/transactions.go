// Package memory provides mutex-guarded, in-process implementations of the
// storage table interfaces. It backs STORAGE_DRIVER=memory and service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

const defaultActor = "system"

var _ sqlconfig.ITransactionTable = (*Transactions)(nil)

// Transactions holds every transaction row and its activity log. All
// compare-and-set operations run under a single lock, which gives the same
// guarantees the Postgres conditional updates give.
type Transactions struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*sqlconfig.Transaction
	order []uuid.UUID
}

func NewTransactions() *Transactions {
	return &Transactions{items: make(map[uuid.UUID]*sqlconfig.Transaction)}
}

func (s *Transactions) Insert(_ context.Context, create *sqlconfig.TransactionCreate) (*sqlconfig.Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	createdAt := create.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata := create.Metadata.Clone()

	entry := withDefaults(create.Activity, createdAt)
	row := &sqlconfig.Transaction{
		ID:             id,
		Code:           create.Code,
		CustomerName:   create.CustomerName,
		AvatarURL:      create.AvatarURL,
		SocialLink:     create.SocialLink,
		Quote:          create.Quote,
		DisplaySeconds: create.DisplaySeconds,
		Amount:         create.Amount,
		Currency:       create.Currency,
		PackageID:      create.PackageID,
		Status:         create.Status,
		Metadata:       metadata,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		ActivityLog:    []sqlconfig.Activity{entry},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = row
	s.order = append(s.order, id)
	return clone(row), nil
}

func (s *Transactions) FindByID(_ context.Context, id uuid.UUID) (*sqlconfig.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return clone(row), nil
}

func (s *Transactions) FindByReference(_ context.Context, reference string) (*sqlconfig.Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *sqlconfig.Transaction
	for _, id := range s.order {
		row := s.items[id]
		if row.PaymentReference == reference ||
			row.Metadata.String(sqlconfig.MetaPayLinkToken) == reference ||
			row.Metadata.String(sqlconfig.MetaPayLinkID) == reference ||
			row.Metadata.String(sqlconfig.MetaChillPayTransactionID) == reference ||
			row.ID.String() == reference {
			if match == nil || !row.CreatedAt.Before(match.CreatedAt) {
				match = row
			}
		}
	}
	if match == nil {
		return nil, nil
	}
	return clone(match), nil
}

func (s *Transactions) FindDisplaying(_ context.Context) (*sqlconfig.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.items {
		if row.Status == sqlconfig.StatusDisplaying {
			return clone(row), nil
		}
	}
	return nil, nil
}

func (s *Transactions) List(_ context.Context, filter *sqlconfig.TransactionFilter) ([]*sqlconfig.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sortedLocked(func(row *sqlconfig.Transaction) bool {
		if filter == nil {
			return true
		}
		if filter.Status != nil && row.Status != *filter.Status {
			return false
		}
		if filter.MaxCreationTime != nil && row.CreatedAt.After(*filter.MaxCreationTime) {
			return false
		}
		return true
	})

	// newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(rows) {
				return []*sqlconfig.Transaction{}, nil
			}
			rows = rows[filter.Offset:]
		}
		if filter.Limit > 0 && len(rows) > filter.Limit+1 {
			rows = rows[:filter.Limit+1]
		}
	}
	return cloneAll(rows), nil
}

func (s *Transactions) ListQueue(_ context.Context, limit int) ([]*sqlconfig.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sortedLocked(func(row *sqlconfig.Transaction) bool {
		return row.Status == sqlconfig.StatusPaid
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return cloneAll(rows), nil
}

func (s *Transactions) ListReconcileCandidates(_ context.Context, limit int, maxErrors int) ([]*sqlconfig.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sortedLocked(func(row *sqlconfig.Transaction) bool {
		return row.Status == sqlconfig.StatusPending &&
			row.Metadata.String(sqlconfig.MetaPayLinkToken) != "" &&
			row.Metadata.Int(sqlconfig.MetaPollErrorCount) < maxErrors
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return cloneAll(rows), nil
}

func (s *Transactions) AppendActivity(_ context.Context, id uuid.UUID, entry sqlconfig.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.items[id]
	if !ok {
		return nil
	}
	row.ActivityLog = append(row.ActivityLog, withDefaults(entry, time.Now().UTC()))
	return nil
}

func (s *Transactions) UpdatePayment(_ context.Context, id uuid.UUID, reference string, patch sqlconfig.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.items[id]
	if !ok {
		return nil
	}
	row.Metadata = merge(row.Metadata, patch)
	if reference != "" {
		row.PaymentReference = reference
	}
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Transactions) IncrementPollErrors(_ context.Context, id uuid.UUID, message string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.items[id]
	if !ok {
		return 0, nil
	}
	count := row.Metadata.Int(sqlconfig.MetaPollErrorCount) + 1
	row.Metadata = merge(row.Metadata, sqlconfig.Metadata{
		sqlconfig.MetaPollErrorCount: count,
		sqlconfig.MetaLastPollError:  message,
		sqlconfig.MetaLastPolledAt:   at.UTC().Format(time.RFC3339),
	})
	row.UpdatedAt = at.UTC()
	return count, nil
}

func (s *Transactions) UpdateStatus(_ context.Context, id uuid.UUID, from sqlconfig.Status, to sqlconfig.Status, patch *sqlconfig.TransactionPatch) (*sqlconfig.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, fmt.Errorf("memory: unknown status %q", to)
	}
	row, ok := s.items[id]
	if !ok || from.Terminal() || row.Status != from {
		return nil, nil
	}
	if to == sqlconfig.StatusDisplaying && s.displayingLocked() != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	row.Status = to
	row.UpdatedAt = now
	if patch != nil {
		row.Metadata = merge(row.Metadata, patch.Metadata)
		if v, ok := patch.DisplayStartedAt.Get(); ok && row.DisplayStartedAt == nil {
			row.DisplayStartedAt = &v
		}
		if v, ok := patch.DisplayEstimatedEndAt.Get(); ok && row.DisplayEstimatedEndAt == nil {
			row.DisplayEstimatedEndAt = &v
		}
		if v, ok := patch.DisplayCompletedAt.Get(); ok && row.DisplayCompletedAt == nil {
			row.DisplayCompletedAt = &v
		}
		if patch.Activity != nil {
			row.ActivityLog = append(row.ActivityLog, withDefaults(*patch.Activity, now))
		}
	}
	return clone(row), nil
}

func (s *Transactions) ClaimNextPaid(_ context.Context, startedAt time.Time) (*sqlconfig.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.displayingLocked() != nil {
		return nil, nil
	}
	queue := s.sortedLocked(func(row *sqlconfig.Transaction) bool {
		return row.Status == sqlconfig.StatusPaid
	})
	if len(queue) == 0 {
		return nil, nil
	}

	row := queue[0]
	startedAt = startedAt.UTC()
	estimatedEnd := startedAt.Add(time.Duration(row.DisplaySeconds) * time.Second)
	row.Status = sqlconfig.StatusDisplaying
	row.DisplayStartedAt = &startedAt
	row.DisplayEstimatedEndAt = &estimatedEnd
	row.UpdatedAt = startedAt
	return clone(row), nil
}

func (s *Transactions) Leaderboard(_ context.Context, limit int) ([]*sqlconfig.SupporterRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sortedLocked(func(row *sqlconfig.Transaction) bool {
		return row.Status == sqlconfig.StatusPaid ||
			row.Status == sqlconfig.StatusDisplaying ||
			row.Status == sqlconfig.StatusDisplayed
	})

	groups := make(map[string]*sqlconfig.SupporterRow)
	var names []string
	// rows are oldest first, so later avatars overwrite earlier ones
	for _, row := range rows {
		group, ok := groups[row.CustomerName]
		if !ok {
			group = &sqlconfig.SupporterRow{CustomerName: row.CustomerName, TotalAmount: decimal.Zero}
			groups[row.CustomerName] = group
			names = append(names, row.CustomerName)
		}
		group.TotalAmount = group.TotalAmount.Add(row.Amount)
		group.TotalSeconds += row.DisplaySeconds
		group.TransactionCount++
		if row.AvatarURL != "" {
			group.LastAvatarURL = row.AvatarURL
		}
		if row.CreatedAt.After(group.LastSupportedAt) {
			group.LastSupportedAt = row.CreatedAt
		}
	}

	result := make([]*sqlconfig.SupporterRow, 0, len(names))
	for _, name := range names {
		result = append(result, groups[name])
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if c := a.TotalAmount.Cmp(b.TotalAmount); c != 0 {
			return c > 0
		}
		if a.TotalSeconds != b.TotalSeconds {
			return a.TotalSeconds > b.TotalSeconds
		}
		return a.CustomerName < b.CustomerName
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Transactions) displayingLocked() *sqlconfig.Transaction {
	for _, row := range s.items {
		if row.Status == sqlconfig.StatusDisplaying {
			return row
		}
	}
	return nil
}

// sortedLocked returns matching rows ordered by creation time, then by
// insertion order for rows created in the same instant.
func (s *Transactions) sortedLocked(match func(*sqlconfig.Transaction) bool) []*sqlconfig.Transaction {
	rows := make([]*sqlconfig.Transaction, 0, len(s.order))
	for _, id := range s.order {
		if row := s.items[id]; match(row) {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

func withDefaults(entry sqlconfig.Activity, at time.Time) sqlconfig.Activity {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = at
	}
	if entry.Actor == "" {
		entry.Actor = defaultActor
	}
	return entry
}

func merge(base sqlconfig.Metadata, patch sqlconfig.Metadata) sqlconfig.Metadata {
	out := base.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func clone(row *sqlconfig.Transaction) *sqlconfig.Transaction {
	out := *row
	out.Metadata = row.Metadata.Clone()
	out.ActivityLog = append([]sqlconfig.Activity(nil), row.ActivityLog...)
	return &out
}

func cloneAll(rows []*sqlconfig.Transaction) []*sqlconfig.Transaction {
	out := make([]*sqlconfig.Transaction, len(rows))
	for i, row := range rows {
		out[i] = clone(row)
	}
	return out
}
