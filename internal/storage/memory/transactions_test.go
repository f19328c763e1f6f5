package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

func insertPaid(t *testing.T, store *Transactions, name string, amount string, createdAt time.Time) *sqlconfig.Transaction {
	t.Helper()
	row, err := store.Insert(context.Background(), &sqlconfig.TransactionCreate{
		Code:           "DJ001",
		CustomerName:   name,
		SocialLink:     "https://instagram.com/" + name,
		DisplaySeconds: 30,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "THB",
		Status:         sqlconfig.StatusPaid,
		Activity:       sqlconfig.Activity{Action: "created"},
		CreatedAt:      createdAt,
	})
	require.NoError(t, err)
	return row
}

func TestInsert_RecordsActivityWithDefaults(t *testing.T) {
	store := NewTransactions()
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	row := insertPaid(t, store, "alice", "100", now)

	require.Len(t, row.ActivityLog, 1)
	assert.Equal(t, "created", row.ActivityLog[0].Action)
	assert.Equal(t, "system", row.ActivityLog[0].Actor)
	assert.Equal(t, now, row.ActivityLog[0].CreatedAt)
	assert.NotNil(t, row.Metadata)
}

func TestUpdateStatus_PreconditionMismatchReturnsNil(t *testing.T) {
	store := NewTransactions()
	row := insertPaid(t, store, "alice", "100", time.Now())

	updated, err := store.UpdateStatus(context.Background(), row.ID, sqlconfig.StatusPending, sqlconfig.StatusFailed, &sqlconfig.TransactionPatch{
		Activity: &sqlconfig.Activity{Action: "status_changed"},
	})
	require.NoError(t, err)
	assert.Nil(t, updated)

	current, err := store.FindByID(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlconfig.StatusPaid, current.Status)
	assert.Len(t, current.ActivityLog, 1, "no activity on a failed transition")
}

func TestUpdateStatus_TerminalStatusNeverMoves(t *testing.T) {
	store := NewTransactions()
	row, err := store.Insert(context.Background(), &sqlconfig.TransactionCreate{
		Code:           "DJ001",
		CustomerName:   "alice",
		SocialLink:     "https://instagram.com/alice",
		DisplaySeconds: 30,
		Amount:         decimal.RequireFromString("100"),
		Status:         sqlconfig.StatusFailed,
		Activity:       sqlconfig.Activity{Action: "created"},
	})
	require.NoError(t, err)

	updated, err := store.UpdateStatus(context.Background(), row.ID, sqlconfig.StatusFailed, sqlconfig.StatusPaid, nil)
	require.NoError(t, err)
	assert.Nil(t, updated)

	current, err := store.FindByID(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlconfig.StatusFailed, current.Status)
}

func TestUpdateStatus_UnknownTargetStatus(t *testing.T) {
	store := NewTransactions()
	row := insertPaid(t, store, "alice", "100", time.Now())

	updated, err := store.UpdateStatus(context.Background(), row.ID, sqlconfig.StatusPaid, sqlconfig.Status("refunded"), nil)
	assert.Error(t, err)
	assert.Nil(t, updated)
}

func TestUpdateStatus_DisplayTimestampsAreSetOnce(t *testing.T) {
	store := NewTransactions()
	row := insertPaid(t, store, "alice", "100", time.Now())
	first := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	_, err := store.UpdateStatus(context.Background(), row.ID, sqlconfig.StatusPaid, sqlconfig.StatusDisplaying, &sqlconfig.TransactionPatch{
		DisplayStartedAt: omit.From(first),
	})
	require.NoError(t, err)
	updated, err := store.UpdateStatus(context.Background(), row.ID, sqlconfig.StatusDisplaying, sqlconfig.StatusDisplayed, &sqlconfig.TransactionPatch{
		DisplayStartedAt:   omit.From(first.Add(time.Hour)),
		DisplayCompletedAt: omit.From(first.Add(time.Minute)),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, first, *updated.DisplayStartedAt)
	assert.Equal(t, first.Add(time.Minute), *updated.DisplayCompletedAt)
}

func TestClaimNextPaid_FIFOAndSingleDisplaying(t *testing.T) {
	store := NewTransactions()
	base := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	second := insertPaid(t, store, "bob", "50", base.Add(time.Second))
	first := insertPaid(t, store, "alice", "100", base)

	claimed, err := store.ClaimNextPaid(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, sqlconfig.StatusDisplaying, claimed.Status)
	assert.Equal(t, base.Add(time.Minute+30*time.Second), *claimed.DisplayEstimatedEndAt)

	again, err := store.ClaimNextPaid(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, again, "nothing is claimed while a row is displaying")

	queue, err := store.ListQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, second.ID, queue[0].ID)
}

func TestClaimNextPaid_ConcurrentClaimersGetOneRow(t *testing.T) {
	store := NewTransactions()
	base := time.Now()
	for i := 0; i < 5; i++ {
		insertPaid(t, store, "fan", "10", base.Add(time.Duration(i)*time.Millisecond))
	}

	var wg sync.WaitGroup
	results := make(chan *sqlconfig.Transaction, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, err := store.ClaimNextPaid(context.Background(), time.Now())
			assert.NoError(t, err)
			results <- row
		}()
	}
	wg.Wait()
	close(results)

	claimed := 0
	for row := range results {
		if row != nil {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestListReconcileCandidates_RespectsTokenAndErrorBudget(t *testing.T) {
	store := NewTransactions()
	ctx := context.Background()
	create := func(metadata sqlconfig.Metadata) *sqlconfig.Transaction {
		row, err := store.Insert(ctx, &sqlconfig.TransactionCreate{
			Code: "DJ001", CustomerName: "x", DisplaySeconds: 10,
			Amount: decimal.NewFromInt(10), Status: sqlconfig.StatusPending, Metadata: metadata,
		})
		require.NoError(t, err)
		return row
	}

	withToken := create(sqlconfig.Metadata{sqlconfig.MetaPayLinkToken: "tok-1"})
	create(sqlconfig.Metadata{})
	exhausted := create(sqlconfig.Metadata{sqlconfig.MetaPayLinkToken: "tok-2"})
	for i := 0; i < 3; i++ {
		_, err := store.IncrementPollErrors(ctx, exhausted.ID, "timeout", time.Now())
		require.NoError(t, err)
	}

	rows, err := store.ListReconcileCandidates(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, withToken.ID, rows[0].ID)
}

func TestFindByReference_MatchesMetadata(t *testing.T) {
	store := NewTransactions()
	ctx := context.Background()
	row := insertPaid(t, store, "alice", "100", time.Now())
	require.NoError(t, store.UpdatePayment(ctx, row.ID, "REF-9", sqlconfig.Metadata{
		sqlconfig.MetaPayLinkToken: "tok-9",
		sqlconfig.MetaPayLinkID:    float64(77),
	}))

	for _, ref := range []string{"REF-9", "tok-9", "77", row.ID.String()} {
		found, err := store.FindByReference(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, found, ref)
		assert.Equal(t, row.ID, found.ID)
	}

	found, err := store.FindByReference(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLeaderboard_GroupsAndOrders(t *testing.T) {
	store := NewTransactions()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	insertPaid(t, store, "bob", "150", base)
	insertPaid(t, store, "alice", "100", base.Add(time.Second))
	insertPaid(t, store, "alice", "100", base.Add(2*time.Second))
	pending, err := store.Insert(ctx, &sqlconfig.TransactionCreate{
		Code: "DJ001", CustomerName: "carol", DisplaySeconds: 10,
		Amount: decimal.NewFromInt(999), Status: sqlconfig.StatusPending,
	})
	require.NoError(t, err)
	require.NotNil(t, pending)

	rows, err := store.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].CustomerName)
	assert.True(t, rows[0].TotalAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 60, rows[0].TotalSeconds)
	assert.Equal(t, 2, rows[0].TransactionCount)
	assert.Equal(t, "bob", rows[1].CustomerName)
}
