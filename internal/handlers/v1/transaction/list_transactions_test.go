package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type mockTransactionLister struct {
	mock.Mock
}

func (m *mockTransactionLister) ListTransactions(ctx context.Context, cursor *service.TransactionCursor, status *sqlconfig.Status) ([]*sqlconfig.Transaction, *service.TransactionCursor, error) {
	args := m.Called(ctx, cursor, status)
	txs, _ := args.Get(0).([]*sqlconfig.Transaction)
	next, _ := args.Get(1).(*service.TransactionCursor)
	return txs, next, args.Error(2)
}

func newListTestAPI(t *testing.T, svc transactionLister) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	NewListTransactionsHandler(svc).Register(api)
	return api
}

func sampleTransaction(now time.Time) *sqlconfig.Transaction {
	return &sqlconfig.Transaction{
		ID:             uuid.Must(uuid.NewV7()),
		Code:           "DJ001",
		CustomerName:   "Fan",
		DisplaySeconds: 30,
		Amount:         decimal.RequireFromString("100"),
		Currency:       "THB",
		Status:         sqlconfig.StatusPaid,
		CreatedAt:      now,
		UpdatedAt:      now,
		ActivityLog:    []sqlconfig.Activity{{Action: "created", Actor: "admin", CreatedAt: now}},
	}
}

// -- parseListTransactionsInput unit tests --

func TestParseListTransactionsInput_NoCursor(t *testing.T) {
	cursor, status, err := parseListTransactionsInput(&ListTransactionsInput{})
	assert.NoError(t, err)
	assert.Nil(t, cursor)
	assert.Nil(t, status)
}

func TestParseListTransactionsInput_WithCursor(t *testing.T) {
	cursorMaxTime := "2025-06-15T08:00:00Z"

	cursor, status, err := parseListTransactionsInput(&ListTransactionsInput{
		Status:          "paid",
		Position:        40,
		Limit:           10,
		MaxCreationTime: cursorMaxTime,
	})
	require.NoError(t, err)

	expectedMax, _ := time.Parse(time.RFC3339, cursorMaxTime)
	require.NotNil(t, cursor)
	assert.Equal(t, 40, cursor.Position)
	assert.Equal(t, 10, cursor.Limit)
	assert.Equal(t, expectedMax, cursor.MaxCreationTime)
	require.NotNil(t, status)
	assert.Equal(t, sqlconfig.StatusPaid, *status)
}

func TestParseListTransactionsInput_CursorDefaultsLimit(t *testing.T) {
	cursor, _, err := parseListTransactionsInput(&ListTransactionsInput{MaxCreationTime: "2025-06-01T12:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 20, cursor.Limit)
}

func TestParseListTransactionsInput_InvalidCursorMaxCreationTime(t *testing.T) {
	_, _, err := parseListTransactionsInput(&ListTransactionsInput{MaxCreationTime: "not-a-date"})
	assert.Error(t, err)
}

// -- HTTP integration tests --

func TestHTTP_ListTransactions_SinglePage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tx := sampleTransaction(now)

	mockSvc := new(mockTransactionLister)
	mockSvc.On("ListTransactions", mock.Anything, (*service.TransactionCursor)(nil), (*sqlconfig.Status)(nil)).
		Return([]*sqlconfig.Transaction{tx}, (*service.TransactionCursor)(nil), nil)

	resp := newListTestAPI(t, mockSvc).Get("/transactions")

	assert.Equal(t, http.StatusOK, resp.Code)
	var body ListTransactionsResponseBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, tx.ID.String(), body.Transactions[0].ID)
	assert.Equal(t, "100.00", body.Transactions[0].Amount)
	assert.Empty(t, body.Transactions[0].ActivityLog)
	assert.Nil(t, body.NextCursor)
	mockSvc.AssertExpectations(t)
}

func TestHTTP_ListTransactions_NextCursor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mockSvc := new(mockTransactionLister)
	mockSvc.On("ListTransactions", mock.Anything, (*service.TransactionCursor)(nil), (*sqlconfig.Status)(nil)).
		Return([]*sqlconfig.Transaction{sampleTransaction(now), sampleTransaction(now)}, &service.TransactionCursor{
			Position:        20,
			Limit:           20,
			MaxCreationTime: now,
		}, nil)

	resp := newListTestAPI(t, mockSvc).Get("/transactions")

	assert.Equal(t, http.StatusOK, resp.Code)
	var body ListTransactionsResponseBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Transactions, 2)
	require.NotNil(t, body.NextCursor)
	assert.Equal(t, 20, body.NextCursor.Position)
	assert.Equal(t, 20, body.NextCursor.Limit)
	assert.Equal(t, now.Format(time.RFC3339Nano), body.NextCursor.MaxCreationTime)
	mockSvc.AssertExpectations(t)
}

func TestHTTP_ListTransactions_WithCursorAndStatus(t *testing.T) {
	maxTime := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	mockSvc := new(mockTransactionLister)
	mockSvc.On("ListTransactions", mock.Anything, mock.MatchedBy(func(c *service.TransactionCursor) bool {
		return c != nil &&
			c.Position == 40 &&
			c.Limit == 10 &&
			c.MaxCreationTime.Equal(maxTime)
	}), mock.MatchedBy(func(s *sqlconfig.Status) bool {
		return s != nil && *s == sqlconfig.StatusPending
	})).Return(([]*sqlconfig.Transaction)(nil), (*service.TransactionCursor)(nil), nil)

	resp := newListTestAPI(t, mockSvc).Get("/transactions?status=pending&position=40&limit=10&maxCreationTime=" + maxTime.Format(time.RFC3339))

	assert.Equal(t, http.StatusOK, resp.Code)
	var body ListTransactionsResponseBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Transactions)
	mockSvc.AssertExpectations(t)
}

func TestHTTP_ListTransactions_UnknownStatus(t *testing.T) {
	mockSvc := new(mockTransactionLister)

	resp := newListTestAPI(t, mockSvc).Get("/transactions?status=refunded")

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	mockSvc.AssertNotCalled(t, "ListTransactions")
}

func TestHTTP_ListTransactions_InvalidCursorMaxCreationTime(t *testing.T) {
	mockSvc := new(mockTransactionLister)

	resp := newListTestAPI(t, mockSvc).Get("/transactions?maxCreationTime=yesterday")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	mockSvc.AssertNotCalled(t, "ListTransactions")
}

func TestHTTP_ListTransactions_ServiceError(t *testing.T) {
	mockSvc := new(mockTransactionLister)
	mockSvc.On("ListTransactions", mock.Anything, mock.Anything, mock.Anything).
		Return(([]*sqlconfig.Transaction)(nil), (*service.TransactionCursor)(nil), errors.New("database unavailable"))

	resp := newListTestAPI(t, mockSvc).Get("/transactions")

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	mockSvc.AssertExpectations(t)
}
