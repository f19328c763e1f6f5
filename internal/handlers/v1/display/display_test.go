package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type mockDisplayService struct {
	mock.Mock
}

func (m *mockDisplayService) ClaimNext(ctx context.Context) (*sqlconfig.Transaction, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(*sqlconfig.Transaction)
	return tx, args.Error(1)
}

func (m *mockDisplayService) Complete(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error) {
	args := m.Called(ctx, id)
	tx, _ := args.Get(0).(*sqlconfig.Transaction)
	return tx, args.Error(1)
}

func (m *mockDisplayService) Snapshot(ctx context.Context) (*service.QueueSnapshot, error) {
	args := m.Called(ctx)
	snapshot, _ := args.Get(0).(*service.QueueSnapshot)
	return snapshot, args.Error(1)
}

func newTestAPI(t *testing.T, svc displayService) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	NewClaimNextHandler(svc).Register(api)
	NewCompleteHandler(svc).Register(api)
	NewQueueHandler(svc, events.NewBus(1), time.Second, logrus.New()).Register(api)
	return api
}

func displayingTransaction() *sqlconfig.Transaction {
	started := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	end := started.Add(15 * time.Second)
	return &sqlconfig.Transaction{
		ID:                    uuid.Must(uuid.NewV7()),
		Code:                  "DJ001",
		CustomerName:          "Fan",
		SocialLink:            "https://instagram.com/fan",
		DisplaySeconds:        15,
		Status:                sqlconfig.StatusDisplaying,
		Metadata:              sqlconfig.Metadata{sqlconfig.MetaPaymentURL: "https://pay.example/1"},
		DisplayStartedAt:      &started,
		DisplayEstimatedEndAt: &end,
	}
}

func TestHTTP_ClaimNext_ReturnsTransaction(t *testing.T) {
	tx := displayingTransaction()
	mockSvc := new(mockDisplayService)
	mockSvc.On("ClaimNext", mock.Anything).Return(tx, nil)

	resp := newTestAPI(t, mockSvc).Post("/public/display/next")

	assert.Equal(t, http.StatusOK, resp.Code)
	var body Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, tx.ID.String(), body.ID)
	assert.Equal(t, "displaying", body.Status)
	assert.Equal(t, "2025-03-01T20:00:15Z", body.DisplayEstimatedEndAt)
	assert.NotContains(t, resp.Body.String(), "pay.example")
}

func TestHTTP_ClaimNext_EmptyQueue(t *testing.T) {
	mockSvc := new(mockDisplayService)
	mockSvc.On("ClaimNext", mock.Anything).Return(nil, nil)

	resp := newTestAPI(t, mockSvc).Post("/public/display/next")

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, resp.Body.String())
}

func TestHTTP_ClaimNext_Error(t *testing.T) {
	mockSvc := new(mockDisplayService)
	mockSvc.On("ClaimNext", mock.Anything).Return(nil, errors.New("database unavailable"))

	resp := newTestAPI(t, mockSvc).Post("/public/display/next")

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestHTTP_Complete(t *testing.T) {
	tx := displayingTransaction()
	mockSvc := new(mockDisplayService)
	mockSvc.On("Complete", mock.Anything, tx.ID).Return(tx, nil)

	resp := newTestAPI(t, mockSvc).Post("/public/display/" + tx.ID.String() + "/complete")

	assert.Equal(t, http.StatusOK, resp.Code)
	var body CompleteOutput
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body.Body))
	assert.True(t, body.Body.Success)
}

func TestHTTP_Complete_NotDisplaying(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	mockSvc := new(mockDisplayService)
	mockSvc.On("Complete", mock.Anything, id).Return(nil, service.ErrNotDisplaying)

	resp := newTestAPI(t, mockSvc).Post("/public/display/" + id.String() + "/complete")

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHTTP_Complete_MalformedID(t *testing.T) {
	mockSvc := new(mockDisplayService)

	resp := newTestAPI(t, mockSvc).Post("/public/display/abc/complete")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	mockSvc.AssertNotCalled(t, "Complete")
}

func TestHTTP_Queue(t *testing.T) {
	current := displayingTransaction()
	next := &sqlconfig.Transaction{ID: uuid.Must(uuid.NewV7()), CustomerName: "Next", Status: sqlconfig.StatusPaid}
	mockSvc := new(mockDisplayService)
	mockSvc.On("Snapshot", mock.Anything).Return(&service.QueueSnapshot{
		Current:     current,
		Upcoming:    []*sqlconfig.Transaction{next},
		GeneratedAt: time.Date(2025, 3, 1, 20, 0, 1, 0, time.UTC),
	}, nil)

	resp := newTestAPI(t, mockSvc).Get("/display/queue")

	assert.Equal(t, http.StatusOK, resp.Code)
	var body QueueState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Current)
	assert.Equal(t, current.ID.String(), body.Current.ID)
	require.Len(t, body.Upcoming, 1)
	assert.Equal(t, "Next", body.Upcoming[0].CustomerName)
}

func TestToQueueState_Idle(t *testing.T) {
	state := toQueueState(&service.QueueSnapshot{GeneratedAt: time.Now()})
	assert.Nil(t, state.Current)
	assert.NotNil(t, state.Upcoming)

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"current":null`)
	assert.Contains(t, string(raw), `"upcoming":[]`)
}
