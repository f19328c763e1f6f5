package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type fakeGateway struct {
	mu sync.Mutex

	configured  bool
	signatureOK bool
	linkErr     error
	result      *chillpay.StatusResult
	lookupErr   error

	links   int
	lookups int
}

func newFakeGateway(configured bool) *fakeGateway {
	return &fakeGateway{configured: configured, signatureOK: true}
}

func (f *fakeGateway) Configured() bool {
	return f.configured
}

func (f *fakeGateway) GeneratePayLink(_ context.Context, params chillpay.PayLinkParams) (*chillpay.PayLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	f.links++
	return &chillpay.PayLink{
		URL:   fmt.Sprintf("https://pay.example/%d", f.links),
		ID:    fmt.Sprintf("%d", 1000+f.links),
		Token: fmt.Sprintf("tok-%d", f.links),
	}, nil
}

func (f *fakeGateway) LookupStatus(_ context.Context, candidates []chillpay.Candidate) (*chillpay.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.result == nil {
		return nil, &chillpay.GatewayError{Kind: chillpay.ErrNotFound, Op: "LookupStatus"}
	}
	res := *f.result
	return &res, nil
}

func (f *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) bool {
	return f.signatureOK
}

func (f *fakeGateway) setResult(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, voided := chillpay.Normalize(status)
	f.result = &chillpay.StatusResult{Outcome: outcome, Voided: voided, ProviderStatus: status, TransactionID: "900"}
	f.lookupErr = nil
}

func (f *fakeGateway) setLookupErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupErr = err
}

// countingTicker runs fn a fixed number of times, immediately.
type countingTicker struct {
	times    int
	interval time.Duration
}

func (c *countingTicker) Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	c.interval = interval
	for i := 0; i < c.times && ctx.Err() == nil; i++ {
		fn(ctx)
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}

type testEnv struct {
	svc     *Service
	store   *storage.Storage
	gateway *fakeGateway
	bus     *events.Bus
}

func newTestEnv(t *testing.T, configured bool) *testEnv {
	t.Helper()
	store := storage.NewMemoryStorage()
	gateway := newFakeGateway(configured)
	bus := events.NewBus(64)
	svc := NewService(store, Options{
		Gateway:   gateway,
		Bus:       bus,
		Logger:    quietLogger(),
		Reconcile: ReconcilerConfig{Interval: time.Second, BatchSize: 10, MaxErrors: 3},
	})

	_, err := svc.Catalog.CreateProfile(context.Background(), sqlconfig.ProfileCreate{Code: "DJ001", DisplayName: "DJ One"})
	require.NoError(t, err)

	return &testEnv{svc: svc, store: store, gateway: gateway, bus: bus}
}

func (e *testEnv) create(t *testing.T, name string, markPaid bool) *sqlconfig.Transaction {
	t.Helper()
	res, err := e.svc.Transaction.CreateTransaction(context.Background(), CreateTransactionInput{
		Code:           "DJ001",
		CustomerName:   name,
		SocialLink:     "https://instagram.com/warp",
		DisplaySeconds: 15,
		Amount:         decimal.NewFromInt(100),
		MarkPaid:       markPaid,
		Actor:          ActorAdmin,
	})
	require.NoError(t, err)
	return res.Transaction
}

func (e *testEnv) get(t *testing.T, tx *sqlconfig.Transaction) *sqlconfig.Transaction {
	t.Helper()
	current, err := e.store.Transactions.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	return current
}

func countActions(tx *sqlconfig.Transaction, action string) int {
	n := 0
	for _, a := range tx.ActivityLog {
		if a.Action == action {
			n++
		}
	}
	return n
}
