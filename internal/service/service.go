package service

import (
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/storage"
)

type Options struct {
	Gateway   PaymentGateway
	Bus       *events.Bus
	Logger    *logrus.Logger
	Ticker    Ticker
	Reconcile ReconcilerConfig
}

// Service holds all business logic services.
type Service struct {
	Transaction *TransactionService
	Payment     *PaymentService
	Reconciler  *Reconciler
	Display     *DisplayService
	Leaderboard *LeaderboardService
	Catalog     *CatalogService
	Events      *events.Bus
}

// NewService creates a new Service with the given storage.
func NewService(store *storage.Storage, opts Options) *Service {
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	payments := NewPaymentService(store, opts.Gateway, bus, logger)
	return &Service{
		Transaction: NewTransactionService(store, opts.Gateway, bus),
		Payment:     payments,
		Reconciler:  NewReconciler(store, opts.Gateway, payments, opts.Ticker, opts.Reconcile, logger),
		Display:     NewDisplayService(store, bus),
		Leaderboard: NewLeaderboardService(store),
		Catalog:     NewCatalogService(store),
		Events:      bus,
	}
}
