package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type ReconcilerConfig struct {
	Interval  time.Duration
	BatchSize int
	MaxErrors int
}

// Reconciler polls the gateway for pending transactions whose webhook never
// arrived. Each batch is processed sequentially to bound the provider call
// rate.
type Reconciler struct {
	storage  *storage.Storage
	gateway  PaymentGateway
	payments *PaymentService
	ticker   Ticker
	cfg      ReconcilerConfig
	logger   *logrus.Logger
	now      func() time.Time
}

func NewReconciler(store *storage.Storage, gateway PaymentGateway, payments *PaymentService, ticker Ticker, cfg ReconcilerConfig, logger *logrus.Logger) *Reconciler {
	if ticker == nil {
		ticker = IntervalTicker{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 5
	}
	return &Reconciler{
		storage:  store,
		gateway:  gateway,
		payments: payments,
		ticker:   ticker,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"interval":   r.cfg.Interval.String(),
		"batchSize":  r.cfg.BatchSize,
		"maxErrors":  r.cfg.MaxErrors,
		"configured": r.gateway.Configured(),
	}).Info("Reconciler.Run.start")

	r.ticker.Every(ctx, r.cfg.Interval, func(ctx context.Context) {
		summary, err := r.RunOnce(ctx)
		entry := r.logger.WithFields(logrus.Fields{
			"checked": summary.Checked,
			"paid":    summary.Paid,
			"failed":  summary.Failed,
			"errors":  summary.Errors,
			"aborted": summary.Aborted,
		})
		if err != nil {
			entry.WithError(err).Error("Reconciler.RunOnce.error")
			return
		}
		if summary.Checked > 0 {
			entry.Info("Reconciler.RunOnce.complete")
		}
	})

	r.logger.Info("Reconciler.Run.stopped")
	return nil
}

// RunOnce processes one batch. A gateway that is unconfigured or rejects our
// requests ends the batch early, since every further call would fail the same way.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if !r.gateway.Configured() {
		summary.Aborted = true
		return summary, nil
	}

	candidates, err := r.storage.Transactions.ListReconcileCandidates(ctx, r.cfg.BatchSize, r.cfg.MaxErrors)
	if err != nil {
		return summary, err
	}

	for _, tx := range candidates {
		if ctx.Err() != nil {
			break
		}
		summary.Checked++

		result, err := r.gateway.LookupStatus(ctx, lookupCandidates(tx))
		if err != nil {
			if errors.Is(err, chillpay.ErrUnconfigured) {
				summary.Aborted = true
				break
			}
			summary.Errors++
			if recordErr := r.recordPollError(ctx, tx.ID, err); recordErr != nil {
				return summary, recordErr
			}
			if errors.Is(err, chillpay.ErrRejected) {
				summary.Aborted = true
				break
			}
			continue
		}

		updated, err := r.payments.applyOutcome(ctx, tx, verdictFrom(result), ActorReconciler)
		if err != nil {
			return summary, err
		}
		if updated == nil {
			continue
		}
		switch updated.Status {
		case sqlconfig.StatusPaid:
			summary.Paid++
		case sqlconfig.StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

// CheckOne looks up a single transaction on demand, ignoring its poll error
// count. Lookups that find nothing or fail transiently come back as a note;
// an unconfigured or rejecting gateway is returned as an error.
func (r *Reconciler) CheckOne(ctx context.Context, id uuid.UUID) (*CheckStatusResult, error) {
	tx, err := r.storage.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}
	if tx.Status != sqlconfig.StatusPending {
		return checkResult(tx, "transaction is already "+string(tx.Status)), nil
	}

	result, err := r.gateway.LookupStatus(ctx, lookupCandidates(tx))
	if err != nil {
		if errors.Is(err, chillpay.ErrUnconfigured) {
			return nil, err
		}
		if recordErr := r.recordPollError(ctx, tx.ID, err); recordErr != nil {
			return nil, recordErr
		}
		if errors.Is(err, chillpay.ErrRejected) {
			return nil, err
		}
		return checkResult(tx, chillpay.Note(err)), nil
	}

	if _, err := r.payments.applyOutcome(ctx, tx, verdictFrom(result), ActorAdmin); err != nil {
		return nil, err
	}
	current, err := r.storage.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = tx
	}
	res := checkResult(current, "")
	if res.ChillPayStatus == "" {
		res.ChillPayStatus = result.ProviderStatus
	}
	return res, nil
}

// CheckByReference resolves a transaction by id or any stored provider
// reference, then checks it.
func (r *Reconciler) CheckByReference(ctx context.Context, transactionID, reference string) (*CheckStatusResult, error) {
	var tx *sqlconfig.Transaction
	var err error
	if transactionID != "" {
		id, parseErr := uuid.FromString(transactionID)
		if parseErr != nil {
			return nil, invalid("transactionId", "must be a UUID")
		}
		tx, err = r.storage.Transactions.FindByID(ctx, id)
	} else if reference != "" {
		tx, err = r.storage.Transactions.FindByReference(ctx, reference)
	} else {
		return nil, invalid("transactionId", "transactionId or reference is required")
	}
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}
	return r.CheckOne(ctx, tx.ID)
}

func (r *Reconciler) recordPollError(ctx context.Context, id uuid.UUID, lookupErr error) error {
	note := chillpay.Note(lookupErr)
	count, err := r.storage.Transactions.IncrementPollErrors(ctx, id, note, r.now())
	if err != nil {
		return err
	}
	if err := r.storage.Transactions.AppendActivity(ctx, id, sqlconfig.Activity{
		Action:      ActionPollError,
		Description: fmt.Sprintf("Payment status check failed (%d): %s", count, note),
		Actor:       ActorReconciler,
	}); err != nil {
		return err
	}

	entry := r.logger.WithError(lookupErr).WithFields(logrus.Fields{
		"transactionID":  id.String(),
		"pollErrorCount": count,
	})
	if count >= r.cfg.MaxErrors {
		entry.Warn("Reconciler.pollError.excluded from polling")
		return nil
	}
	entry.Info("Reconciler.pollError")
	return nil
}

func verdictFrom(result *chillpay.StatusResult) verdict {
	return verdict{
		outcome:        result.Outcome,
		voided:         result.Voided,
		providerStatus: result.ProviderStatus,
		providerTxID:   result.TransactionID,
	}
}

func checkResult(tx *sqlconfig.Transaction, note string) *CheckStatusResult {
	return &CheckStatusResult{
		Transaction:    tx,
		Status:         tx.Status,
		ChillPayStatus: tx.Metadata.String(sqlconfig.MetaChillPayStatus),
		Note:           note,
	}
}
