package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// PaymentService applies provider verdicts to transactions. The webhook and
// the reconciler both end up in applyOutcome, whose status updates are
// conditional, so whichever path arrives second changes nothing.
type PaymentService struct {
	storage *storage.Storage
	gateway PaymentGateway
	bus     *events.Bus
	logger  *logrus.Logger
}

func NewPaymentService(store *storage.Storage, gateway PaymentGateway, bus *events.Bus, logger *logrus.Logger) *PaymentService {
	return &PaymentService{storage: store, gateway: gateway, bus: bus, logger: logger}
}

type verdict struct {
	outcome        chillpay.Outcome
	voided         bool
	providerStatus string
	providerTxID   string
}

// applyOutcome returns the transaction after the transition, or nil when the
// transaction was not in a state the verdict applies to.
func (s *PaymentService) applyOutcome(ctx context.Context, tx *sqlconfig.Transaction, v verdict, actor string) (*sqlconfig.Transaction, error) {
	meta := sqlconfig.Metadata{}
	if v.providerStatus != "" {
		meta[sqlconfig.MetaChillPayStatus] = v.providerStatus
	}
	if v.providerTxID != "" {
		meta[sqlconfig.MetaChillPayTransactionID] = v.providerTxID
	}
	// the provider answered, so the consecutive error run is over
	if tx.Metadata.Int(sqlconfig.MetaPollErrorCount) > 0 {
		meta[sqlconfig.MetaPollErrorCount] = 0
	}

	switch v.outcome {
	case chillpay.OutcomeSuccess:
		return s.transition(ctx, tx.ID, sqlconfig.StatusPending, sqlconfig.StatusPaid, meta, actor,
			fmt.Sprintf("Payment confirmed by %s (%s)", actor, v.providerStatus))

	case chillpay.OutcomeFailed:
		updated, err := s.transition(ctx, tx.ID, sqlconfig.StatusPending, sqlconfig.StatusFailed, meta, actor,
			fmt.Sprintf("Payment failed according to %s (%s)", actor, v.providerStatus))
		if err != nil || updated != nil || !v.voided {
			return updated, err
		}
		return s.transition(ctx, tx.ID, sqlconfig.StatusPaid, sqlconfig.StatusFailed, meta, actor,
			fmt.Sprintf("Payment voided according to %s (%s)", actor, v.providerStatus))
	}

	// Still pending at the provider: remember what it said without a transition.
	if len(meta) > 0 && tx.Status == sqlconfig.StatusPending {
		if err := s.storage.Transactions.UpdatePayment(ctx, tx.ID, "", meta); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *PaymentService) transition(ctx context.Context, id uuid.UUID, from, to sqlconfig.Status, meta sqlconfig.Metadata, actor, description string) (*sqlconfig.Transaction, error) {
	updated, err := s.storage.Transactions.UpdateStatus(ctx, id, from, to, &sqlconfig.TransactionPatch{
		Metadata: meta,
		Activity: &sqlconfig.Activity{
			Action:      ActionStatusChanged,
			Description: fmt.Sprintf("%s (%s -> %s)", description, from, to),
			Actor:       actor,
		},
	})
	if err != nil || updated == nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"transactionID": id.String(),
		"from":          from,
		"to":            to,
		"actor":         actor,
	}).Info("PaymentService.transition")
	s.bus.PublishAll(id, events.TopicQueueUpdated, events.TopicLeaderboardUpdated)
	return updated, nil
}

// HandleWebhook verifies and applies a provider push notification. Unknown
// references are acknowledged without effect so the provider stops retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	logData := logging.GetLogData(ctx)

	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return nil, ErrInvalidSignature
	}

	payload, err := chillpay.ParseWebhook(body)
	if err != nil {
		return nil, invalid("body", chillpay.Note(err))
	}
	logData.AddData("providerStatus", payload.ProviderStatus)

	var tx *sqlconfig.Transaction
	for _, ref := range payload.References() {
		tx, err = s.storage.Transactions.FindByReference(ctx, ref)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			break
		}
	}
	if tx == nil {
		s.logger.WithField("references", payload.References()).Warn("PaymentService.HandleWebhook.unmatched")
		return &WebhookResult{Matched: false}, nil
	}
	logData.AddData("transactionID", tx.ID.String())

	updated, err := s.applyOutcome(ctx, tx, verdict{
		outcome:        payload.Outcome,
		voided:         payload.Voided,
		providerStatus: payload.ProviderStatus,
		providerTxID:   payload.TransactionID,
	}, ActorWebhook)
	if err != nil {
		return nil, err
	}

	status := tx.Status
	if updated != nil {
		status = updated.Status
	}
	return &WebhookResult{Matched: true, TransactionID: tx.ID, Status: status}, nil
}
