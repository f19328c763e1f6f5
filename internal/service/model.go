package service

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// Actors recorded in activity entries.
const (
	ActorAdmin      = "admin"
	ActorCustomer   = "customer"
	ActorWebhook    = "webhook"
	ActorReconciler = "reconciler"
	ActorDisplay    = "display"
	ActorSystem     = "system"
)

// Activity actions.
const (
	ActionCreated            = "created"
	ActionPaymentLinkCreated = "payment_link_created"
	ActionPaymentLinkFailed  = "payment_link_failed"
	ActionStatusChanged      = "status_changed"
	ActionPollError          = "poll_error"
	ActionDisplayStarted     = "display_started"
	ActionDisplayCompleted   = "display_completed"
	ActionCancelled          = "cancelled"
)

type CreateTransactionInput struct {
	Code           string
	CustomerName   string
	AvatarURL      string
	SocialLink     string
	Quote          string
	DisplaySeconds int
	Amount         decimal.Decimal
	Currency       string
	PackageID      *uuid.UUID
	Metadata       map[string]any
	// MarkPaid records a payment taken outside the gateway. Admin only.
	MarkPaid bool
	Actor    string
}

type CreateTransactionResult struct {
	Transaction      *sqlconfig.Transaction
	PaymentURL       string
	PaymentReference string
}

// TransactionCursor identifies a position in a paginated result set
// and carries the limit and maxCreationTime so subsequent pages are consistent.
type TransactionCursor struct {
	Position        int
	Limit           int
	MaxCreationTime time.Time
}

type CheckStatusResult struct {
	Transaction    *sqlconfig.Transaction
	Status         sqlconfig.Status
	ChillPayStatus string
	Note           string
}

type WebhookResult struct {
	Matched       bool
	TransactionID uuid.UUID
	Status        sqlconfig.Status
}

type QueueSnapshot struct {
	Current     *sqlconfig.Transaction
	Upcoming    []*sqlconfig.Transaction
	GeneratedAt time.Time
}

type Supporter struct {
	Rank             int
	CustomerName     string
	TotalAmount      decimal.Decimal
	TotalSeconds     int
	TransactionCount int
	AvatarURL        string
	LastSupportedAt  time.Time
}

type ReconcileSummary struct {
	Checked int
	Paid    int
	Failed  int
	Errors  int
	Aborted bool
}
