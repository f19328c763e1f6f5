package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

const (
	defaultLimit    = 20
	defaultCurrency = "THB"
)

// Metadata keys the server owns; callers cannot set them on create.
var reservedMetadata = map[string]bool{
	sqlconfig.MetaPayLinkToken:          true,
	sqlconfig.MetaPayLinkID:             true,
	sqlconfig.MetaPaymentURL:            true,
	sqlconfig.MetaChillPayTransactionID: true,
	sqlconfig.MetaChillPayStatus:        true,
	sqlconfig.MetaPollErrorCount:        true,
	sqlconfig.MetaLastPollError:         true,
	sqlconfig.MetaLastPolledAt:          true,
}

// TransactionService handles transaction business logic.
type TransactionService struct {
	storage *storage.Storage
	gateway PaymentGateway
	bus     *events.Bus
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(store *storage.Storage, gateway PaymentGateway, bus *events.Bus) *TransactionService {
	return &TransactionService{storage: store, gateway: gateway, bus: bus}
}

// CreateTransaction validates the request, stores it and, unless the gateway
// is unconfigured or the payment was taken offline, issues a pay-link.
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*CreateTransactionResult, error) {
	logData := logging.GetLogData(ctx)

	create, err := s.buildCreate(ctx, input)
	if err != nil {
		return nil, err
	}

	endInsert := logData.AddTiming("insertMs")
	row, err := s.storage.Transactions.Insert(ctx, create)
	endInsert()
	if err != nil {
		return nil, err
	}
	logData.AddData("transactionID", row.ID.String())
	logData.AddData("transactionStatus", string(row.Status))

	if row.Status == sqlconfig.StatusPaid {
		s.bus.PublishAll(row.ID, events.TopicQueueUpdated, events.TopicLeaderboardUpdated)
		return &CreateTransactionResult{Transaction: row}, nil
	}

	endPayLink := logData.AddTiming("payLinkMs")
	link, err := s.gateway.GeneratePayLink(ctx, chillpay.PayLinkParams{
		ProductName:        "Warp " + row.Code,
		ProductDescription: fmt.Sprintf("%s - %d seconds", row.CustomerName, row.DisplaySeconds),
		ProductImage:       row.Metadata.String(sqlconfig.MetaProductImage),
		Amount:             row.Amount,
		Currency:           row.Currency,
		StartAt:            row.CreatedAt,
	})
	endPayLink()
	if err != nil {
		_, failErr := s.storage.Transactions.UpdateStatus(ctx, row.ID, sqlconfig.StatusPending, sqlconfig.StatusFailed, &sqlconfig.TransactionPatch{
			Activity: &sqlconfig.Activity{
				Action:      ActionPaymentLinkFailed,
				Description: "Payment link could not be created: " + chillpay.Note(err),
				Actor:       ActorSystem,
			},
		})
		if failErr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %w", ErrPaymentLink, err), failErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrPaymentLink, err)
	}

	reference := link.Token
	if reference == "" {
		reference = link.ID
	}
	patch := sqlconfig.Metadata{sqlconfig.MetaPaymentURL: link.URL}
	if link.Token != "" {
		patch[sqlconfig.MetaPayLinkToken] = link.Token
	}
	if link.ID != "" {
		patch[sqlconfig.MetaPayLinkID] = link.ID
	}
	if err := s.storage.Transactions.UpdatePayment(ctx, row.ID, reference, patch); err != nil {
		return nil, err
	}
	if err := s.storage.Transactions.AppendActivity(ctx, row.ID, sqlconfig.Activity{
		Action:      ActionPaymentLinkCreated,
		Description: "Payment link issued",
		Actor:       create.Activity.Actor,
	}); err != nil {
		return nil, err
	}

	current, err := s.storage.Transactions.FindByID(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = row
	}
	return &CreateTransactionResult{
		Transaction:      current,
		PaymentURL:       link.URL,
		PaymentReference: reference,
	}, nil
}

func (s *TransactionService) buildCreate(ctx context.Context, input CreateTransactionInput) (*sqlconfig.TransactionCreate, error) {
	code := strings.TrimSpace(input.Code)
	customerName := strings.TrimSpace(input.CustomerName)
	socialLink := strings.TrimSpace(input.SocialLink)
	switch {
	case code == "":
		return nil, invalid("code", "is required")
	case customerName == "":
		return nil, invalid("customerName", "is required")
	case socialLink == "":
		return nil, invalid("socialLink", "is required")
	}

	profile, err := s.storage.Profiles.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, invalid("code", "unknown warp code "+code)
	}

	seconds := input.DisplaySeconds
	amount := input.Amount
	var packageID uuid.NullUUID
	if input.PackageID != nil {
		pkg, err := s.storage.Packages.FindByID(ctx, *input.PackageID)
		if err != nil {
			return nil, err
		}
		if pkg == nil || !pkg.Active {
			return nil, invalid("packageId", "unknown or inactive package")
		}
		seconds = pkg.DisplaySeconds
		amount = pkg.Price
		packageID = uuid.NullUUID{UUID: pkg.ID, Valid: true}
	}
	if seconds <= 0 {
		return nil, invalid("displaySeconds", "must be positive")
	}
	if !amount.GreaterThan(decimal.Zero) {
		return nil, invalid("amount", "must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	metadata := sqlconfig.Metadata{}
	for k, v := range input.Metadata {
		if !reservedMetadata[k] {
			metadata[k] = v
		}
	}

	actor := input.Actor
	if actor == "" {
		actor = ActorCustomer
	}

	status := sqlconfig.StatusPending
	description := "Transaction created, awaiting payment"
	switch {
	case input.MarkPaid:
		status = sqlconfig.StatusPaid
		description = "Transaction created as paid"
	case !s.gateway.Configured():
		status = sqlconfig.StatusPaid
		description = "Transaction created as paid (payment gateway not configured)"
	}

	return &sqlconfig.TransactionCreate{
		Code:           code,
		CustomerName:   customerName,
		AvatarURL:      strings.TrimSpace(input.AvatarURL),
		SocialLink:     socialLink,
		Quote:          strings.TrimSpace(input.Quote),
		DisplaySeconds: seconds,
		Amount:         amount,
		Currency:       currency,
		PackageID:      packageID,
		Status:         status,
		Metadata:       metadata,
		Activity: sqlconfig.Activity{
			Action:      ActionCreated,
			Description: description,
			Actor:       actor,
		},
	}, nil
}

// GetTransaction returns a transaction with its activity log.
func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error) {
	row, err := s.storage.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

// ListTransactions returns a page of transactions using cursor-based pagination.
func (s *TransactionService) ListTransactions(ctx context.Context, cursor *TransactionCursor, status *sqlconfig.Status) ([]*sqlconfig.Transaction, *TransactionCursor, error) {
	if status != nil && !status.Valid() {
		return nil, nil, invalid("status", "unknown status "+string(*status))
	}
	limit := defaultLimit
	offset := 0
	var maxCreationTime *time.Time
	if cursor != nil {
		limit = cursor.Limit
		offset = cursor.Position
		maxCreationTime = &cursor.MaxCreationTime
	}

	filter := &sqlconfig.TransactionFilter{
		Status:          status,
		Limit:           limit,
		Offset:          offset,
		MaxCreationTime: maxCreationTime,
	}

	rows, err := s.storage.Transactions.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	if len(rows) == 0 {
		return nil, nil, nil
	}

	var nextCursor *TransactionCursor
	if len(rows) > limit {
		rows = rows[:limit]

		cursorMaxCreationTime := rows[0].CreatedAt
		if maxCreationTime != nil {
			cursorMaxCreationTime = *maxCreationTime
		}

		nextCursor = &TransactionCursor{
			Position:        offset + limit,
			Limit:           limit,
			MaxCreationTime: cursorMaxCreationTime,
		}
	}

	return rows, nextCursor, nil
}

// CancelTransaction moves a pending transaction to cancelled.
func (s *TransactionService) CancelTransaction(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error) {
	row, err := s.storage.Transactions.UpdateStatus(ctx, id, sqlconfig.StatusPending, sqlconfig.StatusCancelled, &sqlconfig.TransactionPatch{
		Activity: &sqlconfig.Activity{
			Action:      ActionCancelled,
			Description: "Cancelled by admin",
			Actor:       ActorAdmin,
		},
	})
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}

	existing, err := s.storage.Transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, existing.Status)
}
