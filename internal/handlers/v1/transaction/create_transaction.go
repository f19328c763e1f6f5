package transaction

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/service"
)

// CreateTransactionBody is the request body for creating a transaction.
// Either displaySeconds and amount, or packageId, must be given.
type CreateTransactionBody struct {
	Code           string         `json:"code" minLength:"1" doc:"Warp profile code"`
	CustomerName   string         `json:"customerName" minLength:"1" maxLength:"100" doc:"Name shown on screen"`
	AvatarURL      string         `json:"avatarUrl,omitempty" doc:"Photo shown on screen"`
	SocialLink     string         `json:"socialLink" minLength:"1" doc:"Customer social profile"`
	Quote          string         `json:"quote,omitempty" maxLength:"280" doc:"Message shown on screen"`
	DisplaySeconds int            `json:"displaySeconds,omitempty" minimum:"0" doc:"Seconds on screen, ignored with packageId"`
	Amount         string         `json:"amount,omitempty" doc:"Decimal amount, ignored with packageId"`
	Currency       string         `json:"currency,omitempty" doc:"ISO currency code, defaults to THB"`
	PackageID      string         `json:"packageId,omitempty" doc:"Package UUID"`
	Metadata       map[string]any `json:"metadata,omitempty" doc:"Free-form data stored with the transaction"`
	MarkPaid       bool           `json:"markPaid,omitempty" doc:"Record a payment taken outside the gateway (admin only)"`
}

// CreateTransactionInput is the Huma input for creating a transaction.
type CreateTransactionInput struct {
	Body CreateTransactionBody
}

// CreateTransactionResponse is the response body for creating a transaction.
type CreateTransactionResponse struct {
	ID               string `json:"id" doc:"Created transaction UUID"`
	Status           string `json:"status" doc:"pending, or paid when no payment is needed"`
	PaymentURL       string `json:"paymentUrl,omitempty" doc:"Where the customer pays"`
	PaymentReference string `json:"paymentReference,omitempty" doc:"Provider reference for status checks"`
}

// CreateTransactionOutput is the Huma output for creating a transaction.
type CreateTransactionOutput struct {
	Body CreateTransactionResponse
}

type transactionCreator interface {
	CreateTransaction(ctx context.Context, input service.CreateTransactionInput) (*service.CreateTransactionResult, error)
}

// CreateTransactionHandler handles POST /transactions and POST /public/transactions.
type CreateTransactionHandler struct {
	TransactionService transactionCreator
	Public             bool
}

// NewCreateTransactionHandler creates the admin create handler.
func NewCreateTransactionHandler(svc transactionCreator) *CreateTransactionHandler {
	return &CreateTransactionHandler{TransactionService: svc}
}

// NewPublicCreateTransactionHandler creates the customer-facing create handler.
func NewPublicCreateTransactionHandler(svc transactionCreator) *CreateTransactionHandler {
	return &CreateTransactionHandler{TransactionService: svc, Public: true}
}

// Register registers the create transaction endpoint with the Huma API.
func (h *CreateTransactionHandler) Register(api huma.API) {
	op := huma.Operation{
		OperationID:   "create-transaction",
		Method:        http.MethodPost,
		Path:          "/transactions",
		Summary:       "Create transaction",
		Description:   "Creates a display request and, when payment is due, a ChillPay pay-link.",
		Tags:          []string{"Transactions"},
		DefaultStatus: http.StatusCreated,
		Security:      auth.Admin,
	}
	if h.Public {
		op.OperationID = "create-public-transaction"
		op.Path = "/public/transactions"
		op.Summary = "Create transaction (customer)"
		op.Security = nil
	}
	huma.Register(api, op, h.handle)
}

// parseCreateTransactionInput parses and validates the API input.
func parseCreateTransactionInput(input *CreateTransactionInput, public bool) (service.CreateTransactionInput, error) {
	body := input.Body
	out := service.CreateTransactionInput{
		Code:           body.Code,
		CustomerName:   body.CustomerName,
		AvatarURL:      body.AvatarURL,
		SocialLink:     body.SocialLink,
		Quote:          body.Quote,
		DisplaySeconds: body.DisplaySeconds,
		Currency:       body.Currency,
		Metadata:       body.Metadata,
		MarkPaid:       body.MarkPaid,
		Actor:          service.ActorAdmin,
	}
	if public {
		if body.MarkPaid {
			return out, huma.NewError(http.StatusBadRequest, "markPaid is not allowed")
		}
		out.Actor = service.ActorCustomer
	}

	if body.PackageID != "" {
		packageID, err := uuid.FromString(body.PackageID)
		if err != nil {
			return out, huma.NewError(http.StatusBadRequest, "invalid packageId", err)
		}
		out.PackageID = &packageID
	}
	if body.Amount != "" {
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return out, huma.NewError(http.StatusBadRequest, "invalid amount", err)
		}
		out.Amount = amount
	}
	return out, nil
}

func (h *CreateTransactionHandler) handle(ctx context.Context, input *CreateTransactionInput) (*CreateTransactionOutput, error) {
	create, err := parseCreateTransactionInput(input, h.Public)
	if err != nil {
		return nil, err
	}

	logData := logging.GetLogData(ctx)
	stopTimer := logData.AddTiming("createTransactionMs")
	result, err := h.TransactionService.CreateTransaction(ctx, create)
	stopTimer()
	if err != nil {
		return nil, httperror.From(err, "failed to create transaction")
	}

	return &CreateTransactionOutput{Body: CreateTransactionResponse{
		ID:               result.Transaction.ID.String(),
		Status:           string(result.Transaction.Status),
		PaymentURL:       result.PaymentURL,
		PaymentReference: result.PaymentReference,
	}}, nil
}
