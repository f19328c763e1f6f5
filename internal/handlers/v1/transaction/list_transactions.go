package transaction

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// ListTransactionsCursor represents a pagination cursor in responses.
// It bundles position, limit, and maxCreationTime so subsequent pages use consistent parameters.
type ListTransactionsCursor struct {
	Position        int    `json:"position" doc:"Numeric offset position for the next page"`
	Limit           int    `json:"limit" doc:"Page size used for this cursor"`
	MaxCreationTime string `json:"maxCreationTime" doc:"Upper bound on created_at locked in from the first page"`
}

// ListTransactionsInput is the Huma input for listing transactions. The
// cursor fields are echoed back from a previous nextCursor.
type ListTransactionsInput struct {
	Status          string `query:"status" enum:"pending,paid,displaying,displayed,failed,cancelled" doc:"Only transactions in this status"`
	Position        int    `query:"position" minimum:"0" doc:"Cursor position"`
	Limit           int    `query:"limit" minimum:"0" maximum:"100" doc:"Cursor page size"`
	MaxCreationTime string `query:"maxCreationTime" doc:"Cursor creation time bound"`
}

// ListTransactionsResponseBody is the response body for listing transactions.
type ListTransactionsResponseBody struct {
	Transactions []Transaction           `json:"transactions" doc:"Page of transactions, newest first"`
	NextCursor   *ListTransactionsCursor `json:"nextCursor,omitempty" doc:"Cursor to fetch the next page, absent on the last page"`
}

// ListTransactionsOutput is the Huma output for listing transactions.
type ListTransactionsOutput struct {
	Body ListTransactionsResponseBody
}

type transactionLister interface {
	ListTransactions(ctx context.Context, cursor *service.TransactionCursor, status *sqlconfig.Status) ([]*sqlconfig.Transaction, *service.TransactionCursor, error)
}

// ListTransactionsHandler handles GET /transactions.
type ListTransactionsHandler struct {
	TransactionService transactionLister
}

// NewListTransactionsHandler creates a new ListTransactionsHandler.
func NewListTransactionsHandler(svc transactionLister) *ListTransactionsHandler {
	return &ListTransactionsHandler{TransactionService: svc}
}

// Register registers the list transactions endpoint with the Huma API.
func (h *ListTransactionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/transactions",
		Summary:     "List transactions",
		Description: "Returns a paginated list of transactions using cursor-based pagination.",
		Tags:        []string{"Transactions"},
		Security:    auth.Admin,
	}, h.handle)
}

// parseListTransactionsInput parses and validates the API input.
// A cursor is only built when maxCreationTime is present; without one, the
// service uses its default limit.
func parseListTransactionsInput(input *ListTransactionsInput) (cursor *service.TransactionCursor, status *sqlconfig.Status, err error) {
	if input.Status != "" {
		s := sqlconfig.Status(input.Status)
		status = &s
	}

	if input.MaxCreationTime == "" {
		return nil, status, nil
	}

	maxCreationTime, parseErr := time.Parse(time.RFC3339, input.MaxCreationTime)
	if parseErr != nil {
		return nil, nil, huma.NewError(http.StatusBadRequest, "invalid cursor maxCreationTime", parseErr)
	}
	limit := input.Limit
	if limit == 0 {
		limit = 20
	}

	return &service.TransactionCursor{
		Position:        input.Position,
		Limit:           limit,
		MaxCreationTime: maxCreationTime,
	}, status, nil
}

func (h *ListTransactionsHandler) handle(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	logData := logging.GetLogData(ctx)
	requestCursor, status, err := parseListTransactionsInput(input)
	if err != nil {
		return nil, err
	}

	stopTimer := logData.AddTiming("listTransactionsMs")
	transactions, nextCursor, err := h.TransactionService.ListTransactions(ctx, requestCursor, status)
	stopTimer()
	if err != nil {
		return nil, httperror.From(err, "failed to list transactions")
	}

	logData.AddData("transactionCount", len(transactions))

	resp := ListTransactionsResponseBody{
		Transactions: make([]Transaction, len(transactions)),
	}

	for i, tx := range transactions {
		resp.Transactions[i] = toTransaction(tx)
		// activity logs are only returned by the detail endpoint
		resp.Transactions[i].ActivityLog = nil
	}

	if nextCursor != nil {
		resp.NextCursor = &ListTransactionsCursor{
			Position:        nextCursor.Position,
			Limit:           nextCursor.Limit,
			MaxCreationTime: nextCursor.MaxCreationTime.Format(time.RFC3339Nano),
		}
	}

	return &ListTransactionsOutput{Body: resp}, nil
}
