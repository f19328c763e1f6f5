package transaction

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type transactionCanceller interface {
	CancelTransaction(ctx context.Context, id uuid.UUID) (*sqlconfig.Transaction, error)
}

// CancelTransactionHandler handles POST /transactions/{id}/cancel.
type CancelTransactionHandler struct {
	TransactionService transactionCanceller
}

func NewCancelTransactionHandler(svc transactionCanceller) *CancelTransactionHandler {
	return &CancelTransactionHandler{TransactionService: svc}
}

func (h *CancelTransactionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "cancel-transaction",
		Method:      http.MethodPost,
		Path:        "/transactions/{id}/cancel",
		Summary:     "Cancel transaction",
		Description: "Cancels a transaction that is still awaiting payment.",
		Tags:        []string{"Transactions"},
		Security:    auth.Admin,
	}, h.handle)
}

func (h *CancelTransactionHandler) handle(ctx context.Context, input *TransactionIDInput) (*TransactionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	tx, err := h.TransactionService.CancelTransaction(ctx, id)
	if err != nil {
		return nil, httperror.From(err, "failed to cancel transaction")
	}
	return &TransactionOutput{Body: toTransaction(tx)}, nil
}
