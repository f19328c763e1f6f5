package transaction

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// publicPendingNote replaces provider notes on the customer-facing endpoint.
const publicPendingNote = "still checking"

// CheckStatusResponse is the result of a forced status check.
type CheckStatusResponse struct {
	Status         string `json:"status" doc:"Transaction status after the check"`
	ChillPayStatus string `json:"chillpayStatus,omitempty" doc:"Last status reported by ChillPay"`
	Note           string `json:"note,omitempty" doc:"Why the status could not be confirmed"`
}

type CheckStatusOutput struct {
	Body CheckStatusResponse
}

// PublicCheckStatusBody identifies a transaction by id or provider reference.
type PublicCheckStatusBody struct {
	TransactionID string `json:"transactionId,omitempty" doc:"Transaction UUID"`
	Reference     string `json:"reference,omitempty" doc:"Payment reference, pay-link token or pay-link id"`
}

type PublicCheckStatusInput struct {
	Body PublicCheckStatusBody
}

type statusChecker interface {
	CheckOne(ctx context.Context, id uuid.UUID) (*service.CheckStatusResult, error)
	CheckByReference(ctx context.Context, transactionID, reference string) (*service.CheckStatusResult, error)
}

// CheckStatusHandler handles the admin and public check-status endpoints.
type CheckStatusHandler struct {
	Reconciler statusChecker
}

func NewCheckStatusHandler(svc statusChecker) *CheckStatusHandler {
	return &CheckStatusHandler{Reconciler: svc}
}

func (h *CheckStatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "check-transaction-status",
		Method:      http.MethodPost,
		Path:        "/transactions/{id}/check-status",
		Summary:     "Check payment status",
		Description: "Asks ChillPay for the payment status of one transaction now, ignoring its poll error count.",
		Tags:        []string{"Transactions"},
		Security:    auth.Admin,
	}, h.handleAdmin)

	huma.Register(api, huma.Operation{
		OperationID: "check-public-transaction-status",
		Method:      http.MethodPost,
		Path:        "/public/transactions/check-status",
		Summary:     "Check payment status (customer)",
		Description: "Checks a transaction by id or provider reference without exposing provider details.",
		Tags:        []string{"Transactions"},
	}, h.handlePublic)
}

func (h *CheckStatusHandler) handleAdmin(ctx context.Context, input *TransactionIDInput) (*CheckStatusOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	res, err := h.Reconciler.CheckOne(ctx, id)
	if err != nil {
		return nil, httperror.From(err, "failed to check status")
	}
	return &CheckStatusOutput{Body: CheckStatusResponse{
		Status:         string(res.Status),
		ChillPayStatus: res.ChillPayStatus,
		Note:           res.Note,
	}}, nil
}

func (h *CheckStatusHandler) handlePublic(ctx context.Context, input *PublicCheckStatusInput) (*CheckStatusOutput, error) {
	res, err := h.Reconciler.CheckByReference(ctx, input.Body.TransactionID, input.Body.Reference)
	switch {
	case errors.Is(err, chillpay.ErrUnconfigured), errors.Is(err, chillpay.ErrRejected):
		// only pending transactions reach the gateway
		return &CheckStatusOutput{Body: CheckStatusResponse{
			Status: string(sqlconfig.StatusPending),
			Note:   publicPendingNote,
		}}, nil
	case err != nil:
		return nil, httperror.From(err, "failed to check status")
	}

	out := &CheckStatusOutput{Body: CheckStatusResponse{Status: string(res.Status)}}
	if res.Status == sqlconfig.StatusPending {
		out.Body.Note = publicPendingNote
	}
	return out, nil
}
