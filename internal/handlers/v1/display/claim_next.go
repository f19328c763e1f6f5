package display

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/logging"
)

// ClaimNextHandler handles POST /public/display/next.
type ClaimNextHandler struct {
	DisplayService displayService
}

func NewClaimNextHandler(svc displayService) *ClaimNextHandler {
	return &ClaimNextHandler{DisplayService: svc}
}

func (h *ClaimNextHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "claim-next-display",
		Method:      http.MethodPost,
		Path:        "/public/display/next",
		Summary:     "Claim next display",
		Description: "Returns the transaction on screen, claiming the oldest paid one when the screen is free. " +
			"Responds 204 when nothing is waiting.",
		Tags: []string{"Display"},
		Responses: map[string]*huma.Response{
			"200": {Description: "Transaction to display"},
			"204": {Description: "Queue is empty"},
		},
	}, h.handle)
}

func (h *ClaimNextHandler) handle(ctx context.Context, _ *struct{}) (*huma.StreamResponse, error) {
	tx, err := h.DisplayService.ClaimNext(ctx)
	if err != nil {
		return nil, httperror.From(err, "failed to claim next display")
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			if tx == nil {
				hctx.SetStatus(http.StatusNoContent)
				return
			}
			logging.GetLogData(ctx).AddData("displayTransactionID", tx.ID.String())
			hctx.SetHeader("Content-Type", "application/json")
			hctx.SetStatus(http.StatusOK)
			_ = json.NewEncoder(hctx.BodyWriter()).Encode(toItem(tx))
		},
	}, nil
}
