package display

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gofrs/uuid/v5"

	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
)

type CompleteInput struct {
	ID string `path:"id" doc:"Transaction UUID"`
}

type CompleteOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// CompleteHandler handles POST /public/display/{id}/complete.
type CompleteHandler struct {
	DisplayService displayService
}

func NewCompleteHandler(svc displayService) *CompleteHandler {
	return &CompleteHandler{DisplayService: svc}
}

func (h *CompleteHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-display",
		Method:      http.MethodPost,
		Path:        "/public/display/{id}/complete",
		Summary:     "Complete display",
		Description: "Marks the transaction on screen as displayed. Any other id responds 404.",
		Tags:        []string{"Display"},
	}, h.handle)
}

func (h *CompleteHandler) handle(ctx context.Context, input *CompleteInput) (*CompleteOutput, error) {
	id, err := uuid.FromString(input.ID)
	if err != nil {
		// an unknown id is simply not the one on screen
		return nil, huma.NewError(http.StatusNotFound, "transaction is not displaying")
	}
	if _, err := h.DisplayService.Complete(ctx, id); err != nil {
		return nil, httperror.From(err, "failed to complete display")
	}
	out := &CompleteOutput{}
	out.Body.Success = true
	return out, nil
}
