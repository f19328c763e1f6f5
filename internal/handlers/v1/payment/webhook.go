package payment

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/service"
)

// WebhookInput keeps the body raw; the signature covers its exact bytes.
type WebhookInput struct {
	Signature string `header:"x-chillpay-signature" doc:"Hex HMAC-SHA256 of the body"`
	RawBody   []byte
}

type WebhookOutput struct {
	Body struct {
		Received bool `json:"received"`
	}
}

type webhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*service.WebhookResult, error)
}

// WebhookHandler handles POST /payments/webhook.
type WebhookHandler struct {
	PaymentService webhookHandler
}

func NewWebhookHandler(svc webhookHandler) *WebhookHandler {
	return &WebhookHandler{PaymentService: svc}
}

func (h *WebhookHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "chillpay-webhook",
		Method:      http.MethodPost,
		Path:        "/payments/webhook",
		Summary:     "ChillPay webhook",
		Description: "Receives payment notifications. Unknown references are acknowledged and ignored.",
		Tags:        []string{"Payments"},
	}, h.handle)
}

func (h *WebhookHandler) handle(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
	logData := logging.GetLogData(ctx)

	result, err := h.PaymentService.HandleWebhook(ctx, input.RawBody, input.Signature)
	if err != nil {
		return nil, httperror.From(err, "failed to process webhook")
	}
	logData.AddData("matched", result.Matched)
	if result.Matched {
		logData.AddData("status", string(result.Status))
	}

	out := &WebhookOutput{}
	out.Body.Received = true
	return out, nil
}
