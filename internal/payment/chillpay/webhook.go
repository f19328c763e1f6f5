package chillpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// ComputeSignature is the hex HMAC-SHA256 of body under secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the signature header against the raw body.
// Without a webhook secret verification is disabled and every body passes.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c.cfg.WebhookSecret == "" {
		return true
	}
	signature = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(signature)), "sha256=")
	if signature == "" {
		return false
	}
	expected := ComputeSignature(body, c.cfg.WebhookSecret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// WebhookPayload is a provider push notification, either JSON or form encoded.
type WebhookPayload struct {
	TransactionID  string
	PayLinkID      string
	PayLinkToken   string
	Reference      string
	ProviderStatus string
	Outcome        Outcome
	Voided         bool
	Raw            Record
}

var (
	webhookTransactionIDExtractors = []extractor{field("TransactionId"), field("TransactionNo"), field("data", "transactionId")}
	webhookPayLinkIDExtractors     = []extractor{field("PayLinkId"), field("data", "payLinkId")}
	webhookPayLinkTokenExtractors  = []extractor{field("PayLinkToken"), field("Token"), field("data", "payLinkToken")}
	webhookReferenceExtractors     = []extractor{field("OrderNo"), field("Reference"), field("PaymentReference"), field("data", "orderNo")}
	webhookStatusExtractors        = []extractor{field("PaymentStatus"), field("Status"), field("data", "paymentStatus"), field("data", "status")}
)

// ParseWebhook decodes a webhook body. Anything that is not a JSON object is
// parsed as a form.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		values, formErr := url.ParseQuery(string(body))
		if formErr != nil {
			return nil, newError(ErrRejected, "ParseWebhook", "unreadable body", 0, formErr)
		}
		raw = make(map[string]any, len(values))
		for k := range values {
			raw[k] = values.Get(k)
		}
	}

	payload := &WebhookPayload{Raw: Record(raw)}
	payload.TransactionID, _ = firstMatch(raw, webhookTransactionIDExtractors)
	payload.PayLinkID, _ = firstMatch(raw, webhookPayLinkIDExtractors)
	payload.PayLinkToken, _ = firstMatch(raw, webhookPayLinkTokenExtractors)
	payload.Reference, _ = firstMatch(raw, webhookReferenceExtractors)
	payload.ProviderStatus, _ = firstMatch(raw, webhookStatusExtractors)
	payload.Outcome, payload.Voided = Normalize(payload.ProviderStatus)
	return payload, nil
}

// References lists the identifiers that may match a stored transaction, most
// specific first.
func (p *WebhookPayload) References() []string {
	var refs []string
	seen := map[string]bool{}
	for _, ref := range []string{p.PayLinkToken, p.PayLinkID, p.Reference, p.TransactionID} {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
