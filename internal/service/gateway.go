package service

import (
	"context"

	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// PaymentGateway is the part of the ChillPay client the services use.
type PaymentGateway interface {
	Configured() bool
	GeneratePayLink(ctx context.Context, params chillpay.PayLinkParams) (*chillpay.PayLink, error)
	LookupStatus(ctx context.Context, candidates []chillpay.Candidate) (*chillpay.StatusResult, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

var _ PaymentGateway = (*chillpay.Client)(nil)

// lookupCandidates lists the identifiers stored on a transaction in the
// order the provider should be asked about them.
func lookupCandidates(tx *sqlconfig.Transaction) []chillpay.Candidate {
	return []chillpay.Candidate{
		{Kind: chillpay.CandidateChillPayTransactionID, Value: tx.Metadata.String(sqlconfig.MetaChillPayTransactionID)},
		{Kind: chillpay.CandidatePayLinkID, Value: tx.Metadata.String(sqlconfig.MetaPayLinkID)},
		{Kind: chillpay.CandidatePayLinkToken, Value: tx.Metadata.String(sqlconfig.MetaPayLinkToken)},
		{Kind: chillpay.CandidatePaymentReference, Value: tx.PaymentReference},
	}
}
