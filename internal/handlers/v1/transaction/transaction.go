package transaction

import (
	"time"

	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

// Activity is one audit entry in the API response.
type Activity struct {
	Action      string `json:"action" doc:"What happened"`
	Description string `json:"description" doc:"Human readable detail"`
	Actor       string `json:"actor" doc:"Who caused it"`
	CreatedAt   string `json:"createdAt" doc:"RFC3339 time of the entry"`
}

// Transaction is the API response model for a transaction.
// It is used only for responses, not for request bodies.
type Transaction struct {
	ID                    string         `json:"id" doc:"Transaction UUID"`
	Code                  string         `json:"code" doc:"Warp profile code"`
	CustomerName          string         `json:"customerName"`
	AvatarURL             string         `json:"avatarUrl,omitempty"`
	SocialLink            string         `json:"socialLink"`
	Quote                 string         `json:"quote,omitempty"`
	DisplaySeconds        int            `json:"displaySeconds"`
	Amount                string         `json:"amount" doc:"Decimal amount"`
	Currency              string         `json:"currency"`
	PackageID             string         `json:"packageId,omitempty"`
	PaymentReference      string         `json:"paymentReference,omitempty"`
	Status                string         `json:"status"`
	Metadata              map[string]any `json:"metadata"`
	DisplayStartedAt      string         `json:"displayStartedAt,omitempty"`
	DisplayEstimatedEndAt string         `json:"displayEstimatedEndAt,omitempty"`
	DisplayCompletedAt    string         `json:"displayCompletedAt,omitempty"`
	CreatedAt             string         `json:"createdAt"`
	UpdatedAt             string         `json:"updatedAt"`
	ActivityLog           []Activity     `json:"activityLog,omitempty"`
}

func toTransaction(tx *sqlconfig.Transaction) Transaction {
	out := Transaction{
		ID:                    tx.ID.String(),
		Code:                  tx.Code,
		CustomerName:          tx.CustomerName,
		AvatarURL:             tx.AvatarURL,
		SocialLink:            tx.SocialLink,
		Quote:                 tx.Quote,
		DisplaySeconds:        tx.DisplaySeconds,
		Amount:                tx.Amount.StringFixed(2),
		Currency:              tx.Currency,
		PaymentReference:      tx.PaymentReference,
		Status:                string(tx.Status),
		Metadata:              tx.Metadata,
		DisplayStartedAt:      formatOptional(tx.DisplayStartedAt),
		DisplayEstimatedEndAt: formatOptional(tx.DisplayEstimatedEndAt),
		DisplayCompletedAt:    formatOptional(tx.DisplayCompletedAt),
		CreatedAt:             tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             tx.UpdatedAt.Format(time.RFC3339),
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if tx.PackageID.Valid {
		out.PackageID = tx.PackageID.UUID.String()
	}
	for _, a := range tx.ActivityLog {
		out.ActivityLog = append(out.ActivityLog, Activity{
			Action:      a.Action,
			Description: a.Description,
			Actor:       a.Actor,
			CreatedAt:   a.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
