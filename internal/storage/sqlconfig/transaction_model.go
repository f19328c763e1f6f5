package sqlconfig

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a display request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusDisplaying Status = "displaying"
	StatusDisplayed  Status = "displayed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusDisplaying, StatusDisplayed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never transition again.
func (s Status) Terminal() bool {
	return s == StatusDisplayed || s == StatusFailed || s == StatusCancelled
}

// Metadata keys written by the payment and display paths.
const (
	MetaPayLinkToken          = "payLinkToken"
	MetaPayLinkID             = "payLinkId"
	MetaPaymentURL            = "paymentUrl"
	MetaChillPayTransactionID = "chillpayTransactionId"
	MetaChillPayStatus        = "chillpayStatus"
	MetaProductImage          = "productImage"
	MetaPollErrorCount        = "pollErrorCount"
	MetaLastPollError         = "lastPollError"
	MetaLastPolledAt          = "lastPolledAt"
)

// Metadata is the free-form JSON bag stored alongside a transaction.
type Metadata map[string]any

// Value stores Metadata as JSON text so lib/pq hands it to jsonb untouched.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("sqlconfig: cannot scan %T into Metadata", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// String returns the value at key rendered as a string, or "".
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value at key as an int, treating anything unparseable as 0.
func (m Metadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// Clone returns a shallow copy safe to mutate.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Activity is one append-only audit entry.
type Activity struct {
	Action      string    `db:"action"`
	Description string    `db:"description"`
	Actor       string    `db:"actor"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction represents a display request record.
type Transaction struct {
	ID                    uuid.UUID       `db:"id"`
	Code                  string          `db:"code"`
	CustomerName          string          `db:"customer_name"`
	AvatarURL             string          `db:"avatar_url"`
	SocialLink            string          `db:"social_link"`
	Quote                 string          `db:"quote"`
	DisplaySeconds        int             `db:"display_seconds"`
	Amount                decimal.Decimal `db:"amount"`
	Currency              string          `db:"currency"`
	PackageID             uuid.NullUUID   `db:"package_id"`
	PaymentReference      string          `db:"payment_reference"`
	Status                Status          `db:"status"`
	Metadata              Metadata        `db:"metadata"`
	DisplayStartedAt      *time.Time      `db:"display_started_at"`
	DisplayEstimatedEndAt *time.Time      `db:"display_estimated_end_at"`
	DisplayCompletedAt    *time.Time      `db:"display_completed_at"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`

	ActivityLog []Activity `db:"-"`
}

// TransactionCreate is the input for creating a new transaction.
type TransactionCreate struct {
	Code           string
	CustomerName   string
	AvatarURL      string
	SocialLink     string
	Quote          string
	DisplaySeconds int
	Amount         decimal.Decimal
	Currency       string
	PackageID      uuid.NullUUID
	Status         Status
	Metadata       Metadata
	Activity       Activity
	CreatedAt      time.Time // defaults to now if zero
}

// TransactionPatch carries the side effects applied together with a
// successful status transition.
type TransactionPatch struct {
	Metadata              Metadata
	DisplayStartedAt      omit.Val[time.Time]
	DisplayEstimatedEndAt omit.Val[time.Time]
	DisplayCompletedAt    omit.Val[time.Time]
	Activity              *Activity
}

// TransactionFilter specifies filters for listing transactions.
type TransactionFilter struct {
	Status          *Status
	Limit           int
	Offset          int
	MaxCreationTime *time.Time
}

// SupporterRow is one grouped leaderboard row, before avatar fallback.
type SupporterRow struct {
	CustomerName     string          `db:"customer_name"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	TotalSeconds     int             `db:"total_seconds"`
	TransactionCount int             `db:"transaction_count"`
	LastAvatarURL    string          `db:"last_avatar_url"`
	LastSupportedAt  time.Time       `db:"last_supported_at"`
}

var ErrDuplicateCode = errors.New("warp profile code already exists")

// ITransactionTable defines the interface for transaction storage operations.
// Lookups return a nil transaction rather than an error when nothing matches,
// and UpdateStatus returns nil when the expected status no longer holds or
// is terminal.
type ITransactionTable interface {
	Insert(ctx context.Context, create *TransactionCreate) (*Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindByReference(ctx context.Context, reference string) (*Transaction, error)
	FindDisplaying(ctx context.Context) (*Transaction, error)
	List(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error)
	ListQueue(ctx context.Context, limit int) ([]*Transaction, error)
	ListReconcileCandidates(ctx context.Context, limit int, maxErrors int) ([]*Transaction, error)
	AppendActivity(ctx context.Context, id uuid.UUID, entry Activity) error
	UpdatePayment(ctx context.Context, id uuid.UUID, reference string, patch Metadata) error
	IncrementPollErrors(ctx context.Context, id uuid.UUID, message string, at time.Time) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, to Status, patch *TransactionPatch) (*Transaction, error)
	ClaimNextPaid(ctx context.Context, startedAt time.Time) (*Transaction, error)
	Leaderboard(ctx context.Context, limit int) ([]*SupporterRow, error)
}
