package sqlconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/lib/pq"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"
)

const (
	transactionsTable = "transactions"
	activitiesTable   = "transaction_activities"

	uniqueViolation pq.ErrorCode = "23505"
	defaultActor                 = "system"
)

var transactionColumns = []string{
	"id", "code", "customer_name", "avatar_url", "social_link", "quote",
	"display_seconds", "amount", "currency", "package_id", "payment_reference",
	"status", "metadata", "display_started_at", "display_estimated_end_at",
	"display_completed_at", "created_at", "updated_at",
}

var transactionColumnList = strings.Join(transactionColumns, ", ")

var _ ITransactionTable = (*TransactionsTable)(nil)

type TransactionsTable struct {
	db bob.DB
}

func NewTransactionsTable(db *sql.DB) *TransactionsTable {
	return &TransactionsTable{db: bob.NewDB(db)}
}

// Insert creates a transaction together with its first activity entry.
func (t *TransactionsTable) Insert(ctx context.Context, create *TransactionCreate) (*Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	createdAt := create.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata := create.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := psql.Insert(
		im.Into(transactionsTable,
			"id", "code", "customer_name", "avatar_url", "social_link", "quote",
			"display_seconds", "amount", "currency", "package_id", "status",
			"metadata", "created_at", "updated_at",
		),
		im.Values(psql.Arg(
			id, create.Code, create.CustomerName, create.AvatarURL, create.SocialLink, create.Quote,
			create.DisplaySeconds, create.Amount, create.Currency, create.PackageID, create.Status,
			metadata, createdAt, createdAt,
		)),
		im.Returning(columnsAsAny(transactionColumns)...),
	)
	row, err := bob.One(ctx, tx, q, scan.StructMapper[Transaction]())
	if err != nil {
		return nil, err
	}

	entry := create.Activity
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = createdAt
	}
	if err = insertActivity(ctx, tx, row.ID, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	row.ActivityLog = []Activity{entry}
	return &row, nil
}

// FindByID retrieves a transaction and its activity log.
func (t *TransactionsTable) FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row, err := t.selectOne(ctx, sm.Where(psql.Quote("id").EQ(psql.Arg(id))))
	if err != nil || row == nil {
		return row, err
	}

	q := psql.Select(
		sm.Columns("action", "description", "actor", "created_at"),
		sm.From(activitiesTable),
		sm.Where(psql.Quote("transaction_id").EQ(psql.Arg(id))),
		sm.OrderBy("created_at").Asc(),
		sm.OrderBy("seq").Asc(),
	)
	activities, err := bob.All(ctx, t.db, q, scan.StructMapper[Activity]())
	if err != nil {
		return nil, err
	}
	row.ActivityLog = activities
	return row, nil
}

// FindByReference matches the provider-facing identifiers recorded on a
// transaction: payment reference, pay-link token, pay-link id, provider
// transaction id, or our own id.
func (t *TransactionsTable) FindByReference(ctx context.Context, reference string) (*Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	q := psql.RawQuery(
		"SELECT "+transactionColumnList+" FROM "+transactionsTable+`
		WHERE payment_reference = ?
		   OR metadata->>'payLinkToken' = ?
		   OR metadata->>'payLinkId' = ?
		   OR metadata->>'chillpayTransactionId' = ?
		   OR id::text = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		reference, reference, reference, reference, reference,
	)
	return oneOrNil(bob.One(ctx, t.db, q, scan.StructMapper[Transaction]()))
}

func (t *TransactionsTable) FindDisplaying(ctx context.Context) (*Transaction, error) {
	return t.selectOne(ctx, sm.Where(psql.Quote("status").EQ(psql.Arg(StatusDisplaying))))
}

// List returns transactions matching the filter, newest first. Nil filter returns all.
func (t *TransactionsTable) List(ctx context.Context, filter *TransactionFilter) ([]*Transaction, error) {
	var queryMods []bob.Mod[*dialect.SelectQuery]
	if filter != nil {
		if filter.Status != nil {
			queryMods = append(queryMods, sm.Where(psql.Quote("status").EQ(psql.Arg(*filter.Status))))
		}
		if filter.MaxCreationTime != nil {
			queryMods = append(queryMods, sm.Where(psql.Quote("created_at").LTE(psql.Arg(*filter.MaxCreationTime))))
		}
		if filter.Limit > 0 {
			queryMods = append(queryMods, sm.Limit(filter.Limit+1))
		}
		if filter.Offset > 0 {
			queryMods = append(queryMods, sm.Offset(filter.Offset))
		}
	}
	queryMods = append(queryMods,
		sm.OrderBy("created_at").Desc(),
		sm.OrderBy("id").Desc(),
	)
	return t.selectAll(ctx, queryMods...)
}

// ListQueue returns paid transactions in the order the screen serves them.
func (t *TransactionsTable) ListQueue(ctx context.Context, limit int) ([]*Transaction, error) {
	return t.selectAll(ctx,
		sm.Where(psql.Quote("status").EQ(psql.Arg(StatusPaid))),
		sm.OrderBy("created_at").Asc(),
		sm.OrderBy("id").Asc(),
		sm.Limit(limit),
	)
}

// ListReconcileCandidates returns pending transactions that carry a pay-link
// token and have not yet exhausted their poll error budget, oldest first.
func (t *TransactionsTable) ListReconcileCandidates(ctx context.Context, limit int, maxErrors int) ([]*Transaction, error) {
	q := psql.RawQuery(
		"SELECT "+transactionColumnList+" FROM "+transactionsTable+`
		WHERE status = ?
		  AND COALESCE(metadata->>'payLinkToken', '') <> ''
		  AND COALESCE((metadata->>'pollErrorCount')::int, 0) < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		StatusPending, maxErrors, limit,
	)
	rows, err := bob.All(ctx, t.db, q, scan.StructMapper[Transaction]())
	if err != nil {
		return nil, err
	}
	return toPointers(rows), nil
}

// AppendActivity adds an audit entry without touching the transaction row.
func (t *TransactionsTable) AppendActivity(ctx context.Context, id uuid.UUID, entry Activity) error {
	return insertActivity(ctx, t.db, id, entry)
}

// UpdatePayment merges provider metadata and, when reference is non-empty,
// records the payment reference. Status is left alone.
func (t *TransactionsTable) UpdatePayment(ctx context.Context, id uuid.UUID, reference string, patch Metadata) error {
	q := psql.RawQuery(`
		UPDATE `+transactionsTable+`
		SET metadata = metadata || ?::jsonb,
		    payment_reference = CASE WHEN ?::text = '' THEN payment_reference ELSE ?::text END,
		    updated_at = ?
		WHERE id = ?`,
		patch, reference, reference, time.Now().UTC(), id,
	)
	_, err := bob.Exec(ctx, t.db, q)
	return err
}

// IncrementPollErrors bumps the poll error counter inside metadata and returns
// the new count. A missing transaction yields 0.
func (t *TransactionsTable) IncrementPollErrors(ctx context.Context, id uuid.UUID, message string, at time.Time) (int, error) {
	q := psql.RawQuery(`
		UPDATE `+transactionsTable+`
		SET metadata = metadata || jsonb_build_object(
		        'pollErrorCount', COALESCE((metadata->>'pollErrorCount')::int, 0) + 1,
		        'lastPollError', ?::text,
		        'lastPolledAt', ?::text),
		    updated_at = ?
		WHERE id = ?
		RETURNING (metadata->>'pollErrorCount')::int`,
		message, at.UTC().Format(time.RFC3339), at.UTC(), id,
	)
	count, err := bob.One(ctx, t.db, q, scan.SingleColumnMapper[int])
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// UpdateStatus moves a transaction from one status to another only if it is
// still in the expected status. The patch is applied in the same database
// transaction, so its activity entry exists only when the transition happened.
func (t *TransactionsTable) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, to Status, patch *TransactionPatch) (*Transaction, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("sqlconfig: unknown status %q", to)
	}
	if from.Terminal() {
		return nil, nil
	}
	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{to, now}

	if patch != nil {
		if len(patch.Metadata) > 0 {
			sets = append(sets, "metadata = metadata || ?::jsonb")
			args = append(args, patch.Metadata)
		}
		if v, ok := patch.DisplayStartedAt.Get(); ok {
			sets = append(sets, "display_started_at = COALESCE(display_started_at, ?::timestamptz)")
			args = append(args, v)
		}
		if v, ok := patch.DisplayEstimatedEndAt.Get(); ok {
			sets = append(sets, "display_estimated_end_at = COALESCE(display_estimated_end_at, ?::timestamptz)")
			args = append(args, v)
		}
		if v, ok := patch.DisplayCompletedAt.Get(); ok {
			sets = append(sets, "display_completed_at = COALESCE(display_completed_at, ?::timestamptz)")
			args = append(args, v)
		}
	}
	args = append(args, id, from)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := psql.RawQuery(
		"UPDATE "+transactionsTable+" SET "+strings.Join(sets, ", ")+
			" WHERE id = ? AND status = ? RETURNING "+transactionColumnList,
		args...,
	)
	row, err := bob.One(ctx, tx, q, scan.StructMapper[Transaction]())
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if patch != nil && patch.Activity != nil {
		entry := *patch.Activity
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if err = insertActivity(ctx, tx, id, entry); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ClaimNextPaid moves the oldest paid transaction to displaying in a single
// statement. It claims nothing while another row is displaying; a concurrent
// claimer that slips past that check is rejected by the
// transactions_single_displaying index and reported as nil.
func (t *TransactionsTable) ClaimNextPaid(ctx context.Context, startedAt time.Time) (*Transaction, error) {
	startedAt = startedAt.UTC()
	q := psql.RawQuery(`
		UPDATE `+transactionsTable+`
		SET status = ?,
		    display_started_at = ?::timestamptz,
		    display_estimated_end_at = ?::timestamptz + make_interval(secs => display_seconds),
		    updated_at = ?::timestamptz
		WHERE id = (
		        SELECT id FROM `+transactionsTable+`
		        WHERE status = ?
		        ORDER BY created_at ASC, id ASC
		        LIMIT 1
		        FOR UPDATE
		    )
		  AND status = ?
		  AND NOT EXISTS (SELECT 1 FROM `+transactionsTable+` WHERE status = ?)
		RETURNING `+transactionColumnList,
		StatusDisplaying, startedAt, startedAt, startedAt,
		StatusPaid, StatusPaid, StatusDisplaying,
	)
	row, err := bob.One(ctx, t.db, q, scan.StructMapper[Transaction]())
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Leaderboard groups paid and shown transactions by customer name.
func (t *TransactionsTable) Leaderboard(ctx context.Context, limit int) ([]*SupporterRow, error) {
	q := psql.RawQuery(`
		SELECT customer_name,
		       SUM(amount) AS total_amount,
		       SUM(display_seconds) AS total_seconds,
		       COUNT(*) AS transaction_count,
		       COALESCE((ARRAY_AGG(avatar_url ORDER BY created_at DESC) FILTER (WHERE avatar_url <> ''))[1], '') AS last_avatar_url,
		       MAX(created_at) AS last_supported_at
		FROM `+transactionsTable+`
		WHERE status IN (?, ?, ?)
		GROUP BY customer_name
		ORDER BY total_amount DESC, total_seconds DESC, customer_name ASC
		LIMIT ?`,
		StatusPaid, StatusDisplaying, StatusDisplayed, limit,
	)
	rows, err := bob.All(ctx, t.db, q, scan.StructMapper[SupporterRow]())
	if err != nil {
		return nil, err
	}
	result := make([]*SupporterRow, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (t *TransactionsTable) selectOne(ctx context.Context, queryMods ...bob.Mod[*dialect.SelectQuery]) (*Transaction, error) {
	q := psql.Select(append([]bob.Mod[*dialect.SelectQuery]{
		sm.Columns(columnsAsAny(transactionColumns)...),
		sm.From(transactionsTable),
	}, queryMods...)...)
	return oneOrNil(bob.One(ctx, t.db, q, scan.StructMapper[Transaction]()))
}

func (t *TransactionsTable) selectAll(ctx context.Context, queryMods ...bob.Mod[*dialect.SelectQuery]) ([]*Transaction, error) {
	q := psql.Select(append([]bob.Mod[*dialect.SelectQuery]{
		sm.Columns(columnsAsAny(transactionColumns)...),
		sm.From(transactionsTable),
	}, queryMods...)...)
	rows, err := bob.All(ctx, t.db, q, scan.StructMapper[Transaction]())
	if err != nil {
		return nil, err
	}
	return toPointers(rows), nil
}

func insertActivity(ctx context.Context, exec bob.Executor, id uuid.UUID, entry Activity) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = defaultActor
	}
	q := psql.Insert(
		im.Into(activitiesTable, "transaction_id", "action", "description", "actor", "created_at"),
		im.Values(psql.Arg(id, entry.Action, entry.Description, entry.Actor, entry.CreatedAt)),
	)
	_, err := bob.Exec(ctx, exec, q)
	return err
}

func oneOrNil(row Transaction, err error) (*Transaction, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func toPointers(rows []Transaction) []*Transaction {
	result := make([]*Transaction, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result
}

func columnsAsAny(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
