package chillpay

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

const (
	pathTransactionDetails = "/api/v1/paylink/details"
	pathSearchTransactions = "/api/v1/paylink/search"

	searchPageSize = 10
)

// Record is one provider transaction as returned by details or search.
type Record map[string]any

var (
	recordStatusExtractors = []extractor{
		field("paymentStatus"),
		field("transactionStatus"),
		field("status"),
	}
	recordIDExtractors = []extractor{
		field("transactionId"),
		field("transactionNo"),
		field("id"),
	}
)

// Status returns the provider's textual payment status.
func (r Record) Status() string {
	v, _ := firstMatch(r, recordStatusExtractors)
	return v
}

// TransactionID returns the provider's transaction id.
func (r Record) TransactionID() string {
	v, _ := firstMatch(r, recordIDExtractors)
	return v
}

// Outcome is a provider status collapsed to what the state machine needs.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

var failureMarkers = []string{"fail", "void", "cancel", "error", "expire", "reject", "unsuccess"}

// Normalize maps a provider status to an outcome and reports whether it was
// a void, which also undoes an already recorded payment. Failure markers win
// over "success" so that "Void Success" is a failure.
func Normalize(status string) (Outcome, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return OutcomePending, false
	}
	for _, marker := range failureMarkers {
		if strings.Contains(s, marker) {
			return OutcomeFailed, strings.Contains(s, "void")
		}
	}
	if strings.Contains(s, "success") || s == "paid" || s == "complete" || s == "completed" {
		return OutcomeSuccess, false
	}
	return OutcomePending, false
}

type detailsRequest struct {
	TransactionID int64  `json:"TransactionId"`
	CheckSum      string `json:"CheckSum"`
}

// GetTransactionDetails looks up a provider transaction by numeric id.
func (c *Client) GetTransactionDetails(ctx context.Context, id int64) (Record, error) {
	const op = "GetTransactionDetails"
	idText := strconv.FormatInt(id, 10)
	resp, err := c.post(ctx, op, pathTransactionDetails, detailsRequest{
		TransactionID: id,
		CheckSum:      Checksum(c.cfg.MD5Secret, idText),
	})
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"data", "result"} {
		if obj, ok := asMap(lookup(resp, key)); ok && len(obj) > 0 {
			return Record(obj), nil
		}
	}
	return nil, newError(ErrNotFound, op, "no record for "+idText, 0, nil)
}

type SearchFilter struct {
	Keyword   string
	PayLinkID string
}

type searchRequest struct {
	SearchKeyword string `json:"SearchKeyword"`
	PayLinkID     string `json:"PayLinkId"`
	PageSize      int    `json:"PageSize"`
	PageNumber    int    `json:"PageNumber"`
	OrderBy       string `json:"OrderBy"`
	OrderDir      string `json:"OrderDir"`
	CheckSum      string `json:"CheckSum"`
}

// SearchTransactions runs the provider's filtered search, newest first.
func (c *Client) SearchTransactions(ctx context.Context, filter SearchFilter) ([]Record, error) {
	req := searchRequest{
		SearchKeyword: filter.Keyword,
		PayLinkID:     filter.PayLinkID,
		PageSize:      searchPageSize,
		PageNumber:    1,
		OrderBy:       "TransactionDate",
		OrderDir:      "DESC",
	}
	req.CheckSum = Checksum(c.cfg.MD5Secret,
		req.SearchKeyword,
		req.PayLinkID,
		strconv.Itoa(req.PageSize),
		strconv.Itoa(req.PageNumber),
		req.OrderBy,
		req.OrderDir,
	)

	resp, err := c.post(ctx, "SearchTransactions", pathSearchTransactions, req)
	if err != nil {
		return nil, err
	}
	return searchRecords(resp), nil
}

// searchRecords accepts data as a list or as an object wrapping one.
func searchRecords(resp Response) []Record {
	candidates := []any{lookup(resp, "data"), lookup(resp, "result")}
	if obj, ok := asMap(lookup(resp, "data")); ok {
		candidates = append(candidates, lookup(obj, "items"), lookup(obj, "records"))
	}
	for _, c := range candidates {
		list, ok := c.([]any)
		if !ok {
			continue
		}
		records := make([]Record, 0, len(list))
		for _, item := range list {
			if obj, ok := asMap(item); ok {
				records = append(records, Record(obj))
			}
		}
		return records
	}
	return nil
}

// CandidateKind names the stored identifier a lookup candidate came from.
type CandidateKind string

const (
	CandidateChillPayTransactionID CandidateKind = "chillpayTransactionId"
	CandidatePayLinkID             CandidateKind = "payLinkId"
	CandidatePayLinkToken          CandidateKind = "payLinkToken"
	CandidatePaymentReference      CandidateKind = "paymentReference"
)

type Candidate struct {
	Kind  CandidateKind
	Value string
}

type StatusResult struct {
	Outcome        Outcome
	Voided         bool
	ProviderStatus string
	TransactionID  string
	Candidate      Candidate
	Record         Record
}

// LookupStatus resolves a payment by trying candidates in order. Numeric
// candidates are first tried against the exact-id endpoint; every candidate
// is then tried against the search endpoint. The first record found wins.
//
// When nothing matches, the most severe failure seen is returned, with
// ErrNotFound when every call simply came back empty. ErrUnconfigured aborts
// immediately.
func (c *Client) LookupStatus(ctx context.Context, candidates []Candidate) (*StatusResult, error) {
	const op = "LookupStatus"
	if !c.Configured() {
		return nil, newError(ErrUnconfigured, op, "", 0, nil)
	}

	var worst error
	keep := func(err error) {
		if severity(err) > severity(worst) || worst == nil {
			worst = err
		}
	}

	for _, candidate := range candidates {
		if candidate.Value == "" {
			continue
		}

		if id, err := strconv.ParseInt(candidate.Value, 10, 64); err == nil {
			record, err := c.GetTransactionDetails(ctx, id)
			if err == nil {
				return newStatusResult(record, candidate), nil
			}
			if errors.Is(err, ErrUnconfigured) {
				return nil, err
			}
			keep(err)
		}

		records, err := c.SearchTransactions(ctx, SearchFilter{Keyword: candidate.Value})
		if err != nil {
			if errors.Is(err, ErrUnconfigured) {
				return nil, err
			}
			keep(err)
			continue
		}
		if len(records) > 0 {
			return newStatusResult(records[0], candidate), nil
		}
		keep(newError(ErrNotFound, op, "no record for "+string(candidate.Kind), 0, nil))
	}

	if worst == nil || severity(worst) == 0 {
		return nil, newError(ErrNotFound, op, "no candidate identifiers", 0, worst)
	}
	return nil, worst
}

func newStatusResult(record Record, candidate Candidate) *StatusResult {
	status := record.Status()
	outcome, voided := Normalize(status)
	return &StatusResult{
		Outcome:        outcome,
		Voided:         voided,
		ProviderStatus: status,
		TransactionID:  record.TransactionID(),
		Candidate:      candidate,
		Record:         record,
	}
}
