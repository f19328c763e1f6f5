package chillpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:       server.URL + "/",
		MerchantCode:  "M001",
		APIKey:        "api-key",
		MD5Secret:     "md5-secret",
		WebhookSecret: "hook-secret",
		PaymentLimit:  1,
		LinkTTL:       30 * time.Minute,
		RetryInterval: time.Millisecond,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestChecksum(t *testing.T) {
	// md5("abcsecret")
	assert.Equal(t, "33e7cb694fb6fb2f848af6774d9ff138", Checksum("secret", "a", "b", "c"))
}

func TestPaymentURL_ExtractorOrder(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		want string
	}{
		{"data.paymentUrl", Response{"data": map[string]any{"paymentUrl": "https://a"}}, "https://a"},
		{"top level", Response{"paymentUrl": "https://b"}, "https://b"},
		{"result", Response{"result": map[string]any{"PaymentURL": "https://c"}}, "https://c"},
		{"qr image", Response{"data": map[string]any{"qrImage": "https://d"}}, "https://d"},
		{"data wins", Response{"paymentUrl": "https://b", "data": map[string]any{"paymentUrl": "https://a"}}, "https://a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := PaymentURL(tc.resp)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := PaymentURL(Response{"data": map[string]any{"paymentUrl": ""}})
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	cases := map[string]struct {
		outcome Outcome
		voided  bool
	}{
		"Success":      {OutcomeSuccess, false},
		"paid":         {OutcomeSuccess, false},
		"Fail":         {OutcomeFailed, false},
		"Cancel":       {OutcomeFailed, false},
		"Void Success": {OutcomeFailed, true},
		"Expired":      {OutcomeFailed, false},
		"Waiting":      {OutcomePending, false},
		"":             {OutcomePending, false},
	}
	for status, want := range cases {
		outcome, voided := Normalize(status)
		assert.Equal(t, want.outcome, outcome, status)
		assert.Equal(t, want.voided, voided, status)
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(10050), MinorUnits(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(100), MinorUnits(decimal.RequireFromString("0.995")))
}

func TestGeneratePayLink_SignsRequest(t *testing.T) {
	var captured payLinkRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathGeneratePayLink, r.URL.Path)
		assert.Equal(t, "M001", r.Header.Get(headerMerchantCode))
		assert.Equal(t, "api-key", r.Header.Get(headerAPIKey))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"data": map[string]any{
				"payLinkId":    1234,
				"payLinkToken": "tok-abc",
				"paymentUrl":   "https://pay.example/abc",
			},
		})
	})
	client.now = func() time.Time { return time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC) }

	link, err := client.GeneratePayLink(context.Background(), PayLinkParams{
		ProductName:        "Warp DJ001",
		ProductDescription: "30 seconds",
		Amount:             decimal.RequireFromString("99.50"),
		Currency:           "thb",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/abc", link.URL)
	assert.Equal(t, "1234", link.ID)
	assert.Equal(t, "tok-abc", link.Token)

	assert.Equal(t, "01/03/2025 20:00:00", captured.StartDate)
	assert.Equal(t, "01/03/2025 20:30:00", captured.ExpiredDate)
	assert.Equal(t, "764", captured.Currency)
	assert.Equal(t, int64(9950), captured.Amount)
	assert.Equal(t, Checksum("md5-secret",
		"", "Warp DJ001", "30 seconds", "1",
		"01/03/2025 20:00:00", "01/03/2025 20:30:00", "764", "9950",
	), captured.CheckSum)
}

func TestGeneratePayLink_MissingURLIsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "data": map[string]any{}})
	})

	_, err := client.GeneratePayLink(context.Background(), PayLinkParams{Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestPost_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"paymentUrl": "https://pay.example/x"})
	})

	link, err := client.GeneratePayLink(context.Background(), PayLinkParams{Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/x", link.URL)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_RejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Invalid CheckSum"})
	})

	_, err := client.CreatePayLink(context.Background(), PayLinkParams{Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "Invalid CheckSum", Note(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPost_StatusInBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": 404, "message": "Not Found"})
	})

	_, err := client.GetTransactionDetails(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnconfigured(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, client.Configured())

	_, err := client.LookupStatus(context.Background(), []Candidate{{Kind: CandidatePayLinkToken, Value: "tok"}})
	assert.ErrorIs(t, err, ErrUnconfigured)

	var gwErr *GatewayError
	assert.True(t, errors.As(err, &gwErr))
}

func TestLookupStatus_NumericCandidateUsesDetails(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"data":   map[string]any{"transactionId": 555, "paymentStatus": "Success"},
		})
	})

	result, err := client.LookupStatus(context.Background(), []Candidate{
		{Kind: CandidateChillPayTransactionID, Value: "555"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "555", result.TransactionID)
	assert.Equal(t, []string{pathTransactionDetails}, paths)
}

func TestLookupStatus_NonNumericSkipsDetails(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.SearchKeyword != "tok-2" {
			writeJSON(w, http.StatusOK, map[string]any{"status": 200, "data": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"data":   map[string]any{"items": []any{map[string]any{"transactionId": 9, "status": "Cancel"}}},
		})
	})

	result, err := client.LookupStatus(context.Background(), []Candidate{
		{Kind: CandidatePayLinkToken, Value: "tok-1"},
		{Kind: CandidatePaymentReference, Value: "tok-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, CandidatePaymentReference, result.Candidate.Kind)
	assert.Equal(t, []string{pathSearchTransactions, pathSearchTransactions}, paths)
}

func TestLookupStatus_TransientOutranksNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.SearchKeyword == "tok-1" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "data": []any{}})
	})

	_, err := client.LookupStatus(context.Background(), []Candidate{
		{Kind: CandidatePayLinkToken, Value: "tok-1"},
		{Kind: CandidatePaymentReference, Value: "ref-1"},
	})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestLookupStatus_AllEmptyIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "data": []any{}})
	})

	_, err := client.LookupStatus(context.Background(), []Candidate{{Kind: CandidatePayLinkToken, Value: "tok"}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.LookupStatus(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "hook-secret"})
	body := []byte(`{"PayLinkToken":"tok","PaymentStatus":"Success"}`)
	sig := ComputeSignature(body, "hook-secret")

	assert.True(t, client.VerifyWebhookSignature(body, sig))
	assert.True(t, client.VerifyWebhookSignature(body, "sha256="+sig))
	assert.False(t, client.VerifyWebhookSignature(body, ""))
	assert.False(t, client.VerifyWebhookSignature(append(body, ' '), sig))

	open := NewClient(Config{})
	assert.True(t, open.VerifyWebhookSignature(body, ""))
}

func TestParseWebhook(t *testing.T) {
	payload, err := ParseWebhook([]byte(`{"PayLinkToken":"tok","TransactionId":42,"PaymentStatus":"Success"}`))
	require.NoError(t, err)
	assert.Equal(t, "tok", payload.PayLinkToken)
	assert.Equal(t, "42", payload.TransactionID)
	assert.Equal(t, OutcomeSuccess, payload.Outcome)
	assert.Equal(t, []string{"tok", "42"}, payload.References())

	form, err := ParseWebhook([]byte("OrderNo=ref-1&PaymentStatus=Void+Success"))
	require.NoError(t, err)
	assert.Equal(t, "ref-1", form.Reference)
	assert.Equal(t, OutcomeFailed, form.Outcome)
	assert.True(t, form.Voided)
}
