// Package chillpay talks to the ChillPay pay-link API: it creates signed
// pay-links, looks up payment status and verifies webhook deliveries.
package chillpay

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

const (
	headerMerchantCode = "CHILLPAY-MerchantCode"
	headerAPIKey       = "CHILLPAY-ApiKey"

	defaultMaxRetries    = 2
	defaultRetryInterval = 200 * time.Millisecond
	maxResponseBytes     = 1 << 20
)

type Config struct {
	BaseURL       string
	MerchantCode  string
	APIKey        string
	MD5Secret     string
	WebhookSecret string
	PaymentLimit  int
	LinkTTL       time.Duration

	HTTPClient    *http.Client
	Logger        *logrus.Logger
	MaxRetries    uint64
	RetryInterval time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.PaymentLimit <= 0 {
		cfg.PaymentLimit = 1
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 30 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{cfg: cfg, httpClient: httpClient, logger: logger, now: time.Now}
}

// Configured reports whether pay-links can be issued.
func (c *Client) Configured() bool {
	return c.cfg.MerchantCode != "" && c.cfg.APIKey != "" && c.cfg.MD5Secret != ""
}

// Checksum is the provider's MD5 digest: the values concatenated in order
// with the shared secret appended, hex encoded.
func Checksum(secret string, values ...string) string {
	sum := md5.Sum([]byte(strings.Join(values, "") + secret))
	return hex.EncodeToString(sum[:])
}

// Response is a decoded provider answer. Its shape varies by endpoint.
type Response map[string]any

// post sends payload to path, retrying transient failures with exponential
// backoff. 4xx answers and malformed bodies are not retried.
func (c *Client) post(ctx context.Context, op, path string, payload any) (Response, error) {
	if !c.Configured() {
		return nil, newError(ErrUnconfigured, op, "", 0, nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(ErrRejected, op, "encode request", 0, err)
	}

	var resp Response
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(newError(ErrRejected, op, "build request", 0, err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(headerMerchantCode, c.cfg.MerchantCode)
		req.Header.Set(headerAPIKey, c.cfg.APIKey)

		res, err := c.httpClient.Do(req)
		if err != nil {
			return newError(ErrTransient, op, "request failed", 0, err)
		}
		defer res.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
		if err != nil {
			return newError(ErrTransient, op, "read response", res.StatusCode, err)
		}

		switch {
		case res.StatusCode >= http.StatusInternalServerError:
			return newError(ErrTransient, op, statusNote(raw, res.Status), res.StatusCode, nil)
		case res.StatusCode == http.StatusNotFound:
			return backoff.Permanent(newError(ErrNotFound, op, statusNote(raw, res.Status), res.StatusCode, nil))
		case res.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(newError(ErrRejected, op, statusNote(raw, res.Status), res.StatusCode, nil))
		}

		parsed := Response{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			c.logger.Debugf("chillpay.%s.unparseable response: %s", op, spew.Sdump(raw))
			return backoff.Permanent(newError(ErrRejected, op, "unparseable response", res.StatusCode, err))
		}

		if code, kind := bodyStatus(parsed); kind != nil {
			gwErr := newError(kind, op, message(parsed), code, nil)
			if kind == ErrTransient {
				return gwErr
			}
			return backoff.Permanent(gwErr)
		}

		resp = parsed
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.cfg.MaxRetries), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			c.logger.WithError(err).WithField("op", op).Warn("chillpay.request.failed")
			return nil, gwErr
		}
		return nil, newError(ErrTransient, op, "request aborted", 0, err)
	}
	return resp, nil
}

// bodyStatus classifies the status code some endpoints embed in a 200 body.
func bodyStatus(resp Response) (int, error) {
	code := 0
	switch v := lookup(resp, "status").(type) {
	case float64:
		code = int(v)
	case string:
		code, _ = strconv.Atoi(v)
	}
	switch {
	case code == 0 || (code >= 200 && code < 300):
		return code, nil
	case code == http.StatusNotFound:
		return code, ErrNotFound
	case code >= http.StatusInternalServerError:
		return code, ErrTransient
	case code >= http.StatusBadRequest:
		return code, ErrRejected
	}
	return code, nil
}

func message(resp Response) string {
	if v, ok := lookup(resp, "message").(string); ok {
		return v
	}
	return ""
}

func statusNote(raw []byte, fallback string) string {
	parsed := Response{}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if msg := message(parsed); msg != "" {
			return msg
		}
	}
	return fallback
}
