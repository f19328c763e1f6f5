package chillpay

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"
)

const (
	pathGeneratePayLink = "/api/v1/paylink/generate"

	dateLayout = "02/01/2006 15:04:05"
)

// Bangkok is the provider's local time, used for pay-link validity windows.
var Bangkok = time.FixedZone("Asia/Bangkok", 7*60*60)

var currencyCodes = map[string]string{
	"THB": "764",
	"USD": "840",
}

type PayLinkParams struct {
	ProductName        string
	ProductDescription string
	ProductImage       string
	Amount             decimal.Decimal
	Currency           string
	// StartAt defaults to now; the link expires after the configured TTL.
	StartAt time.Time
}

type payLinkRequest struct {
	ProductImage       string `json:"ProductImage"`
	ProductName        string `json:"ProductName"`
	ProductDescription string `json:"ProductDescription"`
	PaymentLimit       int    `json:"PaymentLimit"`
	StartDate          string `json:"StartDate"`
	ExpiredDate        string `json:"ExpiredDate"`
	Currency           string `json:"Currency"`
	Amount             int64  `json:"Amount"`
	CheckSum           string `json:"CheckSum"`
}

// PayLink is the useful part of a generated pay-link.
type PayLink struct {
	URL   string
	ID    string
	Token string
	Raw   Response
}

// CreatePayLink signs and submits a pay-link request and returns the raw
// provider response.
func (c *Client) CreatePayLink(ctx context.Context, params PayLinkParams) (Response, error) {
	const op = "CreatePayLink"
	if !c.Configured() {
		return nil, newError(ErrUnconfigured, op, "", 0, nil)
	}

	currency := strings.ToUpper(params.Currency)
	if currency == "" {
		currency = "THB"
	}
	currencyCode, ok := currencyCodes[currency]
	if !ok {
		return nil, newError(ErrRejected, op, "unsupported currency "+currency, 0, nil)
	}

	start := params.StartAt
	if start.IsZero() {
		start = c.now()
	}
	start = start.In(Bangkok)

	req := payLinkRequest{
		ProductImage:       params.ProductImage,
		ProductName:        params.ProductName,
		ProductDescription: params.ProductDescription,
		PaymentLimit:       c.cfg.PaymentLimit,
		StartDate:          start.Format(dateLayout),
		ExpiredDate:        start.Add(c.cfg.LinkTTL).Format(dateLayout),
		Currency:           currencyCode,
		Amount:             MinorUnits(params.Amount),
	}
	req.CheckSum = Checksum(c.cfg.MD5Secret,
		req.ProductImage,
		req.ProductName,
		req.ProductDescription,
		strconv.Itoa(req.PaymentLimit),
		req.StartDate,
		req.ExpiredDate,
		req.Currency,
		strconv.FormatInt(req.Amount, 10),
	)

	return c.post(ctx, op, pathGeneratePayLink, req)
}

// GeneratePayLink creates a pay-link and extracts its URL, id and token.
// A response without any payment URL is treated as a rejection.
func (c *Client) GeneratePayLink(ctx context.Context, params PayLinkParams) (*PayLink, error) {
	resp, err := c.CreatePayLink(ctx, params)
	if err != nil {
		return nil, err
	}

	url, ok := PaymentURL(resp)
	if !ok {
		c.logger.Debugf("chillpay.GeneratePayLink.no payment url: %s", spew.Sdump(resp))
		return nil, newError(ErrRejected, "GeneratePayLink", "response carried no payment url", 0, nil)
	}
	id, _ := PayLinkID(resp)
	token, _ := PayLinkToken(resp)

	return &PayLink{URL: url, ID: id, Token: token, Raw: resp}, nil
}

// MinorUnits converts an amount to satang/cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
