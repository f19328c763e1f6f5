package chillpay

import (
	"encoding/json"
	"strconv"
	"strings"
)

// extractor pulls one value out of a provider response, reporting whether it
// was present. Extractors are tried in order until one matches.
type extractor func(map[string]any) (string, bool)

var (
	paymentURLExtractors = []extractor{
		field("data", "paymentUrl"),
		field("paymentUrl"),
		field("result", "paymentUrl"),
		field("data", "qrImage"),
	}
	payLinkIDExtractors = []extractor{
		field("data", "payLinkId"),
		field("payLinkId"),
		field("result", "payLinkId"),
	}
	payLinkTokenExtractors = []extractor{
		field("data", "payLinkToken"),
		field("payLinkToken"),
		field("result", "payLinkToken"),
		field("data", "token"),
	}
)

// PaymentURL finds the customer redirect URL in a pay-link response.
func PaymentURL(resp Response) (string, bool) {
	return firstMatch(resp, paymentURLExtractors)
}

// PayLinkID finds the provider's pay-link id.
func PayLinkID(resp Response) (string, bool) {
	return firstMatch(resp, payLinkIDExtractors)
}

// PayLinkToken finds the provider's pay-link token.
func PayLinkToken(resp Response) (string, bool) {
	return firstMatch(resp, payLinkTokenExtractors)
}

func firstMatch(m map[string]any, extractors []extractor) (string, bool) {
	for _, extract := range extractors {
		if v, ok := extract(m); ok {
			return v, true
		}
	}
	return "", false
}

// field walks nested objects by key, matching keys case-insensitively.
func field(keys ...string) extractor {
	return func(m map[string]any) (string, bool) {
		var cur any = m
		for _, key := range keys {
			obj, ok := asMap(cur)
			if !ok {
				return "", false
			}
			cur = lookup(obj, key)
		}
		s := scalar(cur)
		return s, s != ""
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Response:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	}
	return ""
}
