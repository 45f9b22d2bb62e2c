package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	callbackSignatureHeader = "X-Callback-Signature"
	callbackTimestampHeader = "X-Callback-Timestamp"
	callbackEventIDHeader   = "X-Callback-Event-Id"
	callbackEventTypeHeader = "X-Callback-Event-Type"
	callbackScheme          = "hmac-sha256/v1"

	// DefaultTolerance bounds callback replay: older signatures are
	// rejected even when the MAC matches.
	DefaultTolerance = 5 * time.Minute
)

// HMACVerifier checks the signature every Guinean rail we integrate
// sends: hex HMAC-SHA256 over "<timestamp>.<raw body>".
type HMACVerifier struct {
	provider  string
	tolerance time.Duration
}

func NewHMACVerifier(provider string) *HMACVerifier {
	return &HMACVerifier{provider: strings.TrimSpace(provider), tolerance: DefaultTolerance}
}

// WithTolerance overrides the replay window. Non-positive values keep
// the default.
func (v *HMACVerifier) WithTolerance(d time.Duration) *HMACVerifier {
	if d > 0 {
		v.tolerance = d
	}
	return v
}

func (v *HMACVerifier) Provider() string { return v.provider }

func (v *HMACVerifier) Verify(headers http.Header, rawBody []byte, receivedAt time.Time, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("callback verifier secret is empty")
	}

	res := VerificationResult{
		Scheme: callbackScheme,
		Details: map[string]any{
			"provider":                 v.provider,
			"signature_header_present": false,
			"timestamp_valid":          false,
		},
		ProviderEventID: strings.TrimSpace(headers.Get(callbackEventIDHeader)),
		EventType:       strings.TrimSpace(headers.Get(callbackEventTypeHeader)),
	}
	if res.EventType == "" {
		res.EventType = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(callbackSignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true

	tsRaw := strings.TrimSpace(headers.Get(callbackTimestampHeader))
	tsUnix, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return res, nil
	}
	ts := time.Unix(tsUnix, 0)
	if diff := receivedAt.Sub(ts); diff > v.tolerance || diff < -v.tolerance {
		return res, nil
	}
	res.Details["timestamp_valid"] = true

	providedSig, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsRaw))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	res.Valid = hmac.Equal(mac.Sum(nil), providedSig)
	return res, nil
}
