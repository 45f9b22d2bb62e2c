package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("orange")
	receivedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"reference":"om_ref_1","status":"confirmed"}`)
	ts := strconv.FormatInt(receivedAt.Unix(), 10)

	h := http.Header{}
	h.Set("X-Callback-Signature", sign("secret", ts, body))
	h.Set("X-Callback-Timestamp", ts)
	h.Set("X-Callback-Event-Id", "evt_1")
	h.Set("X-Callback-Event-Type", "payment.confirmed")

	res, err := v.Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid {
		t.Fatalf("valid signature rejected: %+v", res.Details)
	}
	if res.ProviderEventID != "evt_1" || res.EventType != "payment.confirmed" {
		t.Fatalf("event metadata not extracted: %+v", res)
	}
}

func TestHMACVerifierRejectsBadSignature(t *testing.T) {
	v := NewHMACVerifier("mtn")
	receivedAt := time.Now()
	body := []byte(`{}`)
	ts := strconv.FormatInt(receivedAt.Unix(), 10)

	h := http.Header{}
	h.Set("X-Callback-Signature", sign("wrong-secret", ts, body))
	h.Set("X-Callback-Timestamp", ts)

	res, err := v.Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("forged signature accepted")
	}
}

func TestHMACVerifierRejectsStaleTimestamp(t *testing.T) {
	v := NewHMACVerifier("orange")
	receivedAt := time.Now()
	body := []byte(`{}`)
	stale := strconv.FormatInt(receivedAt.Add(-DefaultTolerance-time.Minute).Unix(), 10)

	h := http.Header{}
	h.Set("X-Callback-Signature", sign("secret", stale, body))
	h.Set("X-Callback-Timestamp", stale)

	res, err := v.Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("stale replayed callback accepted")
	}
	if res.Details["timestamp_valid"] != false {
		t.Fatalf("details = %+v", res.Details)
	}
}

func TestHMACVerifierWithTolerance(t *testing.T) {
	receivedAt := time.Now()
	body := []byte(`{}`)
	ts := strconv.FormatInt(receivedAt.Add(-10*time.Minute).Unix(), 10)

	h := http.Header{}
	h.Set("X-Callback-Signature", sign("secret", ts, body))
	h.Set("X-Callback-Timestamp", ts)

	res, err := NewHMACVerifier("orange").Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("10m-old callback accepted at the default tolerance")
	}

	res, err = NewHMACVerifier("orange").WithTolerance(15 * time.Minute).Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid {
		t.Fatalf("widened tolerance still rejected the callback: %+v", res.Details)
	}

	// Non-positive values keep the default.
	res, err = NewHMACVerifier("orange").WithTolerance(0).Verify(h, body, receivedAt, "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("zero tolerance override widened the window")
	}
}

func TestHMACVerifierMissingSignature(t *testing.T) {
	v := NewHMACVerifier("orange")
	res, err := v.Verify(http.Header{}, []byte(`{}`), time.Now(), "secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("unsigned callback accepted")
	}
}

func TestHMACVerifierRequiresSecret(t *testing.T) {
	v := NewHMACVerifier("orange")
	if _, err := v.Verify(http.Header{}, nil, time.Now(), " "); err == nil {
		t.Fatal("empty secret accepted")
	}
}
