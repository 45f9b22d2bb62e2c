package momo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

func TestPrefixValidate(t *testing.T) {
	r := NewPrefixRegistry(nil)
	cases := []struct {
		method domain.PaymentMethod
		phone  string
		ok     bool
	}{
		{domain.OrangeMoney, "610123456", true},
		{domain.OrangeMoney, "622987654", true},
		{domain.OrangeMoney, "+224 610 123 456", true},
		{domain.OrangeMoney, "00224610123456", true},
		{domain.OrangeMoney, "660123456", false},
		{domain.MTNMoMo, "660123456", true},
		{domain.MTNMoMo, "671234567", true},
		{domain.MTNMoMo, "610123456", false},
		{domain.OrangeMoney, "61012345", false},
		{domain.OrangeMoney, "6101234567", false},
		{domain.Cash, "610123456", false},
	}
	for _, tc := range cases {
		err := r.Validate(tc.method, tc.phone)
		if tc.ok && err != nil {
			t.Errorf("Validate(%s, %q) = %v, want nil", tc.method, tc.phone, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrProviderMismatch) {
			t.Errorf("Validate(%s, %q) = %v, want ErrProviderMismatch", tc.method, tc.phone, err)
		}
	}
}

func TestPrefixOverrides(t *testing.T) {
	r := NewPrefixRegistry(map[domain.PaymentMethod][]string{
		domain.OrangeMoney: {"77"},
	})
	if err := r.Validate(domain.OrangeMoney, "771234567"); err != nil {
		t.Fatalf("override prefix rejected: %v", err)
	}
	if err := r.Validate(domain.OrangeMoney, "610123456"); err == nil {
		t.Fatal("default prefix accepted after override")
	}
}

func TestClientInitiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer")
		}
		w.Write([]byte(`{"reference":"om_ref_42"}`))
	}))
	defer srv.Close()

	c := NewClient("orange", srv.URL, "key")
	ref, err := c.Initiate(context.Background(), "610123456", 11_250_000)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if ref != "om_ref_42" {
		t.Fatalf("ref = %q", ref)
	}
}

func TestClientInitiateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(402)
	}))
	defer srv.Close()

	c := NewClient("orange", srv.URL, "key")
	if _, err := c.Initiate(context.Background(), "610123456", 100); !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("got %v, want ErrProviderRejected", err)
	}
}

func TestClientInitiateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("orange", srv.URL, "key")
	c.Timeout = 20 * time.Millisecond
	if _, err := c.Initiate(context.Background(), "610123456", 100); !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("got %v, want ErrProviderTimeout", err)
	}
}

func TestClientStatusMapping(t *testing.T) {
	cases := map[string]TxStatus{
		"pending":    TxPending,
		"confirmed":  TxConfirmed,
		"successful": TxConfirmed,
		"failed":     TxFailed,
		"rejected":   TxFailed,
	}
	for remote, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"` + remote + `"}`))
		}))
		c := NewClient("mtn", srv.URL, "key")
		got, err := c.Status(context.Background(), "ref")
		srv.Close()
		if err != nil {
			t.Fatalf("Status(%q): %v", remote, err)
		}
		if got != want {
			t.Errorf("Status(%q) = %s, want %s", remote, got, want)
		}
	}
}
