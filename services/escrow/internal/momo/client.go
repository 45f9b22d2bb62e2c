package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

// DefaultCallTimeout bounds every rail call so an entity is never
// blocked on a hung provider.
const DefaultCallTimeout = 15 * time.Second

// Client implements Rail over a provider's HTTP collection API.
type Client struct {
	Provider   string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewClient(provider, baseURL, apiKey string) *Client {
	return &Client{
		Provider:   provider,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
		Timeout:    DefaultCallTimeout,
	}
}

func (c *Client) Initiate(ctx context.Context, phone string, amount int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"phone": phone, "amount": amount, "currency": "GNF"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/collections", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.ErrProviderTimeout
		}
		return "", fmt.Errorf("%s initiate: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", domain.ErrProviderRejected
	}
	var out struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s initiate: decode: %w", c.Provider, err)
	}
	if out.Reference == "" {
		return "", domain.ErrProviderRejected
	}
	return out.Reference, nil
}

func (c *Client) Status(ctx context.Context, reference string) (TxStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/collections/"+reference, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.ErrProviderTimeout
		}
		return "", fmt.Errorf("%s status: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", domain.ErrProviderRejected
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s status: decode: %w", c.Provider, err)
	}
	switch strings.ToLower(out.Status) {
	case "pending", "processing":
		return TxPending, nil
	case "confirmed", "successful", "success":
		return TxConfirmed, nil
	case "failed", "rejected", "cancelled":
		return TxFailed, nil
	default:
		return "", fmt.Errorf("%s status: unknown state %q", c.Provider, out.Status)
	}
}
