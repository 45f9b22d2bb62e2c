// Package contractsclient reads contract invoices from the contracts
// service. The invoice is the only authority on payment components.
package contractsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
)

const DefaultCallTimeout = 10 * time.Second

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Timeout:    DefaultCallTimeout,
	}
}

// InvoiceAmounts fetches the contract's issued invoice and maps it onto
// payment components. Contracts without an issued invoice (not yet
// signed) resolve to ErrNotFound.
func (c *Client) InvoiceAmounts(ctx context.Context, contractID string) (domain.Amounts, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/contracts/%s/invoice", c.BaseURL, contractID), nil)
	if err != nil {
		return domain.Amounts{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.Amounts{}, fmt.Errorf("contracts invoice lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Amounts{}, domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return domain.Amounts{}, fmt.Errorf("contracts service returned %d", resp.StatusCode)
	}

	var out struct {
		Invoice invoice.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Amounts{}, err
	}
	return out.Invoice.Amounts(), nil
}
