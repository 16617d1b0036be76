package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"tillsync/internal/domain/bill"
	"tillsync/internal/domain/customer"
	"tillsync/internal/domain/product"
	"tillsync/pkg/logger"
)

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL string
	Tokens  TokenSource
	Timeout time.Duration // per-call timeout, default 15s
}

// Client is the HTTP implementation of the remote API.
// It passes org context on every call and never re-derives server-side
// scoping; every error is normalized into the apperror taxonomy.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	log     *logger.Logger
}

var _ API = (*Client)(nil)
var _ Probe = (*Client)(nil)

// NewClient creates a remote API client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		tokens:  cfg.Tokens,
		http:    &http.Client{Timeout: timeout},
		log:     log.WithComponent("remote"),
	}
}

// do runs one call: token check, request, error normalization, decode.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var token string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return normalizeTransportErr(err)
		}
		if err := CheckExpiry(t, time.Now()); err != nil {
			return err
		}
		token = t
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return normalizeTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return normalizeResponseErr(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func orgQuery(orgID string) url.Values {
	return url.Values{"orgId": []string{orgID}}
}

// Online probes the health endpoint. Used by the sync orchestrator to
// detect offline/online transitions.
func (c *Client) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, nil) == nil
}

// --- Products ---

func (c *Client) ListProducts(ctx context.Context, orgID string) ([]product.Product, error) {
	var out []product.Product
	if err := c.do(ctx, http.MethodGet, "/api/products", orgQuery(orgID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, p product.Product) (*product.Product, error) {
	var out product.Product
	if err := c.do(ctx, http.MethodPost, "/api/products", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, entityID string, p product.Product) (*product.Product, error) {
	var out product.Product
	if err := c.do(ctx, http.MethodPut, "/api/products/"+entityID, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, entityID string) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+entityID, nil, nil, nil)
}

func (c *Client) ListLowStockProducts(ctx context.Context, orgID string) ([]product.Product, error) {
	var out []product.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/low-stock", orgQuery(orgID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListExpiringProducts(ctx context.Context, orgID string) ([]product.Product, error) {
	var out []product.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/expiring", orgQuery(orgID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// stockRequest is the body of the stock mutation endpoints. They return
// acceptance only; resulting stock is reloaded, never computed locally.
type stockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	OrgID    string          `json:"orgId"`
}

func (c *Client) RecordStockIn(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error {
	return c.do(ctx, http.MethodPost, "/api/products/"+productID+"/stock-in", nil, stockRequest{qty, orgID}, nil)
}

func (c *Client) RecordStockOut(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error {
	return c.do(ctx, http.MethodPost, "/api/products/"+productID+"/stock-out", nil, stockRequest{qty, orgID}, nil)
}

func (c *Client) AdjustStock(ctx context.Context, productID string, qty decimal.Decimal, orgID string) error {
	return c.do(ctx, http.MethodPost, "/api/products/"+productID+"/adjust-stock", nil, stockRequest{qty, orgID}, nil)
}

// --- Customers ---

func (c *Client) ListCustomers(ctx context.Context, orgID string) ([]customer.Customer, error) {
	var out []customer.Customer
	if err := c.do(ctx, http.MethodGet, "/api/customers", orgQuery(orgID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, cust customer.Customer) (*customer.Customer, error) {
	var out customer.Customer
	if err := c.do(ctx, http.MethodPost, "/api/customers", nil, cust, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, entityID string, cust customer.Customer) (*customer.Customer, error) {
	var out customer.Customer
	if err := c.do(ctx, http.MethodPut, "/api/customers/"+entityID, nil, cust, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, entityID string) error {
	return c.do(ctx, http.MethodDelete, "/api/customers/"+entityID, nil, nil, nil)
}

// --- Bills ---

func (c *Client) ListBills(ctx context.Context, orgID string) ([]bill.Bill, error) {
	var out []bill.Bill
	if err := c.do(ctx, http.MethodGet, "/api/bills", orgQuery(orgID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBill(ctx context.Context, b bill.Bill) (*bill.Bill, error) {
	var out bill.Bill
	if err := c.do(ctx, http.MethodPost, "/api/bills", nil, b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBill(ctx context.Context, entityID string, b bill.Bill) (*bill.Bill, error) {
	var out bill.Bill
	if err := c.do(ctx, http.MethodPut, "/api/bills/"+entityID, nil, b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBill(ctx context.Context, entityID string) error {
	return c.do(ctx, http.MethodDelete, "/api/bills/"+entityID, nil, nil, nil)
}
