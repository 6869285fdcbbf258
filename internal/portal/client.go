// Package portal is the client side of the donation workflow: a REST client for
// the donation API and the checkout flow the admin and user portals drive.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/validation"
)

const (
	defaultTimeout    = 10 * time.Second
	idempotencyHeader = "Idempotency-Key"
)

// APIError is a non-2xx response from the donation API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("donation api: status %d", e.Status)
}

// Client calls the donation API as an admin or a user. Admin calls carry the
// aToken header; user calls carry utoken.
type Client struct {
	baseURL string
	http    *http.Client
	role    payments.Role
	token   string
}

// NewClient constructs an API client for role.
func NewClient(baseURL string, role payments.Role, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		role:    role,
		token:   token,
	}
}

func (c *Client) scope() string {
	if c.role == payments.RoleAdmin {
		return "admin"
	}
	return "user"
}

func (c *Client) authHeader() string {
	if c.role == payments.RoleAdmin {
		return "aToken"
	}
	return "utoken"
}

// Categories lists categories: all of them for admins, active ones for users.
func (c *Client) Categories(ctx context.Context) ([]catalog.Category, error) {
	var out struct {
		Categories []catalog.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, []string{"api", c.scope(), "categories"}, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// CreateCategory adds a category (admin only).
func (c *Client) CreateCategory(ctx context.Context, req validation.CategoryRequest) (catalog.Category, error) {
	var out struct {
		Category catalog.Category `json:"category"`
	}
	err := c.do(ctx, http.MethodPost, []string{"api", "admin", "categories"}, nil, req, &out)
	return out.Category, err
}

// UpdateCategory replaces a category (admin only).
func (c *Client) UpdateCategory(ctx context.Context, id string, req validation.CategoryRequest) (catalog.Category, error) {
	var out struct {
		Category catalog.Category `json:"category"`
	}
	err := c.do(ctx, http.MethodPut, []string{"api", "admin", "categories", id}, nil, req, &out)
	return out.Category, err
}

// DeleteCategory removes a category (admin only).
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"api", "admin", "categories", id}, nil, nil, nil)
}

// Donations lists every donation for admins and the caller's own for users.
func (c *Client) Donations(ctx context.Context) ([]donations.Donation, error) {
	path := []string{"api", "user", "my-donations"}
	if c.role == payments.RoleAdmin {
		path = []string{"api", "admin", "donation-list"}
	}
	var out struct {
		Donations []donations.Donation `json:"donations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Donations, nil
}

// CreateOrder submits a donation order. An empty key gets a fresh one.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, req validation.CreateDonationRequest) (*payments.CreateOrderResponse, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	var out payments.CreateOrderResponse
	headers := map[string]string{idempotencyHeader: key}
	if err := c.do(ctx, http.MethodPost, []string{"api", c.scope(), "create-donation-order"}, headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment relays the checkout success ids for server-side verification.
func (c *Client) VerifyPayment(ctx context.Context, req validation.VerifyPaymentRequest) (*donations.Donation, error) {
	var out struct {
		Donation donations.Donation `json:"donation"`
	}
	if err := c.do(ctx, http.MethodPost, []string{"api", c.scope(), "verify-donation-payment"}, nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Donation, nil
}

// DismissCheckout reports a closed checkout.
func (c *Client) DismissCheckout(ctx context.Context, donationID string) error {
	req := validation.DismissPaymentRequest{DonationID: donationID}
	return c.do(ctx, http.MethodPost, []string{"api", c.scope(), "dismiss-donation-payment"}, nil, req, nil)
}

func (c *Client) do(ctx context.Context, method string, path []string, headers map[string]string, body, out interface{}) error {
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(c.authHeader(), c.token)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Error
		apiErr.Message = envelope.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
