package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
)

// DefaultScriptURL is the hosted checkout script.
const DefaultScriptURL = "https://checkout.razorpay.com/v1/checkout.js"

// CheckoutResult is how the hosted checkout returned control: either the
// success handler fired with the gateway ids or the modal was dismissed.
type CheckoutResult struct {
	Dismissed bool
	OrderID   string
	PaymentID string
	Signature string
}

// Checkout is the hosted payment UI. Load may be called repeatedly; Open blocks
// until the donor pays or dismisses.
type Checkout interface {
	Load(ctx context.Context) error
	Open(ctx context.Context, opts payments.CheckoutOptions) (CheckoutResult, error)
}

// PresentFunc shows the checkout to the donor.
type PresentFunc func(ctx context.Context, opts payments.CheckoutOptions) (CheckoutResult, error)

// HostedCheckout fetches the checkout script once and hands presentation to Present.
type HostedCheckout struct {
	ScriptURL string
	HTTP      *http.Client
	Present   PresentFunc

	mu     sync.Mutex
	loaded bool
}

// ErrNoPresenter is returned by Open when no presenter is configured.
var ErrNoPresenter = errors.New("checkout: no presenter configured")

// Load fetches the script unless an earlier call succeeded.
func (h *HostedCheckout) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return nil
	}
	src := h.ScriptURL
	if src == "" {
		src = DefaultScriptURL
	}
	client := h.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("checkout: load script: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checkout: load script: status %d", resp.StatusCode)
	}
	h.loaded = true
	return nil
}

// Open presents the checkout.
func (h *HostedCheckout) Open(ctx context.Context, opts payments.CheckoutOptions) (CheckoutResult, error) {
	if h.Present == nil {
		return CheckoutResult{}, ErrNoPresenter
	}
	return h.Present(ctx, opts)
}
