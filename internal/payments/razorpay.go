package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig configures the Razorpay gateway.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	// Orders overrides the SDK order client; used by tests.
	Orders razorpayOrderAPI
}

// Razorpay implements Gateway using the Razorpay orders API.
type Razorpay struct {
	orders razorpayOrderAPI
	keyID  string
	secret string
}

// NewRazorpay constructs a Razorpay gateway.
func NewRazorpay(cfg RazorpayConfig) (*Razorpay, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	orders := cfg.Orders
	if orders == nil {
		orders = razorpay.NewClient(keyID, secret).Order
	}
	return &Razorpay{orders: orders, keyID: keyID, secret: secret}, nil
}

// KeyID implements Gateway.
func (r *Razorpay) KeyID() string { return r.keyID }

// CreateOrder implements Gateway. The SDK call is not context aware, so ctx is
// only checked before issuing it.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (OrderDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return OrderDescriptor{}, err
	}
	if req.Amount <= 0 {
		return OrderDescriptor{}, fmt.Errorf("razorpay: amount must be positive, got %d", req.Amount)
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	resp, err := r.orders.Create(data, nil)
	if err != nil {
		return OrderDescriptor{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		return OrderDescriptor{}, errors.New("razorpay: create order returned no id")
	}
	desc := OrderDescriptor{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}
	if amt, ok := resp["amount"].(float64); ok {
		desc.Amount = int64(amt)
	}
	if cur, ok := resp["currency"].(string); ok && cur != "" {
		desc.Currency = cur
	}
	if st, ok := resp["status"].(string); ok {
		desc.Status = st
	}
	return desc, nil
}

// VerifySignature implements Gateway: HMAC-SHA256 of "order_id|payment_id" keyed
// with the key secret.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	params := map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}
	return utils.VerifyPaymentSignature(params, signature, r.secret)
}
