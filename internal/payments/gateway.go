// Package payments reconciles donation orders with the hosted checkout gateway.
package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderDescriptor is the gateway order handed to the hosted checkout.
type OrderDescriptor struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

// OrderRequest describes a gateway order. Amount is in minor units (paise).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Gateway defines the contract for checkout providers.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderDescriptor, error)
	// VerifySignature checks the signature the checkout returns on success.
	VerifySignature(orderID, paymentID, signature string) bool
	// KeyID is the public key the checkout is opened with.
	KeyID() string
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts an amount in rupees to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
