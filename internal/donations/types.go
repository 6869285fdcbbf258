package donations

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod selects how a donation is paid.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "Cash"
	MethodOnline PaymentMethod = "Online"
)

// ParseMethod accepts the method names case-insensitively.
func ParseMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash":
		return MethodCash, nil
	case "online":
		return MethodOnline, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// PaymentStatus is the persisted payment state of a donation.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ListEntry is a line item as stored on the donation: name and rate are
// denormalised so category edits never rewrite history. Quantity carries the
// weight in kg, matching the portal's payload.
type ListEntry struct {
	CategoryID string          `json:"categoryId"`
	Category   string          `json:"category"`
	Number     int             `json:"number"`
	UnitAmount decimal.Decimal `json:"unitAmount"`
	Amount     decimal.Decimal `json:"amount"`
	IsPacket   bool            `json:"isPacket"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Order is the assembled donation request.
type Order struct {
	UserID        string          `json:"userId"`
	List          []ListEntry     `json:"list"`
	Amount        decimal.Decimal `json:"amount"`
	CourierCharge decimal.Decimal `json:"courierCharge"`
	Method        PaymentMethod   `json:"method"`
	Remarks       string          `json:"remarks,omitempty"`
	PostalAddress string          `json:"postalAddress,omitempty"`
	WillPickup    bool            `json:"willPickup"`
	TotalWeight   decimal.Decimal `json:"totalWeight"`
	TotalPackets  int             `json:"totalPackets"`
}

// Donation is a persisted order with its payment state.
type Donation struct {
	ID string `json:"_id"`
	Order
	Date                time.Time     `json:"date"`
	PaymentStatus       PaymentStatus `json:"paymentStatus"`
	TransactionID       string        `json:"transactionId,omitempty"`
	GatewayOrderID      string        `json:"gatewayOrderId,omitempty"`
	Currency            string        `json:"currency"`
	FailureReason       string        `json:"failureReason,omitempty"`
	CompletedAt         *time.Time    `json:"completedAt,omitempty"`
	CheckoutDismissedAt *time.Time    `json:"checkoutDismissedAt,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}
