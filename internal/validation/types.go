package validation

import "github.com/shopspring/decimal"

// ListItem is one line of a donation order as the portal sends it.
type ListItem struct {
	CategoryID string          `json:"categoryId" validate:"required"`
	Category   string          `json:"category"`
	Number     int             `json:"number" validate:"required,min=1"` // units or packets
	Amount     decimal.Decimal `json:"amount"`                           // line amount the client computed
	IsPacket   bool            `json:"isPacket"`
	Quantity   decimal.Decimal `json:"quantity"` // weight in kg, zero for packets
}

// CreateDonationRequest is the payload for POST /api/{admin,user}/create-donation-order.
type CreateDonationRequest struct {
	UserID        string          `json:"userId"` // honoured for admin callers only
	List          []ListItem      `json:"list" validate:"required,min=1,dive"`
	Amount        decimal.Decimal `json:"amount"` // net payable the client claims
	CourierCharge decimal.Decimal `json:"courierCharge"`
	Method        string          `json:"method" validate:"required,oneof=Cash Online cash online"`
	Remarks       string          `json:"remarks" validate:"max=500"`
	PostalAddress string          `json:"postalAddress" validate:"max=500"`
	WillPickup    bool            `json:"willPickup"`
}

// VerifyPaymentRequest is the checkout success callback relayed by the portal.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	DonationID        string `json:"donationId" validate:"required"`
}

// DismissPaymentRequest reports a closed checkout.
type DismissPaymentRequest struct {
	DonationID string `json:"donationId" validate:"required"`
}

// CategoryRequest is the payload for creating or replacing a category.
type CategoryRequest struct {
	Name          string          `json:"name" validate:"required,max=100"`
	UnitRate      decimal.Decimal `json:"unitRate"`
	UnitWeightKg  decimal.Decimal `json:"unitWeightKg"`
	IsPacketBased bool            `json:"isPacketBased"`
	IsActive      *bool           `json:"isActive"` // defaults to true
	Description   string          `json:"description" validate:"max=500"`
}
