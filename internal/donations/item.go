package donations

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// donationItem is the DynamoDB shape of a Donation. Money and weight are kept as
// decimal strings; created_epoch backs the pending-expiry index.
type donationItem struct {
	DonationID          string          `dynamodbav:"donation_id"`
	UserID              string          `dynamodbav:"user_id"`
	List                []listEntryItem `dynamodbav:"list"`
	Amount              string          `dynamodbav:"amount"`
	CourierCharge       string          `dynamodbav:"courier_charge"`
	Method              string          `dynamodbav:"method"`
	Remarks             string          `dynamodbav:"remarks,omitempty"`
	PostalAddress       string          `dynamodbav:"postal_address,omitempty"`
	WillPickup          bool            `dynamodbav:"will_pickup"`
	TotalWeight         string          `dynamodbav:"total_weight"`
	TotalPackets        int             `dynamodbav:"total_packets"`
	Date                time.Time       `dynamodbav:"date"`
	PaymentStatus       string          `dynamodbav:"payment_status"`
	TransactionID       string          `dynamodbav:"transaction_id,omitempty"`
	GatewayOrderID      string          `dynamodbav:"gateway_order_id,omitempty"`
	Currency            string          `dynamodbav:"currency"`
	FailureReason       string          `dynamodbav:"failure_reason,omitempty"`
	CompletedAt         *time.Time      `dynamodbav:"completed_at,omitempty"`
	CheckoutDismissedAt *time.Time      `dynamodbav:"checkout_dismissed_at,omitempty"`
	CreatedAt           time.Time       `dynamodbav:"created_at"`
	CreatedEpoch        int64           `dynamodbav:"created_epoch"`
	UpdatedAt           time.Time       `dynamodbav:"updated_at"`
}

type listEntryItem struct {
	CategoryID string `dynamodbav:"category_id"`
	Category   string `dynamodbav:"category"`
	Number     int    `dynamodbav:"number"`
	UnitAmount string `dynamodbav:"unit_amount"`
	Amount     string `dynamodbav:"amount"`
	IsPacket   bool   `dynamodbav:"is_packet"`
	Quantity   string `dynamodbav:"quantity"`
}

func toItem(d Donation) donationItem {
	list := make([]listEntryItem, 0, len(d.List))
	for _, e := range d.List {
		list = append(list, listEntryItem{
			CategoryID: e.CategoryID,
			Category:   e.Category,
			Number:     e.Number,
			UnitAmount: e.UnitAmount.String(),
			Amount:     e.Amount.String(),
			IsPacket:   e.IsPacket,
			Quantity:   e.Quantity.String(),
		})
	}
	return donationItem{
		DonationID:          d.ID,
		UserID:              d.UserID,
		List:                list,
		Amount:              d.Amount.String(),
		CourierCharge:       d.CourierCharge.String(),
		Method:              string(d.Method),
		Remarks:             d.Remarks,
		PostalAddress:       d.PostalAddress,
		WillPickup:          d.WillPickup,
		TotalWeight:         d.TotalWeight.String(),
		TotalPackets:        d.TotalPackets,
		Date:                d.Date,
		PaymentStatus:       string(d.PaymentStatus),
		TransactionID:       d.TransactionID,
		GatewayOrderID:      d.GatewayOrderID,
		Currency:            d.Currency,
		FailureReason:       d.FailureReason,
		CompletedAt:         d.CompletedAt,
		CheckoutDismissedAt: d.CheckoutDismissedAt,
		CreatedAt:           d.CreatedAt,
		CreatedEpoch:        d.CreatedAt.Unix(),
		UpdatedAt:           d.UpdatedAt,
	}
}

func (it donationItem) toDonation() (Donation, error) {
	parse := func(field, v string) (decimal.Decimal, error) {
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("donation %s: parse %s: %w", it.DonationID, field, err)
		}
		return d, nil
	}

	list := make([]ListEntry, 0, len(it.List))
	for _, e := range it.List {
		unit, err := parse("unit_amount", e.UnitAmount)
		if err != nil {
			return Donation{}, err
		}
		amount, err := parse("list.amount", e.Amount)
		if err != nil {
			return Donation{}, err
		}
		qty, err := parse("list.quantity", e.Quantity)
		if err != nil {
			return Donation{}, err
		}
		list = append(list, ListEntry{
			CategoryID: e.CategoryID,
			Category:   e.Category,
			Number:     e.Number,
			UnitAmount: unit,
			Amount:     amount,
			IsPacket:   e.IsPacket,
			Quantity:   qty,
		})
	}
	amount, err := parse("amount", it.Amount)
	if err != nil {
		return Donation{}, err
	}
	courier, err := parse("courier_charge", it.CourierCharge)
	if err != nil {
		return Donation{}, err
	}
	weight, err := parse("total_weight", it.TotalWeight)
	if err != nil {
		return Donation{}, err
	}

	return Donation{
		ID: it.DonationID,
		Order: Order{
			UserID:        it.UserID,
			List:          list,
			Amount:        amount,
			CourierCharge: courier,
			Method:        PaymentMethod(it.Method),
			Remarks:       it.Remarks,
			PostalAddress: it.PostalAddress,
			WillPickup:    it.WillPickup,
			TotalWeight:   weight,
			TotalPackets:  it.TotalPackets,
		},
		Date:                it.Date,
		PaymentStatus:       PaymentStatus(it.PaymentStatus),
		TransactionID:       it.TransactionID,
		GatewayOrderID:      it.GatewayOrderID,
		Currency:            it.Currency,
		FailureReason:       it.FailureReason,
		CompletedAt:         it.CompletedAt,
		CheckoutDismissedAt: it.CheckoutDismissedAt,
		CreatedAt:           it.CreatedAt,
		UpdatedAt:           it.UpdatedAt,
	}, nil
}
