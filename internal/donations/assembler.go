package donations

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/mahaprasad-donations/internal/cart"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

// DefaultCourierFee is charged when the donor will not collect in person.
const DefaultCourierFee = 600

// ErrInvalidOrder matches every *ValidationError returned by BuildOrder.
var ErrInvalidOrder = errors.New("invalid donation order")

// ValidationError lists why an order cannot be submitted.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidOrder.Error() + ": " + strings.Join(e.Reasons, "; ")
}

// Is makes errors.Is(err, ErrInvalidOrder) true.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidOrder }

// Totals are the derived sums of a cart.
type Totals struct {
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CourierCharge decimal.Decimal `json:"courierCharge"`
	NetPayable    decimal.Decimal `json:"netPayable"`
	TotalWeight   decimal.Decimal `json:"totalWeight"`
	TotalPackets  int             `json:"totalPackets"`
	WillPickup    bool            `json:"willPickup"`
}

// ComputeTotals sums the line items and applies the courier policy: flatFee when
// pickup is declined, zero otherwise.
func ComputeTotals(items []cart.LineItem, willPickup bool, flatFee decimal.Decimal) Totals {
	t := Totals{
		TotalAmount:   decimal.Zero,
		CourierCharge: decimal.Zero,
		TotalWeight:   decimal.Zero,
		WillPickup:    willPickup,
	}
	for _, li := range items {
		t.TotalAmount = t.TotalAmount.Add(li.Amount)
		t.TotalWeight = t.TotalWeight.Add(li.Weight)
		t.TotalPackets += li.PacketCount
	}
	if !willPickup {
		t.CourierCharge = flatFee
	}
	t.NetPayable = t.TotalAmount.Add(t.CourierCharge)
	return t
}

// BuildOrder validates the cart and folds it into an Order. When pickup is
// accepted the postal address comes from the user's profile and postalAddress
// is ignored.
func BuildOrder(user users.User, items []cart.LineItem, totals Totals, method PaymentMethod, remarks, postalAddress string) (Order, error) {
	var reasons []string
	if len(items) == 0 {
		reasons = append(reasons, "cart is empty")
	}
	switch method {
	case MethodCash, MethodOnline:
	case "":
		reasons = append(reasons, "payment method is required")
	default:
		reasons = append(reasons, "unknown payment method "+string(method))
	}
	address := strings.TrimSpace(postalAddress)
	if totals.WillPickup {
		address = user.Address.Format()
	} else if address == "" {
		reasons = append(reasons, "postal address is required for courier delivery")
	}
	for _, li := range items {
		if strings.TrimSpace(li.CategoryID) == "" {
			reasons = append(reasons, "line item "+li.CategoryName+" has no category")
		}
	}
	if len(reasons) > 0 {
		return Order{}, &ValidationError{Reasons: reasons}
	}

	list := make([]ListEntry, 0, len(items))
	for _, li := range items {
		list = append(list, ListEntry{
			CategoryID: li.CategoryID,
			Category:   li.CategoryName,
			Number:     li.Quantity,
			UnitAmount: li.UnitAmount,
			Amount:     li.Amount,
			IsPacket:   li.IsPacketBased,
			Quantity:   li.Weight,
		})
	}
	return Order{
		UserID:        user.ID,
		List:          list,
		Amount:        totals.NetPayable,
		CourierCharge: totals.CourierCharge,
		Method:        method,
		Remarks:       strings.TrimSpace(remarks),
		PostalAddress: address,
		WillPickup:    totals.WillPickup,
		TotalWeight:   totals.TotalWeight,
		TotalPackets:  totals.TotalPackets,
	}, nil
}
