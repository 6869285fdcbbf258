package donations

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/mahaprasad-donations/internal/cart"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

var fee = decimal.NewFromInt(DefaultCourierFee)

func buildCart(t *testing.T, c catalog.Category, qty int) []cart.LineItem {
	t.Helper()
	b := cart.New([]catalog.Category{c})
	if err := b.SelectCategory(c.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := b.SetQuantity(c.ID, qty); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	return b.Items()
}

func TestComputeTotals_LadduWithPickup(t *testing.T) {
	items := buildCart(t, catalog.Category{ID: "laddu", Name: "Laddu", UnitRate: decimal.NewFromInt(50), UnitWeightKg: decimal.RequireFromString("0.5"), IsActive: true}, 4)

	got := ComputeTotals(items, true, fee)

	if !got.TotalAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("total amount: %s", got.TotalAmount)
	}
	if !got.TotalWeight.Equal(decimal.RequireFromString("2.0")) || got.TotalPackets != 0 {
		t.Fatalf("weight/packets: %s/%d", got.TotalWeight, got.TotalPackets)
	}
	if !got.CourierCharge.IsZero() || !got.NetPayable.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("courier/net: %s/%s", got.CourierCharge, got.NetPayable)
	}
}

func TestComputeTotals_PacketsWithCourier(t *testing.T) {
	items := buildCart(t, catalog.Category{ID: "pp", Name: "PrasadPacket", UnitRate: decimal.NewFromInt(100), IsPacketBased: true, IsActive: true}, 3)

	got := ComputeTotals(items, false, fee)

	if !got.TotalAmount.Equal(decimal.NewFromInt(300)) || !got.TotalWeight.IsZero() || got.TotalPackets != 3 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if !got.CourierCharge.Equal(decimal.NewFromInt(600)) || !got.NetPayable.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("courier/net: %s/%s", got.CourierCharge, got.NetPayable)
	}
}

func TestComputeTotals_NetIsSumPlusCourier(t *testing.T) {
	b := cart.New([]catalog.Category{
		{ID: "a", Name: "A", UnitRate: decimal.RequireFromString("12.50"), UnitWeightKg: decimal.RequireFromString("0.25"), IsActive: true},
		{ID: "b", Name: "B", UnitRate: decimal.NewFromInt(40), IsPacketBased: true, IsActive: true},
	})
	_ = b.SelectCategory("a")
	_ = b.SelectCategory("b")
	_ = b.SetQuantity("a", 3)
	_ = b.SetQuantity("b", 2)

	for _, pickup := range []bool{true, false} {
		got := ComputeTotals(b.Items(), pickup, fee)
		sum := decimal.Zero
		for _, li := range b.Items() {
			sum = sum.Add(li.Amount)
		}
		if !got.TotalAmount.Equal(sum) {
			t.Fatalf("pickup=%v total %s != sum %s", pickup, got.TotalAmount, sum)
		}
		if !got.NetPayable.Equal(got.TotalAmount.Add(got.CourierCharge)) {
			t.Fatalf("pickup=%v net mismatch", pickup)
		}
		wantCourier := decimal.Zero
		if !pickup {
			wantCourier = fee
		}
		if !got.CourierCharge.Equal(wantCourier) {
			t.Fatalf("pickup=%v courier %s", pickup, got.CourierCharge)
		}
	}
}

func TestBuildOrder_Validation(t *testing.T) {
	items := buildCart(t, catalog.Category{ID: "laddu", Name: "Laddu", UnitRate: decimal.NewFromInt(50), UnitWeightKg: decimal.RequireFromString("0.5"), IsActive: true}, 1)
	user := users.User{ID: "u1"}

	tests := []struct {
		name    string
		items   []cart.LineItem
		pickup  bool
		method  PaymentMethod
		address string
	}{
		{name: "empty cart", items: nil, pickup: true, method: MethodCash},
		{name: "missing method", items: items, pickup: true, method: ""},
		{name: "unknown method", items: items, pickup: true, method: "Cheque"},
		{name: "courier without address", items: items, pickup: false, method: MethodOnline, address: "   "},
		{name: "missing category id", items: []cart.LineItem{{CategoryName: "ghost", Quantity: 1}}, pickup: true, method: MethodCash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := ComputeTotals(tt.items, tt.pickup, fee)
			_, err := BuildOrder(user, tt.items, totals, tt.method, "", tt.address)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || len(ve.Reasons) == 0 {
				t.Fatalf("expected reasons, got %v", err)
			}
		})
	}
}

func TestBuildOrder_PickupUsesProfileAddress(t *testing.T) {
	items := buildCart(t, catalog.Category{ID: "laddu", Name: "Laddu", UnitRate: decimal.NewFromInt(50), UnitWeightKg: decimal.RequireFromString("0.5"), IsActive: true}, 4)
	user := users.User{ID: "u1", Address: users.Address{Street: "Bada Danda", City: "Puri", State: "Odisha", Pin: "752001"}}

	order, err := BuildOrder(user, items, ComputeTotals(items, true, fee), MethodCash, " thanks ", "ignored free text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PostalAddress != "Bada Danda, Puri, Odisha - 752001" {
		t.Fatalf("expected synthesised address, got %q", order.PostalAddress)
	}
	if order.Remarks != "thanks" || order.UserID != "u1" {
		t.Fatalf("unexpected order %+v", order)
	}
	if len(order.List) != 1 {
		t.Fatalf("expected one list entry")
	}
	entry := order.List[0]
	if entry.Category != "Laddu" || entry.Number != 4 || !entry.Amount.Equal(decimal.NewFromInt(200)) || !entry.Quantity.Equal(decimal.NewFromInt(2)) || entry.IsPacket {
		t.Fatalf("unexpected projection %+v", entry)
	}
	if !order.Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected amount 200, got %s", order.Amount)
	}
}

func TestBuildOrder_CourierKeepsFreeTextAddress(t *testing.T) {
	items := buildCart(t, catalog.Category{ID: "pp", Name: "PrasadPacket", UnitRate: decimal.NewFromInt(100), IsPacketBased: true, IsActive: true}, 3)
	order, err := BuildOrder(users.User{ID: "u1"}, items, ComputeTotals(items, false, fee), MethodOnline, "", "Plot 7, Bhubaneswar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PostalAddress != "Plot 7, Bhubaneswar" {
		t.Fatalf("address: %q", order.PostalAddress)
	}
	if !order.Amount.Equal(decimal.NewFromInt(900)) || !order.CourierCharge.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("amount/courier: %s/%s", order.Amount, order.CourierCharge)
	}
	if order.List[0].Number != 3 || !order.List[0].IsPacket || !order.List[0].Quantity.IsZero() {
		t.Fatalf("unexpected packet projection %+v", order.List[0])
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod("online"); err != nil || m != MethodOnline {
		t.Fatalf("expected Online, got %s %v", m, err)
	}
	if m, err := ParseMethod(" CASH "); err != nil || m != MethodCash {
		t.Fatalf("expected Cash, got %s %v", m, err)
	}
	if _, err := ParseMethod("upi"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
