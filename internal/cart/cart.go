// Package cart accumulates donation line items selected from the category catalog.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
)

var (
	ErrDuplicateCategory = errors.New("category already in cart")
	ErrUnknownCategory   = errors.New("category not in catalog")
	ErrInactiveCategory  = errors.New("category is inactive")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrNotInCart         = errors.New("category not in cart")
)

// LineItem is a cart entry. Unit values are a snapshot of the category taken at
// selection time, so later catalog edits do not change an open cart.
type LineItem struct {
	CategoryID    string          `json:"categoryId"`
	CategoryName  string          `json:"categoryName"`
	Quantity      int             `json:"quantity"`
	UnitAmount    decimal.Decimal `json:"unitAmount"`
	UnitWeight    decimal.Decimal `json:"unitWeight"`
	IsPacketBased bool            `json:"isPacketBased"`
	Amount        decimal.Decimal `json:"amount"`
	Weight        decimal.Decimal `json:"weight"`
	PacketCount   int             `json:"packetCount"`
}

// NewLineItem snapshots c with the given quantity.
func NewLineItem(c catalog.Category, qty int) (LineItem, error) {
	li := LineItem{
		CategoryID:    c.ID,
		CategoryName:  c.Name,
		UnitAmount:    c.UnitRate,
		UnitWeight:    c.UnitWeightKg,
		IsPacketBased: c.IsPacketBased,
	}
	if err := li.setQuantity(qty); err != nil {
		return LineItem{}, err
	}
	return li, nil
}

func (li *LineItem) setQuantity(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, qty)
	}
	q := decimal.NewFromInt(int64(qty))
	li.Quantity = qty
	li.Amount = li.UnitAmount.Mul(q)
	if li.IsPacketBased {
		li.Weight = decimal.Zero
		li.PacketCount = qty
	} else {
		li.Weight = li.UnitWeight.Mul(q)
		li.PacketCount = 0
	}
	return nil
}

// Cart holds at most one line item per category, in selection order.
type Cart struct {
	categories []catalog.Category
	byID       map[string]catalog.Category
	items      []LineItem
}

// New builds an empty cart over a catalog snapshot.
func New(categories []catalog.Category) *Cart {
	byID := make(map[string]catalog.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	return &Cart{
		categories: append([]catalog.Category(nil), categories...),
		byID:       byID,
	}
}

// SelectCategory adds a line item with quantity 1.
func (c *Cart) SelectCategory(categoryID string) error {
	if c.indexOf(categoryID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, categoryID)
	}
	cat, ok := c.byID[categoryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	if !cat.IsActive {
		return fmt.Errorf("%w: %s", ErrInactiveCategory, cat.Name)
	}
	li, err := NewLineItem(cat, 1)
	if err != nil {
		return err
	}
	c.items = append(c.items, li)
	return nil
}

// SetQuantity recomputes amount, weight and packet count for one line.
// Packet-based lines accept any positive quantity (one line, N packets).
func (c *Cart) SetQuantity(categoryID string, qty int) error {
	i := c.indexOf(categoryID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotInCart, categoryID)
	}
	return c.items[i].setQuantity(qty)
}

// RemoveLineItem drops a line; unknown ids are ignored.
func (c *Cart) RemoveLineItem(categoryID string) {
	i := c.indexOf(categoryID)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

// Available lists active catalog categories that are not yet in the cart.
func (c *Cart) Available() []catalog.Category {
	out := make([]catalog.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		if !cat.IsActive || c.indexOf(cat.ID) >= 0 {
			continue
		}
		out = append(out, cat)
	}
	return out
}

// Items returns a copy of the line items.
func (c *Cart) Items() []LineItem {
	return append([]LineItem(nil), c.items...)
}

// Len reports the number of line items.
func (c *Cart) Len() int { return len(c.items) }

func (c *Cart) indexOf(categoryID string) int {
	for i, li := range c.items {
		if li.CategoryID == categoryID {
			return i
		}
	}
	return -1
}
