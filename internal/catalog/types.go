package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a category id does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrInvalidCategory wraps invariant violations on create/update.
	ErrInvalidCategory = errors.New("invalid category")
)

// Category is an admin-configured donation category with its unit pricing.
type Category struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	UnitRate      decimal.Decimal `json:"unitRate"`
	UnitWeightKg  decimal.Decimal `json:"unitWeightKg"`
	IsPacketBased bool            `json:"isPacketBased"`
	IsActive      bool            `json:"isActive"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Validate enforces non-negative rate and weight and a non-empty name.
func (c Category) Validate() error {
	var reasons []string
	if strings.TrimSpace(c.Name) == "" {
		reasons = append(reasons, "name is required")
	}
	if c.UnitRate.IsNegative() {
		reasons = append(reasons, "unit rate must be >= 0")
	}
	if c.UnitWeightKg.IsNegative() {
		reasons = append(reasons, "unit weight must be >= 0")
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCategory, strings.Join(reasons, "; "))
	}
	return nil
}

// categoryItem is the DynamoDB shape. Decimals are stored as strings to keep them exact.
type categoryItem struct {
	CategoryID    string    `dynamodbav:"category_id"`
	Name          string    `dynamodbav:"name"`
	UnitRate      string    `dynamodbav:"unit_rate"`
	UnitWeightKg  string    `dynamodbav:"unit_weight_kg"`
	IsPacketBased bool      `dynamodbav:"is_packet_based"`
	IsActive      bool      `dynamodbav:"is_active"`
	Description   string    `dynamodbav:"description,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
}

func toItem(c Category) categoryItem {
	return categoryItem{
		CategoryID:    c.ID,
		Name:          c.Name,
		UnitRate:      c.UnitRate.String(),
		UnitWeightKg:  c.UnitWeightKg.String(),
		IsPacketBased: c.IsPacketBased,
		IsActive:      c.IsActive,
		Description:   c.Description,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (it categoryItem) toCategory() (Category, error) {
	rate, err := decimal.NewFromString(it.UnitRate)
	if err != nil {
		return Category{}, fmt.Errorf("parse unit rate for %s: %w", it.CategoryID, err)
	}
	weight, err := decimal.NewFromString(it.UnitWeightKg)
	if err != nil {
		return Category{}, fmt.Errorf("parse unit weight for %s: %w", it.CategoryID, err)
	}
	return Category{
		ID:            it.CategoryID,
		Name:          it.Name,
		UnitRate:      rate,
		UnitWeightKg:  weight,
		IsPacketBased: it.IsPacketBased,
		IsActive:      it.IsActive,
		Description:   it.Description,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}, nil
}
