package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with the struct-level donation and
// category rules registered. Field errors are reported by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createDonationStructValidation, CreateDonationRequest{})
	v.RegisterStructValidation(categoryStructValidation, CategoryRequest{})

	return v
}

// createDonationStructValidation checks the client's arithmetic: each line's
// amount, the courier charge for the chosen delivery, and that amount is the
// line total plus courier. The server reprices from the catalog regardless.
func createDonationStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateDonationRequest)

	sum := decimal.Zero
	for _, it := range req.List {
		if it.Amount.IsNegative() {
			sl.ReportError(it.Amount, "amount", "Amount", "non_negative", "")
		}
		sum = sum.Add(it.Amount)
	}

	if req.CourierCharge.IsNegative() {
		sl.ReportError(req.CourierCharge, "courierCharge", "CourierCharge", "non_negative", "")
	}
	if req.WillPickup && !req.CourierCharge.IsZero() {
		sl.ReportError(req.CourierCharge, "courierCharge", "CourierCharge", "zero_on_pickup", req.CourierCharge.String())
	}
	if !req.WillPickup && strings.TrimSpace(req.PostalAddress) == "" {
		sl.ReportError(req.PostalAddress, "postalAddress", "PostalAddress", "required_for_courier", "")
	}

	if !sum.Add(req.CourierCharge).Equal(req.Amount) {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items", sum.Add(req.CourierCharge).String())
	}
}

func categoryStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CategoryRequest)

	if req.UnitRate.IsNegative() {
		sl.ReportError(req.UnitRate, "unitRate", "UnitRate", "non_negative", "")
	}
	if req.UnitWeightKg.IsNegative() {
		sl.ReportError(req.UnitWeightKg, "unitWeightKg", "UnitWeightKg", "non_negative", "")
	}
}
