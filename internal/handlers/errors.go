package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/cart"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/logging"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

// writeError maps domain errors onto the portal's JSON envelope.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ve *donations.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_order",
			"message": ve.Error(),
			"reasons": ve.Reasons,
		})
		return
	}
	var busy *payments.InProgressError
	if errors.As(err, &busy) {
		c.JSON(http.StatusAccepted, gin.H{
			"success":    true,
			"message":    "request already in progress",
			"donationId": busy.DonationID,
		})
		return
	}

	status, code := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			message = "Something went wrong"
		}
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, cart.ErrDuplicateCategory),
		errors.Is(err, cart.ErrUnknownCategory),
		errors.Is(err, cart.ErrInactiveCategory),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_cart"
	case errors.Is(err, catalog.ErrInvalidCategory):
		return http.StatusBadRequest, "invalid_category"
	case errors.Is(err, payments.ErrMissingIdempotencyKey):
		return http.StatusBadRequest, "missing_idempotency_key"
	case errors.Is(err, payments.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, "amount_mismatch"
	case errors.Is(err, payments.ErrSignatureInvalid):
		return http.StatusBadRequest, "signature_invalid"
	case errors.Is(err, payments.ErrOrderMismatch):
		return http.StatusBadRequest, "order_mismatch"
	case errors.Is(err, payments.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, payments.ErrDonationNotFound):
		return http.StatusNotFound, "donation_not_found"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "category_not_found"
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, payments.ErrNotPending):
		return http.StatusConflict, "not_pending"
	case errors.Is(err, payments.ErrPreviousAttemptFailed):
		return http.StatusConflict, "previous_attempt_failed"
	case errors.Is(err, payments.ErrGateway):
		return http.StatusBadGateway, "gateway_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
