package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/logging"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/validation"
)

// IdempotencyHeader must accompany every create-donation-order call.
const IdempotencyHeader = "Idempotency-Key"

func (s *server) listDonations(c *gin.Context) {
	list, err := s.donations.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "donations": nonNil(list)})
}

func (s *server) myDonations(c *gin.Context) {
	list, err := s.donations.ListByUser(c.Request.Context(), scopeFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "donations": nonNil(list)})
}

func (s *server) createDonationOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateDonationRequest
	if err := validation.BindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	method, err := donations.ParseMethod(req.Method)
	if err != nil {
		writeError(c, &donations.ValidationError{Reasons: []string{err.Error()}})
		return
	}

	items := make([]payments.ItemRequest, 0, len(req.List))
	for _, li := range req.List {
		items = append(items, payments.ItemRequest{CategoryID: li.CategoryID, Quantity: li.Number})
	}
	claimed := req.Amount

	resp, err := s.payments.CreateOrder(ctx, scopeFrom(c), c.GetHeader(IdempotencyHeader), payments.CreateOrderRequest{
		UserID:        req.UserID,
		Items:         items,
		Amount:        &claimed,
		Method:        method,
		Remarks:       req.Remarks,
		PostalAddress: req.PostalAddress,
		WillPickup:    req.WillPickup,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
		c.Header("Idempotent-Replayed", "true")
		logging.FromContext(ctx).Info("replayed donation order", zap.String("donation_id", resp.DonationID))
	}
	c.JSON(status, resp)
}

func (s *server) verifyDonationPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	d, err := s.payments.VerifyPayment(c.Request.Context(), scopeFrom(c), payments.VerifyRequest{
		OrderID:    req.RazorpayOrderID,
		PaymentID:  req.RazorpayPaymentID,
		Signature:  req.RazorpaySignature,
		DonationID: req.DonationID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified", "donation": d})
}

func (s *server) dismissDonationPayment(c *gin.Context) {
	var req validation.DismissPaymentRequest
	if err := validation.BindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	if err := s.payments.DismissCheckout(c.Request.Context(), scopeFrom(c), req.DonationID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment cancelled, donation left pending"})
}

func nonNil(list []donations.Donation) []donations.Donation {
	if list == nil {
		return []donations.Donation{}
	}
	return list
}
