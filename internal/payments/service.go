package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
	"github.com/imrishuroy/mahaprasad-donations/internal/cart"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/idempotency"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

// ReasonPaymentWindowExpired is stored on donations failed by the stale sweep.
const ReasonPaymentWindowExpired = "payment_window_expired"

// ReasonCheckoutDismissed is stored on donations cancelled by the stale sweep.
const ReasonCheckoutDismissed = "checkout_dismissed"

var (
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")
	ErrAmountMismatch        = errors.New("amount does not match cart total")
	ErrSignatureInvalid      = errors.New("payment signature verification failed")
	ErrOrderMismatch         = errors.New("gateway order does not belong to donation")
	ErrForbidden             = errors.New("donation belongs to another user")
	ErrDonationNotFound      = errors.New("donation not found")
	ErrNotPending            = errors.New("donation is not awaiting payment")
	ErrRequestInProgress     = errors.New("request already in progress")
	ErrPreviousAttemptFailed = errors.New("previous attempt failed")
	ErrGateway               = errors.New("payment gateway unavailable")
)

// Role is the caller's token scope.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Scope identifies the caller. Users may only act on their own donations;
// admins act on behalf of any donor.
type Scope struct {
	Role   Role
	UserID string
}

func (s Scope) owns(d *donations.Donation) bool {
	return s.Role == RoleAdmin || d.UserID == s.UserID
}

// CatalogReader lists the categories an order can reference.
type CatalogReader interface {
	List(ctx context.Context) ([]catalog.Category, error)
}

// UserReader resolves donors.
type UserReader interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// DonationStore is the persistence the service drives.
type DonationStore interface {
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, d donations.Donation, ttlWindow time.Duration) error
	Get(ctx context.Context, donationID string) (*donations.Donation, error)
	UpdateStatus(ctx context.Context, donationID string, expected, next donations.PaymentStatus, tr donations.Transition) error
	MarkCheckoutDismissed(ctx context.Context, donationID string) error
	ListStalePending(ctx context.Context, cutoff time.Time) ([]donations.Donation, error)
}

// IdempotencyStore guards order creation.
type IdempotencyStore interface {
	TableName() string
	TTL() time.Duration
	NewRecord(key, donationID, userID string) idempotency.Record
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// EventPublisher emits donation lifecycle events.
type EventPublisher interface {
	PublishDonationEvent(ctx context.Context, ev aws.DonationEvent) error
}

// Config holds donation policy applied by the service.
type Config struct {
	Currency   string
	OrgName    string
	CourierFee decimal.Decimal
	PendingTTL time.Duration
	ThemeColor string
}

// Deps groups the collaborators of Service.
type Deps struct {
	Catalog     CatalogReader
	Users       UserReader
	Donations   DonationStore
	Idempotency IdempotencyStore
	Gateway     Gateway
	Publisher   EventPublisher
	Logger      *zap.Logger
}

// Service implements donation order creation and payment reconciliation.
type Service struct {
	catalog   CatalogReader
	users     UserReader
	donations DonationStore
	idem      IdempotencyStore
	gateway   Gateway
	publisher EventPublisher
	cfg       Config
	log       *zap.Logger
	nowFunc   func() time.Time
	newID     func() string
}

// NewService wires a Service. A nil logger disables logging and a nil publisher
// disables events.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}
	if cfg.ThemeColor == "" {
		cfg.ThemeColor = "#F37254"
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		catalog:   deps.Catalog,
		users:     deps.Users,
		donations: deps.Donations,
		idem:      deps.Idempotency,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		cfg:       cfg,
		log:       log,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// ItemRequest selects a category and quantity.
type ItemRequest struct {
	CategoryID string
	Quantity   int
}

// CreateOrderRequest is a donation order as submitted by the portal.
type CreateOrderRequest struct {
	// UserID names the donor; only honoured for admin callers.
	UserID        string
	Items         []ItemRequest
	Amount        *decimal.Decimal // client-computed net payable, checked when set
	Method        donations.PaymentMethod
	Remarks       string
	PostalAddress string
	WillPickup    bool
}

// Prefill seeds the checkout form.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Theme styles the checkout.
type Theme struct {
	Color string `json:"color,omitempty"`
}

// CheckoutOptions is everything the hosted checkout is constructed with, except callbacks.
type CheckoutOptions struct {
	Key         string  `json:"key"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OrderID     string  `json:"order_id"`
	Prefill     Prefill `json:"prefill"`
	Theme       Theme   `json:"theme"`
}

// CreateOrderResponse is returned for a created (or replayed) donation order.
type CreateOrderResponse struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message,omitempty"`
	Donation        *donations.Donation `json:"donation,omitempty"`
	Order           *OrderDescriptor    `json:"order,omitempty"`
	DonationID      string              `json:"donationId"`
	PaymentRequired bool                `json:"paymentRequired"`
	Checkout        *CheckoutOptions    `json:"checkout,omitempty"`

	// Replayed is set when the response was served from the idempotency record.
	Replayed bool `json:"-"`
}

// InProgressError reports a concurrent request holding the idempotency key.
type InProgressError struct {
	DonationID string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("request already in progress for donation %s", e.DonationID)
}

func (e *InProgressError) Is(target error) bool { return target == ErrRequestInProgress }

// CreateOrder assembles, prices and persists a donation. Cash donations are
// recorded as completed; online donations get a gateway order and stay pending
// until VerifyPayment.
func (s *Service) CreateOrder(ctx context.Context, scope Scope, idempotencyKey string, req CreateOrderRequest) (*CreateOrderResponse, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}
	userID := scope.UserID
	if scope.Role == RoleAdmin {
		userID = strings.TrimSpace(req.UserID)
	}
	if userID == "" {
		return nil, &donations.ValidationError{Reasons: []string{"donor is required"}}
	}
	log := s.log.With(zap.String("idempotency_key", idempotencyKey), zap.String("user_id", userID))

	// Replay before touching the gateway so a retried online order does not open a second gateway order.
	if rec, err := s.idem.Get(ctx, idempotencyKey); err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	} else if rec != nil {
		return s.replay(ctx, rec, userID)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve donor: %w", err)
	}
	items, err := s.rebuildCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	totals := donations.ComputeTotals(items, req.WillPickup, s.cfg.CourierFee)
	if req.Amount != nil && !req.Amount.Equal(totals.NetPayable) {
		return nil, fmt.Errorf("%w: claimed %s, computed %s", ErrAmountMismatch, req.Amount.String(), totals.NetPayable.String())
	}
	order, err := donations.BuildOrder(user, items, totals, req.Method, req.Remarks, req.PostalAddress)
	if err != nil {
		return nil, err
	}
	if order.Method == donations.MethodOnline && ToMinorUnits(order.Amount) <= 0 {
		return nil, &donations.ValidationError{Reasons: []string{"online payment requires a positive amount"}}
	}

	now := s.nowFunc().UTC()
	d := donations.Donation{
		ID:        s.newID(),
		Order:     order,
		Date:      now,
		Currency:  s.cfg.Currency,
		CreatedAt: now,
	}
	resp := &CreateOrderResponse{Success: true, DonationID: d.ID}

	switch order.Method {
	case donations.MethodCash:
		d.PaymentStatus = donations.StatusCompleted
		d.CompletedAt = &now
		resp.Message = "Donation recorded"
	case donations.MethodOnline:
		desc, err := s.gateway.CreateOrder(ctx, OrderRequest{
			Amount:   ToMinorUnits(order.Amount),
			Currency: s.cfg.Currency,
			Receipt:  d.ID,
			Notes:    map[string]string{"donation_id": d.ID, "user_id": user.ID},
		})
		if err != nil {
			log.Error("gateway order failed", zap.String("donation_id", d.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrGateway, err)
		}
		d.PaymentStatus = donations.StatusPending
		d.GatewayOrderID = desc.ID
		resp.Message = "Payment required"
		resp.Order = &desc
		resp.PaymentRequired = true
		resp.Checkout = s.checkoutOptions(desc, user)
	}
	resp.Donation = &d

	rec := s.idem.NewRecord(idempotencyKey, d.ID, userID)
	if err := s.donations.CreateWithIdempotencyTransaction(ctx, s.idem.TableName(), rec, d, s.idem.TTL()); err != nil {
		if errors.Is(err, donations.ErrDuplicateRequest) {
			existing, getErr := s.idem.Get(ctx, idempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("idempotency lookup: %w", getErr)
			}
			if existing != nil {
				return s.replay(ctx, existing, userID)
			}
		}
		return nil, fmt.Errorf("persist donation: %w", err)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		_ = s.idem.MarkFailed(ctx, idempotencyKey, fmt.Sprintf("encode_response_failed: %v", err))
		return nil, fmt.Errorf("encode response: %w", err)
	}
	if err := s.idem.MarkDone(ctx, idempotencyKey, string(body), http.StatusCreated); err != nil {
		log.Warn("mark idempotency done failed", zap.String("donation_id", d.ID), zap.Error(err))
	}

	evType := aws.EventDonationCreated
	if d.PaymentStatus == donations.StatusCompleted {
		evType = aws.EventDonationCompleted
	}
	s.publish(ctx, evType, d)

	log.Info("donation created",
		zap.String("donation_id", d.ID),
		zap.String("method", string(d.Method)),
		zap.String("status", string(d.PaymentStatus)),
		zap.String("amount", d.Amount.String()),
	)
	return resp, nil
}

func (s *Service) replay(ctx context.Context, rec *idempotency.Record, userID string) (*CreateOrderResponse, error) {
	if rec.UserID != "" && rec.UserID != userID {
		return nil, ErrForbidden
	}
	switch rec.Status {
	case idempotency.StatusDone:
		var resp CreateOrderResponse
		if rec.ResponseBody == "" {
			return &CreateOrderResponse{Success: true, DonationID: rec.DonationID, Replayed: true}, nil
		}
		if err := json.Unmarshal([]byte(rec.ResponseBody), &resp); err != nil {
			return nil, fmt.Errorf("decode stored response: %w", err)
		}
		resp.Replayed = true
		return &resp, nil
	case idempotency.StatusInProgress:
		return s.replayCommitted(ctx, rec)
	case idempotency.StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrPreviousAttemptFailed, rec.Note)
	}
	return nil, fmt.Errorf("unknown idempotency status %q", rec.Status)
}

// replayCommitted answers a key still marked in progress. The donation and the
// record are written in one transaction, so an existing donation means the
// original request committed and only MarkDone was lost; the response is
// rebuilt from the donation and the record is completed.
func (s *Service) replayCommitted(ctx context.Context, rec *idempotency.Record) (*CreateOrderResponse, error) {
	d, err := s.donations.Get(ctx, rec.DonationID)
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	if d == nil {
		return nil, &InProgressError{DonationID: rec.DonationID}
	}

	resp := &CreateOrderResponse{Success: true, DonationID: d.ID, Donation: d, Message: "Donation recorded"}
	if d.Method == donations.MethodOnline {
		desc := OrderDescriptor{
			ID:       d.GatewayOrderID,
			Amount:   ToMinorUnits(d.Amount),
			Currency: d.Currency,
			Receipt:  d.ID,
		}
		resp.Message = "Payment required"
		resp.Order = &desc
		resp.PaymentRequired = d.PaymentStatus == donations.StatusPending
		if resp.PaymentRequired {
			user := users.User{ID: d.UserID}
			if u, err := s.users.Get(ctx, d.UserID); err == nil {
				user = u
			}
			resp.Checkout = s.checkoutOptions(desc, user)
		}
	}

	if body, err := json.Marshal(resp); err == nil {
		if err := s.idem.MarkDone(ctx, rec.IdempotencyKey, string(body), http.StatusCreated); err != nil {
			s.log.Warn("mark idempotency done failed", zap.String("donation_id", d.ID), zap.Error(err))
		}
	}
	resp.Replayed = true
	return resp, nil
}

// rebuildCart prices the requested items from the live catalog.
func (s *Service) rebuildCart(ctx context.Context, reqItems []ItemRequest) ([]cart.LineItem, error) {
	cats, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	b := cart.New(cats)
	for _, it := range reqItems {
		if err := b.SelectCategory(it.CategoryID); err != nil {
			return nil, err
		}
		if err := b.SetQuantity(it.CategoryID, it.Quantity); err != nil {
			return nil, err
		}
	}
	return b.Items(), nil
}

func (s *Service) checkoutOptions(desc OrderDescriptor, user users.User) *CheckoutOptions {
	return &CheckoutOptions{
		Key:         s.gateway.KeyID(),
		Amount:      desc.Amount,
		Currency:    desc.Currency,
		Name:        s.cfg.OrgName,
		Description: "Mahaprasad donation",
		OrderID:     desc.ID,
		Prefill: Prefill{
			Name:    user.Name,
			Email:   user.Email,
			Contact: user.Phone,
		},
		Theme: Theme{Color: s.cfg.ThemeColor},
	}
}

// VerifyRequest carries the checkout success callback ids.
type VerifyRequest struct {
	OrderID    string
	PaymentID  string
	Signature  string
	DonationID string
}

// VerifyPayment checks the checkout signature and completes the donation. A
// failed check leaves the donation pending. Re-verifying a donation already
// completed by the same payment succeeds.
func (s *Service) VerifyPayment(ctx context.Context, scope Scope, req VerifyRequest) (*donations.Donation, error) {
	log := s.log.With(zap.String("donation_id", req.DonationID), zap.String("gateway_order_id", req.OrderID))

	d, err := s.loadOwned(ctx, scope, req.DonationID)
	if err != nil {
		return nil, err
	}
	if d.Method != donations.MethodOnline || d.GatewayOrderID == "" || d.GatewayOrderID != req.OrderID {
		log.Warn("verify with foreign gateway order")
		return nil, ErrOrderMismatch
	}
	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		log.Warn("payment signature rejected", zap.String("payment_id", req.PaymentID))
		return nil, ErrSignatureInvalid
	}

	switch d.PaymentStatus {
	case donations.StatusCompleted:
		if d.TransactionID == req.PaymentID {
			return d, nil
		}
		return nil, ErrNotPending
	case donations.StatusPending:
	default:
		return nil, ErrNotPending
	}

	err = s.donations.UpdateStatus(ctx, d.ID, donations.StatusPending, donations.StatusCompleted, donations.Transition{TransactionID: req.PaymentID})
	if err != nil && !errors.Is(err, donations.ErrStatusMismatch) {
		return nil, fmt.Errorf("complete donation: %w", err)
	}
	updated, getErr := s.donations.Get(ctx, d.ID)
	if getErr != nil {
		return nil, fmt.Errorf("reload donation: %w", getErr)
	}
	if updated == nil {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		// Lost a race: fine if the winner completed with this payment.
		if updated.PaymentStatus == donations.StatusCompleted && updated.TransactionID == req.PaymentID {
			return updated, nil
		}
		return nil, ErrNotPending
	}

	s.publish(ctx, aws.EventDonationCompleted, *updated)
	log.Info("donation payment verified", zap.String("payment_id", req.PaymentID))
	return updated, nil
}

// DismissCheckout records that the donor closed the checkout. The donation stays pending.
func (s *Service) DismissCheckout(ctx context.Context, scope Scope, donationID string) error {
	d, err := s.loadOwned(ctx, scope, donationID)
	if err != nil {
		return err
	}
	if d.PaymentStatus != donations.StatusPending {
		return ErrNotPending
	}
	if err := s.donations.MarkCheckoutDismissed(ctx, d.ID); err != nil {
		if errors.Is(err, donations.ErrStatusMismatch) {
			return ErrNotPending
		}
		return fmt.Errorf("mark dismissed: %w", err)
	}
	s.log.Info("checkout dismissed", zap.String("donation_id", d.ID))
	return nil
}

// ExpireResult counts the donations closed by ExpireStale.
type ExpireResult struct {
	Cancelled int
	Failed    int
	Skipped   int
}

// ExpireStale closes online donations left pending longer than the payment
// window: dismissed checkouts are cancelled, the rest fail.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (ExpireResult, error) {
	var res ExpireResult
	stale, err := s.donations.ListStalePending(ctx, now.Add(-s.cfg.PendingTTL))
	if err != nil {
		return res, fmt.Errorf("list stale: %w", err)
	}

	var errs []error
	for _, d := range stale {
		next, reason := donations.StatusFailed, ReasonPaymentWindowExpired
		if d.CheckoutDismissedAt != nil {
			next, reason = donations.StatusCancelled, ReasonCheckoutDismissed
		}
		err := s.donations.UpdateStatus(ctx, d.ID, donations.StatusPending, next, donations.Transition{FailureReason: reason})
		switch {
		case errors.Is(err, donations.ErrStatusMismatch):
			res.Skipped++
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("expire %s: %w", d.ID, err))
			continue
		}
		if next == donations.StatusCancelled {
			res.Cancelled++
		} else {
			res.Failed++
		}
		d.PaymentStatus = next
		s.publish(ctx, aws.EventDonationExpired, d)
	}

	s.log.Info("stale donations swept",
		zap.Int("found", len(stale)),
		zap.Int("cancelled", res.Cancelled),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, errors.Join(errs...)
}

func (s *Service) loadOwned(ctx context.Context, scope Scope, donationID string) (*donations.Donation, error) {
	if strings.TrimSpace(donationID) == "" {
		return nil, ErrDonationNotFound
	}
	d, err := s.donations.Get(ctx, donationID)
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	if d == nil {
		return nil, ErrDonationNotFound
	}
	if !scope.owns(d) {
		return nil, ErrForbidden
	}
	return d, nil
}

func (s *Service) publish(ctx context.Context, evType string, d donations.Donation) {
	if s.publisher == nil {
		return
	}
	ev := aws.DonationEvent{
		Type:       evType,
		DonationID: d.ID,
		UserID:     d.UserID,
		Method:     string(d.Method),
		Status:     string(d.PaymentStatus),
		Amount:     d.Amount.InexactFloat64(),
	}
	if err := s.publisher.PublishDonationEvent(ctx, ev); err != nil {
		s.log.Warn("publish donation event failed", zap.String("event_type", evType), zap.String("donation_id", d.ID), zap.Error(err))
	}
}
