package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/cart"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
	"github.com/imrishuroy/mahaprasad-donations/internal/validation"
)

// State is the position of a submission in the checkout flow.
type State string

const (
	StateCreated                 State = "created"
	StateAwaitingGatewayRedirect State = "awaiting_gateway_redirect"
	StateCompleted               State = "completed"
	StateFailed                  State = "failed"
	StateCancelled               State = "cancelled"
)

var (
	// ErrSubmitting is returned when a submission is already running.
	ErrSubmitting = errors.New("a donation is already being submitted")
	// ErrCheckoutUnavailable wraps a checkout script load failure. No order was created.
	ErrCheckoutUnavailable = errors.New("payment gateway could not be loaded")
	// ErrInProgress is returned when the API reports the same order is still being created.
	ErrInProgress = errors.New("donation order is still being processed")
)

// Backend is the donation API as the flow uses it. *Client implements it.
type Backend interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	Donations(ctx context.Context) ([]donations.Donation, error)
	CreateOrder(ctx context.Context, idempotencyKey string, req validation.CreateDonationRequest) (*payments.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req validation.VerifyPaymentRequest) (*donations.Donation, error)
	DismissCheckout(ctx context.Context, donationID string) error
}

// App holds the portal's fetched lists. Screens read snapshots and call the
// Load methods on mount.
type App struct {
	backend Backend

	mu         sync.RWMutex
	categories []catalog.Category
	donations  []donations.Donation
}

// NewApp returns an empty App over backend.
func NewApp(backend Backend) *App {
	return &App{backend: backend}
}

// LoadCategories refreshes the category list.
func (a *App) LoadCategories(ctx context.Context) ([]catalog.Category, error) {
	cats, err := a.backend.Categories(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.categories = cats
	a.mu.Unlock()
	return cats, nil
}

// LoadDonations refreshes the donation list.
func (a *App) LoadDonations(ctx context.Context) ([]donations.Donation, error) {
	list, err := a.backend.Donations(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.donations = list
	a.mu.Unlock()
	return list, nil
}

// Categories returns the last fetched categories.
func (a *App) Categories() []catalog.Category {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]catalog.Category(nil), a.categories...)
}

// Donations returns the last fetched donations.
func (a *App) Donations() []donations.Donation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]donations.Donation(nil), a.donations...)
}

// NewCart starts a cart over the last fetched categories.
func (a *App) NewCart() *cart.Cart {
	return cart.New(a.Categories())
}

// Draft is an order as composed on the donation screen.
type Draft struct {
	Donor         users.User // profile of the donor the order is for
	OnBehalf      bool       // admin submitting for Donor
	Items         []cart.LineItem
	Method        donations.PaymentMethod
	WillPickup    bool
	PostalAddress string
	Remarks       string
}

// Outcome reports where a submission ended.
type Outcome struct {
	State      State
	DonationID string
	Donation   *donations.Donation
	// Message is the server's message on failure.
	Message string
}

// Flow drives one submission at a time through create-order, checkout,
// verification and list refresh.
type Flow struct {
	app        *App
	backend    Backend
	checkout   Checkout
	courierFee int64
	log        *zap.Logger
	newKey     func() string

	mu         sync.Mutex
	submitting bool
	state      State
}

// NewFlow wires a Flow. checkout may be nil for cash-only portals.
func NewFlow(app *App, checkout Checkout, courierFee int64, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		app:        app,
		backend:    app.backend,
		checkout:   checkout,
		courierFee: courierFee,
		log:        log,
		newKey:     uuid.NewString,
		state:      StateCreated,
	}
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Submit validates the draft locally and runs it to a terminal state.
// Validation and checkout load failures return an error with no network
// mutation. A dismissed checkout ends Cancelled without an error.
func (f *Flow) Submit(ctx context.Context, d Draft) (Outcome, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return Outcome{State: f.state}, ErrSubmitting
	}
	f.submitting = true
	f.state = StateCreated
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	req, err := f.payload(d)
	if err != nil {
		return Outcome{State: StateCreated}, err
	}

	if d.Method == donations.MethodOnline {
		if f.checkout == nil {
			return Outcome{State: StateCreated}, ErrCheckoutUnavailable
		}
		if err := f.checkout.Load(ctx); err != nil {
			f.log.Warn("checkout script load failed", zap.Error(err))
			return Outcome{State: StateCreated}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}

	resp, err := f.backend.CreateOrder(ctx, f.newKey(), req)
	if err != nil {
		f.setState(StateFailed)
		return Outcome{State: StateFailed, Message: messageOf(err)}, err
	}
	if resp.Donation == nil && !resp.PaymentRequired {
		f.setState(StateFailed)
		return Outcome{State: StateFailed, DonationID: resp.DonationID, Message: resp.Message}, ErrInProgress
	}
	out := Outcome{DonationID: resp.DonationID, Donation: resp.Donation}

	if !resp.PaymentRequired {
		f.setState(StateCompleted)
		out.State = StateCompleted
		f.refresh(ctx)
		return out, nil
	}

	f.setState(StateAwaitingGatewayRedirect)
	if resp.Checkout == nil {
		f.setState(StateFailed)
		out.State = StateFailed
		out.Message = "no checkout options returned"
		return out, errors.New(out.Message)
	}
	result, err := f.checkout.Open(ctx, *resp.Checkout)
	if err != nil {
		f.setState(StateFailed)
		out.State = StateFailed
		out.Message = messageOf(err)
		return out, err
	}

	if result.Dismissed {
		f.setState(StateCancelled)
		out.State = StateCancelled
		if err := f.backend.DismissCheckout(ctx, resp.DonationID); err != nil {
			f.log.Warn("report checkout dismissal failed", zap.String("donation_id", resp.DonationID), zap.Error(err))
		}
		return out, nil
	}

	donation, err := f.backend.VerifyPayment(ctx, validation.VerifyPaymentRequest{
		RazorpayOrderID:   result.OrderID,
		RazorpayPaymentID: result.PaymentID,
		RazorpaySignature: result.Signature,
		DonationID:        resp.DonationID,
	})
	if err != nil {
		f.setState(StateFailed)
		out.State = StateFailed
		out.Message = messageOf(err)
		return out, err
	}
	f.setState(StateCompleted)
	out.State = StateCompleted
	out.Donation = donation
	f.refresh(ctx)
	return out, nil
}

// payload validates the draft and projects it onto the API request.
func (f *Flow) payload(d Draft) (validation.CreateDonationRequest, error) {
	fee := int64(donations.DefaultCourierFee)
	if f.courierFee > 0 {
		fee = f.courierFee
	}
	totals := donations.ComputeTotals(d.Items, d.WillPickup, decimal.NewFromInt(fee))
	order, err := donations.BuildOrder(d.Donor, d.Items, totals, d.Method, d.Remarks, d.PostalAddress)
	if err != nil {
		return validation.CreateDonationRequest{}, err
	}

	list := make([]validation.ListItem, 0, len(order.List))
	for _, e := range order.List {
		list = append(list, validation.ListItem{
			CategoryID: e.CategoryID,
			Category:   e.Category,
			Number:     e.Number,
			Amount:     e.Amount,
			IsPacket:   e.IsPacket,
			Quantity:   e.Quantity,
		})
	}
	req := validation.CreateDonationRequest{
		List:          list,
		Amount:        order.Amount,
		CourierCharge: order.CourierCharge,
		Method:        string(order.Method),
		Remarks:       order.Remarks,
		PostalAddress: order.PostalAddress,
		WillPickup:    order.WillPickup,
	}
	if d.OnBehalf {
		req.UserID = d.Donor.ID
	}
	return req, nil
}

func (f *Flow) refresh(ctx context.Context) {
	if _, err := f.app.LoadDonations(ctx); err != nil {
		f.log.Warn("refresh donations failed", zap.Error(err))
	}
}

func messageOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
