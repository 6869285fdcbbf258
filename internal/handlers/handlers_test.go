package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/mahaprasad-donations/internal/awstest"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/idempotency"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

type stubGateway struct{ n int }

func (g *stubGateway) CreateOrder(_ context.Context, req payments.OrderRequest) (payments.OrderDescriptor, error) {
	g.n++
	return payments.OrderDescriptor{ID: "order_test", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

func (g *stubGateway) VerifySignature(_, _, sig string) bool { return sig == "valid" }

func (g *stubGateway) KeyID() string { return "rzp_test" }

type testServer struct {
	router     *gin.Engine
	auth       *Authenticator
	adminToken string
	userToken  string
	gateway    *stubGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := awstest.NewDynamoDB().
		CreateTable("categories", "category_id").
		CreateTable("users", "user_id").
		CreateTable("donations", "donation_id").
		CreateTable("idempotency", "idempotency_key")

	db.SeedValue("users", users.User{ID: "u-1", Name: "Asha", Address: users.Address{Street: "12 Grand Road", City: "Puri", State: "Odisha", Pin: "752001"}})
	us := users.NewStore(db, "users")

	cats := catalog.NewStore(db, "categories")
	store := donations.NewStore(db, "donations")
	gw := &stubGateway{}
	svc := payments.NewService(payments.Deps{
		Catalog:     cats,
		Users:       us,
		Donations:   store,
		Idempotency: idempotency.NewStore(db, "idempotency", time.Hour),
		Gateway:     gw,
	}, payments.Config{Currency: "INR", OrgName: "Mahaprasad Seva", CourierFee: decimal.NewFromInt(600)})

	auth := NewAuthenticator("test-secret")
	r := gin.New()
	RegisterRoutes(r, HandlerConfig{Categories: cats, Donations: store, Payments: svc, Auth: auth})

	adminToken, err := auth.Issue(payments.RoleAdmin, "admin-1", time.Hour)
	if err != nil {
		t.Fatalf("issue admin: %v", err)
	}
	userToken, err := auth.Issue(payments.RoleUser, "u-1", time.Hour)
	if err != nil {
		t.Fatalf("issue user: %v", err)
	}
	return &testServer{router: r, auth: auth, adminToken: adminToken, userToken: userToken, gateway: gw}
}

func (ts *testServer) do(t *testing.T, method, path string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) admin(extra ...string) map[string]string {
	h := map[string]string{AdminTokenHeader: ts.adminToken}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func (ts *testServer) user(extra ...string) map[string]string {
	h := map[string]string{UserTokenHeader: ts.userToken}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func (ts *testServer) createLaddu(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/admin/categories", ts.admin(), gin.H{
		"name": "Laddu", "unitRate": 50, "unitWeightKg": 0.5,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Category catalog.Category `json:"category"`
	}
	decode(t, w, &resp)
	return resp.Category.ID
}

func ladduOrder(categoryID, method string) gin.H {
	return gin.H{
		"list": []gin.H{{
			"categoryId": categoryID, "category": "Laddu", "number": 4, "amount": 200, "isPacket": false, "quantity": 2,
		}},
		"amount":     200,
		"method":     method,
		"willPickup": true,
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, http.MethodGet, "/api/admin/categories", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	// a user token is not an admin token
	if w := ts.do(t, http.MethodGet, "/api/admin/categories", map[string]string{AdminTokenHeader: ts.userToken}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for user token on admin route, got %d", w.Code)
	}
	other := NewAuthenticator("other-secret")
	forged, _ := other.Issue(payments.RoleAdmin, "x", time.Hour)
	if w := ts.do(t, http.MethodGet, "/api/admin/categories", map[string]string{AdminTokenHeader: forged}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", w.Code)
	}
	expired, _ := ts.auth.Issue(payments.RoleUser, "u-1", -time.Minute)
	if w := ts.do(t, http.MethodGet, "/api/user/my-donations", map[string]string{UserTokenHeader: expired}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/user/my-donations", ts.user(), nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for user, got %d", w.Code)
	}
}

func TestCategoryCRUD(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	w := ts.do(t, http.MethodPut, "/api/admin/categories/"+id, ts.admin(), gin.H{
		"name": "Laddu", "unitRate": 60, "unitWeightKg": 0.5, "isActive": false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	var active struct {
		Categories []catalog.Category `json:"categories"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/user/categories", ts.user(), nil), &active)
	if len(active.Categories) != 0 {
		t.Fatalf("inactive category must be hidden from users: %+v", active.Categories)
	}

	var all struct {
		Categories []catalog.Category `json:"categories"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/admin/categories", ts.admin(), nil), &all)
	if len(all.Categories) != 1 || !all.Categories[0].UnitRate.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected admin list %+v", all.Categories)
	}

	if w := ts.do(t, http.MethodPost, "/api/admin/categories", ts.admin(), gin.H{"name": "Bad", "unitRate": -5, "isPacketBased": true}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative rate, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, "/api/admin/categories/"+id, ts.admin(), nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, "/api/admin/categories/"+id, ts.admin(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", w.Code)
	}
}

func TestCreateDonationOrder_Cash(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-1"), ladduOrder(id, "Cash"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp payments.CreateOrderResponse
	decode(t, w, &resp)
	if !resp.Success || resp.PaymentRequired || resp.Donation.PaymentStatus != donations.StatusCompleted {
		t.Fatalf("unexpected response %+v", resp)
	}

	// same key replays
	w = ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-1"), ladduOrder(id, "Cash"))
	if w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay, got %d %v", w.Code, w.Header())
	}

	var mine struct {
		Donations []donations.Donation `json:"donations"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/user/my-donations", ts.user(), nil), &mine)
	if len(mine.Donations) != 1 || mine.Donations[0].ID != resp.DonationID {
		t.Fatalf("expected one donation, got %+v", mine.Donations)
	}
}

func TestCreateDonationOrder_Rejections(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	if w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(), ladduOrder(id, "Cash")); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", w.Code)
	}

	bad := ladduOrder(id, "Cash")
	bad["amount"] = 150
	bad["list"] = []gin.H{{"categoryId": id, "number": 4, "amount": 150}}
	w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-2"), bad)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for repriced mismatch, got %d %s", w.Code, w.Body.String())
	}

	courier := ladduOrder(id, "Cash")
	courier["willPickup"] = false
	courier["courierCharge"] = 600
	courier["amount"] = 800
	if w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-3"), courier); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for courier without address, got %d", w.Code)
	}

	unknown := ladduOrder("missing", "Cash")
	if w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-4"), unknown); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", w.Code)
	}
}

func TestOnlineOrderVerifyAndDismiss(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	w := ts.do(t, http.MethodPost, "/api/user/create-donation-order", ts.user(IdempotencyHeader, "k-1"), ladduOrder(id, "Online"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp payments.CreateOrderResponse
	decode(t, w, &resp)
	if !resp.PaymentRequired || resp.Checkout == nil || resp.Checkout.OrderID != "order_test" || resp.Checkout.Amount != 20000 {
		t.Fatalf("unexpected online response %+v", resp)
	}

	if w := ts.do(t, http.MethodPost, "/api/user/dismiss-donation-payment", ts.user(), gin.H{"donationId": resp.DonationID}); w.Code != http.StatusOK {
		t.Fatalf("dismiss: %d %s", w.Code, w.Body.String())
	}

	verify := gin.H{
		"razorpay_order_id":   "order_test",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  "forged",
		"donationId":          resp.DonationID,
	}
	if w := ts.do(t, http.MethodPost, "/api/user/verify-donation-payment", ts.user(), verify); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", w.Code)
	}

	verify["razorpay_signature"] = "valid"
	w = ts.do(t, http.MethodPost, "/api/admin/verify-donation-payment", ts.admin(), verify)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", w.Code, w.Body.String())
	}
	var verified struct {
		Success  bool               `json:"success"`
		Donation donations.Donation `json:"donation"`
	}
	decode(t, w, &verified)
	if !verified.Success || verified.Donation.PaymentStatus != donations.StatusCompleted {
		t.Fatalf("expected completed, got %+v", verified)
	}

	var list struct {
		Donations []donations.Donation `json:"donations"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/admin/donation-list", ts.admin(), nil), &list)
	if len(list.Donations) != 1 || list.Donations[0].TransactionID != "pay_1" {
		t.Fatalf("unexpected donation list %+v", list.Donations)
	}
}

func TestAdminCreatesForDonor(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	body := ladduOrder(id, "Cash")
	body["userId"] = "u-1"
	w := ts.do(t, http.MethodPost, "/api/admin/create-donation-order", ts.admin(IdempotencyHeader, "k-1"), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	body["userId"] = "ghost"
	if w := ts.do(t, http.MethodPost, "/api/admin/create-donation-order", ts.admin(IdempotencyHeader, "k-2"), body); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown donor, got %d", w.Code)
	}
}

func TestAdminDismissesOnBehalf(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createLaddu(t)

	body := ladduOrder(id, "Online")
	body["userId"] = "u-1"
	w := ts.do(t, http.MethodPost, "/api/admin/create-donation-order", ts.admin(IdempotencyHeader, "k-1"), body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var resp payments.CreateOrderResponse
	decode(t, w, &resp)

	if w := ts.do(t, http.MethodPost, "/api/admin/dismiss-donation-payment", ts.admin(), gin.H{"donationId": resp.DonationID}); w.Code != http.StatusOK {
		t.Fatalf("admin dismiss: %d %s", w.Code, w.Body.String())
	}
	var list struct {
		Donations []donations.Donation `json:"donations"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/admin/donation-list", ts.admin(), nil), &list)
	if len(list.Donations) != 1 || list.Donations[0].CheckoutDismissedAt == nil || list.Donations[0].PaymentStatus != donations.StatusPending {
		t.Fatalf("expected pending donation marked dismissed, got %+v", list.Donations)
	}

	if w := ts.do(t, http.MethodPost, "/api/admin/dismiss-donation-payment", ts.admin(), gin.H{"donationId": "missing"}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown donation, got %d", w.Code)
	}
}
