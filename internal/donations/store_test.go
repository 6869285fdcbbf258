package donations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/mahaprasad-donations/internal/awstest"
)

const (
	donationsTable   = "donations"
	idempotencyTable = "idempotency"
)

type idemRecord struct {
	IdempotencyKey string `dynamodbav:"idempotency_key"`
	Status         string `dynamodbav:"status"`
	DonationID     string `dynamodbav:"donation_id"`
}

func newTestStore(now time.Time) (*Store, *awstest.DynamoDB) {
	db := awstest.NewDynamoDB().
		CreateTable(donationsTable, "donation_id").
		CreateTable(idempotencyTable, "idempotency_key")
	s := NewStore(db, donationsTable)
	s.nowFunc = func() time.Time { return now }
	return s, db
}

func sampleDonation(id, user string, method PaymentMethod, status PaymentStatus, created time.Time) Donation {
	return Donation{
		ID: id,
		Order: Order{
			UserID: user,
			List: []ListEntry{{
				CategoryID: "laddu",
				Category:   "Laddu",
				Number:     4,
				UnitAmount: decimal.NewFromInt(50),
				Amount:     decimal.NewFromInt(200),
				Quantity:   decimal.RequireFromString("2"),
			}},
			Amount:        decimal.NewFromInt(200),
			CourierCharge: decimal.Zero,
			Method:        method,
			WillPickup:    true,
			PostalAddress: "1 Temple Rd, Puri, Odisha - 752001",
			TotalWeight:   decimal.RequireFromString("2"),
		},
		PaymentStatus: status,
		Currency:      "INR",
		CreatedAt:     created,
	}
}

func TestCreateWithIdempotencyTransaction_WritesBoth(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s, db := newTestStore(now)
	ctx := context.Background()

	d := sampleDonation("d-1", "u-1", MethodCash, StatusCompleted, time.Time{})
	rec := idemRecord{IdempotencyKey: "k-1", Status: "IN_PROGRESS", DonationID: "d-1"}
	if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, rec, d, 48*time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if db.Len(donationsTable) != 1 || db.Len(idempotencyTable) != 1 {
		t.Fatalf("expected one donation and one idempotency record")
	}
	raw := db.Item(idempotencyTable, "k-1")
	if _, ok := raw["expires_at"].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("expected expires_at TTL attribute, got %+v", raw["expires_at"])
	}

	got, err := s.Get(ctx, "d-1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(200)) || len(got.List) != 1 || got.List[0].Number != 4 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(now) || !got.Date.Equal(now) {
		t.Fatalf("timestamps not defaulted: %+v", got)
	}
}

func TestCreateWithIdempotencyTransaction_DuplicateKey(t *testing.T) {
	s, db := newTestStore(time.Now())
	ctx := context.Background()

	rec := idemRecord{IdempotencyKey: "k-1", Status: "IN_PROGRESS", DonationID: "d-1"}
	if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, rec, sampleDonation("d-1", "u-1", MethodCash, StatusCompleted, time.Time{}), time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec.DonationID = "d-2"
	err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, rec, sampleDonation("d-2", "u-1", MethodCash, StatusCompleted, time.Time{}), time.Hour)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if db.Len(donationsTable) != 1 {
		t.Fatalf("second donation must not be written")
	}
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore(time.Now())
	got, err := s.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got %v %v", got, err)
	}
}

func TestListByUserAndAll_NewestFirst(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s, db := newTestStore(now)
	ctx := context.Background()

	for _, d := range []Donation{
		sampleDonation("a", "u-1", MethodCash, StatusCompleted, now.Add(-3*time.Hour)),
		sampleDonation("b", "u-2", MethodOnline, StatusPending, now.Add(-2*time.Hour)),
		sampleDonation("c", "u-1", MethodOnline, StatusCompleted, now.Add(-1*time.Hour)),
	} {
		rec := idemRecord{IdempotencyKey: d.ID + "-key", Status: "DONE", DonationID: d.ID}
		if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, rec, d, time.Hour); err != nil {
			t.Fatalf("seed %s: %v", d.ID, err)
		}
	}

	mine, err := s.ListByUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "c" || mine[1].ID != "a" {
		t.Fatalf("expected [c a], got %+v", ids(mine))
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}
	if db.Calls("Query") != 1 || db.Calls("Scan") != 1 {
		t.Fatalf("unexpected call counts")
	}
}

func TestListStalePending(t *testing.T) {
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	seed := []Donation{
		sampleDonation("old-online", "u-1", MethodOnline, StatusPending, now.Add(-30*time.Hour)),
		sampleDonation("new-online", "u-1", MethodOnline, StatusPending, now.Add(-time.Hour)),
		sampleDonation("old-done", "u-1", MethodOnline, StatusCompleted, now.Add(-30*time.Hour)),
		sampleDonation("old-cash", "u-1", MethodCash, StatusPending, now.Add(-30*time.Hour)),
	}
	for _, d := range seed {
		rec := idemRecord{IdempotencyKey: d.ID + "-key", Status: "DONE", DonationID: d.ID}
		if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, rec, d, time.Hour); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	stale, err := s.ListStalePending(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "old-online" {
		t.Fatalf("expected only old-online, got %v", ids(stale))
	}
}

func TestUpdateStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestStore(now)
	ctx := context.Background()

	d := sampleDonation("d-1", "u-1", MethodOnline, StatusPending, time.Time{})
	if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, idemRecord{IdempotencyKey: "k", DonationID: "d-1"}, d, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateStatus(ctx, "d-1", StatusPending, StatusCompleted, Transition{TransactionID: "pay_123"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(ctx, "d-1")
	if got.PaymentStatus != StatusCompleted || got.TransactionID != "pay_123" || got.CompletedAt == nil {
		t.Fatalf("unexpected donation after completion: %+v", got)
	}

	// completed is terminal: a second pending->failed must not apply
	err := s.UpdateStatus(ctx, "d-1", StatusPending, StatusFailed, Transition{FailureReason: "late"})
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	got, _ = s.Get(ctx, "d-1")
	if got.PaymentStatus != StatusCompleted || got.FailureReason != "" {
		t.Fatalf("terminal donation changed: %+v", got)
	}
}

func TestMarkCheckoutDismissed(t *testing.T) {
	s, _ := newTestStore(time.Now())
	ctx := context.Background()

	d := sampleDonation("d-1", "u-1", MethodOnline, StatusPending, time.Time{})
	if err := s.CreateWithIdempotencyTransaction(ctx, idempotencyTable, idemRecord{IdempotencyKey: "k", DonationID: "d-1"}, d, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkCheckoutDismissed(ctx, "d-1"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	got, _ := s.Get(ctx, "d-1")
	if got.PaymentStatus != StatusPending || got.CheckoutDismissedAt == nil {
		t.Fatalf("expected pending with dismissal time, got %+v", got)
	}

	if err := s.MarkCheckoutDismissed(ctx, "missing"); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing donation, got %v", err)
	}
}

func TestStore_PropagatesDynamoErrors(t *testing.T) {
	s, db := newTestStore(time.Now())
	boom := errors.New("boom")
	db.FailNext("Query", boom)
	if _, err := s.ListByUser(context.Background(), "u-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func ids(ds []Donation) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}
