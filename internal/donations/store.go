package donations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
)

// Secondary indexes on the donations table.
const (
	UserIndex   = "user_id-created_epoch-index"
	StatusIndex = "payment_status-created_epoch-index"
)

var (
	// ErrStatusMismatch is returned when a conditional transition finds another status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateRequest is returned when the idempotency key of a create already exists.
	ErrDuplicateRequest = errors.New("idempotency key already used")
)

// Store encapsulates operations on the donations table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new donations Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// CreateWithIdempotencyTransaction atomically creates:
//   - the idempotency record in idempotencyTable (conditioned on attribute_not_exists(idempotency_key))
//   - the donation record in the donations table (conditioned on attribute_not_exists(donation_id))
//
// A cancelled transaction is reported as ErrDuplicateRequest so the caller can replay.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, d Donation, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	now := s.nowFunc().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.Date.IsZero() {
		d.Date = d.CreatedAt
	}
	d.UpdatedAt = now

	donationMap, err := attributevalue.MarshalMap(toItem(d))
	if err != nil {
		return fmt.Errorf("marshal donation item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                donationMap,
					ConditionExpression: awsString("attribute_not_exists(donation_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrDuplicateRequest, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches a donation by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, donationID string) (*Donation, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyFor(donationID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it donationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal donation: %w", err)
	}
	d, err := it.toDonation()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListAll returns every donation, newest first.
func (s *Store) ListAll(ctx context.Context) ([]Donation, error) {
	var (
		out   []Donation
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan donations: %w", err)
		}
		batch, err := decodeItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

// ListByUser returns a donor's donations, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Donation, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(UserIndex),
		KeyConditionExpression: awsString("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: awsBool(false),
	})
}

// ListStalePending returns online donations still pending that were created before cutoff.
func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time) ([]Donation, error) {
	return s.query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(StatusIndex),
		KeyConditionExpression: awsString("payment_status = :pending AND created_epoch < :cutoff"),
		FilterExpression:       awsString("#m = :online"),
		ExpressionAttributeNames: map[string]string{
			"#m": "method",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":cutoff":  &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.Unix(), 10)},
			":online":  &types.AttributeValueMemberS{Value: string(MethodOnline)},
		},
	})
}

func (s *Store) query(ctx context.Context, input *dyn.QueryInput) ([]Donation, error) {
	var out []Donation
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query donations: %w", err)
		}
		batch, err := decodeItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sortNewestFirst(out)
	return out, nil
}

// Transition carries the optional fields written alongside a status change.
type Transition struct {
	TransactionID string
	FailureReason string
}

// UpdateStatus conditionally moves a donation from expected to next.
// Returns nil on success, ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, donationID string, expected, next PaymentStatus, tr Transition) error {
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	updateExpr := "SET payment_status = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(next)},
		":ua":       &types.AttributeValueMemberS{Value: now},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
	}
	if tr.TransactionID != "" {
		updateExpr += ", transaction_id = :tx"
		values[":tx"] = &types.AttributeValueMemberS{Value: tr.TransactionID}
	}
	if tr.FailureReason != "" {
		updateExpr += ", failure_reason = :fr"
		values[":fr"] = &types.AttributeValueMemberS{Value: tr.FailureReason}
	}
	if next == StatusCompleted {
		updateExpr += ", completed_at = :ua"
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyFor(donationID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("payment_status = :expected"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MarkCheckoutDismissed records that the donor closed the hosted checkout.
// The donation stays pending.
func (s *Store) MarkCheckoutDismissed(ctx context.Context, donationID string) error {
	now := s.nowFunc().UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyFor(donationID),
		UpdateExpression:    awsString("SET checkout_dismissed_at = :ua, updated_at = :ua"),
		ConditionExpression: awsString("payment_status = :pending"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ua":      &types.AttributeValueMemberS{Value: now},
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func decodeItems(raw []map[string]types.AttributeValue) ([]Donation, error) {
	var items []donationItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal donations: %w", err)
	}
	out := make([]Donation, 0, len(items))
	for _, it := range items {
		d, err := it.toDonation()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func sortNewestFirst(ds []Donation) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].CreatedAt.After(ds[j].CreatedAt)
	})
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"donation_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
