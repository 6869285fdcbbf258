package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
)

// ErrNotFound is returned by the Mark* methods when the key was never created.
var ErrNotFound = errors.New("idempotency record not found")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// TableName is the idempotency table, for callers composing their own transactions.
func (s *Store) TableName() string { return s.tableName }

// TTL is the window applied to new records.
func (s *Store) TTL() time.Duration { return s.ttlWindow }

// NewRecord builds an IN_PROGRESS record for key, ready to be written inside a
// caller-managed TransactWriteItems alongside the donation it guards.
func (s *Store) NewRecord(key, donationID, userID string) Record {
	now := s.nowFunc().UTC()
	return Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		DonationID:     donationID,
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyFor(key),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the response body & status for replay.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyFor(key),
		UpdateExpression:    awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the idempotency record as FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyFor(key),
		UpdateExpression:    awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func keyFor(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Helper
func awsString(s string) *string { return &s }
