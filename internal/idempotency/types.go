package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	DonationID     string    `dynamodbav:"donation_id,omitempty"`
	UserID         string    `dynamodbav:"user_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // create-order response, replayed verbatim
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}
