package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Donation event types carried in the "event_type" message attribute.
const (
	EventDonationCreated   = "donation.created"
	EventDonationCompleted = "donation.completed"
	EventDonationExpired   = "donation.expired"
)

// DonationEvent is the payload sent from the API to the donation events queue.
type DonationEvent struct {
	Type          string  `json:"type"`
	DonationID    string  `json:"donation_id"`
	UserID        string  `json:"user_id,omitempty"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishDonationEvent serialises ev and sends it with its type and donation id as attributes.
// A publisher without a queue URL drops events silently.
func (p *Publisher) PublishDonationEvent(ctx context.Context, ev DonationEvent) error {
	if p == nil || p.SQS == nil || p.QueueURL == "" {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]string{
		"event_type":  ev.Type,
		"donation_id": ev.DonationID,
	}
	if ev.CorrelationID != "" {
		attrs["correlation_id"] = ev.CorrelationID
	}
	return p.SendMessage(ctx, string(body), attrs)
}

// SendMessage sends a JSON string body to SQS with string message attributes.
func (p *Publisher) SendMessage(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			v := v
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
