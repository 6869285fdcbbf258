package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/mahaprasad-donations/internal/awstest"
)

func TestPublishDonationEvent(t *testing.T) {
	fake := &awstest.SQS{}
	p := NewPublisher(fake, "https://sqs.local/queue/donations")

	ev := DonationEvent{Type: EventDonationCompleted, DonationID: "d1", Method: "Cash", Status: "completed", Amount: 200}
	if err := p.PublishDonationEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := fake.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	var got DonationEvent
	if err := json.Unmarshal([]byte(*sent[0].MessageBody), &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.DonationID != "d1" || got.Type != EventDonationCompleted {
		t.Fatalf("unexpected event %+v", got)
	}
	if v := sent[0].MessageAttributes["event_type"].StringValue; v == nil || *v != EventDonationCompleted {
		t.Fatalf("event_type attribute missing or wrong: %v", v)
	}
}

func TestPublishDonationEvent_NoQueueIsNoop(t *testing.T) {
	fake := &awstest.SQS{}
	p := NewPublisher(fake, "")
	if err := p.PublishDonationEvent(context.Background(), DonationEvent{Type: EventDonationCreated}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Sent()) != 0 {
		t.Fatalf("expected no messages without queue url")
	}
}

func TestPublishDonationEvent_SendError(t *testing.T) {
	fake := &awstest.SQS{Err: errors.New("boom")}
	p := NewPublisher(fake, "q")
	if err := p.PublishDonationEvent(context.Background(), DonationEvent{Type: EventDonationCreated}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestMetricsRecorder_Record(t *testing.T) {
	fake := &awstest.CloudWatch{}
	m := NewMetricsRecorder(fake, "Donations")

	err := m.Record(context.Background(),
		Metric{Name: "DonationsCompleted", Value: 1, Dimensions: map[string]string{"Method": "Online"}},
		Metric{Name: "DonationAmount", Value: 900, Unit: cwtypes.StandardUnitNone},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := fake.Recorded()
	if len(rec) != 1 || len(rec[0].MetricData) != 2 {
		t.Fatalf("expected one call with two datums, got %+v", rec)
	}
	if *rec[0].Namespace != "Donations" {
		t.Fatalf("namespace mismatch: %s", *rec[0].Namespace)
	}
	if rec[0].MetricData[0].Unit != cwtypes.StandardUnitCount {
		t.Fatalf("expected default unit Count, got %s", rec[0].MetricData[0].Unit)
	}
}
