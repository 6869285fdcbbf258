package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
)

// Sweeper closes donations whose payment window has passed.
type Sweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (payments.ExpireResult, error)
}

// Processor turns donation events into metrics and runs the scheduled sweep.
type Processor struct {
	metrics *aws.MetricsRecorder
	sweeper Sweeper
	log     *zap.Logger
	nowFunc func() time.Time
}

// NewProcessor wires a Processor.
func NewProcessor(metrics *aws.MetricsRecorder, sweeper Sweeper, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		metrics: metrics,
		sweeper: sweeper,
		log:     log,
		nowFunc: time.Now,
	}
}

// Handle processes an SQS batch. Failed messages are reported individually so
// only they are redelivered and the rest of the batch is deleted.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("donation event failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev aws.DonationEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.DonationID == "" {
		return fmt.Errorf("event %q has no donation id", ev.Type)
	}
	log := p.log.With(
		zap.String("event_type", ev.Type),
		zap.String("donation_id", ev.DonationID),
		zap.String("correlation_id", ev.CorrelationID),
	)

	dims := map[string]string{"Method": ev.Method}
	var batch []aws.Metric
	switch ev.Type {
	case aws.EventDonationCreated:
		batch = append(batch, aws.Metric{Name: metricCreated, Value: 1, Dimensions: dims})
	case aws.EventDonationCompleted:
		batch = append(batch,
			aws.Metric{Name: metricCompleted, Value: 1, Dimensions: dims},
			aws.Metric{Name: metricAmount, Value: ev.Amount, Unit: cwtypes.StandardUnitNone, Dimensions: dims},
		)
	case aws.EventDonationExpired:
		batch = append(batch, aws.Metric{Name: metricExpired, Value: 1, Dimensions: map[string]string{"Status": ev.Status}})
	default:
		// Unknown types are dropped rather than redelivered forever.
		log.Warn("ignoring unknown donation event")
		return nil
	}

	if err := p.metrics.Record(ctx, batch...); err != nil {
		return fmt.Errorf("record metrics: %w", err)
	}
	log.Info("donation event recorded", zap.String("status", ev.Status))
	return nil
}

// Sweep expires stale pending donations. It runs on the EventBridge schedule.
func (p *Processor) Sweep(ctx context.Context, ev events.CloudWatchEvent) error {
	now := p.nowFunc()
	if !ev.Time.IsZero() {
		now = ev.Time
	}
	res, err := p.sweeper.ExpireStale(ctx, now)
	if recErr := p.metrics.Record(ctx,
		aws.Metric{Name: metricCancelled, Value: float64(res.Cancelled)},
		aws.Metric{Name: metricFailed, Value: float64(res.Failed)},
	); recErr != nil {
		p.log.Warn("record sweep metrics failed", zap.Error(recErr))
	}
	if err != nil {
		return fmt.Errorf("sweep stale donations: %w", err)
	}
	return nil
}

// Invoke dispatches a raw Lambda payload to Handle or Sweep.
func (p *Processor) Invoke(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var inv invocation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	if inv.isSchedule() {
		var ev events.CloudWatchEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode schedule event: %w", err)
		}
		return nil, p.Sweep(ctx, ev)
	}
	var ev events.SQSEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode sqs event: %w", err)
	}
	return p.Handle(ctx, ev)
}
