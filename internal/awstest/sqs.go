package awstest

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records every message sent through it.
type SQS struct {
	mu       sync.Mutex
	Messages []*sqs.SendMessageInput
	Err      error
}

// SendMessage implements aws.SQSAPI.
func (s *SQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Messages = append(s.Messages, in)
	id := "msg-" + strconv.Itoa(len(s.Messages))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// Sent returns a snapshot of the recorded messages.
func (s *SQS) Sent() []*sqs.SendMessageInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sqs.SendMessageInput(nil), s.Messages...)
}

// CloudWatch records PutMetricData calls.
type CloudWatch struct {
	mu     sync.Mutex
	Inputs []*cloudwatch.PutMetricDataInput
	Err    error
}

// PutMetricData implements aws.CloudWatchAPI.
func (c *CloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.Inputs = append(c.Inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Recorded returns a snapshot of the recorded inputs.
func (c *CloudWatch) Recorded() []*cloudwatch.PutMetricDataInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*cloudwatch.PutMetricDataInput(nil), c.Inputs...)
}
