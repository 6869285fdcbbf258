package main

import "encoding/json"

// invocation is just enough of a Lambda payload to tell the two triggers apart:
// SQS batches carry Records, EventBridge schedules carry source and detail-type.
type invocation struct {
	Records    []json.RawMessage `json:"Records"`
	Source     string            `json:"source"`
	DetailType string            `json:"detail-type"`
}

func (i invocation) isSchedule() bool {
	return i.DetailType == "Scheduled Event" || i.Source == "aws.events"
}

// Metric names published per donation event type.
const (
	metricCreated   = "DonationsCreated"
	metricCompleted = "DonationsCompleted"
	metricExpired   = "DonationsExpired"
	metricAmount    = "DonationAmount"
	metricCancelled = "DonationsCancelled"
	metricFailed    = "DonationsFailed"
)
