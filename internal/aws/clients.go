package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the service clients shared by the API and the worker: DynamoDB
// for catalog, donation, user and idempotency tables, SQS for donation events
// and CloudWatch for donation metrics.
type Clients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewClients loads the SDK config and builds every client from it.
func NewClients(ctx context.Context) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewClientsFromConfig(cfg), nil
}

// NewClientsFromConfig builds the clients from an already resolved config.
func NewClientsFromConfig(cfg sdkaws.Config) *Clients {
	return &Clients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}
}
