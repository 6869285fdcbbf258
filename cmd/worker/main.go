package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/config"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/idempotency"
	"github.com/imrishuroy/mahaprasad-donations/internal/logging"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	// The sweep never calls the gateway, so the worker runs without credentials.
	deps := payments.Deps{
		Catalog:     catalog.NewStore(clients.DynamoDB, cfg.Tables.Categories),
		Users:       users.NewStore(clients.DynamoDB, cfg.Tables.Users),
		Donations:   donations.NewStore(clients.DynamoDB, cfg.Tables.Donations),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Donation.IdempotencyTTL),
		Logger:      logger,
	}
	if cfg.Events.QueueURL != "" {
		deps.Publisher = aws.NewPublisher(clients.SQS, cfg.Events.QueueURL)
	}
	svc := payments.NewService(deps, payments.Config{
		Currency:   cfg.Gateway.Currency,
		PendingTTL: cfg.Donation.PendingTTL,
	})

	p := NewProcessor(aws.NewMetricsRecorder(clients.CloudWatch, cfg.Events.MetricsNamespace), svc, logger)

	// RUN_LOCAL=true runs a single invocation from LOCAL_EVENT, defaulting to a sweep.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_EVENT")
		if body == "" {
			body = `{"source":"aws.events","detail-type":"Scheduled Event"}`
		}
		out, err := p.Invoke(context.Background(), json.RawMessage(body))
		if err != nil {
			logger.Fatal("local invocation failed", zap.Error(err))
		}
		logger.Info("local invocation done", zap.Any("response", out))
		return
	}

	lambda.Start(p.Invoke)
}
