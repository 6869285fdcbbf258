package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/config"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/handlers"
	"github.com/imrishuroy/mahaprasad-donations/internal/idempotency"
	"github.com/imrishuroy/mahaprasad-donations/internal/logging"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/users"
)

func setupRouter(logger *zap.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))

	handlers.RegisterRoutes(r, cfg)

	return r
}

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

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Amounts go out as JSON numbers, the way the portals send them.
	decimal.MarshalJSONWithoutQuotes = true

	clients, err := aws.NewClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	gateway, err := payments.NewRazorpay(payments.RazorpayConfig{
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
	})
	if err != nil {
		logger.Fatal("failed to init payment gateway", zap.Error(err))
	}

	categories := catalog.NewStore(clients.DynamoDB, cfg.Tables.Categories)
	donationStore := donations.NewStore(clients.DynamoDB, cfg.Tables.Donations)

	deps := payments.Deps{
		Catalog:     categories,
		Users:       users.NewStore(clients.DynamoDB, cfg.Tables.Users),
		Donations:   donationStore,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Donation.IdempotencyTTL),
		Gateway:     gateway,
		Logger:      logger,
	}
	if cfg.Events.QueueURL != "" {
		deps.Publisher = aws.NewPublisher(clients.SQS, cfg.Events.QueueURL)
	}
	svc := payments.NewService(deps, payments.Config{
		Currency:   cfg.Gateway.Currency,
		OrgName:    cfg.Gateway.OrgName,
		CourierFee: decimal.NewFromInt(cfg.Donation.CourierFee),
		PendingTTL: cfg.Donation.PendingTTL,
	})

	r := setupRouter(logger, handlers.HandlerConfig{
		Categories: categories,
		Donations:  donationStore,
		Payments:   svc,
		Auth:       handlers.NewAuthenticator(cfg.Auth.JWTSecret),
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.Server.RunLocal {
		addr := ":" + cfg.Server.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
