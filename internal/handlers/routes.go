// Package handlers exposes the donation store over HTTP.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/mahaprasad-donations/internal/catalog"
	"github.com/imrishuroy/mahaprasad-donations/internal/donations"
	"github.com/imrishuroy/mahaprasad-donations/internal/payments"
	"github.com/imrishuroy/mahaprasad-donations/internal/validation"
)

// CategoryStore is the catalog persistence used by the category routes.
type CategoryStore interface {
	Create(ctx context.Context, c catalog.Category) (catalog.Category, error)
	Get(ctx context.Context, id string) (catalog.Category, error)
	List(ctx context.Context) ([]catalog.Category, error)
	Active(ctx context.Context) ([]catalog.Category, error)
	Update(ctx context.Context, c catalog.Category) (catalog.Category, error)
	Delete(ctx context.Context, id string) error
}

// DonationReader lists persisted donations.
type DonationReader interface {
	ListAll(ctx context.Context) ([]donations.Donation, error)
	ListByUser(ctx context.Context, userID string) ([]donations.Donation, error)
}

// PaymentService creates and reconciles donation orders.
type PaymentService interface {
	CreateOrder(ctx context.Context, scope payments.Scope, idempotencyKey string, req payments.CreateOrderRequest) (*payments.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, scope payments.Scope, req payments.VerifyRequest) (*donations.Donation, error)
	DismissCheckout(ctx context.Context, scope payments.Scope, donationID string) error
}

// HandlerConfig groups dependencies for the donation routes.
type HandlerConfig struct {
	Categories CategoryStore
	Donations  DonationReader
	Payments   PaymentService
	Auth       *Authenticator
}

type server struct {
	categories CategoryStore
	donations  DonationReader
	payments   PaymentService
	validate   *validatorv10.Validate
}

// RegisterRoutes registers the admin and user APIs plus /health.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	s := &server{
		categories: cfg.Categories,
		donations:  cfg.Donations,
		payments:   cfg.Payments,
		validate:   validation.New(),
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := r.Group("/api/admin", cfg.Auth.RequireAdmin())
	admin.GET("/categories", s.listCategories)
	admin.POST("/categories", s.createCategory)
	admin.PUT("/categories/:id", s.updateCategory)
	admin.DELETE("/categories/:id", s.deleteCategory)
	admin.GET("/donation-list", s.listDonations)
	admin.POST("/create-donation-order", s.createDonationOrder)
	admin.POST("/verify-donation-payment", s.verifyDonationPayment)
	admin.POST("/dismiss-donation-payment", s.dismissDonationPayment)

	user := r.Group("/api/user", cfg.Auth.RequireUser())
	user.GET("/categories", s.activeCategories)
	user.GET("/my-donations", s.myDonations)
	user.POST("/create-donation-order", s.createDonationOrder)
	user.POST("/verify-donation-payment", s.verifyDonationPayment)
	user.POST("/dismiss-donation-payment", s.dismissDonationPayment)
}
