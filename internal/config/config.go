// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Tables   TableConfig
	Events   EventConfig
	Gateway  GatewayConfig
	Donation DonationConfig
	Auth     AuthConfig
	LogLevel string
}

// ServerConfig configures the HTTP entrypoint.
type ServerConfig struct {
	Port     string
	RunLocal bool
}

// TableConfig names the DynamoDB tables.
type TableConfig struct {
	Categories  string
	Donations   string
	Users       string
	Idempotency string
}

// EventConfig configures the donation events queue and metrics namespace.
type EventConfig struct {
	QueueURL         string
	MetricsNamespace string
}

// GatewayConfig holds the hosted checkout credentials.
type GatewayConfig struct {
	KeyID     string
	KeySecret string
	Currency  string
	OrgName   string
}

// DonationConfig holds donation policy knobs.
type DonationConfig struct {
	CourierFee     int64
	PendingTTL     time.Duration
	IdempotencyTTL time.Duration
}

// AuthConfig holds the token signing secret shared with the login service.
type AuthConfig struct {
	JWTSecret string
}

// ValidationError lists missing or invalid configuration keys.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.Fields, ", "))
}

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("CATEGORIES_TABLE", "donation-categories")
	v.SetDefault("DONATIONS_TABLE", "donations")
	v.SetDefault("USERS_TABLE", "users")
	v.SetDefault("IDEMPOTENCY_TABLE", "donation-idempotency")
	v.SetDefault("METRICS_NAMESPACE", "Mahaprasad/Donations")
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("ORG_NAME", "Mahaprasad Seva")
	v.SetDefault("COURIER_FEE", 600)
	v.SetDefault("PENDING_TTL", "24h")
	v.SetDefault("IDEMPOTENCY_TTL", "48h")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Server: ServerConfig{
			Port:     v.GetString("PORT"),
			RunLocal: v.GetBool("RUN_LOCAL"),
		},
		Tables: TableConfig{
			Categories:  v.GetString("CATEGORIES_TABLE"),
			Donations:   v.GetString("DONATIONS_TABLE"),
			Users:       v.GetString("USERS_TABLE"),
			Idempotency: v.GetString("IDEMPOTENCY_TABLE"),
		},
		Events: EventConfig{
			QueueURL:         v.GetString("DONATION_EVENTS_QUEUE_URL"),
			MetricsNamespace: v.GetString("METRICS_NAMESPACE"),
		},
		Gateway: GatewayConfig{
			KeyID:     v.GetString("RAZORPAY_KEY_ID"),
			KeySecret: v.GetString("RAZORPAY_KEY_SECRET"),
			Currency:  strings.ToUpper(v.GetString("CURRENCY")),
			OrgName:   v.GetString("ORG_NAME"),
		},
		Donation: DonationConfig{
			CourierFee:     v.GetInt64("COURIER_FEE"),
			PendingTTL:     v.GetDuration("PENDING_TTL"),
			IdempotencyTTL: v.GetDuration("IDEMPOTENCY_TTL"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}

// Validate reports keys the API cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.Gateway.KeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if c.Gateway.KeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Donation.CourierFee < 0 {
		missing = append(missing, "COURIER_FEE")
	}
	if c.Donation.PendingTTL <= 0 {
		missing = append(missing, "PENDING_TTL")
	}
	if c.Donation.IdempotencyTTL <= 0 {
		missing = append(missing, "IDEMPOTENCY_TTL")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
