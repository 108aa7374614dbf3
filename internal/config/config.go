/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`

	StripeAPIKey          string `mapstructure:"STRIPE_API_KEY"`
	StripeMonthlyPriceID  string `mapstructure:"STRIPE_MONTHLY_PRICE_ID"`
	StripeYearlyPriceID   string `mapstructure:"STRIPE_YEARLY_PRICE_ID"`
	PayPalAPIBaseURL      string `mapstructure:"PAYPAL_API_BASE_URL"`
	PayPalClientID        string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret    string `mapstructure:"PAYPAL_CLIENT_SECRET"`
	PayPalMonthlyPlanID   string `mapstructure:"PAYPAL_MONTHLY_PLAN_ID"`
	PayPalYearlyPlanID    string `mapstructure:"PAYPAL_YEARLY_PLAN_ID"`

	EmailAPIBaseURL  string `mapstructure:"EMAIL_API_BASE_URL"`
	EmailAPIKey      string `mapstructure:"EMAIL_API_KEY"`
	EmailFromAddress string `mapstructure:"EMAIL_FROM_ADDRESS"`

	JWKSURL        string `mapstructure:"JWKS_URL"`
	AllowedOrigin  string `mapstructure:"ALLOWED_ORIGIN"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	EscrowHoldHours            int    `mapstructure:"ESCROW_HOLD_HOURS"`
	TrialDays                  int    `mapstructure:"TRIAL_DAYS"`
	TrialReminderSchedule      string `mapstructure:"TRIAL_REMINDER_SCHEDULE"`
	PurchaseRateLimitPerMinute int    `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pawhaven:rate_limit")
	viper.SetDefault("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("EMAIL_API_BASE_URL", "https://api.resend.com")
	viper.SetDefault("EMAIL_FROM_ADDRESS", "PawHaven <no-reply@pawhaven.app>")
	viper.SetDefault("ALLOWED_ORIGIN", "http://localhost:3000")
	viper.SetDefault("ESCROW_HOLD_HOURS", 72)
	viper.SetDefault("TRIAL_DAYS", 7)
	viper.SetDefault("TRIAL_REMINDER_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STRIPE_API_KEY")
	_ = viper.BindEnv("STRIPE_MONTHLY_PRICE_ID")
	_ = viper.BindEnv("STRIPE_YEARLY_PRICE_ID")
	_ = viper.BindEnv("PAYPAL_API_BASE_URL")
	_ = viper.BindEnv("PAYPAL_CLIENT_ID")
	_ = viper.BindEnv("PAYPAL_CLIENT_SECRET")
	_ = viper.BindEnv("PAYPAL_MONTHLY_PLAN_ID")
	_ = viper.BindEnv("PAYPAL_YEARLY_PLAN_ID")
	_ = viper.BindEnv("EMAIL_API_BASE_URL")
	_ = viper.BindEnv("EMAIL_API_KEY")
	_ = viper.BindEnv("EMAIL_FROM_ADDRESS")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("ALLOWED_ORIGIN")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "SETTLEMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ESCROW_HOLD_HOURS")
	_ = viper.BindEnv("TRIAL_DAYS")
	_ = viper.BindEnv("TRIAL_REMINDER_SCHEDULE")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("SETTLEMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pawhaven:rate_limit"
	}
	config.PayPalAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(config.PayPalAPIBaseURL), "/")
	config.EmailAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(config.EmailAPIBaseURL), "/")

	if config.EscrowHoldHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive escrow hold configured; using default\" hours=%d", config.EscrowHoldHours)
		config.EscrowHoldHours = 72
	}
	if config.TrialDays <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive trial length configured; using default\" days=%d", config.TrialDays)
		config.TrialDays = 7
	}
	if strings.TrimSpace(config.TrialReminderSchedule) == "" {
		config.TrialReminderSchedule = "*/5 * * * *"
	}
	if config.PurchaseRateLimitPerMinute <= 0 {
		config.PurchaseRateLimitPerMinute = 10
	}

	return
}
