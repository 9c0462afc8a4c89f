package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	BaseURL           string `mapstructure:"BASE_URL"` // public base URL used for payment redirect links

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Booking engine knobs.
	HoldTTLMinutes    int `mapstructure:"HOLD_TTL_MINUTES"`    // how long a slot hold survives without payment
	CancelCutoffHours int `mapstructure:"CANCEL_CUTOFF_HOURS"` // min hours before session start that a cancel is allowed
	RenewalPeriodDays int `mapstructure:"RENEWAL_PERIOD_DAYS"` // package subscription billing period
	GatewayMaxRetries int `mapstructure:"GATEWAY_MAX_RETRIES"` // bounded retries for transient gateway failures

	// Stripe.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeManualCapture bool   `mapstructure:"STRIPE_MANUAL_CAPTURE"`

	// Ziina.
	ZiinaAPIKey        string `mapstructure:"ZIINA_API_KEY"`
	ZiinaWebhookSecret string `mapstructure:"ZIINA_WEBHOOK_SECRET"`
	ZiinaAPIBase       string `mapstructure:"ZIINA_API_BASE"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("BASE_URL", "http://localhost:8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LOCK_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("HOLD_TTL_MINUTES", 10)
	viper.SetDefault("CANCEL_CUTOFF_HOURS", 24)
	viper.SetDefault("RENEWAL_PERIOD_DAYS", 30)
	viper.SetDefault("GATEWAY_MAX_RETRIES", 3)
	viper.SetDefault("STRIPE_MANUAL_CAPTURE", false)
	viper.SetDefault("ZIINA_API_BASE", "https://api-v2.ziina.com/api")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// HoldTTL returns the configured slot hold TTL as a duration.
func HoldTTL() time.Duration {
	return time.Duration(AppConfig.HoldTTLMinutes) * time.Minute
}

// CancelCutoff returns the minimum lead time before a session start at
// which a booking may still be cancelled.
func CancelCutoff() time.Duration {
	return time.Duration(AppConfig.CancelCutoffHours) * time.Hour
}

// RenewalPeriod returns the subscription billing period.
func RenewalPeriod() time.Duration {
	return time.Duration(AppConfig.RenewalPeriodDays) * 24 * time.Hour
}
