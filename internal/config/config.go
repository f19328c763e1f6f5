package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	PostgresAddress  string
	PostgresPort     string
	PostgresDB       string
	PostgresUsername string
	PostgresPassword string

	StorageDriver string
	HTTPPort      string
	LogLevel      string
	AdminAPIToken string

	ChillPayBaseURL       string
	ChillPayMerchantCode  string
	ChillPayAPIKey        string
	ChillPayMD5Secret     string
	ChillPayWebhookSecret string
	ChillPayPaymentLimit  int
	ChillPayLinkTTL       time.Duration

	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	ReconcileMaxErrors int
	StreamHeartbeat    time.Duration
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return "postgres://" + c.PostgresUsername + ":" +
		c.PostgresPassword + "@" + c.PostgresAddress + ":" +
		c.PostgresPort + "/" + c.PostgresDB + "?sslmode=disable"
}

// GatewayConfigured reports whether enough ChillPay credentials are present to
// issue pay-links. Without them the server runs in simulation mode.
func (c *Config) GatewayConfigured() bool {
	return c.ChillPayMerchantCode != "" && c.ChillPayAPIKey != "" && c.ChillPayMD5Secret != ""
}

func ProcessEnvironmentVariables() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// In all cases the default behavior should be for the docker compose setup
	v.SetDefault("POSTGRES_ADDRESS", "localhost")
	v.SetDefault("POSTGRES_PORT", "5433")
	v.SetDefault("POSTGRES_DB", "postgres")
	v.SetDefault("POSTGRES_USERNAME", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "testpassword")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("HTTP_PORT", "9446")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CHILLPAY_BASE_URL", "https://sandbox-api-paylink.chillpay.co")
	v.SetDefault("CHILLPAY_PAYMENT_LIMIT", 1)
	v.SetDefault("CHILLPAY_LINK_TTL", "30m")
	v.SetDefault("RECONCILE_INTERVAL", "30s")
	v.SetDefault("RECONCILE_BATCH_SIZE", 10)
	v.SetDefault("RECONCILE_MAX_ERRORS", 5)
	v.SetDefault("STREAM_HEARTBEAT", "20s")

	env := Config{
		PostgresAddress:       v.GetString("POSTGRES_ADDRESS"),
		PostgresPort:          v.GetString("POSTGRES_PORT"),
		PostgresDB:            v.GetString("POSTGRES_DB"),
		PostgresUsername:      v.GetString("POSTGRES_USERNAME"),
		PostgresPassword:      v.GetString("POSTGRES_PASSWORD"),
		StorageDriver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
		HTTPPort:              v.GetString("HTTP_PORT"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		AdminAPIToken:         v.GetString("ADMIN_API_TOKEN"),
		ChillPayBaseURL:       strings.TrimRight(v.GetString("CHILLPAY_BASE_URL"), "/"),
		ChillPayMerchantCode:  v.GetString("CHILLPAY_MERCHANT_CODE"),
		ChillPayAPIKey:        v.GetString("CHILLPAY_API_KEY"),
		ChillPayMD5Secret:     v.GetString("CHILLPAY_MD5_SECRET"),
		ChillPayWebhookSecret: v.GetString("CHILLPAY_WEBHOOK_SECRET"),
		ChillPayPaymentLimit:  v.GetInt("CHILLPAY_PAYMENT_LIMIT"),
		ReconcileBatchSize:    v.GetInt("RECONCILE_BATCH_SIZE"),
		ReconcileMaxErrors:    v.GetInt("RECONCILE_MAX_ERRORS"),
	}

	var err error
	if env.ChillPayLinkTTL, err = parseDuration(v, "CHILLPAY_LINK_TTL"); err != nil {
		return nil, err
	}
	if env.ReconcileInterval, err = parseDuration(v, "RECONCILE_INTERVAL"); err != nil {
		return nil, err
	}
	if env.StreamHeartbeat, err = parseDuration(v, "STREAM_HEARTBEAT"); err != nil {
		return nil, err
	}

	if env.StorageDriver != StorageDriverPostgres && env.StorageDriver != StorageDriverMemory {
		return nil, fmt.Errorf("config: unknown STORAGE_DRIVER %q", env.StorageDriver)
	}
	if env.ReconcileBatchSize < 1 {
		return nil, fmt.Errorf("config: RECONCILE_BATCH_SIZE must be positive, got %d", env.ReconcileBatchSize)
	}
	if env.ReconcileMaxErrors < 1 {
		return nil, fmt.Errorf("config: RECONCILE_MAX_ERRORS must be positive, got %d", env.ReconcileMaxErrors)
	}

	return &env, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}
