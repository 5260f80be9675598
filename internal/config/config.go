package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vapay/internal/logger"
)

type Config struct {
	DatabaseURL string
	AuthToken   string
	Port        string

	Redis    RedisConfig
	Consumer ConsumerConfig
	Streams  Streams

	DefaultFeeCode string

	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ConsumerConfig struct {
	Group     string
	Name      string
	Count     int64
	Block     time.Duration
	ClaimIdle time.Duration
}

// Streams names every Redis stream the service reads from or writes to.
type Streams struct {
	VAResponse     string
	VAPayment      string
	DebtorRequest  string
	InvoiceRequest string

	PaymentNotification string
	DebtorResponse      string
	InvoiceResponse     string
}

// Load reads configuration from the environment and, when VAPAY_CONFIG points
// at a YAML file, from that file. Environment values win over the file.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("vapay_config")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	dbURL, err := databaseURL(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL: dbURL,
		AuthToken:   strings.TrimSpace(v.GetString("auth_token")),
		Port:        strings.TrimSpace(v.GetString("port")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("redis_addr")),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Consumer: ConsumerConfig{
			Group:     strings.TrimSpace(v.GetString("consumer_group")),
			Name:      strings.TrimSpace(v.GetString("consumer_name")),
			Count:     v.GetInt64("consumer_count"),
			Block:     v.GetDuration("consumer_block"),
			ClaimIdle: v.GetDuration("consumer_claim_idle"),
		},
		Streams: Streams{
			VAResponse:          v.GetString("stream_va_response"),
			VAPayment:           v.GetString("stream_va_payment"),
			DebtorRequest:       v.GetString("stream_debtor_request"),
			InvoiceRequest:      v.GetString("stream_invoice_request"),
			PaymentNotification: v.GetString("stream_payment_notification"),
			DebtorResponse:      v.GetString("stream_debtor_response"),
			InvoiceResponse:     v.GetString("stream_invoice_response"),
		},
		DefaultFeeCode: strings.TrimSpace(v.GetString("default_fee_code")),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "vapay"
	}

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("port", "8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("consumer_group", "vapay")
	v.SetDefault("consumer_name", hostname)
	v.SetDefault("consumer_count", 16)
	v.SetDefault("consumer_block", 5*time.Second)
	v.SetDefault("consumer_claim_idle", time.Minute)
	v.SetDefault("stream_va_response", "va.response")
	v.SetDefault("stream_va_payment", "va.payment")
	v.SetDefault("stream_debtor_request", "debtor.request")
	v.SetDefault("stream_invoice_request", "invoice.request")
	v.SetDefault("stream_payment_notification", "payment.notification")
	v.SetDefault("stream_debtor_response", "debtor.response")
	v.SetDefault("stream_invoice_response", "invoice.response")
	v.SetDefault("default_fee_code", "DEFAULT")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func databaseURL(v *viper.Viper) (string, error) {
	if dbURL := strings.TrimSpace(v.GetString("database_url")); dbURL != "" {
		return dbURL, nil
	}

	user := strings.TrimSpace(v.GetString("db_user"))
	password := strings.TrimSpace(v.GetString("db_password"))
	name := strings.TrimSpace(v.GetString("db_name"))
	if user == "" || password == "" || name == "" {
		return "", errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		strings.TrimSpace(v.GetString("db_host")),
		strings.TrimSpace(v.GetString("db_port")),
		user,
		password,
		name,
		strings.TrimSpace(v.GetString("db_sslmode")),
	), nil
}

// Validate checks the settings needed to run the service. Migrations only
// need the database and skip it.
func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return errors.New("AUTH_TOKEN is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.Consumer.Group == "" || c.Consumer.Name == "" {
		return errors.New("CONSUMER_GROUP and CONSUMER_NAME are required")
	}
	if c.DefaultFeeCode == "" {
		return errors.New("DEFAULT_FEE_CODE is required")
	}
	if c.Consumer.Count <= 0 {
		return fmt.Errorf("CONSUMER_COUNT must be positive, got %d", c.Consumer.Count)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	cfg := logger.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Format = c.LogFormat
	return cfg
}
