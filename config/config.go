package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Log      LogConfig      `mapstructure:"log"`
	Paystack PaystackConfig `mapstructure:"paystack"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	APIKey   APIKeyConfig   `mapstructure:"apikey"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// OpTimeout bounds each command. Callers fall back to PostgreSQL when Redis is slow.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// PaystackConfig configures the payment provider client and webhook verification.
type PaystackConfig struct {
	SecretKey   string        `mapstructure:"secret_key"`
	BaseURL     string        `mapstructure:"base_url"`
	CallbackURL string        `mapstructure:"callback_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LedgerConfig holds amount limits in kobo.
type LedgerConfig struct {
	MinDepositAmount  int64 `mapstructure:"min_deposit_amount"`
	MaxDepositAmount  int64 `mapstructure:"max_deposit_amount"`
	MinTransferAmount int64 `mapstructure:"min_transfer_amount"`
	MaxTransferAmount int64 `mapstructure:"max_transfer_amount"`
}

type APIKeyConfig struct {
	Prefix    string `mapstructure:"prefix"`
	Length    int    `mapstructure:"length"` // random bytes after the prefix
	MaxActive int    `mapstructure:"max_active"`
}

type WebhookConfig struct {
	EventLockTTL      time.Duration `mapstructure:"event_lock_ttl"`
	ProcessedEventTTL time.Duration `mapstructure:"processed_event_ttl"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CWL_ (Custodial Wallet Ledger).
// Nested keys use underscore: CWL_DATABASE_HOST, CWL_PAYSTACK_SECRET_KEY, etc.
// A .env file in the working directory is loaded into the environment first, if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "custodial_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", "250ms")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "custodial-wallet")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("paystack.secret_key", "")
	v.SetDefault("paystack.base_url", "https://api.paystack.co")
	v.SetDefault("paystack.callback_url", "")
	v.SetDefault("paystack.timeout", "10s")
	v.SetDefault("ledger.min_deposit_amount", 100)
	v.SetDefault("ledger.max_deposit_amount", 100_000_000)
	v.SetDefault("ledger.min_transfer_amount", 100)
	v.SetDefault("ledger.max_transfer_amount", 100_000_000)
	v.SetDefault("apikey.prefix", "sk_live_")
	v.SetDefault("apikey.length", 32)
	v.SetDefault("apikey.max_active", 5)
	v.SetDefault("webhook.event_lock_ttl", "30s")
	v.SetDefault("webhook.processed_event_ttl", "72h")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CWL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// minJWTSecretLen is the HS256 key size: 256 bits.
const minJWTSecretLen = 32

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	if c.Ledger.MinDepositAmount <= 0 || c.Ledger.MinDepositAmount > c.Ledger.MaxDepositAmount {
		return fmt.Errorf("invalid deposit limits: min=%d max=%d", c.Ledger.MinDepositAmount, c.Ledger.MaxDepositAmount)
	}
	if c.Ledger.MinTransferAmount <= 0 || c.Ledger.MinTransferAmount > c.Ledger.MaxTransferAmount {
		return fmt.Errorf("invalid transfer limits: min=%d max=%d", c.Ledger.MinTransferAmount, c.Ledger.MaxTransferAmount)
	}
	if c.APIKey.MaxActive <= 0 {
		return fmt.Errorf("apikey.max_active must be positive, got %d", c.APIKey.MaxActive)
	}
	if c.APIKey.Length < 16 {
		return fmt.Errorf("apikey.length must be at least 16 bytes, got %d", c.APIKey.Length)
	}
	if len(c.JWT.Secret) < minJWTSecretLen {
		return fmt.Errorf("jwt.secret must be at least %d bytes, got %d", minJWTSecretLen, len(c.JWT.Secret))
	}
	if strings.TrimSpace(c.Paystack.SecretKey) == "" {
		return errors.New("paystack.secret_key is required to verify webhook signatures")
	}
	return nil
}
