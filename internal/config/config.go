// Package config defines the top-level configuration for the auction watcher
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DXBOT_* environment variables.
type Config struct {
	Ethereum EthereumConfig `toml:"ethereum"`
	Exchange ExchangeConfig `toml:"exchange"`
	Wallet   WalletConfig   `toml:"wallet"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Cache    CacheConfig    `toml:"cache"`
	Watch    WatchConfig    `toml:"watch"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EthereumConfig holds the JSON-RPC endpoint and chain parameters.
type EthereumConfig struct {
	RPCURL string `toml:"rpc_url"`
	// ChainID, when non-zero, is verified against the node at startup.
	ChainID int64 `toml:"chain_id"`
}

// ExchangeConfig holds the exchange contract address and the token registry.
type ExchangeConfig struct {
	// ContractAddress is the hex address of the dutch exchange contract.
	ContractAddress string `toml:"contract_address"`
	// Tokens maps token symbols to their hex addresses, e.g.
	// WETH = "0xC02a...". Symbols not listed here may still be addressed by
	// passing the hex address directly.
	Tokens map[string]string `toml:"tokens"`
}

// WalletConfig holds the settlement account credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the token metadata cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for reports and
// archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CacheConfig holds the memoization tiers for ledger reads. Short covers the
// fast-moving quantities (buy volume, current price); Average covers the
// slow-moving ones (sell volume, auction start, index).
type CacheConfig struct {
	Short         duration `toml:"short"`
	Average       duration `toml:"average"`
	SweepInterval duration `toml:"sweep_interval"`
	// Refresh enables proactive refetching of expired entries so hot reads
	// stay warm between requests.
	Refresh bool `toml:"refresh"`
}

// WatchConfig holds the watch-loop parameters.
type WatchConfig struct {
	// Pairs lists the token pairs to watch in SELL-BUY form, e.g. "WETH-RDN".
	Pairs    []string `toml:"pairs"`
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ethereum: EthereumConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Exchange: ExchangeConfig{
			Tokens: map[string]string{},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "dxbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dxbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Cache: CacheConfig{
			Short:         duration{5 * time.Second},
			Average:       duration{30 * time.Second},
			SweepInterval: duration{time.Second},
			Refresh:       true,
		},
		Watch: WatchConfig{
			Pairs:    []string{},
			Interval: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"auction.cleared", "auction.theoretical_close", "auction.started"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch": true,
	"serve": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, serve, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ethereum
	if c.Ethereum.RPCURL == "" {
		errs = append(errs, "ethereum: rpc_url must not be empty")
	}
	if c.Ethereum.ChainID < 0 {
		errs = append(errs, fmt.Sprintf("ethereum: chain_id must not be negative, got %d", c.Ethereum.ChainID))
	}

	// Exchange
	if c.Exchange.ContractAddress == "" {
		errs = append(errs, "exchange: contract_address must not be empty")
	} else if !common.IsHexAddress(c.Exchange.ContractAddress) {
		errs = append(errs, fmt.Sprintf("exchange: contract_address %q is not a hex address", c.Exchange.ContractAddress))
	}
	for symbol, addr := range c.Exchange.Tokens {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("exchange: token %s address %q is not a hex address", symbol, addr))
		}
	}

	// Wallet — optional, but an encrypted key needs its password.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Cache
	if c.Cache.Short.Duration <= 0 {
		errs = append(errs, "cache: short must be a positive duration")
	}
	if c.Cache.Average.Duration <= 0 {
		errs = append(errs, "cache: average must be a positive duration")
	}
	if c.Cache.Short.Duration > c.Cache.Average.Duration {
		errs = append(errs, "cache: short must not exceed average")
	}

	// Watch — a watch-capable mode needs pairs.
	needsWatch := c.Mode == "watch" || c.Mode == "full"
	if needsWatch && len(c.Watch.Pairs) == 0 {
		errs = append(errs, "watch: at least one pair is required for mode "+c.Mode)
	}
	for _, p := range c.Watch.Pairs {
		if !strings.Contains(p, "-") {
			errs = append(errs, fmt.Sprintf("watch: pair %q must be in SELL-BUY form", p))
		}
	}
	if c.Watch.Interval.Duration <= 0 {
		errs = append(errs, "watch: interval must be a positive duration")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
