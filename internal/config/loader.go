package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DXBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Ethereum ──
	setStr(&cfg.Ethereum.RPCURL, "DXBOT_ETHEREUM_RPC_URL")
	setInt64(&cfg.Ethereum.ChainID, "DXBOT_ETHEREUM_CHAIN_ID")

	// ── Exchange ──
	setStr(&cfg.Exchange.ContractAddress, "DXBOT_EXCHANGE_CONTRACT_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DXBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DXBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DXBOT_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DXBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DXBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DXBOT_S3_FORCE_PATH_STYLE")

	// ── Cache ──
	setDuration(&cfg.Cache.Short, "DXBOT_CACHE_SHORT")
	setDuration(&cfg.Cache.Average, "DXBOT_CACHE_AVERAGE")
	setDuration(&cfg.Cache.SweepInterval, "DXBOT_CACHE_SWEEP_INTERVAL")
	setBool(&cfg.Cache.Refresh, "DXBOT_CACHE_REFRESH")

	// ── Watch ──
	setStringSlice(&cfg.Watch.Pairs, "DXBOT_WATCH_PAIRS")
	setDuration(&cfg.Watch.Interval, "DXBOT_WATCH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DXBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DXBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DXBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DXBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DXBOT_MODE")
	setStr(&cfg.LogLevel, "DXBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
