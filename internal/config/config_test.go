package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const exchangeAddr = "0xb9fc89dC49DB24c6e441c83e476a1f40dBAf8bA8"

// validConfig returns defaults patched to pass validation in full mode.
func validConfig() Config {
	cfg := Defaults()
	cfg.Exchange.ContractAddress = exchangeAddr
	cfg.Watch.Pairs = []string{"WETH-RDN"}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "bogus" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "noisy" }, "unknown log_level"},
		{"missing rpc url", func(c *Config) { c.Ethereum.RPCURL = "" }, "rpc_url"},
		{"missing contract", func(c *Config) { c.Exchange.ContractAddress = "" }, "contract_address"},
		{"bad contract", func(c *Config) { c.Exchange.ContractAddress = "nope" }, "not a hex address"},
		{"bad token address", func(c *Config) { c.Exchange.Tokens = map[string]string{"WETH": "xyz"} }, "token WETH"},
		{"encrypted key without password", func(c *Config) { c.Wallet.EncryptedKeyPath = "/k.json" }, "key_password"},
		{"no watch pairs", func(c *Config) { c.Watch.Pairs = nil }, "at least one pair"},
		{"malformed pair", func(c *Config) { c.Watch.Pairs = []string{"WETHRDN"} }, "SELL-BUY"},
		{"short exceeds average", func(c *Config) { c.Cache.Short = duration{time.Minute} }, "short must not exceed average"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"postgres enabled without db", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.Database = ""
		}, "database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	content := `
mode = "serve"
log_level = "debug"

[ethereum]
rpc_url = "https://rpc.example.org"
chain_id = 11155111

[exchange]
contract_address = "` + exchangeAddr + `"

[exchange.tokens]
WETH = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

[cache]
short = "2s"
average = "20s"

[watch]
pairs = ["WETH-RDN", "RDN-WETH"]
interval = "10s"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "serve" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level not applied: %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Ethereum.ChainID != 11155111 {
		t.Errorf("chain_id = %d", cfg.Ethereum.ChainID)
	}
	if cfg.Cache.Short.Duration != 2*time.Second || cfg.Cache.Average.Duration != 20*time.Second {
		t.Errorf("cache tiers not parsed: %v / %v", cfg.Cache.Short, cfg.Cache.Average)
	}
	if len(cfg.Watch.Pairs) != 2 || cfg.Watch.Interval.Duration != 10*time.Second {
		t.Errorf("watch config not parsed: %+v", cfg.Watch)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis default lost: %s", cfg.Redis.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	content := `
[exchange]
contract_address = "` + exchangeAddr + `"

[watch]
pairs = ["WETH-RDN"]
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("DXBOT_ETHEREUM_RPC_URL", "https://override.example.org")
	t.Setenv("DXBOT_MODE", "watch")
	t.Setenv("DXBOT_WATCH_PAIRS", "WETH-RDN,WETH-OMG")
	t.Setenv("DXBOT_CACHE_SHORT", "3s")
	t.Setenv("DXBOT_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Ethereum.RPCURL != "https://override.example.org" {
		t.Errorf("rpc_url override not applied: %s", cfg.Ethereum.RPCURL)
	}
	if cfg.Mode != "watch" {
		t.Errorf("mode override not applied: %s", cfg.Mode)
	}
	if len(cfg.Watch.Pairs) != 2 || cfg.Watch.Pairs[1] != "WETH-OMG" {
		t.Errorf("pairs override not applied: %v", cfg.Watch.Pairs)
	}
	if cfg.Cache.Short.Duration != 3*time.Second {
		t.Errorf("cache override not applied: %v", cfg.Cache.Short)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis enabled override not applied")
	}
}
