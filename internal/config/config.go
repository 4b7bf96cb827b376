// Package config defines the relaytaker configuration and its validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by RELAYTAKER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Relay    RelayConfig    `toml:"relay"`
	Fill     FillConfig     `toml:"fill"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the taker's transaction key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the node endpoint and the 0x contract addresses of the
// target network.
type ChainConfig struct {
	RPCURL             string `toml:"rpc_url"`
	ChainID            int64  `toml:"chain_id"`
	ExpectedNetworkID  string `toml:"expected_network_id"`
	Exchange           string `toml:"exchange"`
	EtherToken         string `toml:"ether_token"`
	TokenRegistry      string `toml:"token_registry"`
	TokenTransferProxy string `toml:"token_transfer_proxy"`
	FeeToken           string `toml:"fee_token"`
	GasPriceWei        string `toml:"gas_price_wei"` // empty asks the node
	GasBufferPercent   int    `toml:"gas_buffer_percent"`
}

// RelayConfig points at the relay's standard API.
type RelayConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// FillConfig tunes fill protection.
type FillConfig struct {
	VerifySignatures bool     `toml:"verify_signatures"`
	LockTTL          duration `toml:"lock_ttl"`
	DedupTTL         duration `toml:"dedup_ttl"`
	Timeout          duration `toml:"timeout"`
}

// RedisConfig holds Redis connection parameters. Redis is optional.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TokenTTL   duration `toml:"token_ttl"`
}

// PostgresConfig holds the fill journal database. Postgres is optional.
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

// S3Config holds the receipt archive. S3 is optional.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for the Kovan deployment of the 0x v1
// contracts with every optional backend disabled.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:             "http://localhost:8545",
			ChainID:            42,
			ExpectedNetworkID:  "42",
			Exchange:           "0x90fe2af704b34e0224bf2299c838e04d4dcf1364",
			EtherToken:         "0x05d090b51c40b020eab3bfcb6a2dff130df22e9c",
			TokenRegistry:      "0xf18e504561f4347bea557f3d4558f559dddbae7f",
			TokenTransferProxy: "0x087eed4bc1ee3de49befbd66c662b434b15d49d4",
			FeeToken:           "0x6ff6c0ff1d68b964901f986d4c9fa3ac68346570",
			GasBufferPercent:   20,
		},
		Relay: RelayConfig{
			BaseURL: "http://api.amadeusrelay.org",
			Timeout: duration{15 * time.Second},
		},
		Fill: FillConfig{
			VerifySignatures: true,
			LockTTL:          duration{15 * time.Minute},
			DedupTTL:         duration{2 * time.Minute},
			Timeout:          duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			TokenTTL:   duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "relaytaker",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "relaytaker",
			Prefix:         "receipts",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"fill_confirmed", "fill_failed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// lockMargin is the minimum gap between fill.timeout and fill.lock_ttl.
const lockMargin = time.Minute

// Modes.
const (
	ModeServe   = "serve"
	ModeOrders  = "orders"
	ModePairs   = "pairs"
	ModeSymbol  = "symbol"
	ModeFill    = "fill"
	ModeNetwork = "network"

	// ModeEncryptKey seals wallet.private_key into wallet.encrypted_key_path.
	ModeEncryptKey = "encrypt-key"
)

var validModes = map[string]bool{
	ModeServe:      true,
	ModeOrders:     true,
	ModePairs:      true,
	ModeSymbol:     true,
	ModeFill:       true,
	ModeNetwork:    true,
	ModeEncryptKey: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsWallet reports whether mode sends transactions.
func NeedsWallet(mode string) bool {
	return mode == ModeServe || mode == ModeFill
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		add("unknown mode %q (valid: serve, orders, pairs, symbol, fill, network, encrypt-key)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if NeedsWallet(c.Mode) {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode %s", c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Mode == ModeEncryptKey {
		if c.Wallet.PrivateKey == "" || c.Wallet.EncryptedKeyPath == "" || c.Wallet.KeyPassword == "" {
			add("wallet: encrypt-key needs private_key, encrypted_key_path and key_password")
		}
	}

	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		add("chain: chain_id must be positive")
	}
	for _, a := range []struct{ name, value string }{
		{"exchange", c.Chain.Exchange},
		{"ether_token", c.Chain.EtherToken},
		{"token_registry", c.Chain.TokenRegistry},
		{"token_transfer_proxy", c.Chain.TokenTransferProxy},
		{"fee_token", c.Chain.FeeToken},
	} {
		if !common.IsHexAddress(a.value) {
			add("chain: %s %q is not an address", a.name, a.value)
		}
	}
	if c.Chain.GasPriceWei != "" {
		if _, ok := parseWei(c.Chain.GasPriceWei); !ok {
			add("chain: gas_price_wei %q is not a positive integer", c.Chain.GasPriceWei)
		}
	}
	if c.Chain.GasBufferPercent < 0 {
		add("chain: gas_buffer_percent must be >= 0")
	}

	if c.Relay.BaseURL == "" {
		add("relay: base_url must not be empty")
	}
	if c.Relay.Timeout.Duration <= 0 {
		add("relay: timeout must be positive")
	}

	if c.Fill.LockTTL.Duration <= 0 || c.Fill.DedupTTL.Duration <= 0 {
		add("fill: lock_ttl and dedup_ttl must be positive")
	}
	// The account lock must outlive the fill plus its final journal write.
	if c.Fill.Timeout.Duration <= 0 || c.Fill.Timeout.Duration+lockMargin > c.Fill.LockTTL.Duration {
		add(fmt.Sprintf("fill: timeout must be positive and at least %s shorter than lock_ttl", lockMargin))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		add("s3: bucket must not be empty")
	}

	if c.Mode == ModeServe {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// GasPrice returns the fixed gas price, or nil when the node should be
// asked.
func (c ChainConfig) GasPrice() *big.Int {
	v, ok := parseWei(c.GasPriceWei)
	if !ok {
		return nil
	}
	return v
}

func parseWei(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}
