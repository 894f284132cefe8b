// Package config defines the configuration of the arbitrage bot and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/executor"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXARB_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	GMGN     GMGNConfig     `toml:"gmgn"`
	Solana   SolanaConfig   `toml:"solana"`
	Trading  TradingConfig  `toml:"trading"`
	Executor ExecutorConfig `toml:"executor"`
	Pairs    []PairConfig   `toml:"pairs"`
	Redis    RedisConfig    `toml:"redis"`
	Audit    AuditConfig    `toml:"audit"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the Solana signing key. SecretKey wins over the
// keystore file.
type WalletConfig struct {
	SecretKey    string `toml:"secret_key"`
	KeystorePath string `toml:"keystore_path"`
	KeyPassword  string `toml:"key_password"`
}

// JupiterConfig configures the synchronous venue.
type JupiterConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// GMGNConfig configures the asynchronous venue.
type GMGNConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// SolanaConfig configures the JSON-RPC node used to broadcast Jupiter swaps.
// MaxRetries applies to balance reads only; a broadcast is sent once.
type SolanaConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	Commitment    string   `toml:"commitment"`
	SkipPreflight bool     `toml:"skip_preflight"`
	MaxRetries    int      `toml:"max_retries"`
	RetryDelay    duration `toml:"retry_delay"`
	Timeout       duration `toml:"timeout"`
}

// TradingConfig holds the initial trade settings and loop parameters.
// Slippage is a percentage.
type TradingConfig struct {
	MinProfit            float64  `toml:"min_profit"`
	Amount               float64  `toml:"amount"`
	Slippage             float64  `toml:"slippage"`
	FeePerTx             float64  `toml:"fee_per_tx"`
	VolumeSpikeThreshold float64  `toml:"volume_spike_threshold"`
	DryRun               bool     `toml:"dry_run"`
	Interval             duration `toml:"interval"`
	AutoStart            bool     `toml:"auto_start"`
}

// ExecutorConfig bounds the asynchronous submit path and selects what
// happens to leg 2 when leg 1 fails.
type ExecutorConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	AttemptBackoff duration `toml:"attempt_backoff"`
	MaxPolls       int      `toml:"max_polls"`
	PollInterval   duration `toml:"poll_interval"`
	LegPolicy      string   `toml:"leg_policy"`
	LockTTL        duration `toml:"lock_ttl"`
}

// PairConfig is one traded pair. Base and Quote are mint addresses.
type PairConfig struct {
	Name  string `toml:"name"`
	Base  string `toml:"base"`
	Quote string `toml:"quote"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Prefix       string `toml:"prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// AuditConfig holds the PostgreSQL audit log connection parameters.
type AuditConfig struct {
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

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramBaseURL   string   `toml:"telegram_base_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Throttle          duration `toml:"throttle"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Well-known mint addresses used by the default pairs.
const (
	MintSOL  = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintRAY  = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Jupiter: JupiterConfig{
			BaseURL: "https://quote-api.jup.ag/v6",
			Timeout: duration{10 * time.Second},
		},
		GMGN: GMGNConfig{
			BaseURL: "https://gmgn.ai/defi/router/v1/sol",
			Timeout: duration{10 * time.Second},
		},
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
			MaxRetries: 3,
			RetryDelay: duration{500 * time.Millisecond},
			Timeout:    duration{30 * time.Second},
		},
		Trading: TradingConfig{
			MinProfit:            0.005,
			Amount:               0.1,
			Slippage:             0.5,
			FeePerTx:             0.0005,
			VolumeSpikeThreshold: 2.0,
			Interval:             duration{5 * time.Second},
		},
		Executor: ExecutorConfig{
			MaxAttempts:    3,
			AttemptBackoff: duration{2 * time.Second},
			MaxPolls:       10,
			PollInterval:   duration{time.Second},
			LegPolicy:      string(executor.LegPolicyBestEffort),
			LockTTL:        duration{time.Minute},
		},
		Pairs: []PairConfig{
			{Name: "SOL/USDC", Base: MintSOL, Quote: MintUSDC},
			{Name: "RAY/USDC", Base: MintRAY, Quote: MintUSDC},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			Prefix:       "dexarb:",
			StreamMaxLen: 10000,
		},
		Audit: AuditConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       20,
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			TelegramBaseURL: "https://api.telegram.org",
			Events:          []string{"arb_detected", "trade_confirmed", "trade_pending", "trade_failed", "volume_spike"},
			Throttle:        duration{time.Minute},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "dexarb",
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
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
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Live trading signs transactions; monitor mode never does.
	if (mode == "trade" || mode == "server") && !c.Trading.DryRun {
		if c.Wallet.SecretKey == "" && c.Wallet.KeystorePath == "" {
			errs = append(errs, "wallet: either secret_key or keystore_path must be set unless trading.dry_run is true")
		}
	}
	if c.Wallet.KeystorePath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when keystore_path is set")
	}

	if c.Jupiter.BaseURL == "" {
		errs = append(errs, "jupiter: base_url must not be empty")
	}
	if c.GMGN.BaseURL == "" {
		errs = append(errs, "gmgn: base_url must not be empty")
	}
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}

	if err := c.TradeConfig().Validate(); err != nil {
		errs = append(errs, "trading: "+err.Error())
	}
	if _, err := domain.ScaleAmount(c.Trading.Amount); err != nil && c.Trading.Amount > 0 {
		errs = append(errs, "trading: "+err.Error())
	}
	if c.Trading.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be > 0")
	}

	if c.Executor.MaxAttempts < 1 {
		errs = append(errs, "executor: max_attempts must be >= 1")
	}
	if c.Executor.MaxPolls < 1 {
		errs = append(errs, "executor: max_polls must be >= 1")
	}
	if c.Executor.AttemptBackoff.Duration < 0 || c.Executor.PollInterval.Duration < 0 {
		errs = append(errs, "executor: attempt_backoff and poll_interval must be >= 0")
	}
	if _, err := executor.ParseLegPolicy(c.Executor.LegPolicy); err != nil {
		errs = append(errs, "executor: "+err.Error())
	}

	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs: at least one pair is required")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.Base == "" || p.Quote == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: base and quote must be set", i))
			continue
		}
		if p.Base == p.Quote {
			errs = append(errs, fmt.Sprintf("pairs[%d]: base and quote must differ", i))
		}
		key := p.toPair().Key()
		if seen[key] {
			errs = append(errs, fmt.Sprintf("pairs[%d]: duplicate pair %s", i, p.toPair()))
		}
		seen[key] = true
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Audit.Enabled {
		if strings.TrimSpace(c.Audit.DSN) == "" {
			if c.Audit.Host == "" {
				errs = append(errs, "audit: host must not be empty (or set audit.dsn)")
			}
			if c.Audit.Port <= 0 || c.Audit.Port > 65535 {
				errs = append(errs, fmt.Sprintf("audit: port must be 1-65535, got %d", c.Audit.Port))
			}
			if c.Audit.Database == "" {
				errs = append(errs, "audit: database must not be empty")
			}
		}
		if c.Audit.PoolMaxConns < 1 {
			errs = append(errs, "audit: pool_max_conns must be >= 1")
		}
		if c.Audit.PoolMinConns > c.Audit.PoolMaxConns {
			errs = append(errs, "audit: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// TradeConfig returns the initial live trade settings.
func (c *Config) TradeConfig() domain.TradeConfig {
	return domain.TradeConfig{
		MinProfitRatio:       c.Trading.MinProfit,
		TradeAmount:          c.Trading.Amount,
		SlippagePct:          c.Trading.Slippage,
		FeePerTx:             c.Trading.FeePerTx,
		VolumeSpikeThreshold: c.Trading.VolumeSpikeThreshold,
	}
}

// RetryPolicy returns the executor retry policy.
func (c *Config) RetryPolicy() executor.RetryPolicy {
	return executor.RetryPolicy{
		MaxAttempts:    c.Executor.MaxAttempts,
		AttemptBackoff: c.Executor.AttemptBackoff.Duration,
		MaxPolls:       c.Executor.MaxPolls,
		PollInterval:   c.Executor.PollInterval.Duration,
	}
}

// TradingPairs returns the configured pairs in order.
func (c *Config) TradingPairs() []domain.TradingPair {
	out := make([]domain.TradingPair, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, p.toPair())
	}
	return out
}

func (p PairConfig) toPair() domain.TradingPair {
	return domain.TradingPair{Name: p.Name, Base: p.Base, Quote: p.Quote}
}
