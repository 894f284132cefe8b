package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXARB_* environment variable overrides, and
// returns the final Config. A missing file at path leaves the defaults in
// place. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets are expected to arrive this way.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.SecretKey, "SOLANA_PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.SecretKey, "DEXARB_WALLET_SECRET_KEY")
	setStr(&cfg.Wallet.KeystorePath, "DEXARB_WALLET_KEYSTORE_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DEXARB_WALLET_KEY_PASSWORD")

	// ── Venues ──
	setStr(&cfg.Jupiter.BaseURL, "DEXARB_JUPITER_BASE_URL")
	setDuration(&cfg.Jupiter.Timeout, "DEXARB_JUPITER_TIMEOUT")
	setStr(&cfg.GMGN.BaseURL, "DEXARB_GMGN_BASE_URL")
	setDuration(&cfg.GMGN.Timeout, "DEXARB_GMGN_TIMEOUT")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "DEXARB_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "DEXARB_SOLANA_COMMITMENT")
	setBool(&cfg.Solana.SkipPreflight, "DEXARB_SOLANA_SKIP_PREFLIGHT")
	setInt(&cfg.Solana.MaxRetries, "DEXARB_SOLANA_MAX_RETRIES")
	setDuration(&cfg.Solana.RetryDelay, "DEXARB_SOLANA_RETRY_DELAY")
	setDuration(&cfg.Solana.Timeout, "DEXARB_SOLANA_TIMEOUT")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinProfit, "DEXARB_TRADING_MIN_PROFIT")
	setFloat64(&cfg.Trading.Amount, "DEXARB_TRADING_AMOUNT")
	setFloat64(&cfg.Trading.Slippage, "DEXARB_TRADING_SLIPPAGE")
	setFloat64(&cfg.Trading.FeePerTx, "DEXARB_TRADING_FEE_PER_TX")
	setFloat64(&cfg.Trading.VolumeSpikeThreshold, "DEXARB_TRADING_VOLUME_SPIKE_THRESHOLD")
	setBool(&cfg.Trading.DryRun, "DEXARB_TRADING_DRY_RUN")
	setDuration(&cfg.Trading.Interval, "DEXARB_TRADING_INTERVAL")
	setBool(&cfg.Trading.AutoStart, "DEXARB_TRADING_AUTO_START")

	// ── Executor ──
	setInt(&cfg.Executor.MaxAttempts, "DEXARB_EXECUTOR_MAX_ATTEMPTS")
	setDuration(&cfg.Executor.AttemptBackoff, "DEXARB_EXECUTOR_ATTEMPT_BACKOFF")
	setInt(&cfg.Executor.MaxPolls, "DEXARB_EXECUTOR_MAX_POLLS")
	setDuration(&cfg.Executor.PollInterval, "DEXARB_EXECUTOR_POLL_INTERVAL")
	setStr(&cfg.Executor.LegPolicy, "DEXARB_EXECUTOR_LEG_POLICY")
	setDuration(&cfg.Executor.LockTTL, "DEXARB_EXECUTOR_LOCK_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEXARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEXARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "DEXARB_REDIS_PREFIX")
	setInt64(&cfg.Redis.StreamMaxLen, "DEXARB_REDIS_STREAM_MAX_LEN")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "DEXARB_AUDIT_ENABLED")
	setStr(&cfg.Audit.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Audit.DSN, "DEXARB_AUDIT_DSN")
	setStr(&cfg.Audit.Host, "DEXARB_AUDIT_HOST")
	setInt(&cfg.Audit.Port, "DEXARB_AUDIT_PORT")
	setStr(&cfg.Audit.Database, "DEXARB_AUDIT_DATABASE")
	setStr(&cfg.Audit.User, "DEXARB_AUDIT_USER")
	setStr(&cfg.Audit.Password, "DEXARB_AUDIT_PASSWORD")
	setStr(&cfg.Audit.SSLMode, "DEXARB_AUDIT_SSL_MODE")
	setInt(&cfg.Audit.PoolMaxConns, "DEXARB_AUDIT_POOL_MAX_CONNS")
	setInt(&cfg.Audit.PoolMinConns, "DEXARB_AUDIT_POOL_MIN_CONNS")
	setBool(&cfg.Audit.RunMigrations, "DEXARB_AUDIT_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DEXARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXARB_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "DEXARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "DEXARB_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramBaseURL, "DEXARB_NOTIFY_TELEGRAM_BASE_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXARB_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Throttle, "DEXARB_NOTIFY_THROTTLE")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "DEXARB_METRICS_ENABLED")
	setStr(&cfg.Metrics.Namespace, "DEXARB_METRICS_NAMESPACE")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXARB_MODE")
	setStr(&cfg.LogLevel, "DEXARB_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
