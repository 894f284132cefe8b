package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/dexarb/internal/cache/redis"
	"github.com/alanyoungcy/dexarb/internal/config"
	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/notify"
	"github.com/alanyoungcy/dexarb/internal/observability"
	"github.com/alanyoungcy/dexarb/internal/platform/gmgn"
	"github.com/alanyoungcy/dexarb/internal/platform/jupiter"
	"github.com/alanyoungcy/dexarb/internal/platform/solana"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/service"
	"github.com/alanyoungcy/dexarb/internal/store/postgres"
	"github.com/alanyoungcy/dexarb/internal/venue"
	"github.com/alanyoungcy/dexarb/internal/wallet"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	// Wallet is nil when running without a key (dry run).
	Wallet *wallet.Keypair

	// Venues
	Jupiter     *venue.Jupiter
	GMGN        *venue.GMGN
	Venues      *venue.Registry
	Broadcaster venue.Broadcaster

	// Redis-backed coordination; nil when Redis is disabled.
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Events and live settings
	Bus      domain.EventBus
	Channel  string
	Events   *service.EventService
	Settings *service.SettingsService

	Metrics *observability.Metrics
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- Wallet ---
	if cfg.Wallet.SecretKey != "" || cfg.Wallet.KeystorePath != "" {
		kp, err := wallet.LoadKeypair(wallet.KeyConfig{
			Secret:       cfg.Wallet.SecretKey,
			KeystorePath: cfg.Wallet.KeystorePath,
			Password:     cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: wallet: %w", err))
		}
		deps.Wallet = kp
		logger.InfoContext(ctx, "wallet loaded", slog.String("address", kp.PublicKey()))
	}
	owner := ""
	if deps.Wallet != nil {
		owner = deps.Wallet.PublicKey()
	}

	// --- Venues ---
	deps.Jupiter = venue.NewJupiter(
		jupiter.NewClient(cfg.Jupiter.BaseURL, jupiter.WithTimeout(cfg.Jupiter.Timeout.Duration)),
		owner,
	)
	deps.GMGN = venue.NewGMGN(
		gmgn.NewClient(cfg.GMGN.BaseURL, gmgn.WithTimeout(cfg.GMGN.Timeout.Duration)),
		owner,
		logger,
	)
	deps.Venues = venue.NewRegistry(deps.Jupiter, deps.GMGN)
	for _, p := range cfg.Pairs {
		for _, mint := range []string{p.Base, p.Quote} {
			if err := wallet.ValidateAddress(mint, true); err != nil {
				return fail(fmt.Errorf("wire: pair %s: %w", p.Name, err))
			}
		}
	}
	rpc := solana.NewRPCClient(cfg.Solana.RPCURL,
		solana.WithTimeout(cfg.Solana.Timeout.Duration),
		solana.WithMaxRetries(cfg.Solana.MaxRetries),
		solana.WithRetryDelay(cfg.Solana.RetryDelay.Duration),
		solana.WithSkipPreflight(cfg.Solana.SkipPreflight),
		solana.WithCommitment(cfg.Solana.Commitment),
	)
	deps.Broadcaster = rpc
	if deps.Wallet != nil {
		// A failed balance lookup is not fatal.
		if lamports, err := rpc.GetBalance(ctx, owner); err != nil {
			logger.WarnContext(ctx, "wallet balance unavailable", slog.String("error", err.Error()))
		} else {
			logger.InfoContext(ctx, "wallet balance", slog.Float64("sol", float64(lamports)/1e9))
		}
	}

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		deps.Metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// --- Redis ---
	var stream *redis.EventStream
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		stream = redis.NewEventStream(redisClient, cfg.Redis.StreamMaxLen)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Bus = stream
		deps.Channel = stream.Channel()
		deps.Pingers["redis"] = redisClient
	} else {
		deps.Bus = service.NewLocalBus()
		deps.Channel = cfg.Redis.Prefix + "events"
	}

	// --- PostgreSQL audit log ---
	var audit domain.AuditStore
	if cfg.Audit.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Audit.DSN,
			Host:     cfg.Audit.Host,
			Port:     cfg.Audit.Port,
			Database: cfg.Audit.Database,
			User:     cfg.Audit.User,
			Password: cfg.Audit.Password,
			SSLMode:  cfg.Audit.SSLMode,
			MaxConns: cfg.Audit.PoolMaxConns,
			MinConns: cfg.Audit.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Audit.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		audit = postgres.NewAuditStore(pgClient.Pool())
		deps.Pingers["postgres"] = pgClient
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramBaseURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Throttle.Duration, logger)

	// --- Event log ---
	evCfg := service.EventConfig{Audit: audit, Logger: logger}
	if stream != nil {
		evCfg.Stream = stream
	} else {
		evCfg.Bus = deps.Bus
		evCfg.Channel = deps.Channel
	}
	if notifier.Enabled() {
		evCfg.Notifier = notifier
	}
	deps.Events = service.NewEventService(evCfg)
	closers = append(closers, deps.Events.Close)

	settings, err := service.NewSettingsService(cfg.TradeConfig(), deps.Events, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Settings = settings

	return deps, cleanup, nil
}
