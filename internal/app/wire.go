package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/relaytaker/internal/blob/s3"
	"github.com/alanyoungcy/relaytaker/internal/cache/redis"
	"github.com/alanyoungcy/relaytaker/internal/config"
	"github.com/alanyoungcy/relaytaker/internal/crypto"
	"github.com/alanyoungcy/relaytaker/internal/domain"
	"github.com/alanyoungcy/relaytaker/internal/notify"
	"github.com/alanyoungcy/relaytaker/internal/platform/ethereum"
	"github.com/alanyoungcy/relaytaker/internal/platform/relay"
	"github.com/alanyoungcy/relaytaker/internal/server/handler"
	"github.com/alanyoungcy/relaytaker/internal/service"
	"github.com/alanyoungcy/relaytaker/internal/store/postgres"
)

// Dependencies bundles what the modes need. Optional backends are left nil
// when disabled in the configuration.
type Dependencies struct {
	// Chain is nil unless the mode sends transactions.
	Chain      domain.ChainProvider
	Registry   domain.TokenRegistry
	Resolver   *service.SymbolResolver
	Normalizer *service.OrderNormalizer
	Relay      *service.RelayService
	Network    *service.NetworkChecker

	// Redis
	TokenCache  domain.TokenCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Postgres
	FillStore  domain.FillStore
	AuditStore domain.AuditStore

	// S3
	Archiver service.ReceiptArchiver
	Receipts handler.ReceiptSource

	Notifier service.FillNotifier

	// Checks backs GET /api/health.
	Checks map[string]handler.HealthCheck
}

// Wire builds the dependencies for cfg.Mode and returns them with a cleanup
// function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(format string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf(format, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.HealthCheck)}

	// --- Chain node ---
	backend, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail("wire: dial rpc: %w", err)
	}
	closers = append(closers, backend.Close)
	deps.Checks["rpc"] = func(ctx context.Context) error {
		_, err := backend.NetworkID(ctx)
		return err
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.TokenCache = redis.NewTokenCache(redisClient, cfg.Redis.TokenTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("wire: postgres migrations: %w", err)
			}
		}

		deps.FillStore = postgres.NewFillStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- S3 receipt archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiver := s3blob.NewReceiptArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.S3.Prefix)
		deps.Archiver = archiver
		deps.Receipts = archiver
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Token registry and relay ---
	var registry domain.TokenRegistry = ethereum.NewRegistry(backend, common.HexToAddress(cfg.Chain.TokenRegistry))
	if deps.TokenCache != nil {
		registry = service.NewCachingRegistry(registry, deps.TokenCache, logger)
	}
	deps.Registry = registry
	deps.Resolver = service.NewSymbolResolver(registry, common.HexToAddress(cfg.Chain.EtherToken))
	deps.Normalizer = service.NewOrderNormalizer(deps.Resolver, common.HexToAddress(cfg.Chain.FeeToken))
	deps.Relay = service.NewRelayService(
		relay.NewClient(cfg.Relay.BaseURL, cfg.Relay.Timeout.Duration),
		deps.Resolver,
		logger,
	)
	deps.Network = service.NewNetworkChecker(backend, cfg.Chain.ExpectedNetworkID, logger)

	// --- Transaction key ---
	if config.NeedsWallet(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("wire: wallet: %w", err)
		}
		provider, err := ethereum.NewProvider(backend, key, ethereum.ProviderConfig{
			ChainID:          big.NewInt(cfg.Chain.ChainID),
			EtherToken:       common.HexToAddress(cfg.Chain.EtherToken),
			TokenProxy:       common.HexToAddress(cfg.Chain.TokenTransferProxy),
			GasPrice:         cfg.Chain.GasPrice(),
			GasBufferPercent: cfg.Chain.GasBufferPercent,
		}, logger)
		if err != nil {
			return fail("wire: chain provider: %w", err)
		}
		deps.Chain = provider
		logger.Info("wire: wallet loaded", slog.String("account", provider.Account().Hex()))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger); notifier.Enabled() {
		deps.Notifier = notifier
	}

	return deps, cleanup, nil
}
