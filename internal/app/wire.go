package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/auction"
	s3blob "github.com/dxtrader/dxbot/internal/blob/s3"
	"github.com/dxtrader/dxbot/internal/cache/redis"
	"github.com/dxtrader/dxbot/internal/config"
	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/ledger"
	"github.com/dxtrader/dxbot/internal/memo"
	"github.com/dxtrader/dxbot/internal/notify"
	"github.com/dxtrader/dxbot/internal/store/postgres"
	"github.com/dxtrader/dxbot/internal/wallet"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Ledger access, memoized.
	Auctions domain.AuctionRepo
	Ethereum domain.EthereumRepo

	// Auction economics.
	Calc     *auction.Calculator
	Resolver *auction.Resolver
	Settler  *auction.Settler

	// Persistence, nil unless Postgres is enabled.
	SnapshotStore   domain.SnapshotStore
	SettlementStore domain.SettlementStore

	// Blob storage, nil unless S3 is enabled.
	BlobWriter *s3blob.Writer
	Archiver   *s3blob.Archiver

	// Operator account, nil unless a key is configured.
	Account *wallet.Account

	// Notifications.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ethereum ledger ---
	ledgerClient, err := ledger.New(ctx, ledger.ClientConfig{
		RPCURL:  cfg.Ethereum.RPCURL,
		ChainID: cfg.Ethereum.ChainID,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, ledgerClient.Close)

	tokens := make(map[domain.Token]common.Address, len(cfg.Exchange.Tokens))
	for symbol, addr := range cfg.Exchange.Tokens {
		tokens[domain.Token(symbol)] = common.HexToAddress(addr)
	}
	repo, err := ledger.NewRepo(ledgerClient, common.HexToAddress(cfg.Exchange.ContractAddress), tokens)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger repo: %w", err)
	}
	ethRepo := ledger.NewEthRepo(ledgerClient)

	// --- Redis token metadata cache (optional) ---
	var tokenInfos domain.TokenInfoCache
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		tokenInfos = redis.NewTokenInfoCache(redisClient)
	}

	// --- Memoized repo decorators ---
	memoSvc := memo.NewService(logger)
	closers = append(closers, memoSvc.Close)

	deps.Auctions = ledger.NewCachedAuctionRepo(repo, memoSvc, ledger.CacheConfig{
		Short:         cfg.Cache.Short.Duration,
		Average:       cfg.Cache.Average.Duration,
		SweepInterval: cfg.Cache.SweepInterval.Duration,
		Refresh:       cfg.Cache.Refresh,
	}, logger)
	deps.Ethereum = ledger.NewCachedEthereumRepo(ethRepo, tokenInfos, memoSvc, logger)

	// --- Auction economics ---
	tiers := auction.CacheTiers{
		Short:   cfg.Cache.Short.Duration,
		Average: cfg.Cache.Average.Duration,
	}
	deps.Calc = auction.NewCalculator(deps.Auctions, deps.Ethereum, tiers, logger)
	deps.Resolver = auction.NewResolver(deps.Auctions, deps.Ethereum, deps.Calc, tiers, logger)
	deps.Settler = auction.NewSettler(deps.Calc, ledger.NewFeeSettler(repo), logger)

	// --- PostgreSQL (optional) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.SnapshotStore = postgres.NewSnapshotStore(pgClient)
		deps.SettlementStore = postgres.NewSettlementStore(pgClient)
	}

	// --- S3 blob storage (optional) ---
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		// Archiver: only when Postgres provides the stores to drain.
		if cfg.Postgres.Enabled {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.SnapshotStore.(*postgres.SnapshotStore),
				deps.SettlementStore.(*postgres.SettlementStore),
				logger,
			)
		}
	}

	// --- Operator account (optional) ---
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		account, err := wallet.AccountFromConfig(wallet.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		deps.Account = account
		logger.Info("operator account loaded",
			slog.String("address", account.Address().Hex()),
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
