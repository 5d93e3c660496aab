package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	keyvault "github.com/layer-3/keyvault"
	"github.com/layer-3/keyvault/adapters/cipher"
	"github.com/layer-3/keyvault/adapters/clock"
	"github.com/layer-3/keyvault/adapters/events"
	"github.com/layer-3/keyvault/adapters/signer"
	"github.com/layer-3/keyvault/adapters/store"
	"github.com/layer-3/keyvault/adapters/tokenizer"
	"github.com/layer-3/keyvault/internal/config"
	"github.com/layer-3/keyvault/internal/metrics"
	"github.com/layer-3/keyvault/ports"
	httptransport "github.com/layer-3/keyvault/transport/http"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c, (*config.Config).Validate)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "print a fresh hex master key for SECRET_KEY",
	Action: func(c *cli.Context) error {
		key, err := cipher.GenerateMasterKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, key)
		return nil
	},
}

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "wallet administration",
	Subcommands: []*cli.Command{
		walletActivation("disable", false),
		walletActivation("enable", true),
	},
}

func walletActivation(name string, active bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     name + " signing with a wallet",
		ArgsUsage: "<wallet-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.ShowSubcommandHelp(c)
			}
			cfg, err := loadConfig(c, (*config.Config).ValidateDatabase)
			if err != nil {
				return err
			}
			st, closeStore, err := openStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			walletID := c.Args().First()
			if err := st.SetWalletActive(c.Context, walletID, active); err != nil {
				return fmt.Errorf("failed to %s wallet %s: %w", name, walletID, err)
			}
			log.Infof("wallet %s %sd", walletID, name)
			return nil
		},
	}
}

func loadConfig(c *cli.Context, validate func(*config.Config) error) (*config.Config, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (ports.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn("using the in-memory store, data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	case config.DriverPostgres:
		st, pool, err := store.OpenPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		st, err := store.OpenGormStore(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				log.Errorf("failed to close database: %v", err)
			}
		}, nil
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	masterKey, err := cfg.MasterKey()
	if err != nil {
		return err
	}
	aead, err := cipher.New(masterKey)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
		st = store.NewCachedStore(st, redisClient, cfg.Redis.CacheTTL.Duration)
	}

	// A nil *redis.Client must not become a non-nil interface
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
	}

	logger := events.NewLoggerAdapter()
	publisher, subscriber, err := events.NewPubSub(universal, logger)
	if err != nil {
		return err
	}
	applier, err := events.NewApplier(subscriber, st, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := applier.Run(ctx); err != nil {
			log.Errorf("bookkeeping router stopped: %v", err)
		}
	}()
	books := events.NewWatermillPublisher(publisher)

	tk, err := tokenizer.NewJWTTokenizer([]byte(cfg.Security.JWTSecret), clock.Real())
	if err != nil {
		return err
	}

	m := metrics.New()
	vault, err := keyvault.New(keyvault.Deps{
		Store:     st,
		Cipher:    aead,
		Signers:   signer.Default(),
		Tokenizer: tk,
		Clock:     clock.Real(),
		Books:     books,
		Metrics:   m,
	}, keyvault.Options{
		AdminSecret:      cfg.Security.AdminSecret,
		AuthorizedEmails: cfg.APIKeys.AuthorizedEmails,
		APIKeyTTL:        cfg.APIKeys.Duration.Duration,
		APIKeyMaxTTL:     cfg.APIKeys.MaxDuration.Duration,
		DefaultChain:     cfg.Signing.DefaultChain,
		SignTimeout:      cfg.Signing.Timeout.Duration,
	})
	if err != nil {
		return err
	}

	limiterStore, err := httptransport.NewLimiterStore(universal)
	if err != nil {
		return err
	}
	router, err := httptransport.SetupRouter(vault, httptransport.RouterConfig{
		RateLimit:    cfg.Server.RateLimit,
		LimiterStore: limiterStore,
		Metrics:      m,
		RequestLog:   httptransport.NewRequestLog(httptransport.DefaultRequestLogSize),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (store=%s, chain=%s)", cfg.Addr(), cfg.Database.Driver, cfg.Signing.DefaultChain)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	books.Flush()
	if err := publisher.Close(); err != nil {
		log.Errorf("failed to close event publisher: %v", err)
	}
	if err := applier.Close(); err != nil {
		log.Errorf("failed to close bookkeeping router: %v", err)
	}
	return nil
}
