package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	command "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	credledger "github.com/goliatone/go-credledger"
	"github.com/goliatone/go-credledger/adapters/gocommand"
	"github.com/goliatone/go-credledger/adapters/gologger"
	"github.com/goliatone/go-credledger/audit"
	"github.com/goliatone/go-credledger/core"
	"github.com/goliatone/go-credledger/httpapi"
	"github.com/goliatone/go-credledger/livefeed"
	ledgermigrations "github.com/goliatone/go-credledger/migrations"
	"github.com/goliatone/go-credledger/signing"
	sqlstore "github.com/goliatone/go-credledger/store/sql"
	"github.com/goliatone/go-credledger/trust"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv(envConfigPath), "path to a YAML or JSON config file")
	logLevel := flag.String("log-level", "info", "trace, debug, info, warn or error")
	flag.Parse()

	provider := gologger.NewJSONProvider(os.Stderr, *logLevel)
	logger := provider.GetLogger("credledger.daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, provider); err != nil {
		logger.Error("credledgerd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, provider glog.LoggerProvider) error {
	logger := provider.GetLogger("credledger.daemon")

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	totalsCache, err := newTotalsCache()
	if err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithTotalsCache(totalsCache))
	if err != nil {
		return err
	}

	registry := trust.NewRegistry(cfg.Trust.RegistryPath, trust.WithLogger(provider.GetLogger("credledger.trust")))
	catalog := trust.NewCatalog(cfg.Trust.SchemaDir, trust.WithLogger(provider.GetLogger("credledger.trust")))
	gate := trust.NewGate(registry, catalog)

	keyring := signing.NewKeyring(cfg.Issuer.KeyPath,
		signing.WithKeyID(cfg.Issuer.KeyID),
		signing.WithKeyringLogger(provider.GetLogger("credledger.signing")),
	)
	issuerID := strings.TrimSpace(cfg.Issuer.ID)
	if issuerID == "" {
		issuerID = gate.IssuerID()
	}
	signer := signing.NewSigner(issuerID, keyring)

	opts := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithStoreProvider(factory),
		core.WithTrustGate(gate),
		core.WithCredentialIssuer(signer),
	}
	if path := strings.TrimSpace(cfg.Audit.LogPath); path != "" {
		sink, err := audit.NewJSONLSink(path)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		opts = append(opts, core.WithAuditSink(sink))
	}

	svc, err := core.NewService(cfg, opts...)
	if err != nil {
		return err
	}

	feed := livefeed.New(svc,
		livefeed.WithLogger(provider.GetLogger("credledger.livefeed")),
		livefeed.WithHeartbeatInterval(cfg.LiveFeed.Heartbeat()),
		livefeed.WithQueueSize(cfg.LiveFeed.QueueSize),
	)
	svc.SetLedgerNotifier(feed)
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go feed.Run(feedCtx)

	facade, err := credledger.NewFacade(svc)
	if err != nil {
		return err
	}
	commands := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterLedger(commands, facade)
	if err != nil {
		return err
	}
	defer subscriptions.Unsubscribe()
	if err := commands.Initialize(); err != nil {
		return err
	}

	api, err := httpapi.New(svc,
		httpapi.WithLogger(provider.GetLogger("credledger.http")),
		httpapi.WithLiveHandler(feed.Handler()),
	)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("credledgerd listening", "addr", cfg.HTTP.Addr, "driver", cfg.Persistence.Driver)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("credledgerd shutting down")
	stopFeed()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openPersistence(ctx context.Context, cfg core.Config) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Persistence.Driver)
	if driver == "" {
		driver = "sqlite3"
	}
	sqlDB, err := sql.Open(driver, cfg.Persistence.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	persistenceCfg := persistenceConfig{cfg: cfg.Persistence, serviceName: cfg.ServiceName}
	persistenceCfg.cfg.Driver = driver

	dialect, err := ledgermigrations.DialectFor(driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	var client *persistence.Client
	switch dialect {
	case ledgermigrations.DialectPostgres:
		client, err = persistence.New(persistenceCfg, sqlDB, pgdialect.New())
	default:
		sqlDB.SetMaxOpenConns(1)
		client, err = persistence.New(persistenceCfg, sqlDB, sqlitedialect.New())
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := ledgermigrations.Register(client, dialect); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func newTotalsCache() (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	return repositorycache.NewCacheService(config)
}
