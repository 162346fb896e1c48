package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/adapters"
	"github.com/lucendex/crossroute/internal/api"
	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/custody"
	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/gateway"
	"github.com/lucendex/crossroute/internal/kv"
	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/logging"
	"github.com/lucendex/crossroute/internal/router"
	"github.com/lucendex/crossroute/internal/store"
)

var (
	version     = "dev"
	buildTime   = "unknown"
	configPath  = flag.String("config", getEnv("CONFIG_PATH", ""), "Path to the YAML config file")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("crossroute-api %s, build %s\n", version, buildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logger.WithField("error", err.Error()).Fatal("api exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.DSN == "" {
		return errors.New("database dsn is required (DATABASE_URL)")
	}
	db, err := store.Open(cfg.Database.DSN, store.DefaultPool)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	var conn *nats.Conn
	if cfg.NATS.URL != "" {
		conn, err = events.Connect(cfg.NATS.URL, cfg.NATS.Timeout, logger)
		if err != nil {
			return err
		}
		defer conn.Drain()
	}

	adapterSet, err := adapters.FromConfig(cfg.Adapters, conn, logger)
	if err != nil {
		return err
	}

	cust, closeCustody, err := buildCustody(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCustody()

	cache := kv.NewMemoryStore()
	defer cache.Close()

	stream := api.NewStream(logger)
	journal := store.NewJournal(db, uuid.NewString())
	sinks := []events.Sink{journal, stream}
	if conn != nil {
		sinks = append(sinks, events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix))
	}

	gw, err := gateway.New(gateway.Config{
		Owner:          common.HexToAddress(cfg.Gateway.Owner),
		FeeRecipient:   common.HexToAddress(cfg.Gateway.FeeRecipient),
		PlatformFeeBps: cfg.Gateway.PlatformFeeBps,
		FeeCapBps:      cfg.Gateway.FeeCapBps,
	}, gateway.Dependencies{
		Custody:  cust,
		Adapters: adapterSet,
		Bus:      events.NewBus(logger, sinks...),
		Quotes:   cache,
		Audit:    store.NewAuditStore(db),
		Breaker:  router.NewCircuitBreaker(cfg.Breaker.FailureLimit, cfg.Breaker.Cooldown),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	if err := seedRoutes(ctx, gw, cfg); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"feed_id":  journal.FeedID(),
		"routes":   len(gw.ActiveRoutes()),
		"adapters": adapterSet.Len(),
		"custody":  cfg.Custody.Kind,
	}).Info("gateway ready")

	srv := &http.Server{
		Addr: cfg.Address(),
		Handler: api.NewServer(api.ServerConfig{
			Handlers:      api.NewHandlers(gw, cache, stream, logger),
			Auth:          api.NewAuthMiddleware(api.NewPostgresStore(db), cache, logger),
			RateLimiter:   api.NewRateLimiter(cache, logger),
			Stream:        stream,
			InternalToken: cfg.Server.InternalToken,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// buildCustody returns the configured custody and a close func for whatever
// connection it holds.
func buildCustody(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (ledger.Custody, func(), error) {
	custodian := common.HexToAddress(cfg.Gateway.Custodian)

	if cfg.Custody.Kind == config.CustodyERC20 {
		sub, client, err := custody.DialChain(ctx, cfg.Custody.RPCURL, cfg.Custody.PrivateKey, cfg.Custody.ReceiptPoll, logger)
		if err != nil {
			return nil, nil, err
		}
		if sub.From() != custodian {
			client.Close()
			return nil, nil, fmt.Errorf("custody key controls %s, config names custodian %s", sub.From().Hex(), custodian.Hex())
		}
		c, err := custody.NewERC20Custody(custodian, sub)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return c, client.Close, nil
	}

	vault := custody.NewVault(custodian)
	for _, s := range cfg.Custody.Seed {
		amount, err := decimal.NewFromString(s.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("seed amount %q: %w", s.Amount, err)
		}
		if err := vault.Mint(common.HexToAddress(s.Asset), common.HexToAddress(s.Account), amount); err != nil {
			return nil, nil, fmt.Errorf("seed %s: %w", s.Account, err)
		}
	}
	return vault, func() {}, nil
}

// seedRoutes registers the configured routes as the owner, in file order.
func seedRoutes(ctx context.Context, gw *gateway.Gateway, cfg *config.Config) error {
	owner := common.HexToAddress(cfg.Gateway.Owner)
	for _, r := range cfg.Routes {
		adapter, ok := cfg.AdapterIdentity(r.Adapter)
		if !ok {
			return fmt.Errorf("route %s: unknown adapter %s", r.Name, r.Adapter)
		}
		if _, err := gw.AddRoute(ctx, owner, r.Name, adapter, r.FeeBps, r.Latency, r.ExecCost); err != nil {
			return fmt.Errorf("route %s: %w", r.Name, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
