package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/kv"
	"github.com/lucendex/crossroute/internal/logging"
	"github.com/lucendex/crossroute/internal/router"
	"github.com/lucendex/crossroute/internal/store"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "Path to the YAML config file")
	asset      = flag.String("asset", "", "Asset address to quote")
	amount     = flag.String("amount", "", "Amount in the asset's base units")
	destChain  = flag.Uint64("dest-chain", 0, "Destination chain id")
	preference = flag.String("preference", "balanced", "cheapest, fastest or balanced")
	listRoutes = flag.Bool("routes", false, "List the configured routes and exit")
	cleanup    = flag.Bool("cleanup", false, "Run the database cleanup loop until interrupted")
	retention  = flag.Duration("audit-retention", 30*24*time.Hour, "How long info-level audit entries are kept")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if *cleanup {
		if err := runCleanup(cfg, logger); err != nil {
			logger.WithField("error", err.Error()).Fatal("cleanup exited")
		}
		return
	}

	r, err := buildRouter(cfg, logger)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to load routes")
	}
	defer r.Close()

	if *listRoutes {
		err = printRoutes(r, os.Stdout)
	} else {
		err = printQuote(r, *asset, *amount, *destChain, *preference, os.Stdout)
	}
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("quote failed")
	}
}

// buildRouter loads the configured routes into a standalone router. Quotes use
// the configured platform fee and are cached only for this process.
func buildRouter(cfg *config.Config, logger logrus.FieldLogger) (*router.Router, error) {
	feeCap := cfg.Gateway.FeeCapBps
	if feeCap == 0 {
		feeCap = router.DefaultFeeCapBps
	}
	registry := router.NewRegistry(feeCap)
	for _, rc := range cfg.Routes {
		adapter, ok := cfg.AdapterIdentity(rc.Adapter)
		if !ok {
			return nil, fmt.Errorf("route %s: unknown adapter %s", rc.Name, rc.Adapter)
		}
		if _, err := registry.AddRoute(rc.Name, adapter, rc.FeeBps, rc.Latency, rc.ExecCost); err != nil {
			return nil, fmt.Errorf("route %s: %w", rc.Name, err)
		}
	}

	qe := router.NewQuoteEngine(router.NewValidator(), registry, kv.NewMemoryStore(), router.StaticFees(cfg.Gateway.PlatformFeeBps))
	return router.NewRouter(qe, registry, nil, logger), nil
}

type quoteOutput struct {
	Protocol    string `json:"protocol"`
	Adapter     string `json:"adapter"`
	ProtocolFee string `json:"protocol_fee"`
	PlatformFee string `json:"platform_fee"`
	TotalFee    string `json:"total_fee"`
	Net         string `json:"net_amount"`
	Latency     uint64 `json:"latency"`
	ExecCost    uint64 `json:"exec_cost"`
	Score       int64  `json:"score"`
	QuoteHash   string `json:"quote_hash"`
}

func printQuote(r *router.Router, assetHex, amountStr string, dest uint64, pref string, out io.Writer) error {
	if !common.IsHexAddress(assetHex) {
		return fmt.Errorf("-asset %q is not an address", assetHex)
	}
	amt, err := decimal.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("-amount %q: %w", amountStr, err)
	}

	q, err := r.Quote(context.Background(), &router.QuoteRequest{
		Asset:      common.HexToAddress(assetHex),
		Amount:     amt,
		DestChain:  dest,
		Preference: router.ParsePreference(pref),
	})
	if err != nil {
		return err
	}
	net, err := router.NetAmount(amt, q.Fees)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(quoteOutput{
		Protocol:    q.Protocol,
		Adapter:     q.Adapter.Hex(),
		ProtocolFee: q.Fees.Protocol.String(),
		PlatformFee: q.Fees.Platform.String(),
		TotalFee:    q.TotalFee.String(),
		Net:         net.String(),
		Latency:     q.Latency,
		ExecCost:    q.ExecCost,
		Score:       q.Score,
		QuoteHash:   "0x" + hex.EncodeToString(q.QuoteHash[:]),
	})
}

func printRoutes(r *router.Router, out io.Writer) error {
	routes, err := r.GetAvailableRoutes(context.Background())
	if err != nil {
		return err
	}
	for _, route := range routes {
		fmt.Fprintf(out, "%-16s fee=%dbps latency=%ds exec_cost=%d\n", route.Name, route.FeeBps, route.Latency, route.ExecCost)
	}
	return nil
}

type Purger interface {
	PurgeAudit(ctx context.Context, retention time.Duration) (int64, error)
	PurgeRequestIDs(ctx context.Context) (int64, error)
}

func runCleanup(cfg *config.Config, logger logrus.FieldLogger) error {
	if cfg.Database.DSN == "" {
		return errors.New("DATABASE_URL or database.dsn is required for cleanup")
	}
	db, err := store.Open(cfg.Database.DSN, store.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Hour})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("audit_retention", retention.String()).Info("cleanup loop started")
	startCleanupLoop(ctx, store.NewAuditStore(db), time.Hour, *retention, logger)
	logger.Info("cleanup loop stopped")
	return nil
}

// startCleanupLoop purges once immediately and then every interval until ctx ends.
func startCleanupLoop(ctx context.Context, p Purger, interval, retention time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purge(ctx, p, retention, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purge(ctx context.Context, p Purger, retention time.Duration, logger logrus.FieldLogger) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	audits, err := p.PurgeAudit(cleanupCtx, retention)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("audit purge failed")
	}
	ids, err := p.PurgeRequestIDs(cleanupCtx)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("request id purge failed")
	}

	if audits > 0 || ids > 0 {
		logger.WithFields(logrus.Fields{
			"audit_entries": audits,
			"request_ids":   ids,
		}).Info("cleaned")
	}
}
