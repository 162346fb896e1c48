package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/gateway"
	"github.com/lucendex/crossroute/internal/kv"
	"github.com/lucendex/crossroute/internal/logging"
	"github.com/lucendex/crossroute/internal/store"
)

var (
	// Set at build time via -ldflags
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath  = flag.String("config", getEnv("CONFIG_PATH", ""), "Path to the YAML config file")
	listenAddr  = flag.String("listen", getEnv("INDEXER_LISTEN", ":9091"), "Address for /v1/snapshot and /metrics")
	replay      = flag.Bool("replay", false, "Rebuild state from the journal, print it and exit")
	feedID      = flag.String("feed", "", "Feed to replay (default: the newest)")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("crossroute-indexer %s, build %s\n", version, buildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.DSN == "" {
		logger.Fatal("DATABASE_URL or database.dsn is required")
	}
	db, err := connectWithRetry(cfg.Database.DSN, 10, time.Second, logger)
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("database unavailable")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal := store.NewJournal(db, "")
	if *replay {
		if err := printReplay(ctx, journal, *feedID, os.Stdout); err != nil {
			logger.WithField("error", err.Error()).Fatal("replay failed")
		}
		return
	}

	if err := follow(ctx, cfg, journal, logger); err != nil {
		logger.WithField("error", err.Error()).Fatal("indexer exited")
	}
}

// connectWithRetry waits for Postgres with a linearly growing delay.
func connectWithRetry(dsn string, attempts int, step time.Duration, logger logrus.FieldLogger) (*sql.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := store.Open(dsn, store.DefaultPool)
		if err == nil {
			logger.WithField("attempt", attempt).Info("database connected")
			return db, nil
		}
		lastErr = err
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"of":      attempts,
			"error":   err.Error(),
		}).Warn("database connection failed")
		if attempt < attempts {
			time.Sleep(step * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func printReplay(ctx context.Context, source FeedSource, feed string, out io.Writer) error {
	if feed == "" {
		latest, err := source.LatestFeed(ctx)
		if err != nil {
			return err
		}
		feed = latest
	}
	evs, err := source.Load(ctx, feed)
	if err != nil {
		return err
	}
	snap, err := gateway.Replay(evs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		FeedID string `json:"feed_id"`
		snapshotSummary
	}{feed, summarize(snap)})
}

func follow(ctx context.Context, cfg *config.Config, journal *store.Journal, logger *logrus.Logger) error {
	if cfg.NATS.URL == "" {
		return errors.New("NATS_URL or nats.url is required to follow the feed")
	}

	cursor := kv.NewMemoryStore()
	defer cursor.Close()

	f := newFollower(journal, cursor, logger)
	if err := f.bootstrap(ctx); err != nil && !errors.Is(err, store.ErrNoFeed) {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.WithField("last_seq", f.summary().LastSeq).Info("snapshot bootstrapped")

	conn, err := events.Connect(cfg.NATS.URL, cfg.NATS.Timeout, logger)
	if err != nil {
		return err
	}
	defer conn.Drain()

	feed := make(chan events.Event, 1024)
	sub, err := events.Subscribe(conn, cfg.NATS.SubjectPrefix, logger, func(ev events.Event) {
		select {
		case feed <- ev:
		default:
			// the gap is repaired from the journal on the next event
			logger.WithField("seq", ev.Seq).Warn("indexer backlog full, dropping event")
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	mux := http.NewServeMux()
	mux.Handle("GET /v1/snapshot", f)
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: *listenAddr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("error", err.Error()).Error("status server failed")
		}
	}()
	defer srv.Close()

	logger.WithField("listen", *listenAddr).Info("indexer running, waiting for events")
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, closing")
			return nil
		case ev := <-feed:
			f.handle(ctx, ev)
		}
	}
}
