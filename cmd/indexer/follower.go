package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/gateway"
)

var (
	indexedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_indexer_events_total",
			Help: "Feed events folded into the indexer snapshot",
		},
		[]string{"outcome"},
	)

	indexedSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossroute_indexer_last_seq",
			Help: "Sequence number of the last event applied",
		},
	)
)

// FeedSource is the durable copy of the feed the follower backfills from.
type FeedSource interface {
	LatestFeed(ctx context.Context) (string, error)
	Load(ctx context.Context, feedID string) ([]events.Event, error)
}

type Cursor interface {
	SetLastSeq(seq uint64) error
}

// follower keeps a snapshot of gateway state current from the live feed.
type follower struct {
	mu     sync.RWMutex
	snap   *gateway.Snapshot
	source FeedSource
	cursor Cursor
	logger logrus.FieldLogger
}

func newFollower(source FeedSource, cursor Cursor, logger logrus.FieldLogger) *follower {
	return &follower{
		snap:   gateway.NewSnapshot(),
		source: source,
		cursor: cursor,
		logger: logger,
	}
}

// bootstrap replays whatever the journal already holds for the newest feed.
func (f *follower) bootstrap(ctx context.Context) error {
	snap, err := f.load(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	f.advance(snap.LastSeq)
	return nil
}

func (f *follower) load(ctx context.Context) (*gateway.Snapshot, error) {
	feedID, err := f.source.LatestFeed(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := f.source.Load(ctx, feedID)
	if err != nil {
		return nil, err
	}
	return gateway.Replay(evs)
}

func (f *follower) handle(ctx context.Context, ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// every gateway process opens its feed at seq 1
	if ev.Seq == 1 && f.snap.LastSeq > 0 {
		f.logger.WithField("previous_seq", f.snap.LastSeq).Info("gateway restarted, new feed")
		f.snap = gateway.NewSnapshot()
	}

	err := f.snap.Apply(ev)
	if errors.Is(err, gateway.ErrFeedOutOfOrder) {
		f.logger.WithFields(logrus.Fields{
			"have": f.snap.LastSeq,
			"got":  ev.Seq,
		}).Warn("gap in feed, backfilling from journal")

		snap, loadErr := f.load(ctx)
		if loadErr != nil {
			indexedEvents.WithLabelValues("error").Inc()
			f.logger.WithField("error", loadErr.Error()).Error("backfill failed")
			return
		}
		f.snap = snap
		err = f.snap.Apply(ev)
	}
	if err != nil {
		indexedEvents.WithLabelValues("error").Inc()
		f.logger.WithFields(logrus.Fields{
			"seq":   ev.Seq,
			"kind":  ev.Kind,
			"error": err.Error(),
		}).Error("failed to apply event")
		return
	}

	indexedEvents.WithLabelValues("applied").Inc()
	f.advance(f.snap.LastSeq)
}

func (f *follower) advance(seq uint64) {
	indexedSeq.Set(float64(seq))
	if err := f.cursor.SetLastSeq(seq); err != nil {
		f.logger.WithField("error", err.Error()).Warn("failed to store cursor")
	}
}

type snapshotSummary struct {
	LastSeq         uint64            `json:"last_seq"`
	Owner           string            `json:"owner"`
	FeeRecipient    string            `json:"fee_recipient"`
	PlatformFeeBps  uint32            `json:"platform_fee_bps"`
	Paused          bool              `json:"paused"`
	ActiveProtocols []string          `json:"active_protocols"`
	Requests        int               `json:"requests"`
	Pending         int               `json:"pending"`
	FeeBalances     map[string]string `json:"fee_balances"`
	Recovered       map[string]string `json:"recovered,omitempty"`
}

func summarize(s *gateway.Snapshot) snapshotSummary {
	out := snapshotSummary{
		LastSeq:         s.LastSeq,
		Owner:           s.Owner.Hex(),
		FeeRecipient:    s.FeeRecipient.Hex(),
		PlatformFeeBps:  s.PlatformFeeBps,
		Paused:          s.Paused,
		ActiveProtocols: append([]string{}, s.Protocols...),
		Requests:        len(s.Requests),
		Pending:         s.PendingCount(),
		FeeBalances:     make(map[string]string, len(s.FeeBalances)),
	}
	sort.Strings(out.ActiveProtocols)
	for asset, bal := range s.FeeBalances {
		out.FeeBalances[asset.Hex()] = bal.String()
	}
	if len(s.Recovered) > 0 {
		out.Recovered = make(map[string]string, len(s.Recovered))
		for asset, amt := range s.Recovered {
			out.Recovered[asset.Hex()] = amt.String()
		}
	}
	return out
}

func (f *follower) summary() snapshotSummary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return summarize(f.snap)
}

// ServeHTTP handles GET /v1/snapshot
func (f *follower) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(f.summary())
}
