package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/kv"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	fastID   = common.HexToAddress("0x0000000000000000000000000000000000000f01")
)

func feedOf() []events.Event {
	return []events.Event{
		{Seq: 1, Kind: events.KindOwnershipTransferred, Account: owner},
		{Seq: 2, Kind: events.KindFeeRecipientUpdated, Account: treasury},
		{Seq: 3, Kind: events.KindPlatformFeeUpdated, FeeBps: 5},
		{Seq: 4, Kind: events.KindRouteAdded, Protocol: "fast", Adapter: fastID, FeeBps: 10, Latency: 60, ExecCost: 50000},
		{Seq: 5, Kind: events.KindPaused},
	}
}

type fakeSource struct {
	feeds  map[string][]events.Event
	latest string
	loads  int
	err    error
}

func (f *fakeSource) LatestFeed(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.latest, nil
}

func (f *fakeSource) Load(ctx context.Context, feedID string) ([]events.Event, error) {
	f.loads++
	return f.feeds[feedID], nil
}

func newTestFollower(t *testing.T, src *fakeSource) (*follower, *kv.MemoryStore) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cursor := kv.NewMemoryStore()
	t.Cleanup(func() { cursor.Close() })
	return newFollower(src, cursor, logger), cursor
}

func TestFollower_LiveFeed(t *testing.T) {
	f, cursor := newTestFollower(t, &fakeSource{})
	for _, ev := range feedOf() {
		f.handle(context.Background(), ev)
	}

	got := f.summary()
	if got.LastSeq != 5 || !got.Paused || got.Owner != owner.Hex() || got.PlatformFeeBps != 5 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.ActiveProtocols) != 1 || got.ActiveProtocols[0] != "fast" {
		t.Errorf("protocols = %v", got.ActiveProtocols)
	}
	if seq, ok := cursor.LastSeq(); !ok || seq != 5 {
		t.Errorf("cursor = %d, %v", seq, ok)
	}
}

func TestFollower_BackfillsGap(t *testing.T) {
	feed := feedOf()
	src := &fakeSource{feeds: map[string][]events.Event{"feed-a": feed}, latest: "feed-a"}
	f, _ := newTestFollower(t, src)

	f.handle(context.Background(), feed[0])
	f.handle(context.Background(), feed[4])

	if src.loads != 1 {
		t.Errorf("journal loads = %d, want 1", src.loads)
	}
	if got := f.summary(); got.LastSeq != 5 || !got.Paused {
		t.Errorf("after backfill = %+v", got)
	}
}

func TestFollower_RestartedGateway(t *testing.T) {
	f, _ := newTestFollower(t, &fakeSource{})
	for _, ev := range feedOf() {
		f.handle(context.Background(), ev)
	}

	f.handle(context.Background(), events.Event{Seq: 1, Kind: events.KindOwnershipTransferred, Account: treasury})

	got := f.summary()
	if got.LastSeq != 1 || got.Paused || len(got.ActiveProtocols) != 0 || got.Owner != treasury.Hex() {
		t.Errorf("after restart = %+v", got)
	}
}

func TestFollower_BootstrapAndServe(t *testing.T) {
	src := &fakeSource{feeds: map[string][]events.Event{"feed-a": feedOf()}, latest: "feed-a"}
	f, _ := newTestFollower(t, src)
	if err := f.bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap() error = %v", err)
	}

	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil))
	var got snapshotSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.LastSeq != 5 || got.FeeRecipient != treasury.Hex() {
		t.Errorf("served summary = %+v", got)
	}

	empty, _ := newTestFollower(t, &fakeSource{err: errors.New("no feed")})
	if err := empty.bootstrap(context.Background()); err == nil {
		t.Error("expected bootstrap error to surface")
	}
}

func TestPrintReplay(t *testing.T) {
	src := &fakeSource{feeds: map[string][]events.Event{"feed-a": feedOf(), "feed-b": feedOf()[:3]}, latest: "feed-a"}

	var buf bytes.Buffer
	if err := printReplay(context.Background(), src, "", &buf); err != nil {
		t.Fatalf("printReplay() error = %v", err)
	}
	var out struct {
		FeedID  string `json:"feed_id"`
		LastSeq uint64 `json:"last_seq"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.FeedID != "feed-a" || out.LastSeq != 5 {
		t.Errorf("latest replay = %+v", out)
	}

	buf.Reset()
	if err := printReplay(context.Background(), src, "feed-b", &buf); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.FeedID != "feed-b" || out.LastSeq != 3 {
		t.Errorf("named replay = %+v", out)
	}
}
