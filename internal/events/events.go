// Package events carries the gateway's notification feed. Every state change that an
// off-chain indexer needs in order to rebuild the ledgers is emitted as one Event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindRouteAdded           Kind = "route_added"
	KindRouteRemoved         Kind = "route_removed"
	KindTransferInitiated    Kind = "transfer_initiated"
	KindTransferCompleted    Kind = "transfer_completed"
	KindFeeCollected         Kind = "fee_collected"
	KindFeesWithdrawn        Kind = "fees_withdrawn"
	KindPlatformFeeUpdated   Kind = "platform_fee_updated"
	KindFeeRecipientUpdated  Kind = "fee_recipient_updated"
	KindPaused               Kind = "paused"
	KindUnpaused             Kind = "unpaused"
	KindEmergencyRecovery    Kind = "emergency_recovery"
	KindOwnershipTransferred Kind = "ownership_transferred"
)

// Event is a flat record; only the fields relevant to Kind are populated.
type Event struct {
	ID   string    `json:"id"`
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	Protocol string         `json:"protocol,omitempty"`
	Adapter  common.Address `json:"adapter"`
	FeeBps   uint32         `json:"fee_bps,omitempty"`
	Latency  uint64         `json:"latency,omitempty"`
	ExecCost uint64         `json:"exec_cost,omitempty"`

	RequestID      common.Hash     `json:"request_id"`
	Initiator      common.Address  `json:"initiator"`
	Asset          common.Address  `json:"asset"`
	Amount         decimal.Decimal `json:"amount"`
	DestChain      uint64          `json:"dest_chain,omitempty"`
	Nonce          uint64          `json:"nonce,omitempty"`
	CreatedAt      int64           `json:"created_at,omitempty"`
	ProtocolFee    decimal.Decimal `json:"protocol_fee"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	TotalFee       decimal.Decimal `json:"total_fee"`
	AmountReceived decimal.Decimal `json:"amount_received"`

	// Account is the counterparty of admin events: fee recipient, new owner,
	// or the admin receiving an emergency recovery.
	Account common.Address `json:"account"`
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Bus stamps events with an id, a sequence number and a time, then fans them out.
// A failing sink is logged and does not stop delivery to the others.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	sinks  []Sink
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewBus(logger logrus.FieldLogger, sinks ...Sink) *Bus {
	return &Bus{
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit publishes ev and returns it as delivered.
func (b *Bus) Emit(ctx context.Context, ev Event) Event {
	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = b.now().UTC()
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			EventsDropped.WithLabelValues(string(ev.Kind)).Inc()
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{
					"kind":  ev.Kind,
					"seq":   ev.Seq,
					"error": err.Error(),
				}).Error("event sink publish failed")
			}
		}
	}
	EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
	return ev
}

func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
