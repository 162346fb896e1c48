package gateway

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/router"
)

// Snapshot is gateway state rebuilt from the notification feed alone.
type Snapshot struct {
	Owner          common.Address
	FeeRecipient   common.Address
	PlatformFeeBps uint32
	Paused         bool

	Routes      map[string]router.Route
	Protocols   []string
	Requests    map[common.Hash]ledger.Request
	FeeBalances map[common.Address]decimal.Decimal
	// Recovered totals emergency recoveries per asset; they never touch the ledgers.
	Recovered map[common.Address]decimal.Decimal

	LastSeq uint64
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Routes:      make(map[string]router.Route),
		Requests:    make(map[common.Hash]ledger.Request),
		FeeBalances: make(map[common.Address]decimal.Decimal),
		Recovered:   make(map[common.Address]decimal.Decimal),
	}
}

// Replay applies evs in sequence order. The feed must be gapless from seq 1.
func Replay(evs []events.Event) (*Snapshot, error) {
	sorted := make([]events.Event, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	s := NewSnapshot()
	for _, ev := range sorted {
		if err := s.Apply(ev); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Apply folds in the next event of a live feed. An event at or below LastSeq
// is ignored so redelivery is harmless; one past LastSeq+1 is a gap.
func (s *Snapshot) Apply(ev events.Event) error {
	if ev.Seq <= s.LastSeq {
		return nil
	}
	if ev.Seq != s.LastSeq+1 {
		return fmt.Errorf("%w: expected seq %d, got %d", ErrFeedOutOfOrder, s.LastSeq+1, ev.Seq)
	}
	if err := s.apply(ev); err != nil {
		return fmt.Errorf("seq %d (%s): %w", ev.Seq, ev.Kind, err)
	}
	s.LastSeq = ev.Seq
	return nil
}

func (s *Snapshot) apply(ev events.Event) error {
	switch ev.Kind {
	case events.KindOwnershipTransferred:
		s.Owner = ev.Account
	case events.KindFeeRecipientUpdated:
		s.FeeRecipient = ev.Account
	case events.KindPlatformFeeUpdated:
		s.PlatformFeeBps = ev.FeeBps
	case events.KindPaused:
		s.Paused = true
	case events.KindUnpaused:
		s.Paused = false

	case events.KindRouteAdded:
		if existing, ok := s.Routes[ev.Protocol]; !ok || !existing.Active {
			s.Protocols = append(s.Protocols, ev.Protocol)
		}
		s.Routes[ev.Protocol] = router.Route{
			Name:     ev.Protocol,
			Adapter:  ev.Adapter,
			FeeBps:   ev.FeeBps,
			Latency:  ev.Latency,
			ExecCost: ev.ExecCost,
			Active:   true,
		}

	case events.KindRouteRemoved:
		route, ok := s.Routes[ev.Protocol]
		if !ok || !route.Active {
			return router.ErrRouteNotFound
		}
		route.Active = false
		s.Routes[ev.Protocol] = route
		for i, p := range s.Protocols {
			if p == ev.Protocol {
				last := len(s.Protocols) - 1
				s.Protocols[i] = s.Protocols[last]
				s.Protocols = s.Protocols[:last]
				break
			}
		}

	case events.KindFeeCollected:
		s.FeeBalances[ev.Asset] = s.FeeBalances[ev.Asset].Add(ev.Amount)

	case events.KindFeesWithdrawn:
		remaining := s.FeeBalances[ev.Asset].Sub(ev.Amount)
		if remaining.IsNegative() {
			return fmt.Errorf("withdrawal of %s exceeds collected fees", ev.Amount)
		}
		if remaining.IsZero() {
			delete(s.FeeBalances, ev.Asset)
		} else {
			s.FeeBalances[ev.Asset] = remaining
		}

	case events.KindEmergencyRecovery:
		s.Recovered[ev.Asset] = s.Recovered[ev.Asset].Add(ev.Amount)

	case events.KindTransferInitiated:
		if _, ok := s.Requests[ev.RequestID]; ok {
			return ledger.ErrDuplicateRequest
		}
		s.Requests[ev.RequestID] = ledger.Request{
			ID:           ev.RequestID,
			Initiator:    ev.Initiator,
			Asset:        ev.Asset,
			Amount:       ev.Amount,
			DestChain:    ev.DestChain,
			Protocol:     ev.Protocol,
			ProtocolFee:  ev.ProtocolFee,
			PlatformFee:  ev.PlatformFee,
			BridgeAmount: ev.Amount.Sub(ev.TotalFee),
			Nonce:        ev.Nonce,
			CreatedAt:    time.Unix(ev.CreatedAt, 0).UTC(),
		}

	case events.KindTransferCompleted:
		req, ok := s.Requests[ev.RequestID]
		if !ok {
			return ErrUnknownRequest
		}
		if req.Completed {
			return ledger.ErrAlreadyCompleted
		}
		req.Completed = true
		req.CompletedAt = ev.Time
		req.AmountReceived = ev.AmountReceived
		s.Requests[ev.RequestID] = req

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

func (s *Snapshot) FeeBalance(asset common.Address) decimal.Decimal {
	return s.FeeBalances[asset]
}

func (s *Snapshot) PendingCount() int {
	n := 0
	for _, req := range s.Requests {
		if !req.Completed {
			n++
		}
	}
	return n
}
