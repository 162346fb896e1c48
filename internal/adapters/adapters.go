// Package adapters holds the dispatch variants a route can point at. Each one
// forwards a DispatchOrder to an off-process executor for one bridge protocol
// and reports whether the executor accepted it.
package adapters

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/config"
	"github.com/lucendex/crossroute/internal/ledger"
)

var (
	ErrDuplicateIdentity = errors.New("adapter identity already registered")
	ErrZeroIdentity      = errors.New("adapter identity is zero")
	ErrRejected          = errors.New("executor rejected order")
	ErrNoNATS            = errors.New("nats adapter configured without a connection")
)

// Set is the startup registry of dispatch variants, keyed by identity.
type Set struct {
	mu       sync.RWMutex
	adapters map[common.Address]ledger.Adapter
	names    map[common.Address]string
}

func NewSet() *Set {
	return &Set{
		adapters: make(map[common.Address]ledger.Adapter),
		names:    make(map[common.Address]string),
	}
}

func (s *Set) Register(name string, a ledger.Adapter) error {
	id := a.Identity()
	if id == (common.Address{}) {
		return ErrZeroIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adapters[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, id.Hex())
	}
	s.adapters[id] = a
	s.names[id] = name
	return nil
}

func (s *Set) Lookup(identity common.Address) (ledger.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[identity]
	return a, ok
}

func (s *Set) Name(identity common.Address) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[identity]
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.adapters)
}

// FromConfig builds one adapter per entry. conn may be nil when no entry is of
// kind nats.
func FromConfig(entries []config.AdapterConfig, conn *nats.Conn, logger logrus.FieldLogger) (*Set, error) {
	set := NewSet()
	for _, e := range entries {
		id := common.HexToAddress(e.Identity)

		var a ledger.Adapter
		switch e.Kind {
		case config.AdapterHTTP:
			a = NewHTTPAdapter(id, e.Endpoint, e.Timeout, logger)
		case config.AdapterNATS:
			if conn == nil {
				return nil, fmt.Errorf("%w: %s", ErrNoNATS, e.Name)
			}
			a = NewNATSAdapter(id, conn, e.Subject, e.Timeout, logger)
		default:
			return nil, fmt.Errorf("adapter %s: unknown kind %q", e.Name, e.Kind)
		}

		if err := set.Register(e.Name, a); err != nil {
			return nil, fmt.Errorf("adapter %s: %w", e.Name, err)
		}
		logger.WithFields(logrus.Fields{
			"adapter":  e.Name,
			"kind":     e.Kind,
			"identity": id.Hex(),
		}).Info("adapter registered")
	}
	return set, nil
}

// Ack is the executor's answer to a dispatched order.
type Ack struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}
