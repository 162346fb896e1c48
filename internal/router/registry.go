package router

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultFeeCapBps = 1000
	MaxNameLength    = 64
)

// Registry holds every protocol ever added. Removal only deactivates the entry
// and drops it from the enumerable list, so pending requests can still resolve
// the adapter that owns them.
type Registry struct {
	mu        sync.RWMutex
	routes    map[string]*Route
	protocols []string
	feeCapBps uint32
}

func NewRegistry(feeCapBps uint32) *Registry {
	if feeCapBps > FeeCeiling {
		feeCapBps = FeeCeiling
	}
	return &Registry{
		routes:    make(map[string]*Route),
		protocols: make([]string, 0),
		feeCapBps: feeCapBps,
	}
}

func (r *Registry) FeeCap() uint32 {
	return r.feeCapBps
}

func (r *Registry) AddRoute(name string, adapter common.Address, feeBps uint32, latency, execCost uint64) (Route, error) {
	if name == "" || len(name) > MaxNameLength {
		return Route{}, ErrInvalidName
	}
	if adapter == (common.Address{}) {
		return Route{}, ErrInvalidAdapter
	}
	if feeBps > r.feeCapBps {
		return Route{}, fmt.Errorf("%w: %d bps exceeds cap %d", ErrFeeTooHigh, feeBps, r.feeCapBps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.routes[name]
	if !ok || !existing.Active {
		r.protocols = append(r.protocols, name)
	}

	route := &Route{
		Name:     name,
		Adapter:  adapter,
		FeeBps:   feeBps,
		Latency:  latency,
		ExecCost: execCost,
		Active:   true,
	}
	r.routes[name] = route

	return *route, nil
}

func (r *Registry) RemoveRoute(name string) (Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[name]
	if !ok || !route.Active {
		return Route{}, ErrRouteNotFound
	}
	route.Active = false

	for i, p := range r.protocols {
		if p == name {
			last := len(r.protocols) - 1
			r.protocols[i] = r.protocols[last]
			r.protocols = r.protocols[:last]
			break
		}
	}

	return *route, nil
}

// GetRoute returns active and deactivated routes alike.
func (r *Registry) GetRoute(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[name]
	if !ok {
		return Route{}, false
	}
	return *route, true
}

func (r *Registry) ListActiveProtocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.protocols))
	copy(out, r.protocols)
	return out
}

// ActiveRoutes returns routes in protocol-list order.
func (r *Registry) ActiveRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.protocols))
	for _, name := range r.protocols {
		if route, ok := r.routes[name]; ok && route.Active {
			out = append(out, *route)
		}
	}
	return out
}
