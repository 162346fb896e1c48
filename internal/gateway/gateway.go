// Package gateway is the transfer core: it owns the route registry, the request
// and fee ledgers, and the admin state, and is the only thing that moves funds
// through custody or hands work to a protocol adapter.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/router"
)

const DefaultPlatformFeeBps = 5

type Config struct {
	Owner          common.Address
	FeeRecipient   common.Address
	PlatformFeeBps uint32
	FeeCapBps      uint32
}

// AdapterSet resolves a route's adapter handle to something that can dispatch.
type AdapterSet interface {
	Lookup(identity common.Address) (ledger.Adapter, bool)
}

type Dependencies struct {
	Custody  ledger.Custody
	Adapters AdapterSet
	Bus      *events.Bus
	Quotes   router.KVStore
	Audit    router.RouterStoreInterface
	Breaker  *router.CircuitBreaker
	Logger   logrus.FieldLogger
}

type Gateway struct {
	guard *guard

	mu             sync.RWMutex
	owner          common.Address
	feeRecipient   common.Address
	platformFeeBps uint32
	paused         bool

	registry  *router.Registry
	router    *router.Router
	validator *router.Validator
	requests  *ledger.RequestLedger
	fees      *ledger.FeeLedger
	custody   ledger.Custody
	adapters  AdapterSet
	bus       *events.Bus
	breaker   *router.CircuitBreaker
	audit     router.RouterStoreInterface
	logger    logrus.FieldLogger
	now       func() time.Time
}

func New(cfg Config, deps Dependencies) (*Gateway, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	if cfg.FeeRecipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	if deps.Custody == nil {
		return nil, ErrMissingCustody
	}
	if deps.Adapters == nil {
		return nil, fmt.Errorf("%w: no adapter set", router.ErrInvalidAdapter)
	}
	if cfg.FeeCapBps == 0 {
		cfg.FeeCapBps = router.DefaultFeeCapBps
	}

	registry := router.NewRegistry(cfg.FeeCapBps)
	if cfg.PlatformFeeBps > registry.FeeCap() {
		return nil, fmt.Errorf("%w: platform fee %d bps exceeds cap %d", router.ErrFeeTooHigh, cfg.PlatformFeeBps, registry.FeeCap())
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = router.NewCircuitBreaker(router.DefaultFailureLimit, router.DefaultCooldown)
	}

	g := &Gateway{
		guard:          newGuard(),
		owner:          cfg.Owner,
		feeRecipient:   cfg.FeeRecipient,
		platformFeeBps: cfg.PlatformFeeBps,
		registry:       registry,
		validator:      router.NewValidator(),
		requests:       ledger.NewRequestLedger(),
		fees:           ledger.NewFeeLedger(),
		custody:        deps.Custody,
		adapters:       deps.Adapters,
		bus:            bus,
		breaker:        breaker,
		audit:          deps.Audit,
		logger:         logger,
		now:            time.Now,
	}

	qe := router.NewQuoteEngine(g.validator, registry, deps.Quotes, g)
	g.router = router.NewRouter(qe, registry, deps.Audit, logger)

	// Initial admin state opens the feed so a replay starts from the same place.
	ctx := context.Background()
	g.bus.Emit(ctx, events.Event{Kind: events.KindOwnershipTransferred, Account: cfg.Owner})
	g.bus.Emit(ctx, events.Event{Kind: events.KindFeeRecipientUpdated, Account: cfg.FeeRecipient})
	g.bus.Emit(ctx, events.Event{Kind: events.KindPlatformFeeUpdated, FeeBps: cfg.PlatformFeeBps})

	return g, nil
}

// PlatformFeeBps also makes the gateway the quote engine's fee schedule.
func (g *Gateway) PlatformFeeBps() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.platformFeeBps
}

func (g *Gateway) Owner() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

func (g *Gateway) FeeRecipient() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feeRecipient
}

func (g *Gateway) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

func (g *Gateway) FeeCapBps() uint32 {
	return g.registry.FeeCap()
}

func (g *Gateway) Bus() *events.Bus {
	return g.bus
}

func (g *Gateway) Router() *router.Router {
	return g.router
}

func (g *Gateway) GetRoute(name string) (router.Route, error) {
	route, ok := g.registry.GetRoute(name)
	if !ok {
		return router.Route{}, router.ErrRouteNotFound
	}
	return route, nil
}

func (g *Gateway) ListActiveProtocols() []string {
	return g.registry.ListActiveProtocols()
}

func (g *Gateway) ActiveRoutes() []router.Route {
	return g.registry.ActiveRoutes()
}

// SelectOptimalRoute is read-only and stays available while paused.
func (g *Gateway) SelectOptimalRoute(ctx context.Context, req *router.QuoteRequest) (*router.QuoteResponse, error) {
	return g.router.Quote(ctx, req)
}

func (g *Gateway) LookupQuote(hash [32]byte) (*router.QuoteResponse, bool) {
	return g.router.LookupQuote(hash)
}

func (g *Gateway) GetRequest(id common.Hash) (ledger.Request, error) {
	return g.requests.Get(id)
}

func (g *Gateway) RequestsByInitiator(initiator common.Address) []ledger.Request {
	return g.requests.ByInitiator(initiator)
}

func (g *Gateway) Requests() []ledger.Request {
	return g.requests.All()
}

func (g *Gateway) PendingCount() int {
	return g.requests.PendingCount()
}

func (g *Gateway) FeeBalance(asset common.Address) decimal.Decimal {
	return g.fees.Balance(asset)
}

func (g *Gateway) FeeBalances() map[common.Address]decimal.Decimal {
	return g.fees.Balances()
}

func (g *Gateway) BreakerState(protocol string) string {
	return g.breaker.GetState(protocol)
}

// emit publishes ev on a context the caller cannot cancel. The state change it
// describes has already happened and the feed must carry it.
func (g *Gateway) emit(ctx context.Context, ev events.Event) {
	feed, cancel := settle(ctx)
	defer cancel()
	g.bus.Emit(feed, ev)
}

func (g *Gateway) requireOwner(caller common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if caller != g.owner {
		return ErrUnauthorized
	}
	return nil
}

func (g *Gateway) timestamp() time.Time {
	return g.now().UTC().Truncate(time.Second)
}

func (g *Gateway) writeAudit(ctx context.Context, event, outcome string, err error, metadata map[string]interface{}) {
	if g.audit == nil {
		return
	}

	severity := "info"
	entry := map[string]interface{}{
		"event":    event,
		"outcome":  outcome,
		"metadata": metadata,
	}
	if err != nil {
		severity = "warn"
		entry["error_code"] = err.Error()
	}
	if event == "emergency_recovery" {
		severity = "critical"
	}
	entry["severity"] = severity

	if auditErr := g.audit.LogAudit(ctx, entry); auditErr != nil {
		g.logger.WithFields(logrus.Fields{
			"event": event,
			"error": auditErr.Error(),
		}).Warn("failed to write audit entry")
	}
}
