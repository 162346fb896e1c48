package router

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Router struct {
	quoteEngine *QuoteEngine
	registry    *Registry
	store       RouterStoreInterface
	logger      logrus.FieldLogger
	mu          sync.RWMutex
	stopped     bool
}

type RouterStoreInterface interface {
	LogAudit(ctx context.Context, entry map[string]interface{}) error
}

func NewRouter(quoteEngine *QuoteEngine, registry *Registry, store RouterStoreInterface, logger logrus.FieldLogger) *Router {
	return &Router{
		quoteEngine: quoteEngine,
		registry:    registry,
		store:       store,
		logger:      logger,
	}
}

// Quote selects a route and records one audit entry per call, whatever the outcome.
func (r *Router) Quote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	r.mu.RLock()
	stopped := r.stopped
	r.mu.RUnlock()
	if stopped {
		return nil, ErrRouterClosed
	}

	start := time.Now()

	quote, err := r.quoteEngine.SelectOptimalRoute(ctx, req)

	durationMs := int(time.Since(start).Milliseconds())

	outcome := "success"
	severity := "info"
	var errorCode *string

	if err != nil {
		outcome = "rejected"
		severity = "warn"
		code := err.Error()
		errorCode = &code
	}

	QuotesTotal.WithLabelValues(outcome).Inc()
	QuoteLatency.WithLabelValues(outcome).Observe(float64(time.Since(start).Microseconds()) / 1000)

	metadata := map[string]interface{}{
		"asset":      req.Asset.Hex(),
		"dest_chain": req.DestChain,
		"preference": string(req.Preference),
	}
	if quote != nil {
		metadata["protocol"] = quote.Protocol
		RouteSelections.WithLabelValues(quote.Protocol, string(req.Preference)).Inc()
	}

	auditLog := map[string]interface{}{
		"event":       "route_quote",
		"severity":    severity,
		"duration_ms": durationMs,
		"outcome":     outcome,
		"metadata":    metadata,
	}
	if errorCode != nil {
		auditLog["error_code"] = *errorCode
	}

	if r.store != nil {
		if auditErr := r.store.LogAudit(ctx, auditLog); auditErr != nil && r.logger != nil {
			r.logger.WithField("error", auditErr.Error()).Warn("failed to write quote audit")
		}
	}

	return quote, err
}

func (r *Router) SelectOptimalRoute(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	return r.Quote(ctx, req)
}

func (r *Router) LookupQuote(hash [32]byte) (*QuoteResponse, bool) {
	return r.quoteEngine.LookupQuote(hash)
}

func (r *Router) Registry() *Registry {
	return r.registry
}

func (r *Router) GetAvailableRoutes(ctx context.Context) ([]RouteInfo, error) {
	routes := r.registry.ActiveRoutes()
	out := make([]RouteInfo, len(routes))
	for i, route := range routes {
		out[i] = RouteInfo{
			Name:     route.Name,
			FeeBps:   route.FeeBps,
			Latency:  route.Latency,
			ExecCost: route.ExecCost,
		}
	}
	return out, nil
}

// Close makes every later Quote fail with ErrRouterClosed.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true

	return nil
}
