package router

import (
	"context"
	"encoding/json"
	"time"
)

const DefaultQuoteTTL = 2 * time.Minute

type KVStore interface {
	GetQuote(hash [32]byte) ([]byte, bool)
	SetQuote(hash [32]byte, quote []byte, ttl time.Duration) error
}

// FeeSchedule supplies the platform fee rate at quote time.
type FeeSchedule interface {
	PlatformFeeBps() uint32
}

type StaticFees uint32

func (s StaticFees) PlatformFeeBps() uint32 {
	return uint32(s)
}

type QuoteEngine struct {
	validator *Validator
	registry  *Registry
	kv        KVStore
	fees      FeeSchedule
	quoteTTL  time.Duration
}

func NewQuoteEngine(validator *Validator, registry *Registry, kv KVStore, fees FeeSchedule) *QuoteEngine {
	return &QuoteEngine{
		validator: validator,
		registry:  registry,
		kv:        kv,
		fees:      fees,
		quoteTTL:  DefaultQuoteTTL,
	}
}

// SelectOptimalRoute scores every active route in list order and keeps the
// strictly highest positive score; the first route seen wins ties.
func (qe *QuoteEngine) SelectOptimalRoute(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if err := qe.validator.ValidateQuoteRequest(req); err != nil {
		return nil, err
	}

	routes := qe.registry.ActiveRoutes()
	if len(routes) == 0 {
		return nil, ErrNoRoutesAvailable
	}

	var best *Route
	var bestScore int64
	for i := range routes {
		score := Score(routes[i], req.Preference)
		if score > 0 && score > bestScore {
			best = &routes[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoSuitableRoute
	}

	fees := ComputeFees(req.Amount, best.FeeBps, qe.fees.PlatformFeeBps())

	quoteHash, err := ComputeQuoteHash(req, best.Name, fees)
	if err != nil {
		return nil, err
	}

	resp := &QuoteResponse{
		Protocol:  best.Name,
		Adapter:   best.Adapter,
		Fees:      fees,
		TotalFee:  fees.Total(),
		Latency:   best.Latency,
		ExecCost:  best.ExecCost,
		Score:     bestScore,
		QuoteHash: quoteHash,
	}

	qe.cacheQuote(resp)

	return resp, nil
}

func (qe *QuoteEngine) LookupQuote(hash [32]byte) (*QuoteResponse, bool) {
	if qe.kv == nil {
		return nil, false
	}

	data, ok := qe.kv.GetQuote(hash)
	if !ok {
		CacheMisses.Inc()
		return nil, false
	}

	var resp QuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		CacheMisses.Inc()
		return nil, false
	}
	CacheHits.Inc()
	return &resp, true
}

func (qe *QuoteEngine) cacheQuote(resp *QuoteResponse) {
	if qe.kv == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := qe.kv.SetQuote(resp.QuoteHash, data, qe.quoteTTL); err != nil {
		CacheErrors.Inc()
	}
}
