package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/gateway"
	"github.com/lucendex/crossroute/internal/kv"
	"github.com/lucendex/crossroute/internal/router"
)

// CacheStats reports quote cache effectiveness for the health endpoint.
type CacheStats interface {
	Stats() kv.Stats
}

type Handlers struct {
	gw     *gateway.Gateway
	bus    *events.Bus
	cache  CacheStats
	stream *Stream
	logger logrus.FieldLogger
}

func NewHandlers(gw *gateway.Gateway, cache CacheStats, stream *Stream, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{
		gw:     gw,
		bus:    gw.Bus(),
		cache:  cache,
		stream: stream,
		logger: logger,
	}
}

// QuoteHandler handles POST /v1/quote
func (h *Handlers) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	quote, err := h.gw.SelectOptimalRoute(r.Context(), &router.QuoteRequest{
		Asset:      asset,
		Amount:     amount,
		DestChain:  req.DestChain,
		Preference: router.ParsePreference(req.Preference),
	})
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse(quote))
}

// LookupQuoteHandler handles GET /v1/quotes/{hash}
func (h *Handlers) LookupQuoteHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(strings.TrimPrefix(r.PathValue("hash"), "0x"))
	if err != nil || len(raw) != 32 {
		writeError(w, http.StatusBadRequest, "invalid quote hash")
		return
	}

	var hash [32]byte
	copy(hash[:], raw)
	quote, ok := h.gw.LookupQuote(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "quote not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse(quote))
}

// RoutesHandler handles GET /v1/routes
func (h *Handlers) RoutesHandler(w http.ResponseWriter, r *http.Request) {
	routes := h.gw.ActiveRoutes()
	out := RoutesResponse{Routes: make([]RouteResponse, len(routes))}
	for i, route := range routes {
		out.Routes[i] = routeResponse(route, h.gw.BreakerState(route.Name))
	}
	writeJSON(w, http.StatusOK, out)
}

// RouteHandler handles GET /v1/routes/{name}. Removed routes are still
// reported, with active=false.
func (h *Handlers) RouteHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	route, err := h.gw.GetRoute(name)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponse(route, h.gw.BreakerState(name)))
}

// InitiateHandler handles POST /v1/transfers. The initiator is always the
// authenticated principal.
func (h *Handlers) InitiateHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req InitiateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	var payload []byte
	if req.Payload != "" {
		payload, err = hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "payload must be hex")
			return
		}
	}

	created, err := h.gw.Initiate(r.Context(), gateway.InitiateRequest{
		Initiator: p.Address,
		Asset:     asset,
		Amount:    amount,
		DestChain: req.DestChain,
		Protocol:  req.Protocol,
		Payload:   payload,
	})
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"principal_id": p.ID.String(),
			"protocol":     req.Protocol,
			"error":        err.Error(),
		}).Info("initiate refused")
		writeGatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, transferResponse(created))
}

// CompleteHandler handles POST /v1/transfers/{id}/complete. Only the adapter
// behind the request's protocol may complete it; the gateway enforces that
// against the caller's address.
func (h *Handlers) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	var req CompleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	received, err := decimal.NewFromString(req.AmountReceived)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount_received")
		return
	}

	done, err := h.gw.Complete(r.Context(), p.Address, id, received)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse(done))
}

// TransferHandler handles GET /v1/transfers/{id}
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	id, err := parseHash(r.PathValue("id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	req, err := h.gw.GetRequest(id)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if p.Role == RoleUser && req.Initiator != p.Address {
		// not yours; indistinguishable from missing
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, transferResponse(req))
}

// TransfersHandler handles GET /v1/transfers. Users see their own requests,
// operators see everything.
func (h *Handlers) TransfersHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	reqs := h.gw.Requests()
	if p.Role == RoleUser {
		reqs = h.gw.RequestsByInitiator(p.Address)
	}

	out := TransfersResponse{Transfers: make([]TransferResponse, len(reqs))}
	for i, req := range reqs {
		out.Transfers[i] = transferResponse(req)
	}
	writeJSON(w, http.StatusOK, out)
}

// FeeBalanceHandler handles GET /v1/fees/{asset}
func (h *Handlers) FeeBalanceHandler(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAddress(r.PathValue("asset"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeeBalanceResponse{
		Asset:   asset.Hex(),
		Balance: h.gw.FeeBalance(asset).String(),
	})
}

// HealthHandler handles GET /v1/health
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	active := len(h.gw.ActiveRoutes())
	resp := HealthResponse{
		Status:          "ok",
		Paused:          h.gw.Paused(),
		ActiveRoutes:    active,
		PendingRequests: h.gw.PendingCount(),
		LastSeq:         h.bus.LastSeq(),
	}
	if resp.Paused || active == 0 {
		resp.Status = "degraded"
	}
	if h.stream != nil {
		resp.StreamClients = h.stream.Clients()
	}
	if h.cache != nil {
		stats := h.cache.Stats()
		resp.QuoteCacheHits = stats.Hits
		resp.QuoteCacheMisses = stats.Misses
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrBadRequest, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrBadRequest)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: invalid amount format", ErrBadRequest)
	}
	return d, nil
}

func parseHash(s string) (common.Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: invalid request id", ErrBadRequest)
	}
	return common.BytesToHash(raw), nil
}
