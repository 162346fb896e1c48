package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerConfig struct {
	Handlers      *Handlers
	Auth          *AuthMiddleware
	RateLimiter   *RateLimiter
	Stream        *Stream
	InternalToken string
}

// NewServer lays out the HTTP surface:
//
//	/v1/health, /v1/events, /metrics      unsigned (events and metrics need the internal token)
//	/v1/...                               signed, rate limited
//	/v1/admin/...                         signed, admin role
func NewServer(cfg ServerConfig) http.Handler {
	h := cfg.Handlers

	signed := http.NewServeMux()
	handle(signed, "POST /v1/quote", h.QuoteHandler)
	handle(signed, "GET /v1/quotes/{hash}", h.LookupQuoteHandler)
	handle(signed, "GET /v1/routes", h.RoutesHandler)
	handle(signed, "GET /v1/routes/{name}", h.RouteHandler)
	handle(signed, "GET /v1/transfers", h.TransfersHandler)
	handle(signed, "GET /v1/transfers/{id}", h.TransferHandler)
	handle(signed, "GET /v1/fees/{asset}", h.FeeBalanceHandler)
	signed.Handle("POST /v1/transfers", RequireRole(instrument("POST /v1/transfers", h.InitiateHandler), RoleUser, RoleAdmin))
	signed.Handle("POST /v1/transfers/{id}/complete", RequireRole(instrument("POST /v1/transfers/{id}/complete", h.CompleteHandler), RoleExecutor))

	admin := map[string]http.HandlerFunc{
		"GET /v1/admin/state":            h.AdminStateHandler,
		"POST /v1/admin/routes":          h.AddRouteHandler,
		"DELETE /v1/admin/routes/{name}": h.RemoveRouteHandler,
		"PUT /v1/admin/platform-fee":     h.SetPlatformFeeHandler,
		"PUT /v1/admin/fee-recipient":    h.SetFeeRecipientHandler,
		"PUT /v1/admin/owner":            h.TransferOwnershipHandler,
		"POST /v1/admin/pause":           h.PauseHandler,
		"POST /v1/admin/unpause":         h.UnpauseHandler,
		"POST /v1/admin/withdraw":        h.WithdrawFeesHandler,
		"POST /v1/admin/recover":         h.EmergencyRecoverHandler,
	}
	for pattern, fn := range admin {
		signed.Handle(pattern, RequireRole(instrument(pattern, fn), RoleAdmin))
	}

	var chain http.Handler = signed
	if cfg.RateLimiter != nil {
		chain = cfg.RateLimiter.Middleware(chain)
	}
	chain = cfg.Auth.Middleware(chain)

	mux := http.NewServeMux()
	handle(mux, "GET /v1/health", h.HealthHandler)
	mux.Handle("GET /metrics", requireToken(cfg.InternalToken, promhttp.Handler()))
	if cfg.Stream != nil {
		mux.Handle("GET /v1/events", requireToken(cfg.InternalToken, cfg.Stream))
	}
	mux.Handle("/v1/", chain)
	return mux
}

func handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, fn))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(pattern string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		HTTPRequests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
		HTTPLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// requireToken guards internal endpoints. Browsers cannot set headers on a
// websocket handshake, so the token may also come as ?token=. An empty token
// leaves the endpoint open.
func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got := r.Header.Get("X-Internal-Token")
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid internal token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
