package api

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/router"
)

const (
	RoleUser     = "user"
	RoleExecutor = "executor"
	RoleAdmin    = "admin"
)

// Principal is an API client. Address is the identity the gateway sees: the
// initiator for transfers, the adapter for completions and the owner for
// admin operations.
type Principal struct {
	ID        uuid.UUID      `db:"id"`
	Name      string         `db:"name"`
	Role      string         `db:"role"`
	Address   common.Address `db:"address"`
	Plan      string         `db:"plan"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type APIKey struct {
	ID          uuid.UUID  `db:"id"`
	PrincipalID uuid.UUID  `db:"principal_id"`
	PublicKey   string     `db:"public_key"`
	Label       string     `db:"label"`
	CreatedAt   time.Time  `db:"created_at"`
	Revoked     bool       `db:"revoked"`
	RevokedAt   *time.Time `db:"revoked_at"`
}

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*Principal)
	return p, ok && p != nil
}

// Request bodies. Amounts travel as decimal strings.

type QuoteRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	DestChain  uint64 `json:"dest_chain"`
	Preference string `json:"preference"`
}

type InitiateRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	DestChain uint64 `json:"dest_chain"`
	Protocol  string `json:"protocol"`
	Payload   string `json:"payload,omitempty"` // hex, optional 0x prefix
}

type CompleteRequest struct {
	AmountReceived string `json:"amount_received"`
}

type AddRouteRequest struct {
	Name     string `json:"name"`
	Adapter  string `json:"adapter"`
	FeeBps   uint32 `json:"fee_bps"`
	Latency  uint64 `json:"latency"`
	ExecCost uint64 `json:"exec_cost"`
}

type PlatformFeeRequest struct {
	FeeBps uint32 `json:"fee_bps"`
}

type AddressRequest struct {
	Address string `json:"address"`
}

type AssetAmountRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
}

// Responses

type QuoteResponse struct {
	QuoteHash   string `json:"quote_hash"`
	Protocol    string `json:"protocol"`
	Adapter     string `json:"adapter"`
	ProtocolBps uint32 `json:"protocol_bps"`
	PlatformBps uint32 `json:"platform_bps"`
	ProtocolFee string `json:"protocol_fee"`
	PlatformFee string `json:"platform_fee"`
	TotalFee    string `json:"total_fee"`
	Latency     uint64 `json:"latency"`
	ExecCost    uint64 `json:"exec_cost"`
	Score       int64  `json:"score"`
}

type RouteResponse struct {
	Name     string `json:"name"`
	Adapter  string `json:"adapter"`
	FeeBps   uint32 `json:"fee_bps"`
	Latency  uint64 `json:"latency"`
	ExecCost uint64 `json:"exec_cost"`
	Active   bool   `json:"active"`
	Breaker  string `json:"breaker"`
}

type RoutesResponse struct {
	Routes []RouteResponse `json:"routes"`
}

type TransferResponse struct {
	ID             string     `json:"id"`
	Initiator      string     `json:"initiator"`
	Asset          string     `json:"asset"`
	Amount         string     `json:"amount"`
	DestChain      uint64     `json:"dest_chain"`
	Protocol       string     `json:"protocol"`
	ProtocolFee    string     `json:"protocol_fee"`
	PlatformFee    string     `json:"platform_fee"`
	TotalFee       string     `json:"total_fee"`
	BridgeAmount   string     `json:"bridge_amount"`
	Nonce          uint64     `json:"nonce"`
	CreatedAt      time.Time  `json:"created_at"`
	Completed      bool       `json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	AmountReceived string     `json:"amount_received,omitempty"`
}

type TransfersResponse struct {
	Transfers []TransferResponse `json:"transfers"`
}

type FeeBalanceResponse struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type AdminStateResponse struct {
	Owner          string            `json:"owner"`
	FeeRecipient   string            `json:"fee_recipient"`
	PlatformFeeBps uint32            `json:"platform_fee_bps"`
	FeeCapBps      uint32            `json:"fee_cap_bps"`
	Paused         bool              `json:"paused"`
	FeeBalances    map[string]string `json:"fee_balances"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Paused           bool   `json:"paused"`
	ActiveRoutes     int    `json:"active_routes"`
	PendingRequests  int    `json:"pending_requests"`
	LastSeq          uint64 `json:"last_seq"`
	StreamClients    int    `json:"stream_clients"`
	QuoteCacheHits   int64  `json:"quote_cache_hits"`
	QuoteCacheMisses int64  `json:"quote_cache_misses"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func quoteResponse(q *router.QuoteResponse) QuoteResponse {
	return QuoteResponse{
		QuoteHash:   hex.EncodeToString(q.QuoteHash[:]),
		Protocol:    q.Protocol,
		Adapter:     q.Adapter.Hex(),
		ProtocolBps: q.Fees.ProtocolBps,
		PlatformBps: q.Fees.PlatformBps,
		ProtocolFee: q.Fees.Protocol.String(),
		PlatformFee: q.Fees.Platform.String(),
		TotalFee:    q.TotalFee.String(),
		Latency:     q.Latency,
		ExecCost:    q.ExecCost,
		Score:       q.Score,
	}
}

func routeResponse(r router.Route, breaker string) RouteResponse {
	return RouteResponse{
		Name:     r.Name,
		Adapter:  r.Adapter.Hex(),
		FeeBps:   r.FeeBps,
		Latency:  r.Latency,
		ExecCost: r.ExecCost,
		Active:   r.Active,
		Breaker:  breaker,
	}
}

func transferResponse(req ledger.Request) TransferResponse {
	out := TransferResponse{
		ID:           req.ID.Hex(),
		Initiator:    req.Initiator.Hex(),
		Asset:        req.Asset.Hex(),
		Amount:       req.Amount.String(),
		DestChain:    req.DestChain,
		Protocol:     req.Protocol,
		ProtocolFee:  req.ProtocolFee.String(),
		PlatformFee:  req.PlatformFee.String(),
		TotalFee:     req.TotalFee().String(),
		BridgeAmount: req.BridgeAmount.String(),
		Nonce:        req.Nonce,
		CreatedAt:    req.CreatedAt,
		Completed:    req.Completed,
	}
	if req.Completed {
		at := req.CompletedAt
		out.CompletedAt = &at
		out.AmountReceived = req.AmountReceived.String()
	}
	return out
}
