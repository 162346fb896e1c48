package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Custody moves assets between accounts and the gateway's own holdings.
type Custody interface {
	// Pull moves amount from account into custody.
	Pull(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error
	// Approve sets what spender may draw from custody. Zero revokes.
	Approve(ctx context.Context, asset, spender common.Address, amount decimal.Decimal) error
	// Push moves amount out of custody to account.
	Push(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error
}

// DispatchOrder is what an adapter receives when a transfer is handed off.
type DispatchOrder struct {
	RequestID common.Hash     `json:"request_id"`
	Protocol  string          `json:"protocol"`
	Asset     common.Address  `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	DestChain uint64          `json:"dest_chain"`
	Payload   []byte          `json:"payload,omitempty"`
}

// Adapter executes a transfer on one external protocol. Identity is the
// address registered on the route and the only caller allowed to complete
// requests routed through it.
type Adapter interface {
	Identity() common.Address
	Dispatch(ctx context.Context, order DispatchOrder) error
}
