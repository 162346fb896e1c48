package router

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Preference string

const (
	PreferCheapest Preference = "cheapest"
	PreferFastest  Preference = "fastest"
	PreferBalanced Preference = "balanced"
)

// ParsePreference never fails. Matching is exact: anything other than
// "cheapest" or "fastest", including "CHEAPEST", scores as balanced.
func ParsePreference(s string) Preference {
	return Preference(s)
}

// Route is one transfer protocol the gateway can dispatch to.
type Route struct {
	Name     string
	Adapter  common.Address
	FeeBps   uint32
	Latency  uint64
	ExecCost uint64
	Active   bool
}

type QuoteRequest struct {
	Asset      common.Address
	Amount     decimal.Decimal
	DestChain  uint64
	Preference Preference
}

type Fees struct {
	ProtocolBps uint32
	PlatformBps uint32
	Protocol    decimal.Decimal
	Platform    decimal.Decimal
}

func (f Fees) Total() decimal.Decimal {
	return f.Protocol.Add(f.Platform)
}

type QuoteResponse struct {
	Protocol  string
	Adapter   common.Address
	Fees      Fees
	TotalFee  decimal.Decimal
	Latency   uint64
	ExecCost  uint64
	Score     int64
	QuoteHash [32]byte
}

type RouteInfo struct {
	Name     string
	FeeBps   uint32
	Latency  uint64
	ExecCost uint64
}
