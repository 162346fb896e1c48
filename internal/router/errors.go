package router

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAmountTooLarge     = errors.New("amount too large")
	ErrInvalidAsset       = errors.New("invalid asset")
	ErrInvalidChain       = errors.New("invalid destination chain")
	ErrInvalidName        = errors.New("invalid protocol name")
	ErrInvalidAdapter     = errors.New("invalid adapter")
	ErrFeeTooHigh         = errors.New("fee rate too high")
	ErrRouteNotFound      = errors.New("route not found")
	ErrNoRoutesAvailable  = errors.New("no routes available")
	ErrNoSuitableRoute    = errors.New("no suitable route")
	ErrFeesExceedAmount   = errors.New("fees exceed amount")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
	ErrRouterClosed       = errors.New("router closed")
)
