package gateway

import (
	"context"
	"sync/atomic"
	"time"
)

// settleTimeout bounds undo steps and feed writes that must finish after the
// caller has gone away.
const settleTimeout = 2 * time.Minute

type guardKey struct{}

// guard serializes state-changing entry points. While custody or an adapter
// holds control the guard is busy, and any entry point reached in that window
// is refused instead of queueing behind the call still in flight, whatever
// context it arrives with.
type guard struct {
	sem  chan struct{}
	busy atomic.Bool
}

func newGuard() *guard {
	return &guard{sem: make(chan struct{}, 1)}
}

func (g *guard) enter(ctx context.Context) (func(), error) {
	if reentrant(ctx) || g.busy.Load() {
		GuardRejections.Inc()
		return nil, ErrReentrantCall
	}
	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// outbound marks the guard busy and returns the context to hand to the
// counterparty. done clears the flag; calling it twice is harmless. Only the
// holder of sem may call outbound.
func (g *guard) outbound(ctx context.Context) (context.Context, func()) {
	g.busy.Store(true)
	return context.WithValue(ctx, guardKey{}, struct{}{}), func() { g.busy.Store(false) }
}

func reentrant(ctx context.Context) bool {
	return ctx.Value(guardKey{}) != nil
}

// settle keeps ctx's values but drops its cancellation, so a disconnecting
// caller cannot interrupt a refund or the feed write for a state change that
// already happened.
func settle(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
