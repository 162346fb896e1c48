package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/router"
)

// admin runs fn as the owner under the entry guard and records the outcome.
func (g *Gateway) admin(ctx context.Context, caller common.Address, op string, metadata map[string]interface{}, fn func() error) error {
	release, err := g.guard.enter(ctx)
	if err != nil {
		AdminOpsTotal.WithLabelValues(op, "rejected").Inc()
		return err
	}
	defer release()

	if err := g.requireOwner(caller); err != nil {
		AdminOpsTotal.WithLabelValues(op, "unauthorized").Inc()
		g.logger.WithFields(logrus.Fields{
			"op":     op,
			"caller": caller.Hex(),
		}).Warn("admin operation refused")
		return err
	}

	err = fn()
	outcome := "success"
	if err != nil {
		outcome = "rejected"
	}
	AdminOpsTotal.WithLabelValues(op, outcome).Inc()

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["caller"] = caller.Hex()
	auditCtx, cancel := settle(ctx)
	defer cancel()
	g.writeAudit(auditCtx, op, outcome, err, metadata)
	return err
}

func (g *Gateway) AddRoute(ctx context.Context, caller common.Address, name string, adapter common.Address, feeBps uint32, latency, execCost uint64) (router.Route, error) {
	var route router.Route
	err := g.admin(ctx, caller, "add_route", map[string]interface{}{"protocol": name, "adapter": adapter.Hex()}, func() error {
		if adapter != (common.Address{}) {
			if _, ok := g.adapters.Lookup(adapter); !ok {
				return fmt.Errorf("%w: %s has no registered adapter", router.ErrInvalidAdapter, adapter.Hex())
			}
		}
		r, err := g.registry.AddRoute(name, adapter, feeBps, latency, execCost)
		if err != nil {
			return err
		}
		route = r

		g.emit(ctx, events.Event{
			Kind:     events.KindRouteAdded,
			Protocol: r.Name,
			Adapter:  r.Adapter,
			FeeBps:   r.FeeBps,
			Latency:  r.Latency,
			ExecCost: r.ExecCost,
		})
		g.logger.WithFields(logrus.Fields{
			"protocol": r.Name,
			"adapter":  r.Adapter.Hex(),
			"fee_bps":  r.FeeBps,
		}).Info("route added")
		return nil
	})
	return route, err
}

// RemoveRoute blocks new initiations on the route. Requests already pending on
// it stay completable by its adapter.
func (g *Gateway) RemoveRoute(ctx context.Context, caller common.Address, name string) error {
	return g.admin(ctx, caller, "remove_route", map[string]interface{}{"protocol": name}, func() error {
		r, err := g.registry.RemoveRoute(name)
		if err != nil {
			return err
		}

		g.emit(ctx, events.Event{
			Kind:     events.KindRouteRemoved,
			Protocol: r.Name,
			Adapter:  r.Adapter,
		})
		g.logger.WithField("protocol", r.Name).Info("route removed")
		return nil
	})
}

func (g *Gateway) SetPlatformFee(ctx context.Context, caller common.Address, feeBps uint32) error {
	return g.admin(ctx, caller, "set_platform_fee", map[string]interface{}{"fee_bps": feeBps}, func() error {
		if feeBps > g.registry.FeeCap() {
			return fmt.Errorf("%w: %d bps exceeds cap %d", router.ErrFeeTooHigh, feeBps, g.registry.FeeCap())
		}

		g.mu.Lock()
		g.platformFeeBps = feeBps
		g.mu.Unlock()

		g.emit(ctx, events.Event{Kind: events.KindPlatformFeeUpdated, FeeBps: feeBps})
		return nil
	})
}

func (g *Gateway) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	return g.admin(ctx, caller, "set_fee_recipient", map[string]interface{}{"recipient": recipient.Hex()}, func() error {
		if recipient == (common.Address{}) {
			return ErrInvalidRecipient
		}

		g.mu.Lock()
		g.feeRecipient = recipient
		g.mu.Unlock()

		g.emit(ctx, events.Event{Kind: events.KindFeeRecipientUpdated, Account: recipient})
		return nil
	})
}

func (g *Gateway) Pause(ctx context.Context, caller common.Address) error {
	return g.admin(ctx, caller, "pause", nil, func() error {
		g.mu.Lock()
		if g.paused {
			g.mu.Unlock()
			return ErrAlreadyPaused
		}
		g.paused = true
		g.mu.Unlock()

		g.emit(ctx, events.Event{Kind: events.KindPaused, Account: caller})
		g.logger.Warn("gateway paused")
		return nil
	})
}

func (g *Gateway) Unpause(ctx context.Context, caller common.Address) error {
	return g.admin(ctx, caller, "unpause", nil, func() error {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return ErrNotPaused
		}
		g.paused = false
		g.mu.Unlock()

		g.emit(ctx, events.Event{Kind: events.KindUnpaused, Account: caller})
		g.logger.Info("gateway unpaused")
		return nil
	})
}

func (g *Gateway) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return g.admin(ctx, caller, "transfer_ownership", map[string]interface{}{"new_owner": newOwner.Hex()}, func() error {
		if newOwner == (common.Address{}) {
			return ErrInvalidOwner
		}

		g.mu.Lock()
		g.owner = newOwner
		g.mu.Unlock()

		g.emit(ctx, events.Event{Kind: events.KindOwnershipTransferred, Account: newOwner})
		g.logger.WithField("new_owner", newOwner.Hex()).Warn("ownership transferred")
		return nil
	})
}

// WithdrawFees sends the asset's accumulated platform fees to the fee
// recipient. The ledger entry is zeroed before the transfer goes out and
// restored only if the transfer fails.
func (g *Gateway) WithdrawFees(ctx context.Context, caller, asset common.Address) (decimal.Decimal, error) {
	var withdrawn decimal.Decimal
	err := g.admin(ctx, caller, "withdraw_fees", map[string]interface{}{"asset": asset.Hex()}, func() error {
		recipient := g.FeeRecipient()

		amount, err := g.fees.Drain(asset)
		if err != nil {
			return err
		}

		out, done := g.guard.outbound(ctx)
		err = g.custody.Push(out, asset, recipient, amount)
		done()
		if err != nil {
			g.fees.Restore(asset, amount)
			return fmt.Errorf("failed to transfer fees: %w", err)
		}
		withdrawn = amount

		g.emit(ctx, events.Event{
			Kind:    events.KindFeesWithdrawn,
			Asset:   asset,
			Amount:  amount,
			Account: recipient,
		})
		g.logger.WithFields(logrus.Fields{
			"asset":     asset.Hex(),
			"amount":    amount.String(),
			"recipient": recipient.Hex(),
		}).Info("fees withdrawn")
		return nil
	})
	return withdrawn, err
}

// EmergencyRecover moves any amount of any asset out of custody to the owner.
// It bypasses both ledgers: fee balances and pending requests are left as they
// were, so custody may no longer cover them afterwards.
func (g *Gateway) EmergencyRecover(ctx context.Context, caller, asset common.Address, amount decimal.Decimal) error {
	metadata := map[string]interface{}{
		"asset":  asset.Hex(),
		"amount": amount.String(),
	}
	return g.admin(ctx, caller, "emergency_recovery", metadata, func() error {
		if err := g.validator.ValidateAmount(amount); err != nil {
			return err
		}

		out, done := g.guard.outbound(ctx)
		err := g.custody.Push(out, asset, caller, amount)
		done()
		if err != nil {
			return fmt.Errorf("emergency recovery transfer failed: %w", err)
		}

		g.emit(ctx, events.Event{
			Kind:    events.KindEmergencyRecovery,
			Asset:   asset,
			Amount:  amount,
			Account: caller,
		})
		g.logger.WithFields(logrus.Fields{
			"audit":  "emergency_recovery",
			"asset":  asset.Hex(),
			"amount": amount.String(),
			"to":     caller.Hex(),
		}).Warn("emergency recovery executed outside fee and request accounting")
		return nil
	})
}
