package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lucendex/crossroute/internal/events"
	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/router"
)

type InitiateRequest struct {
	Initiator common.Address
	Asset     common.Address
	Amount    decimal.Decimal
	DestChain uint64
	Protocol  string
	Payload   []byte
}

// Initiate takes custody of the amount, hands the net amount to the route's
// adapter and records a pending request. Nothing is kept unless dispatch
// succeeds: on any failure the allowance is revoked and the initiator refunded
// before the error is returned.
func (g *Gateway) Initiate(ctx context.Context, in InitiateRequest) (ledger.Request, error) {
	release, err := g.guard.enter(ctx)
	if err != nil {
		return ledger.Request{}, err
	}
	defer release()

	req, err := g.initiate(ctx, in)
	outcome := "success"
	if err != nil {
		outcome = "rejected"
		if errors.Is(err, ErrDispatchFailed) {
			outcome = "dispatch_failed"
		}
	}
	InitiationsTotal.WithLabelValues(in.Protocol, outcome).Inc()
	return req, err
}

func (g *Gateway) initiate(ctx context.Context, in InitiateRequest) (ledger.Request, error) {
	if g.Paused() {
		return ledger.Request{}, ErrPaused
	}

	route, ok := g.registry.GetRoute(in.Protocol)
	if !ok || !route.Active {
		return ledger.Request{}, router.ErrRouteNotFound
	}
	if err := g.validator.ValidateAmount(in.Amount); err != nil {
		return ledger.Request{}, err
	}
	if err := g.validator.ValidateAsset(in.Asset); err != nil {
		return ledger.Request{}, err
	}
	if in.DestChain == 0 {
		return ledger.Request{}, router.ErrInvalidChain
	}
	if in.Initiator == (common.Address{}) {
		return ledger.Request{}, ErrInvalidInitiator
	}

	fees := router.ComputeFees(in.Amount, route.FeeBps, g.PlatformFeeBps())
	bridgeAmount, err := router.NetAmount(in.Amount, fees)
	if err != nil {
		return ledger.Request{}, err
	}

	adapter, ok := g.adapters.Lookup(route.Adapter)
	if !ok {
		return ledger.Request{}, fmt.Errorf("%w: no adapter registered for %s", router.ErrInvalidAdapter, route.Adapter.Hex())
	}

	createdAt := g.timestamp()
	nonce := g.requests.NextNonce(in.Initiator)
	id, err := router.ComputeRequestID(in.Initiator, in.Asset, in.Amount, in.DestChain, route.Name, createdAt, nonce)
	if err != nil {
		return ledger.Request{}, fmt.Errorf("failed to derive request id: %w", err)
	}
	if g.requests.Exists(id) {
		return ledger.Request{}, ledger.ErrDuplicateRequest
	}

	if err := g.breaker.Allow(route.Name); err != nil {
		return ledger.Request{}, err
	}

	logger := g.logger.WithFields(logrus.Fields{
		"request_id": id.Hex(),
		"protocol":   route.Name,
		"asset":      in.Asset.Hex(),
	})

	out, done := g.guard.outbound(ctx)
	defer done()

	if err := g.custody.Pull(out, in.Asset, in.Initiator, in.Amount); err != nil {
		g.breaker.Release(route.Name)
		return ledger.Request{}, fmt.Errorf("failed to pull funds: %w", err)
	}

	if err := g.custody.Approve(out, in.Asset, route.Adapter, bridgeAmount); err != nil {
		g.breaker.Release(route.Name)
		undo, cancel := settle(out)
		defer cancel()
		refundErr := g.refund(undo, in)
		return ledger.Request{}, errors.Join(fmt.Errorf("failed to approve adapter: %w", err), refundErr)
	}

	order := ledger.DispatchOrder{
		RequestID: id,
		Protocol:  route.Name,
		Asset:     in.Asset,
		Amount:    bridgeAmount,
		DestChain: in.DestChain,
		Payload:   in.Payload,
	}

	start := time.Now()
	dispatchErr := adapter.Dispatch(out, order)
	DispatchLatency.WithLabelValues(route.Name).Observe(float64(time.Since(start).Microseconds()) / 1000)

	if dispatchErr != nil {
		g.breaker.RecordFailure(route.Name)
		undo, cancel := settle(out)
		defer cancel()
		errs := []error{dispatchErr}
		if err := g.custody.Approve(undo, in.Asset, route.Adapter, decimal.Zero); err != nil {
			errs = append(errs, fmt.Errorf("failed to revoke allowance: %w", err))
		}
		if err := g.refund(undo, in); err != nil {
			errs = append(errs, err)
		}
		logger.WithField("error", dispatchErr.Error()).Warn("dispatch failed, initiation rolled back")
		return ledger.Request{}, fmt.Errorf("%w: %w", ErrDispatchFailed, errors.Join(errs...))
	}
	g.breaker.RecordSuccess(route.Name)
	done()

	if err := g.fees.Collect(in.Asset, fees.Platform); err != nil {
		return ledger.Request{}, err
	}

	req := ledger.Request{
		ID:           id,
		Initiator:    in.Initiator,
		Asset:        in.Asset,
		Amount:       in.Amount,
		DestChain:    in.DestChain,
		Protocol:     route.Name,
		ProtocolFee:  fees.Protocol,
		PlatformFee:  fees.Platform,
		BridgeAmount: bridgeAmount,
		Nonce:        nonce,
		CreatedAt:    createdAt,
	}
	if err := g.requests.Insert(req); err != nil {
		// Unreachable while entry points are serialized.
		logger.WithField("error", err.Error()).Error("request insert failed after dispatch")
		return ledger.Request{}, err
	}
	PendingRequests.Inc()

	if fees.Platform.IsPositive() {
		g.emit(ctx, events.Event{
			Kind:   events.KindFeeCollected,
			Asset:  in.Asset,
			Amount: fees.Platform,
		})
	}
	g.emit(ctx, events.Event{
		Kind:        events.KindTransferInitiated,
		RequestID:   id,
		Initiator:   in.Initiator,
		Asset:       in.Asset,
		Amount:      in.Amount,
		DestChain:   in.DestChain,
		Protocol:    route.Name,
		Adapter:     route.Adapter,
		Nonce:       nonce,
		CreatedAt:   createdAt.Unix(),
		ProtocolFee: fees.Protocol,
		PlatformFee: fees.Platform,
		TotalFee:    fees.Total(),
	})

	logger.WithFields(logrus.Fields{
		"amount":    in.Amount.String(),
		"total_fee": fees.Total().String(),
	}).Info("transfer initiated")

	return req, nil
}

func (g *Gateway) refund(ctx context.Context, in InitiateRequest) error {
	if err := g.custody.Push(ctx, in.Asset, in.Initiator, in.Amount); err != nil {
		g.logger.WithFields(logrus.Fields{
			"initiator": in.Initiator.Hex(),
			"asset":     in.Asset.Hex(),
			"amount":    in.Amount.String(),
			"error":     err.Error(),
		}).Error("refund after failed initiation did not go through")
		return fmt.Errorf("failed to refund initiator: %w", err)
	}
	return nil
}

// Complete records the adapter's report that a transfer landed. Only the
// adapter on the route named by the request's protocol snapshot may call it,
// and each request completes exactly once. Pausing does not block it.
// amountReceived is recorded as reported.
func (g *Gateway) Complete(ctx context.Context, caller common.Address, id common.Hash, amountReceived decimal.Decimal) (ledger.Request, error) {
	release, err := g.guard.enter(ctx)
	if err != nil {
		CompletionsTotal.WithLabelValues("rejected").Inc()
		return ledger.Request{}, err
	}
	defer release()

	completedAt := g.now().UTC()
	req, err := g.requests.MarkCompleted(id, amountReceived, completedAt, func(r ledger.Request) error {
		route, ok := g.registry.GetRoute(r.Protocol)
		if !ok || route.Adapter != caller {
			return ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		CompletionsTotal.WithLabelValues(completionOutcome(err)).Inc()
		return ledger.Request{}, err
	}
	CompletionsTotal.WithLabelValues("success").Inc()
	PendingRequests.Dec()

	g.emit(ctx, events.Event{
		Kind:           events.KindTransferCompleted,
		Time:           completedAt,
		RequestID:      req.ID,
		Initiator:      req.Initiator,
		Asset:          req.Asset,
		Protocol:       req.Protocol,
		Adapter:        caller,
		AmountReceived: amountReceived,
	})

	g.logger.WithFields(logrus.Fields{
		"request_id":      req.ID.Hex(),
		"protocol":        req.Protocol,
		"amount_received": amountReceived.String(),
	}).Info("transfer completed")

	return req, nil
}

func completionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ledger.ErrRequestNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}
