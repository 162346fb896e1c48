package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lucendex/crossroute/internal/custody"
	"github.com/lucendex/crossroute/internal/gateway"
	"github.com/lucendex/crossroute/internal/ledger"
	"github.com/lucendex/crossroute/internal/router"
)

var (
	ErrMissingAuthHeaders = errors.New("missing authentication headers")
	ErrInvalidTimestamp   = errors.New("invalid or expired timestamp")
	ErrReplayAttack       = errors.New("duplicate request-id (replay attack)")
	ErrInvalidPrincipal   = errors.New("invalid principal")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrPrincipalSuspended = errors.New("principal suspended")
	ErrForbiddenRole      = errors.New("role not permitted")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrBadRequest         = errors.New("bad request")
)

type statusRule struct {
	err    error
	status int
	code   string
}

// First match wins, so wrapped errors resolve to their most specific sentinel.
var statusRules = []statusRule{
	{gateway.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{gateway.ErrPaused, http.StatusServiceUnavailable, "paused"},
	{router.ErrCircuitBreakerOpen, http.StatusServiceUnavailable, "circuit_open"},
	{gateway.ErrDispatchFailed, http.StatusBadGateway, "dispatch_failed"},
	{gateway.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{gateway.ErrAlreadyPaused, http.StatusConflict, "already_paused"},
	{gateway.ErrNotPaused, http.StatusConflict, "not_paused"},
	{ledger.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{ledger.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{ledger.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{router.ErrRouteNotFound, http.StatusNotFound, "route_not_found"},
	{router.ErrNoRoutesAvailable, http.StatusUnprocessableEntity, "no_routes"},
	{router.ErrNoSuitableRoute, http.StatusUnprocessableEntity, "no_suitable_route"},
	{router.ErrFeesExceedAmount, http.StatusUnprocessableEntity, "fees_exceed_amount"},
	{ledger.ErrNoFeesToWithdraw, http.StatusUnprocessableEntity, "no_fees"},
	{custody.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{custody.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "insufficient_allowance"},
	{custody.ErrInsufficientCustody, http.StatusUnprocessableEntity, "insufficient_custody"},
	{router.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{router.ErrAmountTooLarge, http.StatusBadRequest, "amount_too_large"},
	{router.ErrInvalidAsset, http.StatusBadRequest, "invalid_asset"},
	{router.ErrInvalidChain, http.StatusBadRequest, "invalid_chain"},
	{router.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
	{router.ErrInvalidAdapter, http.StatusBadRequest, "invalid_adapter"},
	{router.ErrFeeTooHigh, http.StatusBadRequest, "fee_too_high"},
	{gateway.ErrInvalidRecipient, http.StatusBadRequest, "invalid_recipient"},
	{gateway.ErrInvalidOwner, http.StatusBadRequest, "invalid_owner"},
	{gateway.ErrInvalidInitiator, http.StatusBadRequest, "invalid_initiator"},
	{ledger.ErrNegativeAmount, http.StatusBadRequest, "negative_amount"},
	{custody.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
}

func statusFor(err error) (int, string) {
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			return rule.status, rule.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeGatewayError maps err to a status. Internal errors are not echoed.
func writeGatewayError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
