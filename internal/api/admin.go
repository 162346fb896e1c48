package api

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Admin handlers pass the principal's address through as the caller; the
// gateway's owner check is the authority, the admin role only gates routing.

// AdminStateHandler handles GET /v1/admin/state
func (h *Handlers) AdminStateHandler(w http.ResponseWriter, r *http.Request) {
	balances := h.gw.FeeBalances()
	out := AdminStateResponse{
		Owner:          h.gw.Owner().Hex(),
		FeeRecipient:   h.gw.FeeRecipient().Hex(),
		PlatformFeeBps: h.gw.PlatformFeeBps(),
		FeeCapBps:      h.gw.FeeCapBps(),
		Paused:         h.gw.Paused(),
		FeeBalances:    make(map[string]string, len(balances)),
	}
	for asset, bal := range balances {
		out.FeeBalances[asset.Hex()] = bal.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// AddRouteHandler handles POST /v1/admin/routes
func (h *Handlers) AddRouteHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req AddRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	adapter, err := parseAddress(req.Adapter)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	route, err := h.gw.AddRoute(r.Context(), p.Address, req.Name, adapter, req.FeeBps, req.Latency, req.ExecCost)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, routeResponse(route, h.gw.BreakerState(route.Name)))
}

// RemoveRouteHandler handles DELETE /v1/admin/routes/{name}
func (h *Handlers) RemoveRouteHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if err := h.gw.RemoveRoute(r.Context(), p.Address, r.PathValue("name")); err != nil {
		writeGatewayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPlatformFeeHandler handles PUT /v1/admin/platform-fee
func (h *Handlers) SetPlatformFeeHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req PlatformFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.gw.SetPlatformFee(r.Context(), p.Address, req.FeeBps); err != nil {
		writeGatewayError(w, err)
		return
	}
	h.AdminStateHandler(w, r)
}

// SetFeeRecipientHandler handles PUT /v1/admin/fee-recipient
func (h *Handlers) SetFeeRecipientHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req AddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	recipient, err := parseAddress(req.Address)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if err := h.gw.SetFeeRecipient(r.Context(), p.Address, recipient); err != nil {
		writeGatewayError(w, err)
		return
	}
	h.AdminStateHandler(w, r)
}

// TransferOwnershipHandler handles PUT /v1/admin/owner
func (h *Handlers) TransferOwnershipHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req AddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, err := parseAddress(req.Address)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if err := h.gw.TransferOwnership(r.Context(), p.Address, owner); err != nil {
		writeGatewayError(w, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"principal_id": p.ID.String(),
		"new_owner":    owner.Hex(),
	}).Warn("ownership transferred")
	h.AdminStateHandler(w, r)
}

// PauseHandler handles POST /v1/admin/pause
func (h *Handlers) PauseHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if err := h.gw.Pause(r.Context(), p.Address); err != nil {
		writeGatewayError(w, err)
		return
	}
	h.AdminStateHandler(w, r)
}

// UnpauseHandler handles POST /v1/admin/unpause
func (h *Handlers) UnpauseHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	if err := h.gw.Unpause(r.Context(), p.Address); err != nil {
		writeGatewayError(w, err)
		return
	}
	h.AdminStateHandler(w, r)
}

// WithdrawFeesHandler handles POST /v1/admin/withdraw
func (h *Handlers) WithdrawFeesHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req AssetAmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	amount, err := h.gw.WithdrawFees(r.Context(), p.Address, asset)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeeBalanceResponse{Asset: asset.Hex(), Balance: amount.String()})
}

// EmergencyRecoverHandler handles POST /v1/admin/recover
func (h *Handlers) EmergencyRecoverHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req AssetAmountRequest
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

	if err := h.gw.EmergencyRecover(r.Context(), p.Address, asset, amount); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeeBalanceResponse{Asset: asset.Hex(), Balance: amount.String()})
}
