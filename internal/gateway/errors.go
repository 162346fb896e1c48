package gateway

import "errors"

var (
	ErrPaused           = errors.New("gateway is paused")
	ErrAlreadyPaused    = errors.New("gateway already paused")
	ErrNotPaused        = errors.New("gateway is not paused")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrReentrantCall    = errors.New("reentrant call")
	ErrDispatchFailed   = errors.New("dispatch failed")
	ErrInvalidRecipient = errors.New("invalid fee recipient")
	ErrInvalidOwner     = errors.New("invalid owner")
	ErrInvalidInitiator = errors.New("invalid initiator")
	ErrMissingCustody   = errors.New("custody not configured")
	ErrFeedOutOfOrder   = errors.New("event feed out of order")
	ErrUnknownRequest   = errors.New("event references unknown request")
)
