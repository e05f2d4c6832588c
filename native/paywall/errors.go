package paywall

import "errors"

var (
	ErrInvalidInput        = errors.New("paywall: invalid input")
	ErrVideoInactive       = errors.New("paywall: video inactive")
	ErrInsufficientPayment = errors.New("paywall: insufficient payment")
	ErrAlreadyUnlocked     = errors.New("paywall: already unlocked")
	ErrSelfUnlock          = errors.New("paywall: creator cannot unlock own video")
	ErrNotAuthorized       = errors.New("paywall: not authorized")
	ErrNothingToWithdraw   = errors.New("paywall: nothing to withdraw")
	ErrInsufficientBalance = errors.New("paywall: insufficient platform balance")
	ErrTransferFailed      = errors.New("paywall: transfer failed")
	ErrRefundFailed        = errors.New("paywall: refund failed")
	ErrVideoNotFound       = errors.New("paywall: video not found")
	ErrNilState            = errors.New("paywall: state not configured")
)
