package rpc

import (
	"errors"
	"net/http"

	"viewledger/core"
	"viewledger/native/paywall"
)

const (
	codeInvalidInput        = -32030
	codeVideoInactive       = -32031
	codeInsufficientPayment = -32032
	codeAlreadyUnlocked     = -32033
	codeSelfUnlock          = -32034
	codeNotAuthorized       = -32035
	codeNothingToWithdraw   = -32036
	codeInsufficientBalance = -32037
	codeTransferFailed      = -32038
	codeRefundFailed        = -32039
	codeVideoNotFound       = -32040
	codeInsufficientFunds   = -32041
)

type errorMapping struct {
	target error
	code   int
	status int
}

// ledgerErrors is checked in order; the first errors.Is match wins.
var ledgerErrors = []errorMapping{
	{paywall.ErrInvalidInput, codeInvalidInput, http.StatusBadRequest},
	{paywall.ErrVideoInactive, codeVideoInactive, http.StatusConflict},
	{paywall.ErrInsufficientPayment, codeInsufficientPayment, http.StatusPaymentRequired},
	{paywall.ErrAlreadyUnlocked, codeAlreadyUnlocked, http.StatusConflict},
	{paywall.ErrSelfUnlock, codeSelfUnlock, http.StatusConflict},
	{paywall.ErrNotAuthorized, codeNotAuthorized, http.StatusForbidden},
	{paywall.ErrNothingToWithdraw, codeNothingToWithdraw, http.StatusConflict},
	{paywall.ErrInsufficientBalance, codeInsufficientBalance, http.StatusConflict},
	{paywall.ErrRefundFailed, codeRefundFailed, http.StatusInternalServerError},
	{paywall.ErrTransferFailed, codeTransferFailed, http.StatusInternalServerError},
	{paywall.ErrVideoNotFound, codeVideoNotFound, http.StatusNotFound},
	{core.ErrInsufficientFunds, codeInsufficientFunds, http.StatusPaymentRequired},
	{core.ErrValueNotAccepted, codeInvalidParams, http.StatusBadRequest},
	{core.ErrMissingCaller, codeUnauthorized, http.StatusUnauthorized},
}

// ledgerError maps a processor or engine error onto a stable JSON-RPC error.
// The message is the matched sentinel's text; the full chain goes in data.
func ledgerError(err error) *RPCError {
	if err == nil {
		return nil
	}
	for _, m := range ledgerErrors {
		if errors.Is(err, m.target) {
			return newError(m.status, m.code, m.target.Error(), err.Error())
		}
	}
	return newError(http.StatusInternalServerError, codeServerError, "internal error", err.Error())
}
