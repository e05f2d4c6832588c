package core

import "errors"

var (
	ErrNilTransaction    = errors.New("core: nil transaction")
	ErrUnknownTxType     = errors.New("core: unknown transaction type")
	ErrValueNotAccepted  = errors.New("core: transaction type does not accept value")
	ErrInsufficientFunds = errors.New("core: insufficient funds for attached value")
	ErrMissingCaller     = errors.New("core: caller identity required")
	ErrGenesisApplied    = errors.New("core: genesis already applied")
)
