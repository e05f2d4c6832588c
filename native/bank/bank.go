package bank

import (
	"errors"
	"fmt"
	"math/big"

	"viewledger/core/events"
	"viewledger/core/types"
)

var (
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrNilState          = errors.New("bank: state not configured")
)

type accountState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Ledger moves native balances between accounts held in state.
type Ledger struct {
	state   accountState
	emitter events.Emitter
	reason  string
}

// NewLedger constructs a bank ledger over state.
func NewLedger(state accountState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where transfer events go.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// WithReason returns a ledger that tags emitted transfers with reason.
func (l *Ledger) WithReason(reason string) *Ledger {
	clone := *l
	clone.reason = reason
	return &clone
}

// Balance returns the native balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Transfer moves amount from one account to another. Both accounts are
// validated before either is written.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	src, err := l.account(from)
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, src.Balance, amount)
	}
	if from == to {
		l.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount), Reason: l.reason})
		return nil
	}
	dst, err := l.account(to)
	if err != nil {
		return err
	}
	src.Balance = new(big.Int).Sub(src.Balance, amount)
	dst.Balance = new(big.Int).Add(dst.Balance, amount)
	if err := l.state.PutAccount(from[:], src); err != nil {
		return err
	}
	if err := l.state.PutAccount(to[:], dst); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount), Reason: l.reason})
	return nil
}

// Credit adds amount to addr without a source account. It is used for
// genesis allocations only.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.account(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr[:], acc)
}

func (l *Ledger) account(addr [20]byte) (*types.Account, error) {
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}
