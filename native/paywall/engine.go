package paywall

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"viewledger/core/events"
	"viewledger/core/types"
	"viewledger/native/fees"
)

// Transferer moves native value between accounts.
type Transferer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// DefaultVault is the account that holds attached unlock payments until they
// are paid out, and the accrued platform fees until the owner withdraws them.
var DefaultVault = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("viewledger/paywall/vault"))[12:])
	return addr
}()

// Engine wires paywall business logic with persistence, value transfer and
// event emission. It is not safe for concurrent use; the processor serialises
// transitions.
type Engine struct {
	ledger   *Ledger
	transfer Transferer
	emitter  events.Emitter
	nowFn    func() int64
	vault    [20]byte
}

// NewEngine constructs a paywall engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
		vault: DefaultVault,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) {
	if state == nil {
		e.ledger = nil
		return
	}
	e.ledger = NewLedger(state)
}

// SetTransferer configures the native value transfer primitive.
func (e *Engine) SetTransferer(t Transferer) { e.transfer = t }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetVault overrides the holding account for payments and fees.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the holding account.
func (e *Engine) Vault() [20]byte { return e.vault }

// Ledger exposes the underlying ledger store.
func (e *Engine) Ledger() *Ledger { return e.ledger }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.ledger == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) move(from, to [20]byte, amount *big.Int) error {
	if e.transfer == nil {
		return fmt.Errorf("%w: transferer", ErrNilState)
	}
	return e.transfer.Transfer(from, to, amount)
}

// Upload registers a new video owned by creator and returns its id.
func (e *Engine) Upload(creator [20]byte, contentRef string, price *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if isZeroAddress(creator) {
		return 0, fmt.Errorf("%w: creator identity required", ErrInvalidInput)
	}
	now := e.now()
	id, err := e.ledger.CreateVideo(creator, contentRef, price, now)
	if err != nil {
		return 0, err
	}
	video, _, err := e.ledger.Video(id)
	if err != nil {
		return 0, err
	}
	e.emit(VideoUploadedEvent(id, creator, video.ContentRef, video.Price, now))
	return id, nil
}

// Unlock grants viewer permanent access to id in exchange for paid, which must
// already sit in the vault. The kept price is split between creator and
// platform; anything above the price is refunded to the viewer.
func (e *Engine) Unlock(viewer [20]byte, id uint64, paid *big.Int) (*UnlockReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	video, err := e.ledger.CheckUnlock(id, viewer, paid)
	if err != nil {
		return nil, err
	}
	split, err := fees.Split(video.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := e.ledger.RecordUnlock(id, viewer, paid, split, e.now()); err != nil {
		return nil, err
	}
	if split.CreatorEarning.Sign() > 0 {
		if err := e.move(e.vault, video.Creator, split.CreatorEarning); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}
	if err := e.ledger.CreditPlatformBalance(split.PlatformFee); err != nil {
		return nil, err
	}
	refund := new(big.Int).Sub(paid, video.Price)
	e.emit(VideoUnlockedEvent(id, viewer, video.Creator, paid, split.PlatformFee, split.CreatorEarning, refund))

	if refund.Sign() > 0 {
		if err := e.move(e.vault, viewer, refund); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
		}
	}
	return &UnlockReceipt{
		VideoID:        id,
		Viewer:         viewer,
		Creator:        video.Creator,
		Paid:           new(big.Int).Set(paid),
		PlatformFee:    split.PlatformFee,
		CreatorEarning: split.CreatorEarning,
		Refund:         refund,
	}, nil
}

// Deactivate stops further unlocks of id. Only the creator may call it.
// Repeating it succeeds and emits the event again.
func (e *Engine) Deactivate(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.requireCreator(id, caller); err != nil {
		return err
	}
	if _, err := e.ledger.Deactivate(id); err != nil {
		return err
	}
	e.emit(VideoDeactivatedEvent(id, caller))
	return nil
}

// WithdrawPlatformFees pays the whole platform balance to the owner.
func (e *Engine) WithdrawPlatformFees(caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	owner, err := e.requireOwner(caller)
	if err != nil {
		return nil, err
	}
	amount, err := e.ledger.PlatformBalance()
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.ledger.DebitPlatformBalance(amount); err != nil {
		return nil, err
	}
	if err := e.move(e.vault, owner, amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	e.emit(FeesWithdrawnEvent(owner, amount))
	return amount, nil
}
