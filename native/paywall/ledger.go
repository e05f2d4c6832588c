package paywall

import (
	"fmt"
	"math/big"

	"viewledger/native/fees"
)

// State is the persistence surface the paywall needs. core/state.Manager
// implements it over the ledger trie.
type State interface {
	PaywallNextID() (uint64, error)
	PaywallSetNextID(id uint64) error
	PaywallVideoGet(id uint64) (*Video, bool, error)
	PaywallVideoPut(video *Video) error
	PaywallGrantExists(id uint64, viewer [20]byte) (bool, error)
	PaywallGrantAt(id uint64, viewer [20]byte) (int64, bool, error)
	PaywallGrantPut(id uint64, viewer [20]byte, unlockedAt int64) error
	PaywallCreatorVideos(creator [20]byte) ([]uint64, error)
	PaywallCreatorAppend(creator [20]byte, id uint64) error
	PaywallPlatformBalance() (*big.Int, error)
	PaywallSetPlatformBalance(amount *big.Int) error
	PaywallOwner() ([20]byte, bool, error)
}

// Ledger applies invariant-preserving mutations to paywall state. Every
// mutator validates its preconditions before it writes anything.
type Ledger struct {
	state State
}

// NewLedger wraps state.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	return nil
}

// CreateVideo registers a new active video and returns its id. Ids start at 1
// and are never reused. The content reference is opaque and stored verbatim.
func (l *Ledger) CreateVideo(creator [20]byte, contentRef string, price *big.Int, now int64) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if len(contentRef) == 0 {
		return 0, fmt.Errorf("%w: content reference required", ErrInvalidInput)
	}
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	id, err := l.state.PaywallNextID()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		id = 1
	}
	video := &Video{
		ID:            id,
		Creator:       creator,
		ContentRef:    contentRef,
		Price:         new(big.Int).Set(price),
		TotalEarnings: big.NewInt(0),
		CreatedAt:     now,
		Status:        VideoStatusActive,
	}
	if err := l.state.PaywallVideoPut(video); err != nil {
		return 0, err
	}
	if err := l.state.PaywallCreatorAppend(creator, id); err != nil {
		return 0, err
	}
	if err := l.state.PaywallSetNextID(id + 1); err != nil {
		return 0, err
	}
	return id, nil
}

// Video loads a stored video.
func (l *Ledger) Video(id uint64) (*Video, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	if id == 0 {
		return nil, false, nil
	}
	return l.state.PaywallVideoGet(id)
}

// HasGrant reports whether viewer holds a stored grant for id.
func (l *Ledger) HasGrant(id uint64, viewer [20]byte) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	return l.state.PaywallGrantExists(id, viewer)
}

// GrantTime returns when viewer unlocked id. Creators hold no stored grant.
func (l *Ledger) GrantTime(id uint64, viewer [20]byte) (int64, bool, error) {
	if err := l.ready(); err != nil {
		return 0, false, err
	}
	return l.state.PaywallGrantAt(id, viewer)
}

// CheckUnlock runs the unlock preconditions in precedence order without
// mutating state and returns the video on success.
func (l *Ledger) CheckUnlock(id uint64, viewer [20]byte, gross *big.Int) (*Video, error) {
	video, ok, err := l.Video(id)
	if err != nil {
		return nil, err
	}
	if !ok || !video.Active() {
		return nil, ErrVideoInactive
	}
	if gross == nil || gross.Cmp(video.Price) < 0 {
		return nil, ErrInsufficientPayment
	}
	granted, err := l.state.PaywallGrantExists(id, viewer)
	if err != nil {
		return nil, err
	}
	if granted {
		return nil, ErrAlreadyUnlocked
	}
	if viewer == video.Creator {
		return nil, ErrSelfUnlock
	}
	return video, nil
}

// RecordUnlock stores the viewer's grant, stamped with now, and credits the
// creator's share to the video's running totals.
func (l *Ledger) RecordUnlock(id uint64, viewer [20]byte, gross *big.Int, split fees.SplitResult, now int64) (*Video, error) {
	video, err := l.CheckUnlock(id, viewer, gross)
	if err != nil {
		return nil, err
	}
	if split.CreatorEarning == nil || split.CreatorEarning.Sign() < 0 {
		return nil, fmt.Errorf("%w: creator earning must not be negative", ErrInvalidInput)
	}
	if err := l.state.PaywallGrantPut(id, viewer, now); err != nil {
		return nil, err
	}
	video.TotalEarnings = new(big.Int).Add(newBigInt(video.TotalEarnings), split.CreatorEarning)
	video.ViewCount++
	if err := l.state.PaywallVideoPut(video); err != nil {
		return nil, err
	}
	return video.Clone(), nil
}

// Deactivate stops sales of id. Deactivating an already deactivated video is a
// successful no-op; changed reports whether the status moved.
func (l *Ledger) Deactivate(id uint64) (bool, error) {
	video, ok, err := l.Video(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrVideoNotFound
	}
	if video.Status == VideoStatusDeactivated {
		return false, nil
	}
	video.Status = VideoStatusDeactivated
	if err := l.state.PaywallVideoPut(video); err != nil {
		return false, err
	}
	return true, nil
}

// PlatformBalance returns the accrued, unwithdrawn platform fees.
func (l *Ledger) PlatformBalance() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	bal, err := l.state.PaywallPlatformBalance()
	if err != nil {
		return nil, err
	}
	return newBigInt(bal), nil
}

// CreditPlatformBalance adds amount to the platform balance.
func (l *Ledger) CreditPlatformBalance(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: credit must not be negative", ErrInvalidInput)
	}
	bal, err := l.PlatformBalance()
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	return l.state.PaywallSetPlatformBalance(bal.Add(bal, amount))
}

// DebitPlatformBalance subtracts amount from the platform balance.
func (l *Ledger) DebitPlatformBalance(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: debit must not be negative", ErrInvalidInput)
	}
	bal, err := l.PlatformBalance()
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return l.state.PaywallSetPlatformBalance(bal.Sub(bal, amount))
}

// Owner returns the platform owner recorded at genesis.
func (l *Ledger) Owner() ([20]byte, bool, error) {
	if err := l.ready(); err != nil {
		return [20]byte{}, false, err
	}
	return l.state.PaywallOwner()
}

// TotalVideos returns the number of videos ever created.
func (l *Ledger) TotalVideos() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	next, err := l.state.PaywallNextID()
	if err != nil {
		return 0, err
	}
	if next <= 1 {
		return 0, nil
	}
	return next - 1, nil
}
