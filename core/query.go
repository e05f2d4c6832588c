package core

import (
	"math/big"

	"viewledger/core/state"
	"viewledger/core/types"
	"viewledger/native/bank"
	"viewledger/native/paywall"
	"viewledger/storage/trie"
)

// snapshot opens a private trie at the committed root so reads never touch
// the trie a transition is working on.
func (p *Processor) snapshot() (*state.Manager, error) {
	p.mu.RLock()
	root := p.trie.Root()
	p.mu.RUnlock()
	tr, err := trie.NewTrie(p.db, root.Bytes())
	if err != nil {
		return nil, err
	}
	return state.NewManager(tr), nil
}

func (p *Processor) readEngine() (*paywall.Engine, error) {
	mgr, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	engine := paywall.NewEngine()
	engine.SetState(mgr)
	engine.SetVault(p.vault)
	return engine, nil
}

// Video returns caller's view of a committed video.
func (p *Processor) Video(id uint64, caller [20]byte) (*paywall.VideoView, error) {
	engine, err := p.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.Video(id, caller)
}

// ListVideos pages through committed videos.
func (p *Processor) ListVideos(offset, limit uint64) ([]paywall.VideoSummary, error) {
	engine, err := p.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.ListVideos(offset, limit)
}

// VideosByCreator returns the creator's ids in upload order.
func (p *Processor) VideosByCreator(creator [20]byte) ([]uint64, error) {
	engine, err := p.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.VideosByCreator(creator)
}

// HasAccess reports whether identity may read id's content reference.
func (p *Processor) HasAccess(id uint64, identity [20]byte) (bool, error) {
	engine, err := p.readEngine()
	if err != nil {
		return false, err
	}
	return engine.HasAccess(id, identity)
}

// PlatformBalance returns the unwithdrawn platform fees.
func (p *Processor) PlatformBalance() (*big.Int, error) {
	engine, err := p.readEngine()
	if err != nil {
		return nil, err
	}
	return engine.PlatformBalance()
}

// TotalVideos returns the number of registered videos.
func (p *Processor) TotalVideos() (uint64, error) {
	engine, err := p.readEngine()
	if err != nil {
		return 0, err
	}
	return engine.TotalVideos()
}

// Owner returns the platform owner.
func (p *Processor) Owner() ([20]byte, bool, error) {
	engine, err := p.readEngine()
	if err != nil {
		return [20]byte{}, false, err
	}
	return engine.Owner()
}

// Balance returns the native balance of addr.
func (p *Processor) Balance(addr [20]byte) (*big.Int, error) {
	mgr, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return bank.NewLedger(mgr).Balance(addr)
}

// Account returns the committed account of addr.
func (p *Processor) Account(addr [20]byte) (*types.Account, error) {
	mgr, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return mgr.GetAccount(addr[:])
}

// Events returns up to limit committed events after afterSeq, oldest first.
func (p *Processor) Events(afterSeq uint64, limit int) ([]*types.EventRecord, error) {
	mgr, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return mgr.EventsAfter(afterSeq, limit)
}

// LastEventSeq returns the sequence number of the newest committed event.
func (p *Processor) LastEventSeq() (uint64, error) {
	mgr, err := p.snapshot()
	if err != nil {
		return 0, err
	}
	return mgr.EventSeq()
}
