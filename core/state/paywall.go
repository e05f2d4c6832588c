package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"viewledger/native/paywall"
)

// ErrOwnerAlreadySet is returned when genesis tries to reassign the owner.
var ErrOwnerAlreadySet = errors.New("state: paywall owner already set")

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func paywallVideoKey(id uint64) []byte {
	return prefixedKey(paywallVideoPrefix, uint64Bytes(id))
}

func paywallGrantKey(id uint64, viewer [20]byte) []byte {
	return prefixedKey(paywallGrantPrefix, uint64Bytes(id), viewer[:])
}

func paywallCreatorKey(creator [20]byte) []byte {
	return prefixedKey(paywallCreatorPrefix, creator[:])
}

type storedVideo struct {
	ID            uint64
	Creator       [20]byte
	ContentRef    string
	Price         *big.Int
	TotalEarnings *big.Int
	ViewCount     uint64
	CreatedAt     uint64
	Status        uint8
}

func newStoredVideo(v *paywall.Video) *storedVideo {
	price := big.NewInt(0)
	if v.Price != nil {
		price = new(big.Int).Set(v.Price)
	}
	earnings := big.NewInt(0)
	if v.TotalEarnings != nil {
		earnings = new(big.Int).Set(v.TotalEarnings)
	}
	return &storedVideo{
		ID:            v.ID,
		Creator:       v.Creator,
		ContentRef:    v.ContentRef,
		Price:         price,
		TotalEarnings: earnings,
		ViewCount:     v.ViewCount,
		CreatedAt:     uint64(v.CreatedAt),
		Status:        uint8(v.Status),
	}
}

func (s *storedVideo) toVideo() (*paywall.Video, error) {
	status := paywall.VideoStatus(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("paywall: video %d has unknown status %d", s.ID, s.Status)
	}
	out := &paywall.Video{
		ID:            s.ID,
		Creator:       s.Creator,
		ContentRef:    s.ContentRef,
		Price:         big.NewInt(0),
		TotalEarnings: big.NewInt(0),
		ViewCount:     s.ViewCount,
		CreatedAt:     int64(s.CreatedAt),
		Status:        status,
	}
	if s.Price != nil {
		out.Price.Set(s.Price)
	}
	if s.TotalEarnings != nil {
		out.TotalEarnings.Set(s.TotalEarnings)
	}
	return out, nil
}

type storedGrant struct {
	UnlockedAt uint64
}

// PaywallNextID returns the id the next upload will receive. It starts at 1.
func (m *Manager) PaywallNextID() (uint64, error) {
	var next uint64
	ok, err := m.KVGet(paywallNextIDKey, &next)
	if err != nil {
		return 0, err
	}
	if !ok || next == 0 {
		return 1, nil
	}
	return next, nil
}

// PaywallSetNextID stores the next id counter. The counter never decreases.
func (m *Manager) PaywallSetNextID(id uint64) error {
	current, err := m.PaywallNextID()
	if err != nil {
		return err
	}
	if id < current {
		return fmt.Errorf("paywall: next id cannot decrease from %d to %d", current, id)
	}
	return m.KVPut(paywallNextIDKey, id)
}

// PaywallVideoGet loads a video by id.
func (m *Manager) PaywallVideoGet(id uint64) (*paywall.Video, bool, error) {
	var stored storedVideo
	ok, err := m.KVGet(paywallVideoKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	video, err := stored.toVideo()
	if err != nil {
		return nil, false, err
	}
	return video, true, nil
}

// PaywallVideoPut stores a video under its id.
func (m *Manager) PaywallVideoPut(video *paywall.Video) error {
	if video == nil {
		return fmt.Errorf("paywall: nil video")
	}
	if video.ID == 0 {
		return fmt.Errorf("paywall: video id must be positive")
	}
	return m.KVPut(paywallVideoKey(video.ID), newStoredVideo(video))
}

// PaywallGrantExists reports whether viewer has unlocked id.
func (m *Manager) PaywallGrantExists(id uint64, viewer [20]byte) (bool, error) {
	return m.KVGet(paywallGrantKey(id, viewer), nil)
}

// PaywallGrantAt returns the unlock time of viewer's grant on id.
func (m *Manager) PaywallGrantAt(id uint64, viewer [20]byte) (int64, bool, error) {
	var stored storedGrant
	ok, err := m.KVGet(paywallGrantKey(id, viewer), &stored)
	if err != nil || !ok {
		return 0, false, err
	}
	return int64(stored.UnlockedAt), true, nil
}

// PaywallGrantPut records a permanent grant.
func (m *Manager) PaywallGrantPut(id uint64, viewer [20]byte, unlockedAt int64) error {
	return m.KVPut(paywallGrantKey(id, viewer), &storedGrant{UnlockedAt: uint64(unlockedAt)})
}

// PaywallCreatorVideos returns the creator's ids in upload order.
func (m *Manager) PaywallCreatorVideos(creator [20]byte) ([]uint64, error) {
	var ids []uint64
	if err := m.KVGetList(paywallCreatorKey(creator), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PaywallCreatorAppend appends id to the creator's index.
func (m *Manager) PaywallCreatorAppend(creator [20]byte, id uint64) error {
	ids, err := m.PaywallCreatorVideos(creator)
	if err != nil {
		return err
	}
	return m.KVPut(paywallCreatorKey(creator), append(ids, id))
}

// PaywallPlatformBalance returns the accrued platform fees.
func (m *Manager) PaywallPlatformBalance() (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(paywallPlatformBalanceKey, balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// PaywallSetPlatformBalance stores the accrued platform fees.
func (m *Manager) PaywallSetPlatformBalance(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("paywall: platform balance must not be negative")
	}
	return m.KVPut(paywallPlatformBalanceKey, amount)
}

// PaywallOwner returns the platform owner.
func (m *Manager) PaywallOwner() ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(paywallOwnerKey, &owner)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return owner, true, nil
}

// PaywallSetOwner records the platform owner. The owner is set once and never
// reassigned; setting the same owner again is a no-op.
func (m *Manager) PaywallSetOwner(owner [20]byte) error {
	current, ok, err := m.PaywallOwner()
	if err != nil {
		return err
	}
	if ok {
		if current == owner {
			return nil
		}
		return ErrOwnerAlreadySet
	}
	return m.KVPut(paywallOwnerKey, owner)
}

var _ paywall.State = (*Manager)(nil)
