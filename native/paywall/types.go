package paywall

import "math/big"

// VideoStatus is the lifecycle state of a video. The only transition is
// Active to Deactivated.
type VideoStatus uint8

const (
	VideoStatusActive VideoStatus = iota + 1
	VideoStatusDeactivated
)

func (s VideoStatus) String() string {
	switch s {
	case VideoStatusActive:
		return "active"
	case VideoStatusDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known status.
func (s VideoStatus) Valid() bool {
	return s == VideoStatusActive || s == VideoStatusDeactivated
}

// Video is a registered piece of paywalled content.
type Video struct {
	ID            uint64      `json:"id"`
	Creator       [20]byte    `json:"creator"`
	ContentRef    string      `json:"contentRef"`
	Price         *big.Int    `json:"price"`
	TotalEarnings *big.Int    `json:"totalEarnings"`
	ViewCount     uint64      `json:"viewCount"`
	CreatedAt     int64       `json:"createdAt"`
	Status        VideoStatus `json:"status"`
}

// Active reports whether the video still accepts unlocks.
func (v *Video) Active() bool {
	return v != nil && v.Status == VideoStatusActive
}

// Clone returns a deep copy of the video.
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Price = newBigInt(v.Price)
	clone.TotalEarnings = newBigInt(v.TotalEarnings)
	return &clone
}

// VideoView is the caller-specific projection returned by the query surface.
// ContentRef is empty unless the caller has access.
type VideoView struct {
	ID            uint64      `json:"id"`
	Creator       [20]byte    `json:"creator"`
	ContentRef    string      `json:"contentRef"`
	Price         *big.Int    `json:"price"`
	TotalEarnings *big.Int    `json:"totalEarnings"`
	ViewCount     uint64      `json:"viewCount"`
	CreatedAt     int64       `json:"createdAt"`
	Status        VideoStatus `json:"status"`
	HasAccess     bool        `json:"hasAccess"`
	// UnlockedAt is the grant time for a paying viewer, zero otherwise.
	UnlockedAt int64 `json:"unlockedAt,omitempty"`
}

// VideoSummary is the listing projection. It never carries the content ref.
type VideoSummary struct {
	ID            uint64      `json:"id"`
	Creator       [20]byte    `json:"creator"`
	Price         *big.Int    `json:"price"`
	TotalEarnings *big.Int    `json:"totalEarnings"`
	ViewCount     uint64      `json:"viewCount"`
	CreatedAt     int64       `json:"createdAt"`
	Status        VideoStatus `json:"status"`
}

// UnlockReceipt summarises a successful unlock.
type UnlockReceipt struct {
	VideoID        uint64
	Viewer         [20]byte
	Creator        [20]byte
	Paid           *big.Int
	PlatformFee    *big.Int
	CreatorEarning *big.Int
	Refund         *big.Int
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}
