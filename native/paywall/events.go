package paywall

import (
	"math/big"
	"strconv"

	"viewledger/core/events"
	"viewledger/core/types"
	"viewledger/crypto"
)

const (
	// EventTypeVideoUploaded is emitted when a creator registers a video.
	EventTypeVideoUploaded = "paywall.video.uploaded"
	// EventTypeVideoUnlocked is emitted when a viewer pays for access.
	EventTypeVideoUnlocked = "paywall.video.unlocked"
	// EventTypeVideoDeactivated is emitted when a creator stops sales.
	EventTypeVideoDeactivated = "paywall.video.deactivated"
	// EventTypeFeesWithdrawn is emitted when the owner sweeps platform fees.
	EventTypeFeesWithdrawn = "paywall.fees.withdrawn"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// VideoUploadedEvent returns the payload announcing a new video.
func VideoUploadedEvent(id uint64, creator [20]byte, contentRef string, price *big.Int, createdAt int64) *types.Event {
	return types.NewEvent(EventTypeVideoUploaded,
		"id", formatID(id),
		"creator", crypto.FormatIdentity(creator),
		"contentRef", contentRef,
		"price", formatAmount(price),
		"createdAt", strconv.FormatInt(createdAt, 10),
	)
}

// VideoUnlockedEvent returns the payload for a paid unlock. paid is the amount
// the viewer attached. The fee split covers the price only, so
// platformFee + creatorEarning + refund == paid.
func VideoUnlockedEvent(id uint64, viewer, creator [20]byte, paid, platformFee, creatorEarning, refund *big.Int) *types.Event {
	return types.NewEvent(EventTypeVideoUnlocked,
		"id", formatID(id),
		"viewer", crypto.FormatIdentity(viewer),
		"creator", crypto.FormatIdentity(creator),
		"paid", formatAmount(paid),
		"platformFee", formatAmount(platformFee),
		"creatorEarning", formatAmount(creatorEarning),
		"refund", formatAmount(refund),
	)
}

// VideoDeactivatedEvent returns the payload for a deactivation request.
func VideoDeactivatedEvent(id uint64, caller [20]byte) *types.Event {
	return types.NewEvent(EventTypeVideoDeactivated,
		"id", formatID(id),
		"caller", crypto.FormatIdentity(caller),
	)
}

// FeesWithdrawnEvent returns the payload for a platform fee sweep.
func FeesWithdrawnEvent(owner [20]byte, amount *big.Int) *types.Event {
	return types.NewEvent(EventTypeFeesWithdrawn,
		"owner", crypto.FormatIdentity(owner),
		"amount", formatAmount(amount),
	)
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
