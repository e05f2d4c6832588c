package state

var (
	paywallNextIDKey          = []byte("paywall/next-id")
	paywallVideoPrefix        = []byte("paywall/video/")
	paywallGrantPrefix        = []byte("paywall/grant/")
	paywallCreatorPrefix      = []byte("paywall/creator/")
	paywallPlatformBalanceKey = []byte("paywall/platform-balance")
	paywallOwnerKey           = []byte("paywall/owner")

	eventLogSeqKey = []byte("events/seq")
	eventLogPrefix = []byte("events/log/")
)
