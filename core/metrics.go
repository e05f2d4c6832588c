package core

import (
	"math/big"
	"time"
)

// Metrics receives processor measurements. observability.PaywallMetrics is the
// production implementation.
type Metrics interface {
	ObserveTransition(op, outcome string, elapsed time.Duration)
	ObserveUnlock(platformFee, creatorEarning *big.Int)
	ObserveWithdrawal(amount *big.Int)
	SetHeight(height uint64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string, time.Duration) {}
func (noopMetrics) ObserveUnlock(*big.Int, *big.Int)                {}
func (noopMetrics) ObserveWithdrawal(*big.Int)                      {}
func (noopMetrics) SetHeight(uint64)                                {}
