package fees

import (
	"errors"
	"math/big"
)

const (
	// PlatformFeeBps is the platform's share of every unlock, in basis points.
	PlatformFeeBps = 600
	// BasisPoints is the denominator for PlatformFeeBps.
	BasisPoints = 10_000
)

// ErrInvalidGross is returned when the split input is nil, zero or negative.
var ErrInvalidGross = errors.New("fees: gross amount must be positive")

// SplitResult carries the two shares of a gross amount. The shares always sum
// to Gross.
type SplitResult struct {
	Gross          *big.Int
	PlatformFee    *big.Int
	CreatorEarning *big.Int
}

// Clone returns a copy with duplicated big.Int values.
func (r SplitResult) Clone() SplitResult {
	clone := SplitResult{}
	if r.Gross != nil {
		clone.Gross = new(big.Int).Set(r.Gross)
	}
	if r.PlatformFee != nil {
		clone.PlatformFee = new(big.Int).Set(r.PlatformFee)
	}
	if r.CreatorEarning != nil {
		clone.CreatorEarning = new(big.Int).Set(r.CreatorEarning)
	}
	return clone
}

// Split divides gross into the platform fee, rounded down, and the creator's
// remainder. Rounding dust therefore always goes to the creator.
func Split(gross *big.Int) (SplitResult, error) {
	if gross == nil || gross.Sign() <= 0 {
		return SplitResult{}, ErrInvalidGross
	}
	fee := new(big.Int).Mul(gross, big.NewInt(PlatformFeeBps))
	fee.Quo(fee, big.NewInt(BasisPoints))
	return SplitResult{
		Gross:          new(big.Int).Set(gross),
		PlatformFee:    fee,
		CreatorEarning: new(big.Int).Sub(gross, fee),
	}, nil
}
