package fees

import (
	"errors"
	"math/big"
	"testing"
)

func TestSplitComputesPlatformShare(t *testing.T) {
	cases := []struct {
		name    string
		gross   int64
		fee     int64
		creator int64
	}{
		{name: "round thousand", gross: 1000, fee: 60, creator: 940},
		{name: "fifteen hundred", gross: 1500, fee: 90, creator: 1410},
		{name: "dust goes to creator", gross: 16, fee: 0, creator: 16},
		{name: "floor rounding", gross: 17, fee: 1, creator: 16},
		{name: "single unit", gross: 1, fee: 0, creator: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Split(big.NewInt(tc.gross))
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			if res.PlatformFee.Cmp(big.NewInt(tc.fee)) != 0 {
				t.Fatalf("fee: want %d got %s", tc.fee, res.PlatformFee)
			}
			if res.CreatorEarning.Cmp(big.NewInt(tc.creator)) != 0 {
				t.Fatalf("creator: want %d got %s", tc.creator, res.CreatorEarning)
			}
			sum := new(big.Int).Add(res.PlatformFee, res.CreatorEarning)
			if sum.Cmp(res.Gross) != 0 {
				t.Fatalf("shares do not sum to gross: %s", sum)
			}
		})
	}
}

func TestSplitLargeAmountIsExact(t *testing.T) {
	gross, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	res, err := Split(gross)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := new(big.Int).Mul(gross, big.NewInt(600))
	want.Quo(want, big.NewInt(10_000))
	if res.PlatformFee.Cmp(want) != 0 {
		t.Fatalf("fee mismatch: %s", res.PlatformFee)
	}
	if new(big.Int).Add(res.PlatformFee, res.CreatorEarning).Cmp(gross) != 0 {
		t.Fatalf("shares do not sum to gross")
	}
}

func TestSplitRejectsNonPositive(t *testing.T) {
	for _, gross := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if _, err := Split(gross); !errors.Is(err, ErrInvalidGross) {
			t.Fatalf("expected ErrInvalidGross for %v, got %v", gross, err)
		}
	}
}

func TestSplitDoesNotAliasInput(t *testing.T) {
	gross := big.NewInt(1000)
	res, err := Split(gross)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	gross.SetInt64(1)
	if res.Gross.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("result aliased caller input")
	}
}
