package domain

import (
	"math"
	"math/bits"
)

const (
	bpsDenominator     = 10_000
	percentDenominator = 100
)

// MaxStoredAmount is the largest minor-unit amount the ledger persists.
const MaxStoredAmount uint64 = math.MaxInt64

// ValidateAmount rejects amounts that cannot be stored.
func ValidateAmount(v uint64) error {
	if v > MaxStoredAmount {
		return ErrAmountOutOfRange
	}
	return nil
}

// MaxResalePrice returns purchase + floor(purchase * bps / 10000).
func MaxResalePrice(purchase uint64, markupBps uint16) (uint64, error) {
	markup, err := mulDiv(purchase, uint64(markupBps), bpsDenominator)
	if err != nil {
		return 0, err
	}
	return checkedAdd(purchase, markup)
}

// RefundAmount returns floor(price * pct / 100).
func RefundAmount(price uint64, pct uint8) (uint64, error) {
	if pct > percentDenominator {
		return 0, ErrInvalidRefundPercentage
	}
	return mulDiv(price, uint64(pct), percentDenominator)
}

// mulDiv computes floor(a*b/d), failing if the intermediate product does not
// fit in 64 bits.
func mulDiv(a, b, d uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo / d, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}
