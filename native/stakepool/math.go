package stakepool

import "github.com/holiman/uint256"

// Scale is the fixed-point factor applied to reward-per-unit values (1e18).
// Every division against it truncates toward zero.
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// ScaleUnit returns a copy of Scale.
func ScaleUnit() *uint256.Int {
	return new(uint256.Int).Set(Scale)
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

// checkedSub fails instead of wrapping when b > a.
func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticOverflow
	}
	return diff, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product, nil
}

// mulDiv computes floor(a*b/d) with a 512-bit intermediate. A zero divisor
// yields zero; callers guard the cases where that matters.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return new(uint256.Int), nil
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return quotient, nil
}

// floorDiv truncates; a zero divisor yields zero.
func floorDiv(a, d *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(a, d)
}

func checkedAddSeconds(ts, delta uint64) (uint64, error) {
	sum := ts + delta
	if sum < ts {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}
