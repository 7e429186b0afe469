package math

import (
	"errors"
	"math/big"
	"sync"
)

// Amounts are int64 counts of the smallest indivisible token unit.
// Tokens declare 18 decimal places; conversion to display units is a
// presentation concern (see the API layer), never the ledger's.
const TokenDecimals = 18

// RateScale is the fixed-point scale for reward rates: a stored rate R means
// R / RateScale reward units per staked unit per second.
const RateScale int64 = 1_000_000_000_000 // 1e12

// BasisPointDenominator is the fee-rate denominator: 10000 bps == 100%.
const BasisPointDenominator int64 = 10_000

// ErrOverflow is returned when a checked operation would exceed int64 range.
// Callers surface it as the ArithmeticOverflow error kind.
var ErrOverflow = errors.New("arithmetic overflow")

// Int128 pool for widened intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// AddChecked returns a+b or ErrOverflow.
func AddChecked(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubChecked returns a-b or ErrOverflow.
func SubChecked(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// MulChecked returns a*b or ErrOverflow. Used where the product must itself
// fit in a ledger amount (e.g. amount * unitPrice for a purchase).
func MulChecked(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}

// MulDivFloor computes floor(a * b / denom) through an int128 intermediate.
// Inputs must be non-negative and denom positive; ErrOverflow is returned
// only when the final quotient exceeds int64.
func MulDivFloor(a, b, denom int64) (int64, error) {
	if denom <= 0 {
		return 0, errors.New("non-positive denominator")
	}
	if a < 0 || b < 0 {
		return 0, errors.New("negative operand")
	}

	product := getInt128()
	product.Mul(big.NewInt(a), big.NewInt(b))
	product.Quo(product, big.NewInt(denom))

	if !product.IsInt64() {
		putInt128(product)
		return 0, ErrOverflow
	}

	result := product.Int64()
	putInt128(product)
	return result, nil
}

// FeeSplit splits a value into (fee, payout) at rateBps basis points.
// fee = floor(value * rateBps / 10000), payout = value - fee. The flooring
// remainder always stays on the payer side, never the fee sink, so
// fee + payout == value exactly.
func FeeSplit(value, rateBps int64) (fee, payout int64, err error) {
	if value < 0 {
		return 0, 0, errors.New("negative value")
	}
	if rateBps < 0 || rateBps > BasisPointDenominator {
		return 0, 0, errors.New("fee rate out of range")
	}

	fee, err = MulDivFloor(value, rateBps, BasisPointDenominator)
	if err != nil {
		return 0, 0, err
	}
	return fee, value - fee, nil
}

// AccruedReward computes floor(elapsedSeconds * stakedAmount * rate / RateScale),
// the reward earned by a constant stake over one accrual interval.
// The triple product is carried in a big.Int so decade-long intervals on large
// stakes cannot wrap; only the final floored quotient must fit in int64.
func AccruedReward(elapsedSeconds, stakedAmount, rate int64) (int64, error) {
	if elapsedSeconds < 0 || stakedAmount < 0 || rate < 0 {
		return 0, errors.New("negative accrual input")
	}
	if elapsedSeconds == 0 || stakedAmount == 0 || rate == 0 {
		return 0, nil
	}

	product := getInt128()
	product.Mul(big.NewInt(elapsedSeconds), big.NewInt(stakedAmount))
	product.Mul(product, big.NewInt(rate))
	product.Quo(product, big.NewInt(RateScale))

	if !product.IsInt64() {
		putInt128(product)
		return 0, ErrOverflow
	}

	result := product.Int64()
	putInt128(product)
	return result, nil
}

// TradeValue computes amount * unitPrice, the payment-token value of a trade.
// Overflow is surfaced, never truncated.
func TradeValue(amount, unitPrice int64) (int64, error) {
	if amount < 0 || unitPrice < 0 {
		return 0, errors.New("negative trade input")
	}
	return MulChecked(amount, unitPrice)
}
