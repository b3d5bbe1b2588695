package dex

import (
	"errors"
	"fmt"
	"math/big"
)

// Global tick bounds of the concentrated-liquidity protocol (TickMath.sol).
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272

	// tick spacing is an int16 in the pool manager
	MinTickSpacing int32 = 1
	MaxTickSpacing int32 = 32767
)

var (
	// MinSqrtRatio is the sqrt price at MinTick.
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is the sqrt price at MaxTick.
	MaxSqrtRatio = mustParseBigInt("1461446703485210103287273052203988822378723970342")

	ErrInvalidTick = errors.New("tick out of bounds")

	q96        = new(big.Int).Lsh(big.NewInt(1), 96)
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// sqrt(1.0001^-(2^i)) * 2^128 for i = 1..19.
var tickRatios = []*big.Int{
	mustParseBigInt("0xfff97272373d413259a46990580e213a"),
	mustParseBigInt("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	mustParseBigInt("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	mustParseBigInt("0xffcb9843d60f6159c9db58835c926644"),
	mustParseBigInt("0xff973b41fa98c081472e6896dfb254c0"),
	mustParseBigInt("0xff2ea16466c96a3843ec78b326b52861"),
	mustParseBigInt("0xfe5dee046a99a2a811c461f1969c3053"),
	mustParseBigInt("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	mustParseBigInt("0xf987a7253ac413176f2b074cf7815e54"),
	mustParseBigInt("0xf3392b0822b70005940c7a398e4b70f3"),
	mustParseBigInt("0xe7159475a2c29b7443b29c7fa6e889d9"),
	mustParseBigInt("0xd097f3bdfd2022b8845ad8f792aa5825"),
	mustParseBigInt("0xa9f746462d870fdf8a65dc1f90e061e5"),
	mustParseBigInt("0x70d869a156d2a1b890bb3df62baf32f7"),
	mustParseBigInt("0x31be135f97d08fd981231505542fcfa6"),
	mustParseBigInt("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	mustParseBigInt("0x5d6af8dedb81196699c329225ee604"),
	mustParseBigInt("0x2216e584f5fa1ea926041bedfe98"),
	mustParseBigInt("0x48a170391f7dc42444e8fa2"),
}

var feeTickSpacing = map[uint32]int32{
	500:   10,
	3000:  60,
	10000: 200,
}

// FeeTiers is the probe order used when no fee is requested.
var FeeTiers = []uint32{500, 3000, 10000}

func mustParseBigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		panic("invalid big int literal " + s)
	}
	return n
}

// TickSpacingForFee returns the standard tick spacing of a fee tier.
func TickSpacingForFee(fee uint32) (int32, bool) {
	spacing, ok := feeTickSpacing[fee]
	return spacing, ok
}

// FullRangeTicks returns the widest multiples of spacing inside [MinTick, MaxTick].
// Go integer division truncates toward zero, which rounds both bounds into the range.
func FullRangeTicks(spacing int32) (int32, int32, error) {
	if spacing <= 0 {
		return 0, 0, fmt.Errorf("tick spacing must be positive, got %d", spacing)
	}
	if spacing > MaxTick {
		return 0, 0, fmt.Errorf("tick spacing %d exceeds max tick", spacing)
	}
	return MinTick / spacing * spacing, MaxTick / spacing * spacing, nil
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up as TickMath.sol does.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrInvalidTick
	}
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	var ratio *big.Int
	if absTick&0x1 != 0 {
		ratio = mustParseBigInt("0xfffcb933bd6fad37aa2d162d1a594001")
	} else {
		ratio = new(big.Int).Lsh(big.NewInt(1), 128)
	}
	for i, factor := range tickRatios {
		if absTick&(int32(2)<<uint(i)) != 0 {
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// shift Q128.128 to Q64.96, rounding up
	rem := new(big.Int).And(ratio, big.NewInt(0xffffffff))
	out := new(big.Int).Rsh(ratio, 32)
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out, nil
}
