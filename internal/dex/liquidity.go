package dex

import (
	"math/big"
)

// LiquidityForAmounts returns the largest liquidity that amount0 and amount1 can fund
// over [sqrtA, sqrtB] at the current sqrtP (LiquidityAmounts.sol).
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.Cmp(l1) < 0 {
			return l0
		}
		return l1
	default:
		return liquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

// AmountsForLiquidity returns the token amounts that liquidity requires at sqrtP,
// rounded up so they match what the pool manager pulls on mint.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	amount0 := new(big.Int)
	amount1 := new(big.Int)
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		amount0 = amount0Delta(sqrtA, sqrtB, liquidity)
	case sqrtP.Cmp(sqrtB) < 0:
		amount0 = amount0Delta(sqrtP, sqrtB, liquidity)
		amount1 = amount1Delta(sqrtA, sqrtP, liquidity)
	default:
		amount1 = amount1Delta(sqrtA, sqrtB, liquidity)
	}
	return amount0, amount1
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Div(intermediate, q96)
	out := new(big.Int).Mul(amount0, intermediate)
	return out.Div(out, diff)
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount1, q96)
	return out.Div(out, diff)
}

// amount0Delta = L * 2^96 * (sqrtB - sqrtA) / sqrtB / sqrtA, rounded up.
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)
	return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA)
}

// amount1Delta = L * (sqrtB - sqrtA) / 2^96, rounded up.
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	return mulDivRoundingUp(liquidity, new(big.Int).Sub(sqrtB, sqrtA), q96)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	return divRoundingUp(new(big.Int).Mul(a, b), denominator)
}

func divRoundingUp(a, denominator *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, denominator, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
