package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	bpsDenominator = 10000
	priceScale     = 18
)

// ToBaseUnits converts a human decimal amount ("1.5") into integer base units.
// Digits beyond the token's decimals are truncated.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FormatAmount renders base units as a decimal string without trailing zeros.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// PriceString returns the decimal-adjusted price of currency0 in units of currency1:
// sqrtP^2 * 10^d0 / (2^192 * 10^d1).
func PriceString(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) string {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return "0"
	}
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num.Mul(num, pow10(decimals0))
	den := new(big.Int).Lsh(pow10(decimals1), 192)
	text := new(big.Rat).SetFrac(num, den).FloatString(priceScale)
	return decimal.RequireFromString(text).String()
}

// SlippageBps converts a percentage (0.5 = 0.5%) into basis points.
func SlippageBps(pct float64) (int64, error) {
	if pct < 0 || pct >= 100 {
		return 0, fmt.Errorf("slippage %.4f%% out of range", pct)
	}
	return decimal.NewFromFloat(pct).Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// WithSlippage returns ceil(amount * (10000 + bps) / 10000).
func WithSlippage(amount *big.Int, bps int64) *big.Int {
	num := new(big.Int).Mul(amount, big.NewInt(bpsDenominator+bps))
	return divRoundingUp(num, big.NewInt(bpsDenominator))
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
