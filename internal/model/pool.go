package model

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKey identifies a pool in the singleton pool manager.
// Currency0 is always the lower address; build keys with NewPoolKey.
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
	Hooks       common.Address `json:"hooks"`
}

// NewPoolKey orders the two currencies and reports whether they were swapped.
func NewPoolKey(tokenA, tokenB common.Address, fee uint32, tickSpacing int32, hooks common.Address) (PoolKey, bool) {
	c0, c1, swapped := SortCurrencies(tokenA, tokenB)
	return PoolKey{
		Currency0:   c0,
		Currency1:   c1,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Hooks:       hooks,
	}, swapped
}

// SortCurrencies returns (lower, higher, swapped). Byte order equals lowercase hex order.
func SortCurrencies(a, b common.Address) (common.Address, common.Address, bool) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a, true
	}
	return a, b, false
}

// Sorted reports whether the key orders currency0 strictly below currency1.
func (k PoolKey) Sorted() bool {
	return bytes.Compare(k.Currency0.Bytes(), k.Currency1.Bytes()) < 0
}

// PoolState is a point-in-time snapshot. It is never cached.
type PoolState struct {
	ID           common.Hash `json:"id"`
	SqrtPriceX96 *big.Int    `json:"sqrt_price_x96"`
	Tick         int32       `json:"tick"`
	Liquidity    *big.Int    `json:"liquidity"`
	ProtocolFee  uint32      `json:"protocol_fee"`
	LPFee        uint32      `json:"lp_fee"`
}
