package model

import "math/big"

// Position is a mint intent. Liquidity is derived from amounts and price, never supplied.
type Position struct {
	Key       PoolKey  `json:"pool_key"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
	Amount0   *big.Int `json:"amount0"`
	Amount1   *big.Int `json:"amount1"`
}

// OwnedPosition is a minted position read back from the position manager.
type OwnedPosition struct {
	TokenID   *big.Int `json:"token_id"`
	Key       PoolKey  `json:"pool_key"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
}
