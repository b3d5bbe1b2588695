package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/chain"
	"lpgateway/internal/model"
)

type poolKeyTuple struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

// ReadPosition loads a minted position by token id from the position manager.
func ReadPosition(ctx context.Context, caller chain.Caller, chainID uint64, positionManager common.Address, tokenID *big.Int) (model.OwnedPosition, error) {
	pm, err := PositionManagerABI()
	if err != nil {
		return model.OwnedPosition{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	values, err := callMethod(ctx, caller, chainID, positionManager, pm, "getPoolAndPositionInfo", tokenID)
	if err != nil {
		return model.OwnedPosition{}, err
	}
	if len(values) < 2 {
		return model.OwnedPosition{}, fmt.Errorf("getPoolAndPositionInfo: %w", errMalformed)
	}
	tuple, ok := abi.ConvertType(values[0], new(poolKeyTuple)).(*poolKeyTuple)
	if !ok {
		return model.OwnedPosition{}, fmt.Errorf("pool key: unexpected type %T", values[0])
	}
	spacing, err := int24FromBig(tuple.TickSpacing)
	if err != nil {
		return model.OwnedPosition{}, fmt.Errorf("tick spacing: %w", err)
	}
	info, err := asBigInt(values[1])
	if err != nil {
		return model.OwnedPosition{}, fmt.Errorf("position info: %w", err)
	}
	tickLower, tickUpper := DecodePositionInfo(info)

	values, err = callMethod(ctx, caller, chainID, positionManager, pm, "getPositionLiquidity", tokenID)
	if err != nil {
		return model.OwnedPosition{}, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.OwnedPosition{}, fmt.Errorf("liquidity: %w", err)
	}

	return model.OwnedPosition{
		TokenID: new(big.Int).Set(tokenID),
		Key: model.PoolKey{
			Currency0:   tuple.Currency0,
			Currency1:   tuple.Currency1,
			Fee:         uint32(tuple.Fee.Uint64()),
			TickSpacing: spacing,
			Hooks:       tuple.Hooks,
		},
		TickLower: tickLower,
		TickUpper: tickUpper,
		Liquidity: liquidity,
	}, nil
}

// DecodePositionInfo unpacks the tick bounds from a packed PositionInfo word:
// bits 8..31 hold tickLower and bits 32..55 tickUpper, both int24.
func DecodePositionInfo(info *big.Int) (int32, int32) {
	word := new(big.Int).Rsh(info, 8)
	lower := signExtend24(new(big.Int).And(word, big.NewInt(0xffffff)).Uint64())
	word.Rsh(word, 24)
	upper := signExtend24(new(big.Int).And(word, big.NewInt(0xffffff)).Uint64())
	return lower, upper
}

func signExtend24(v uint64) int32 {
	if v&0x800000 != 0 {
		return int32(v) - 0x1000000
	}
	return int32(v)
}
