package dex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lpgateway/internal/chain"
	"lpgateway/internal/config"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

// StateReader reads live pool state through each chain's state-view contract.
type StateReader struct {
	callers  chain.Callers
	registry *config.ChainRegistry
	logger   *zap.Logger
}

func NewStateReader(callers chain.Callers, registry *config.ChainRegistry, logger *zap.Logger) *StateReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateReader{callers: callers, registry: registry, logger: logger}
}

// ReadState returns the pool snapshot, or nil when the pool is not initialized (zero sqrt price).
func (r *StateReader) ReadState(ctx context.Context, chainID uint64, key model.PoolKey) (*model.PoolState, error) {
	if !key.Sorted() {
		return nil, fault.Validation("read pool state", "pool key currencies are not in canonical order")
	}
	chainCfg, ok := r.registry.Get(chainID)
	if !ok {
		return nil, fault.NotFound("read pool state", "chain %d is not supported", chainID)
	}
	caller, err := r.callers.Caller(chainID)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransient, "read pool state", chainID, err)
	}
	id, err := PoolID(key)
	if err != nil {
		return nil, err
	}
	stateView, err := StateViewABI()
	if err != nil {
		return nil, fmt.Errorf("parse state view abi: %w", err)
	}

	values, err := callMethod(ctx, caller, chainID, chainCfg.StateView, stateView, "getSlot0", [32]byte(id))
	if err != nil {
		return nil, err
	}
	if len(values) < 4 {
		return nil, &fault.Error{Kind: fault.KindTransient, Op: "getSlot0", ChainID: chainID, Err: errMalformed}
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	if sqrtPrice.Sign() == 0 {
		r.logger.Debug("pool not initialized",
			zap.Uint64("chain_id", chainID),
			zap.String("pool_id", id.Hex()),
		)
		return nil, nil
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}
	protocolFee, err := asBigInt(values[2])
	if err != nil {
		return nil, fmt.Errorf("protocol fee: %w", err)
	}
	lpFee, err := asBigInt(values[3])
	if err != nil {
		return nil, fmt.Errorf("lp fee: %w", err)
	}

	values, err = callMethod(ctx, caller, chainID, chainCfg.StateView, stateView, "getLiquidity", [32]byte(id))
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}

	return &model.PoolState{
		ID:           id,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
		ProtocolFee:  uint32(protocolFee.Uint64()),
		LPFee:        uint32(lpFee.Uint64()),
	}, nil
}
