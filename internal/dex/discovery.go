package dex

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpgateway/internal/fault"
	"lpgateway/internal/metrics"
	"lpgateway/internal/model"
)

const opDiscover = "discover pool"

// StateSource reads live pool state.
type StateSource interface {
	ReadState(ctx context.Context, chainID uint64, key model.PoolKey) (*model.PoolState, error)
}

// TokenResolver resolves token metadata for a pair.
type TokenResolver interface {
	ResolvePair(ctx context.Context, chainID uint64, token0, token1 common.Address) (model.TokenInfo, model.TokenInfo, error)
}

// ChainLookup reports whether a chain is supported.
type ChainLookup interface {
	Supports(chainID uint64) bool
}

// DiscoverRequest is an unordered token pair plus optional fee narrowing.
type DiscoverRequest struct {
	ChainID     uint64
	TokenA      common.Address
	TokenB      common.Address
	Fee         *uint32
	TickSpacing *int32
	Hooks       common.Address
}

// Discovery is the outcome of a pool search. Exists=false is a valid result; PoolKey
// then carries the default fee tier for pre-filling a create flow.
type Discovery struct {
	Exists       bool            `json:"exists"`
	PoolKey      model.PoolKey   `json:"pool_key"`
	PoolID       common.Hash     `json:"pool_id"`
	CurrentTick  int32           `json:"current_tick"`
	SqrtPriceX96 *big.Int        `json:"sqrt_price_x96,omitempty"`
	Price        string          `json:"price,omitempty"`
	Liquidity    *big.Int        `json:"liquidity,omitempty"`
	Token0       model.TokenInfo `json:"token0"`
	Token1       model.TokenInfo `json:"token1"`
	Swapped      bool            `json:"swapped"`
}

// Discoverer locates the pool for a token pair by probing fee tiers in a fixed order.
type Discoverer struct {
	states         StateSource
	tokens         TokenResolver
	chains         ChainLookup
	defaultFee     uint32
	defaultSpacing int32
	logger         *zap.Logger
}

// DiscovererOption customizes a Discoverer.
type DiscovererOption func(*Discoverer)

// WithDefaultPool sets the fee/tick spacing reported when no tier resolves.
func WithDefaultPool(fee uint32, spacing int32) DiscovererOption {
	return func(d *Discoverer) {
		d.defaultFee = fee
		d.defaultSpacing = spacing
	}
}

func NewDiscoverer(states StateSource, tokens TokenResolver, chains ChainLookup, logger *zap.Logger, opts ...DiscovererOption) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Discoverer{
		states:         states,
		tokens:         tokens,
		chains:         chains,
		defaultFee:     3000,
		defaultSpacing: 60,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type candidate struct {
	fee     uint32
	spacing int32
}

// probeTiers validates the request and returns the fee tiers to probe, in order.
// It never touches the network.
func probeTiers(req DiscoverRequest) ([]candidate, error) {
	if req.TokenA == req.TokenB {
		return nil, fault.Validation(opDiscover, "token addresses are identical")
	}
	if req.TickSpacing != nil && req.Fee == nil {
		return nil, fault.Validation(opDiscover, "ambiguous parameters: tick spacing requires a fee")
	}
	if req.Fee == nil {
		out := make([]candidate, 0, len(FeeTiers))
		for _, fee := range FeeTiers {
			spacing, _ := TickSpacingForFee(fee)
			out = append(out, candidate{fee: fee, spacing: spacing})
		}
		return out, nil
	}

	fee := *req.Fee
	if fee >= 1_000_000 {
		return nil, fault.Validation(opDiscover, "fee %d exceeds 100%%", fee)
	}
	if req.TickSpacing != nil {
		if *req.TickSpacing < MinTickSpacing || *req.TickSpacing > MaxTickSpacing {
			return nil, fault.Validation(opDiscover, "tick spacing %d out of range", *req.TickSpacing)
		}
		return []candidate{{fee: fee, spacing: *req.TickSpacing}}, nil
	}
	spacing, ok := TickSpacingForFee(fee)
	if !ok {
		return nil, fault.Validation(opDiscover, "fee %d has no standard tick spacing; pass tick spacing explicitly", fee)
	}
	return []candidate{{fee: fee, spacing: spacing}}, nil
}

// ValidateRequest rejects malformed or ambiguous requests without touching any chain.
func ValidateRequest(req DiscoverRequest) error {
	_, err := probeTiers(req)
	return err
}

// Discover probes candidate tiers sequentially and stops at the first initialized pool.
// A read failure on any tier aborts the search.
func (d *Discoverer) Discover(ctx context.Context, req DiscoverRequest) (Discovery, error) {
	candidates, err := probeTiers(req)
	if err != nil {
		return Discovery{}, err
	}
	if !d.chains.Supports(req.ChainID) {
		return Discovery{}, fault.NotFound(opDiscover, "chain %d is not supported", req.ChainID)
	}

	var (
		found   *model.PoolState
		key     model.PoolKey
		swapped bool
	)
	for _, c := range candidates {
		key, swapped = model.NewPoolKey(req.TokenA, req.TokenB, c.fee, c.spacing, req.Hooks)
		state, err := d.states.ReadState(ctx, req.ChainID, key)
		fee := strconv.FormatUint(uint64(c.fee), 10)
		if err != nil {
			metrics.PoolProbes.WithLabelValues(fee, "error").Inc()
			return Discovery{}, err
		}
		if state != nil {
			metrics.PoolProbes.WithLabelValues(fee, "found").Inc()
			found = state
			break
		}
		metrics.PoolProbes.WithLabelValues(fee, "missing").Inc()
	}

	if found == nil {
		key, swapped = model.NewPoolKey(req.TokenA, req.TokenB, d.defaultFee, d.defaultSpacing, req.Hooks)
	}

	info0, info1, err := d.tokens.ResolvePair(ctx, req.ChainID, key.Currency0, key.Currency1)
	if err != nil {
		return Discovery{}, err
	}

	out := Discovery{
		PoolKey: key,
		Token0:  info0,
		Token1:  info1,
		Swapped: swapped,
	}
	if found == nil {
		if id, err := PoolID(key); err == nil {
			out.PoolID = id
		}
		d.logger.Debug("no pool found",
			zap.Uint64("chain_id", req.ChainID),
			zap.String("currency0", key.Currency0.Hex()),
			zap.String("currency1", key.Currency1.Hex()),
		)
		return out, nil
	}

	out.Exists = true
	out.PoolID = found.ID
	out.CurrentTick = found.Tick
	out.SqrtPriceX96 = found.SqrtPriceX96
	out.Liquidity = found.Liquidity
	out.Price = PriceString(found.SqrtPriceX96, info0.Decimals, info1.Decimals)
	d.logger.Debug("pool found",
		zap.Uint64("chain_id", req.ChainID),
		zap.String("pool_id", found.ID.Hex()),
		zap.Uint32("fee", key.Fee),
		zap.Int32("tick", found.Tick),
	)
	return out, nil
}
