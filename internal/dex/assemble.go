package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

const opAssemble = "assemble position"

// Position manager action codes (v4-periphery Actions.sol).
const (
	ActionMintPosition byte = 0x02
	ActionSettlePair   byte = 0x0d
	ActionSweep        byte = 0x14
)

const (
	DefaultSlippagePct = 0.5
	DefaultDeadline    = 20 * time.Minute
)

// ContractLookup resolves a chain's position manager.
type ContractLookup interface {
	PositionManagerFor(chainID uint64) (common.Address, bool)
}

// Plan is a full-range position sized against the pool's live price.
type Plan struct {
	ChainID  uint64          `json:"chain_id"`
	Position model.Position  `json:"position"`
	State    model.PoolState `json:"state"`
}

// MintOptions carries the per-request knobs of Encode. Zero values take defaults.
type MintOptions struct {
	Owner       common.Address
	SlippagePct *float64
	Deadline    time.Time
	HookData    []byte
}

// MintCall is the transaction the custody signer is asked to send.
type MintCall struct {
	ChainID     uint64         `json:"chain_id"`
	To          common.Address `json:"to"`
	Value       *big.Int       `json:"value"`
	Data        []byte         `json:"data"`
	Deadline    time.Time      `json:"deadline"`
	SlippageBps int64          `json:"slippage_bps"`
	Amount0Max  *big.Int       `json:"amount0_max"`
	Amount1Max  *big.Int       `json:"amount1_max"`
	Position    model.Position `json:"position"`
}

// Assembler sizes full-range positions and encodes mint calldata.
type Assembler struct {
	states      StateSource
	contracts   ContractLookup
	slippagePct float64
	deadline    time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// AssemblerOption customizes an Assembler.
type AssemblerOption func(*Assembler)

// WithDefaults overrides the default slippage percentage and deadline window.
// A zero slippage is honored; a non-positive deadline keeps the default.
func WithDefaults(slippagePct float64, deadline time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if slippagePct >= 0 && slippagePct < 100 {
			a.slippagePct = slippagePct
		}
		if deadline > 0 {
			a.deadline = deadline
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

func NewAssembler(states StateSource, contracts ContractLookup, logger *zap.Logger, opts ...AssemblerOption) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		states:      states,
		contracts:   contracts,
		slippagePct: DefaultSlippagePct,
		deadline:    DefaultDeadline,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Plan re-reads the pool and derives the full-range liquidity funded by the desired amounts.
// Amounts must already be in the key's canonical currency order.
func (a *Assembler) Plan(ctx context.Context, chainID uint64, key model.PoolKey, desired0, desired1 *big.Int) (Plan, error) {
	if !key.Sorted() {
		return Plan{}, fault.Validation(opAssemble, "pool key currencies are not in canonical order")
	}
	desired0, desired1 = nonNil(desired0), nonNil(desired1)
	if desired0.Sign() < 0 || desired1.Sign() < 0 {
		return Plan{}, fault.Validation(opAssemble, "amounts must not be negative")
	}
	if desired0.Sign() == 0 && desired1.Sign() == 0 {
		return Plan{}, fault.Validation(opAssemble, "at least one amount must be positive")
	}
	tickLower, tickUpper, err := FullRangeTicks(key.TickSpacing)
	if err != nil {
		return Plan{}, fault.Validation(opAssemble, "%v", err)
	}
	sqrtA, err := SqrtRatioAtTick(tickLower)
	if err != nil {
		return Plan{}, err
	}
	sqrtB, err := SqrtRatioAtTick(tickUpper)
	if err != nil {
		return Plan{}, err
	}

	state, err := a.states.ReadState(ctx, chainID, key)
	if err != nil {
		return Plan{}, err
	}
	if state == nil {
		return Plan{}, fault.NotFound(opAssemble, "pool %s/%s fee %d is not initialized", key.Currency0.Hex(), key.Currency1.Hex(), key.Fee)
	}

	liquidity := LiquidityForAmounts(state.SqrtPriceX96, sqrtA, sqrtB, desired0, desired1)
	if liquidity.Sign() == 0 {
		return Plan{}, fault.Validation(opAssemble, "amounts are too small to mint any liquidity at the current price")
	}
	if liquidity.Cmp(maxUint128) > 0 {
		return Plan{}, fault.Validation(opAssemble, "liquidity %s exceeds uint128", liquidity)
	}
	amount0, amount1 := AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)

	a.logger.Debug("position planned",
		zap.Uint64("chain_id", chainID),
		zap.String("pool_id", state.ID.Hex()),
		zap.Int32("tick", state.Tick),
		zap.String("liquidity", liquidity.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)

	return Plan{
		ChainID: chainID,
		Position: model.Position{
			Key:       key,
			TickLower: tickLower,
			TickUpper: tickUpper,
			Liquidity: liquidity,
			Amount0:   amount0,
			Amount1:   amount1,
		},
		State: *state,
	}, nil
}

// Encode builds modifyLiquidities calldata for plan with slippage-bounded maxima.
func (a *Assembler) Encode(plan Plan, opts MintOptions) (MintCall, error) {
	positionManager, ok := a.contracts.PositionManagerFor(plan.ChainID)
	if !ok {
		return MintCall{}, fault.NotFound(opAssemble, "chain %d is not supported", plan.ChainID)
	}
	if opts.Owner == (common.Address{}) {
		return MintCall{}, fault.Validation(opAssemble, "owner address is required")
	}
	slippage := a.slippagePct
	if opts.SlippagePct != nil {
		slippage = *opts.SlippagePct
	}
	bps, err := SlippageBps(slippage)
	if err != nil {
		return MintCall{}, fault.Validation(opAssemble, "%v", err)
	}
	deadline := opts.Deadline
	if deadline.IsZero() {
		deadline = a.now().Add(a.deadline)
	}

	pos := plan.Position
	amount0Max := WithSlippage(pos.Amount0, bps)
	amount1Max := WithSlippage(pos.Amount1, bps)
	if amount0Max.Cmp(maxUint128) > 0 || amount1Max.Cmp(maxUint128) > 0 {
		return MintCall{}, fault.Validation(opAssemble, "amount maximum exceeds uint128")
	}

	data, err := EncodeMint(pos, amount0Max, amount1Max, opts.Owner, opts.HookData, deadline)
	if err != nil {
		return MintCall{}, err
	}

	value := new(big.Int)
	if model.IsNative(pos.Key.Currency0) {
		value.Set(amount0Max)
	}
	return MintCall{
		ChainID:     plan.ChainID,
		To:          positionManager,
		Value:       value,
		Data:        data,
		Deadline:    deadline,
		SlippageBps: bps,
		Amount0Max:  amount0Max,
		Amount1Max:  amount1Max,
		Position:    pos,
	}, nil
}

// Assemble is Plan followed by Encode.
func (a *Assembler) Assemble(ctx context.Context, chainID uint64, key model.PoolKey, desired0, desired1 *big.Int, opts MintOptions) (MintCall, error) {
	plan, err := a.Plan(ctx, chainID, key, desired0, desired1)
	if err != nil {
		return MintCall{}, err
	}
	return a.Encode(plan, opts)
}

var (
	mintArgs, pairArgs, unlockArgs abi.Arguments
	mintArgsOnce                   sync.Once
	mintArgsErr                    error
)

func newArguments(typeNames ...string) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			return nil, fmt.Errorf("abi type %s: %w", name, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

func actionArguments() error {
	mintArgsOnce.Do(func() {
		// PoolKey is a static tuple, so its fields encode inline.
		mintArgs, mintArgsErr = newArguments(
			"address", "address", "uint24", "int24", "address",
			"int24", "int24", "uint256", "uint128", "uint128", "address", "bytes",
		)
		if mintArgsErr != nil {
			return
		}
		pairArgs, mintArgsErr = newArguments("address", "address")
		if mintArgsErr != nil {
			return
		}
		unlockArgs, mintArgsErr = newArguments("bytes", "bytes[]")
	})
	return mintArgsErr
}

// EncodeMint returns modifyLiquidities(unlockData, deadline) calldata for
// MINT_POSITION + SETTLE_PAIR, plus SWEEP of the native currency back to owner.
func EncodeMint(pos model.Position, amount0Max, amount1Max *big.Int, owner common.Address, hookData []byte, deadline time.Time) ([]byte, error) {
	if err := actionArguments(); err != nil {
		return nil, err
	}
	if hookData == nil {
		hookData = []byte{}
	}
	key := pos.Key
	mint, err := mintArgs.Pack(
		key.Currency0,
		key.Currency1,
		new(big.Int).SetUint64(uint64(key.Fee)),
		big.NewInt(int64(key.TickSpacing)),
		key.Hooks,
		big.NewInt(int64(pos.TickLower)),
		big.NewInt(int64(pos.TickUpper)),
		pos.Liquidity,
		amount0Max,
		amount1Max,
		owner,
		hookData,
	)
	if err != nil {
		return nil, fmt.Errorf("encode mint params: %w", err)
	}
	settle, err := pairArgs.Pack(key.Currency0, key.Currency1)
	if err != nil {
		return nil, fmt.Errorf("encode settle params: %w", err)
	}

	actions := []byte{ActionMintPosition, ActionSettlePair}
	params := [][]byte{mint, settle}
	if model.IsNative(key.Currency0) {
		sweep, err := pairArgs.Pack(key.Currency0, owner)
		if err != nil {
			return nil, fmt.Errorf("encode sweep params: %w", err)
		}
		actions = append(actions, ActionSweep)
		params = append(params, sweep)
	}

	unlockData, err := unlockArgs.Pack(actions, params)
	if err != nil {
		return nil, fmt.Errorf("encode unlock data: %w", err)
	}
	pm, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	return pm.Pack("modifyLiquidities", unlockData, big.NewInt(deadline.Unix()))
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
