package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
	"lpgateway/internal/preflight"
)

const opMint = "mint"

// MintInput is a full-range mint in the caller's token order. AmountA is denominated in TokenA.
type MintInput struct {
	UserID      string
	ChainID     uint64
	TokenA      string
	TokenB      string
	AmountA     string
	AmountB     string
	Fee         *uint32
	TickSpacing *int32
	Hooks       string
	SlippagePct *float64
	Deadline    time.Duration
}

type MintResult struct {
	TxHash     common.Hash     `json:"tx_hash"`
	WalletID   string          `json:"wallet_id"`
	Owner      common.Address  `json:"owner"`
	PoolID     common.Hash     `json:"pool_id"`
	Position   model.Position  `json:"position"`
	Token0     model.TokenInfo `json:"token0"`
	Token1     model.TokenInfo `json:"token1"`
	Amount0Max *big.Int        `json:"amount0_max"`
	Amount1Max *big.Int        `json:"amount1_max"`
	Value      *big.Int        `json:"value"`
	Deadline   time.Time       `json:"deadline"`
}

// Mint discovers the pool, sizes a full-range position at the live price, checks the wallet can
// fund and has authorized the slippage-bounded maxima, then submits through custody.
func (s *Service) Mint(ctx context.Context, in MintInput) (res MintResult, err error) {
	defer func(start time.Time) { s.observe(opMint, start, err) }(time.Now())

	if err := s.gate.Ready(); err != nil {
		return MintResult{}, err
	}
	if in.Deadline < 0 {
		return MintResult{}, fault.Validation(opMint, "deadline must be positive")
	}
	req, err := s.discoverRequest(opMint, DiscoverInput{
		ChainID:     in.ChainID,
		TokenA:      in.TokenA,
		TokenB:      in.TokenB,
		Fee:         in.Fee,
		TickSpacing: in.TickSpacing,
		Hooks:       in.Hooks,
	})
	if err != nil {
		return MintResult{}, err
	}

	wallet, err := s.wallets.Resolve(ctx, in.UserID)
	if err != nil {
		return MintResult{}, err
	}

	found, err := s.discoverer.Discover(ctx, req)
	if err != nil {
		return MintResult{}, err
	}
	if !found.Exists {
		return MintResult{}, fault.NotFound(opMint, "no pool for %s/%s on chain %d", found.Token0.Symbol, found.Token1.Symbol, in.ChainID)
	}

	// amounts arrive in caller order; the pool key is canonical
	rawA, rawB := in.AmountA, in.AmountB
	if found.Swapped {
		rawA, rawB = rawB, rawA
	}
	desired0, err := dex.ToBaseUnits(rawA, found.Token0.Decimals)
	if err != nil {
		return MintResult{}, fault.Validation(opMint, "%s: %v", found.Token0.Symbol, err)
	}
	desired1, err := dex.ToBaseUnits(rawB, found.Token1.Decimals)
	if err != nil {
		return MintResult{}, fault.Validation(opMint, "%s: %v", found.Token1.Symbol, err)
	}

	plan, err := s.assembler.Plan(ctx, in.ChainID, found.PoolKey, desired0, desired1)
	if err != nil {
		return MintResult{}, err
	}
	opts := dex.MintOptions{Owner: wallet.Address, SlippagePct: in.SlippagePct}
	if in.Deadline > 0 {
		opts.Deadline = s.now().Add(in.Deadline)
	}
	call, err := s.assembler.Encode(plan, opts)
	if err != nil {
		return MintResult{}, err
	}

	legs := []preflight.Leg{
		{Name: "token0", Token: found.Token0, Required: call.Amount0Max},
		{Name: "token1", Token: found.Token1, Required: call.Amount1Max},
	}
	if err := s.preflight.CheckLegs(ctx, in.ChainID, wallet.Address, legs); err != nil {
		return MintResult{}, err
	}

	hash, err := s.custody.SendTransaction(ctx, custody.TxRequest{
		WalletID: wallet.ID,
		ChainID:  in.ChainID,
		To:       call.To,
		Value:    call.Value,
		Data:     call.Data,
	})
	if err != nil {
		return MintResult{}, err
	}

	s.logger.Info("mint submitted",
		zap.Uint64("chain_id", in.ChainID),
		zap.String("wallet_id", wallet.ID),
		zap.String("pool_id", found.PoolID.Hex()),
		zap.String("liquidity", call.Position.Liquidity.String()),
		zap.String("tx_hash", hash.Hex()),
	)
	return MintResult{
		TxHash:     hash,
		WalletID:   wallet.ID,
		Owner:      wallet.Address,
		PoolID:     found.PoolID,
		Position:   call.Position,
		Token0:     found.Token0,
		Token1:     found.Token1,
		Amount0Max: call.Amount0Max,
		Amount1Max: call.Amount1Max,
		Value:      call.Value,
		Deadline:   call.Deadline,
	}, nil
}
