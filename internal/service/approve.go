package service

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
	"lpgateway/internal/preflight"
)

const (
	opApprove = "approve"

	// AmountUnlimited requests the largest allowance the spender accepts.
	AmountUnlimited = "unlimited"

	permit2Expiry = 30 * 24 * time.Hour
)

var maxUint256 = new(uint256.Int).SetAllOne()

type ApproveInput struct {
	UserID  string
	ChainID uint64
	Token   string
	Amount  string
	// Spender is preflight.SpenderPermit2 (default) or preflight.SpenderPositionManager.
	Spender string
}

type ApproveResult struct {
	TxHash     common.Hash    `json:"tx_hash"`
	WalletID   string         `json:"wallet_id"`
	Token      common.Address `json:"token"`
	Symbol     string         `json:"symbol"`
	Spender    common.Address `json:"spender"`
	Amount     *big.Int       `json:"amount"`
	Expiration *time.Time     `json:"expiration,omitempty"`
}

// Approve submits an allowance transaction for one token. It bypasses pool discovery and assembly.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (res ApproveResult, err error) {
	defer func(start time.Time) { s.observe(opApprove, start, err) }(time.Now())

	if err := s.gate.Ready(); err != nil {
		return ApproveResult{}, err
	}
	if err := s.requireChain(opApprove, in.ChainID); err != nil {
		return ApproveResult{}, err
	}
	chainCfg, _ := s.registry.Get(in.ChainID)
	token, err := s.parseToken(opApprove, in.ChainID, in.Token)
	if err != nil {
		return ApproveResult{}, err
	}
	if model.IsNative(token) {
		return ApproveResult{}, fault.Validation(opApprove, "the native asset needs no approval")
	}
	spenderName := strings.ToLower(strings.TrimSpace(in.Spender))
	if spenderName == "" {
		spenderName = preflight.SpenderPermit2
	}
	if spenderName != preflight.SpenderPermit2 && spenderName != preflight.SpenderPositionManager {
		return ApproveResult{}, fault.Validation(opApprove, "unknown spender %q", in.Spender)
	}

	wallet, err := s.wallets.Resolve(ctx, in.UserID)
	if err != nil {
		return ApproveResult{}, err
	}
	info, err := s.tokens.Resolve(ctx, in.ChainID, token)
	if err != nil {
		return ApproveResult{}, err
	}
	amount, err := approvalAmount(in.Amount, info.Decimals, spenderName)
	if err != nil {
		return ApproveResult{}, err
	}

	out := ApproveResult{WalletID: wallet.ID, Token: token, Symbol: info.Symbol, Amount: amount}
	var (
		to   common.Address
		data []byte
	)
	switch spenderName {
	case preflight.SpenderPermit2:
		to = token
		out.Spender = chainCfg.Permit2
		data, err = dex.EncodeERC20Approve(chainCfg.Permit2, amount)
	default:
		expiration := s.now().Add(permit2Expiry)
		to = chainCfg.Permit2
		out.Spender = chainCfg.PositionManager
		out.Expiration = &expiration
		data, err = dex.EncodePermit2Approve(token, chainCfg.PositionManager, amount, expiration)
	}
	if err != nil {
		return ApproveResult{}, fault.Validation(opApprove, "%v", err)
	}

	hash, err := s.custody.SendTransaction(ctx, custody.TxRequest{
		WalletID: wallet.ID,
		ChainID:  in.ChainID,
		To:       to,
		Value:    new(big.Int),
		Data:     data,
	})
	if err != nil {
		return ApproveResult{}, err
	}
	out.TxHash = hash
	s.logger.Info("approval submitted",
		zap.Uint64("chain_id", in.ChainID),
		zap.String("wallet_id", wallet.ID),
		zap.String("token", token.Hex()),
		zap.String("spender", spenderName),
		zap.String("tx_hash", hash.Hex()),
	)
	return out, nil
}

// approvalAmount resolves "unlimited" to the spender's maximum and converts anything else from
// human units.
func approvalAmount(raw string, decimals uint8, spender string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	limit := maxUint256.ToBig()
	if spender == preflight.SpenderPositionManager {
		limit = new(big.Int).Set(dex.MaxUint160)
	}
	if strings.EqualFold(raw, AmountUnlimited) {
		return limit, nil
	}
	amount, err := dex.ToBaseUnits(raw, decimals)
	if err != nil {
		return nil, fault.Validation(opApprove, "%v", err)
	}
	if amount.Sign() == 0 {
		return nil, fault.Validation(opApprove, "amount must be positive")
	}
	if amount.Cmp(limit) > 0 {
		return nil, fault.Validation(opApprove, "amount exceeds the %s maximum", spender)
	}
	return amount, nil
}
