package preflight

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lpgateway/internal/chain"
	"lpgateway/internal/config"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

const opPreflight = "preflight"

// Spender names used in ApprovalNeeded.
const (
	SpenderPermit2         = "permit2"
	SpenderPositionManager = "position_manager"
)

// Unlimited is the allowance reported for the native asset.
var Unlimited = new(uint256.Int).SetAllOne().ToBig()

// Leg is one token of a position with the exact amount the transaction may pull.
type Leg struct {
	Name     string
	Token    model.TokenInfo
	Required *big.Int
}

// BalanceResult reports a balance check. Insufficient funds is a result, not an error.
type BalanceResult struct {
	Sufficient bool     `json:"sufficient"`
	Balance    *big.Int `json:"balance"`
	Required   *big.Int `json:"required"`
}

// Shortfall describes a leg whose wallet balance is below the required amount.
type Shortfall struct {
	Leg       string         `json:"leg"`
	Symbol    string         `json:"symbol"`
	Token     common.Address `json:"token"`
	Decimals  uint8          `json:"decimals"`
	Required  *big.Int       `json:"required"`
	Available *big.Int       `json:"available"`
}

func (s *Shortfall) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %s, need %s",
		s.Symbol, dex.FormatAmount(s.Available, s.Decimals), dex.FormatAmount(s.Required, s.Decimals))
}

// ApprovalNeeded describes a leg whose allowance for spender does not cover the required amount.
type ApprovalNeeded struct {
	Leg         string         `json:"leg"`
	Symbol      string         `json:"symbol"`
	Token       common.Address `json:"token"`
	Spender     common.Address `json:"spender"`
	SpenderName string         `json:"spender_name"`
	Required    *big.Int       `json:"required"`
	Allowance   *big.Int       `json:"allowance"`
	Expired     bool           `json:"expired,omitempty"`
}

func (a *ApprovalNeeded) Error() string {
	if a.Expired {
		return fmt.Sprintf("%s approval for %s has expired", a.Symbol, a.SpenderName)
	}
	return fmt.Sprintf("%s needs approval for %s", a.Symbol, a.SpenderName)
}

// Validator checks wallet balances and allowances before a mint is attempted.
type Validator struct {
	callers  chain.Callers
	registry *config.ChainRegistry
	now      func() time.Time
	logger   *zap.Logger
}

func NewValidator(callers chain.Callers, registry *config.ChainRegistry, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{callers: callers, registry: registry, now: time.Now, logger: logger}
}

func (v *Validator) caller(chainID uint64) (chain.Caller, config.ChainConfig, error) {
	chainCfg, ok := v.registry.Get(chainID)
	if !ok {
		return nil, config.ChainConfig{}, fault.NotFound(opPreflight, "chain %d is not supported", chainID)
	}
	caller, err := v.callers.Caller(chainID)
	if err != nil {
		return nil, config.ChainConfig{}, fault.Wrap(fault.KindTransient, opPreflight, chainID, err)
	}
	return caller, chainCfg, nil
}

// CheckBalance compares the wallet's balance of token against required.
func (v *Validator) CheckBalance(ctx context.Context, chainID uint64, wallet, token common.Address, required *big.Int) (BalanceResult, error) {
	caller, _, err := v.caller(chainID)
	if err != nil {
		return BalanceResult{}, err
	}
	balance, err := dex.BalanceOf(ctx, caller, chainID, token, wallet)
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{
		Sufficient: balance.Cmp(required) >= 0,
		Balance:    balance,
		Required:   new(big.Int).Set(required),
	}, nil
}

// CheckAllowance returns the ERC20 allowance wallet granted spender.
// The native asset has no allowance concept and reports Unlimited without a read.
func (v *Validator) CheckAllowance(ctx context.Context, chainID uint64, wallet, token, spender common.Address) (*big.Int, error) {
	if model.IsNative(token) {
		return new(big.Int).Set(Unlimited), nil
	}
	caller, _, err := v.caller(chainID)
	if err != nil {
		return nil, err
	}
	return dex.Allowance(ctx, caller, chainID, token, wallet, spender)
}

// CheckLegs verifies every leg's balance, then every ERC20 leg's allowance chain
// (token -> Permit2 -> position manager). Reads within each phase run concurrently;
// the surfaced error is the first failing leg in order.
func (v *Validator) CheckLegs(ctx context.Context, chainID uint64, wallet common.Address, legs []Leg) error {
	caller, chainCfg, err := v.caller(chainID)
	if err != nil {
		return err
	}

	balances := make([]*big.Int, len(legs))
	errs := make([]error, len(legs))
	var g errgroup.Group
	for i, leg := range legs {
		if leg.Required == nil || leg.Required.Sign() == 0 {
			continue
		}
		i, leg := i, leg
		g.Go(func() error {
			balances[i], errs[i] = dex.BalanceOf(ctx, caller, chainID, leg.Token.Address, wallet)
			return errs[i]
		})
	}
	_ = g.Wait()
	for i, leg := range legs {
		if errs[i] != nil {
			return legError(errs[i], leg.Name)
		}
		if balances[i] == nil {
			continue
		}
		if balances[i].Cmp(leg.Required) < 0 {
			shortfall := &Shortfall{
				Leg:       leg.Name,
				Symbol:    leg.Token.Symbol,
				Token:     leg.Token.Address,
				Decimals:  leg.Token.Decimals,
				Required:  new(big.Int).Set(leg.Required),
				Available: balances[i],
			}
			return &fault.Error{Kind: fault.KindInsufficientFunds, Op: opPreflight, ChainID: chainID, Leg: leg.Name, Err: shortfall}
		}
	}

	needs := make([]*ApprovalNeeded, len(legs))
	errs = make([]error, len(legs))
	var ag errgroup.Group
	for i, leg := range legs {
		if leg.Required == nil || leg.Required.Sign() == 0 || model.IsNative(leg.Token.Address) {
			continue
		}
		i, leg := i, leg
		ag.Go(func() error {
			needs[i], errs[i] = v.checkApprovals(ctx, caller, chainCfg, wallet, leg)
			return errs[i]
		})
	}
	_ = ag.Wait()
	for i, leg := range legs {
		if errs[i] != nil {
			return legError(errs[i], leg.Name)
		}
		if needs[i] != nil {
			return &fault.Error{Kind: fault.KindNotApproved, Op: opPreflight, ChainID: chainID, Leg: leg.Name, Err: needs[i]}
		}
	}
	return nil
}

func (v *Validator) checkApprovals(ctx context.Context, caller chain.Caller, chainCfg config.ChainConfig, wallet common.Address, leg Leg) (*ApprovalNeeded, error) {
	token := leg.Token.Address
	allowance, err := dex.Allowance(ctx, caller, chainCfg.ID, token, wallet, chainCfg.Permit2)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(leg.Required) < 0 {
		return &ApprovalNeeded{
			Leg:         leg.Name,
			Symbol:      leg.Token.Symbol,
			Token:       token,
			Spender:     chainCfg.Permit2,
			SpenderName: SpenderPermit2,
			Required:    new(big.Int).Set(leg.Required),
			Allowance:   allowance,
		}, nil
	}

	amount, expiration, err := dex.Permit2Allowance(ctx, caller, chainCfg.ID, chainCfg.Permit2, wallet, token, chainCfg.PositionManager)
	if err != nil {
		return nil, err
	}
	// permit2 rejects only once block.timestamp > expiration
	expired := expiration.Before(v.now())
	if amount.Cmp(leg.Required) < 0 || expired {
		return &ApprovalNeeded{
			Leg:         leg.Name,
			Symbol:      leg.Token.Symbol,
			Token:       token,
			Spender:     chainCfg.PositionManager,
			SpenderName: SpenderPositionManager,
			Required:    new(big.Int).Set(leg.Required),
			Allowance:   amount,
			Expired:     expired && amount.Cmp(leg.Required) >= 0,
		}, nil
	}
	return nil, nil
}

func legError(err error, leg string) error {
	if fe, ok := err.(*fault.Error); ok && fe.Leg == "" {
		cp := *fe
		cp.Leg = leg
		return &cp
	}
	return err
}
