package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/chain"
)

// Permit2 allowances are uint160 amounts with a uint48 expiration.
var (
	MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	MaxUint256 = new(big.Int).Set(maxUint256)
	maxUint48  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 48), big.NewInt(1))
)

// EncodeERC20Approve returns approve(spender, amount) calldata.
func EncodeERC20Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("approve amount out of uint256 range")
	}
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return erc20.Pack("approve", spender, amount)
}

// EncodePermit2Approve returns Permit2 approve(token, spender, amount, expiration) calldata.
func EncodePermit2Approve(token, spender common.Address, amount *big.Int, expiration time.Time) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(MaxUint160) > 0 {
		return nil, fmt.Errorf("permit2 amount out of uint160 range")
	}
	exp := big.NewInt(expiration.Unix())
	if exp.Sign() <= 0 || exp.Cmp(maxUint48) > 0 {
		return nil, fmt.Errorf("permit2 expiration out of uint48 range")
	}
	permit2, err := Permit2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse permit2 abi: %w", err)
	}
	return permit2.Pack("approve", token, spender, amount, exp)
}

// Permit2Allowance reads the Permit2 allowance owner granted spender for token.
func Permit2Allowance(ctx context.Context, caller chain.Caller, chainID uint64, permit2, owner, token, spender common.Address) (*big.Int, time.Time, error) {
	parsed, err := Permit2ABI()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse permit2 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, chainID, permit2, parsed, "allowance", owner, token, spender)
	if err != nil {
		return nil, time.Time{}, err
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("permit2 amount: %w", err)
	}
	exp, err := asBigInt(values[1])
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("permit2 expiration: %w", err)
	}
	return amount, time.Unix(exp.Int64(), 0), nil
}
