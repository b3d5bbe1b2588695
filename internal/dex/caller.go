package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/chain"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

var errMalformed = errors.New("malformed response")

// callMethod packs, calls and unpacks one view method. Revert and empty return data
// become fault.KindContract, transport failures and undecodable results fault.KindTransient.
func callMethod(ctx context.Context, caller chain.Caller, chainID uint64, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err := fault.ClassifyCall(method, chainID, err, resp); err != nil {
		return nil, err
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, &fault.Error{Kind: fault.KindTransient, Op: method, ChainID: chainID, Err: fmt.Errorf("%w: %v", errMalformed, err)}
	}
	return values, nil
}

// BalanceOf returns the ERC20 balance of owner, or the native balance for the native sentinel.
func BalanceOf(ctx context.Context, caller chain.Caller, chainID uint64, token, owner common.Address) (*big.Int, error) {
	if model.IsNative(token) {
		bal, err := caller.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fault.Wrap(fault.KindTransient, "eth_getBalance", chainID, err)
		}
		return bal, nil
	}
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, chainID, token, erc20, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance returns the ERC20 allowance owner granted spender.
func Allowance(ctx context.Context, caller chain.Caller, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, chainID, token, erc20, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
