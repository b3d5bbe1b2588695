package dex

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"lpgateway/internal/model"
)

var (
	poolKeyArgs     abi.Arguments
	poolKeyArgsOnce sync.Once
	poolKeyArgsErr  error
)

func poolKeyArguments() (abi.Arguments, error) {
	poolKeyArgsOnce.Do(func() {
		var types [5]abi.Type
		for i, name := range []string{"address", "address", "uint24", "int24", "address"} {
			types[i], poolKeyArgsErr = abi.NewType(name, "", nil)
			if poolKeyArgsErr != nil {
				return
			}
		}
		for _, typ := range types {
			poolKeyArgs = append(poolKeyArgs, abi.Argument{Type: typ})
		}
	})
	return poolKeyArgs, poolKeyArgsErr
}

// EncodePoolKey returns abi.encode(currency0, currency1, fee, tickSpacing, hooks).
func EncodePoolKey(key model.PoolKey) ([]byte, error) {
	args, err := poolKeyArguments()
	if err != nil {
		return nil, fmt.Errorf("pool key abi: %w", err)
	}
	return args.Pack(
		key.Currency0,
		key.Currency1,
		new(big.Int).SetUint64(uint64(key.Fee)),
		big.NewInt(int64(key.TickSpacing)),
		key.Hooks,
	)
}

// PoolID returns keccak256 of the ABI-encoded pool key.
func PoolID(key model.PoolKey) (common.Hash, error) {
	encoded, err := EncodePoolKey(key)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
