package dex

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/chain/chaintest"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

func erc20Caller(t *testing.T, symbol string, decimals uint8) *chaintest.Caller {
	t.Helper()
	erc20, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	return chaintest.NewCaller().
		Handle(erc20.Methods["decimals"], func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{decimals}, nil
		}).
		Handle(erc20.Methods["symbol"], func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{symbol}, nil
		})
}

func TestTokenMetaCacheMemoizes(t *testing.T) {
	caller := erc20Caller(t, "USDC", 6)
	cache := NewTokenMetaCache(chaintest.Callers{8453: caller}, testRegistry(t), nil)

	for i := 0; i < 3; i++ {
		info, err := cache.Resolve(context.Background(), 8453, usdc)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if info.Symbol != "USDC" || info.Decimals != 6 || info.Address != usdc {
			t.Fatalf("info mismatch: %+v", info)
		}
	}
	if n := caller.Calls("decimals()"); n != 1 {
		t.Fatalf("decimals called %d times", n)
	}

	// same address parsed from lowercase hex hits the cache
	lower := common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	if _, err := cache.Resolve(context.Background(), 8453, lower); err != nil {
		t.Fatalf("resolve lower: %v", err)
	}
	if n := caller.Calls("decimals()"); n != 1 {
		t.Fatalf("lowercase lookup missed the cache")
	}
}

func TestTokenMetaCacheNativeShortcut(t *testing.T) {
	caller := chaintest.NewCaller()
	cache := NewTokenMetaCache(chaintest.Callers{8453: caller}, testRegistry(t), nil)

	info, err := cache.Resolve(context.Background(), 8453, model.NativeAddress)
	if err != nil {
		t.Fatalf("resolve native: %v", err)
	}
	if info.Symbol != "ETH" || info.Decimals != 18 {
		t.Fatalf("native info mismatch: %+v", info)
	}
	if caller.TotalCalls() != 0 {
		t.Fatalf("native lookup must not touch the chain")
	}
}

func TestTokenMetaCacheBytes32Symbol(t *testing.T) {
	erc20, _ := ERC20ABI()
	legacy, err := erc20ABIBytes32Instance()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	var sym [32]byte
	copy(sym[:], "MKR")
	caller := chaintest.NewCaller().
		Handle(erc20.Methods["decimals"], func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{uint8(18)}, nil
		}).
		Handle(legacy.Methods["symbol"], func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{sym}, nil
		})
	cache := NewTokenMetaCache(chaintest.Callers{8453: caller}, testRegistry(t), nil)

	info, err := cache.Resolve(context.Background(), 8453, usdc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if info.Symbol != "MKR" {
		t.Fatalf("symbol: %q", info.Symbol)
	}
}

func TestTokenMetaCacheErrors(t *testing.T) {
	notAContract := chaintest.NewCaller()
	cache := NewTokenMetaCache(chaintest.Callers{8453: notAContract}, testRegistry(t), nil)
	if _, err := cache.Resolve(context.Background(), 8453, usdc); !fault.Is(err, fault.KindContract) {
		t.Fatalf("expected contract error, got %v", err)
	}

	erc20, _ := ERC20ABI()
	fail := true
	caller := chaintest.NewCaller().
		Handle(erc20.Methods["decimals"], func(common.Address, []interface{}) ([]interface{}, error) {
			if fail {
				return nil, errors.New("connection reset by peer")
			}
			return []interface{}{uint8(6)}, nil
		}).
		Handle(erc20.Methods["symbol"], func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{"USDC"}, nil
		})
	cache = NewTokenMetaCache(chaintest.Callers{8453: caller}, testRegistry(t), nil)
	if _, err := cache.Resolve(context.Background(), 8453, usdc); !fault.Is(err, fault.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	fail = false
	if info, err := cache.Resolve(context.Background(), 8453, usdc); err != nil || info.Decimals != 6 {
		t.Fatalf("failure must not be cached: %+v %v", info, err)
	}

	if _, err := cache.Resolve(context.Background(), 1, usdc); !fault.Is(err, fault.KindNotFound) {
		t.Fatalf("unsupported chain: %v", err)
	}
}

func TestTokenMetaCacheResolvePair(t *testing.T) {
	caller := erc20Caller(t, "USDC", 6)
	cache := NewTokenMetaCache(chaintest.Callers{8453: caller}, testRegistry(t), nil)
	info0, info1, err := cache.ResolvePair(context.Background(), 8453, model.NativeAddress, usdc)
	if err != nil {
		t.Fatalf("resolve pair: %v", err)
	}
	if info0.Symbol != "ETH" || info1.Symbol != "USDC" {
		t.Fatalf("pair mismatch: %+v %+v", info0, info1)
	}
}
