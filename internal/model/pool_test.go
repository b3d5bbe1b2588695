package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewPoolKeySortsCaseInsensitive(t *testing.T) {
	lower := common.HexToAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	upper := common.HexToAddress("0x4200000000000000000000000000000000000006")

	key, swapped := NewPoolKey(lower, upper, 500, 10, common.Address{})
	if !swapped {
		t.Fatalf("expected swap")
	}
	if key.Currency0 != upper || key.Currency1 != lower {
		t.Fatalf("currency order mismatch: %+v", key)
	}
	if !key.Sorted() {
		t.Fatalf("key should be sorted")
	}

	again, swapped := NewPoolKey(upper, lower, 500, 10, common.Address{})
	if swapped || again != key {
		t.Fatalf("reverse input should give the same key")
	}
}

func TestNativeSortsFirst(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000001")
	key, _ := NewPoolKey(token, NativeAddress, 3000, 60, common.Address{})
	if !IsNative(key.Currency0) {
		t.Fatalf("native should be currency0")
	}
}
