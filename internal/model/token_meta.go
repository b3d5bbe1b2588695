package model

import "github.com/ethereum/go-ethereum/common"

// NativeAddress is the pseudo-address used for the chain's native asset.
var NativeAddress = common.Address{}

// NativeDecimals is the decimals of every supported native asset.
const NativeDecimals uint8 = 18

// TokenInfo captures ERC20 metadata.
type TokenInfo struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// IsNative reports whether addr is the native-asset sentinel.
func IsNative(addr common.Address) bool {
	return addr == NativeAddress
}
