package config

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Permit2Address is the canonical Permit2 deployment, identical on every supported chain.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// ChainConfig is the static per-chain configuration. It is never mutated after start.
type ChainConfig struct {
	ID              uint64         `json:"id"`
	Name            string         `json:"name"`
	NativeSymbol    string         `json:"native_symbol"`
	PoolManager     common.Address `json:"pool_manager"`
	PositionManager common.Address `json:"position_manager"`
	StateView       common.Address `json:"state_view"`
	Permit2         common.Address `json:"permit2"`
	RPCURL          string         `json:"-"`
	IndexURL        string         `json:"-"`
}

var builtinChains = []ChainEntry{
	{
		ID:              1,
		Name:            "Ethereum",
		NativeSymbol:    "ETH",
		PoolManager:     "0x000000000004444c5dc75cB358380D2e3dE08A90",
		PositionManager: "0xbD216513d74C8cf14cf4747E6AaA6420FF64ee9e",
		StateView:       "0x7fFE42C4a5DEeA5b0feC41C94C136Cf115597227",
		Permit2:         Permit2Address,
	},
	{
		ID:              8453,
		Name:            "Base",
		NativeSymbol:    "ETH",
		PoolManager:     "0x498581fF718922c3f8e6A244956aF099B2652b2b",
		PositionManager: "0x7C5f5A4bBd8fD63184577525326123B519429bDc",
		StateView:       "0xA3c0c9b65baD0b08107Aa264b0f3dB444b867A71",
		Permit2:         Permit2Address,
	},
	{
		ID:              42161,
		Name:            "Arbitrum One",
		NativeSymbol:    "ETH",
		PoolManager:     "0x360E68faCcca8cA495c1B759Fd9EEe466db9FB32",
		PositionManager: "0xd88F38F930b7952f2DB2432Cb002E7abbF3dD869",
		StateView:       "0x76Fd297e2D437cd7f76d50F01AfE6160f86e9990",
		Permit2:         Permit2Address,
	},
}

// ChainRegistry is the immutable set of supported chains.
type ChainRegistry struct {
	byID map[uint64]ChainConfig
	ids  []uint64
}

// NewChainRegistry merges built-in chains with config entries, applies RPC/index overrides
// and narrows to EnabledChains when set. Every resulting chain needs an RPC URL.
func NewChainRegistry(cfg Config) (*ChainRegistry, error) {
	entries := make(map[uint64]ChainEntry, len(builtinChains)+len(cfg.Chains))
	for _, entry := range builtinChains {
		entries[entry.ID] = entry
	}
	for _, entry := range cfg.Chains {
		if entry.ID == 0 {
			return nil, fmt.Errorf("chain entry without id")
		}
		entries[entry.ID] = mergeEntry(entries[entry.ID], entry)
	}

	enabled := make(map[uint64]bool, len(cfg.EnabledChains))
	for _, raw := range cfg.EnabledChains {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid enabled chain %q: %w", raw, err)
		}
		if _, ok := entries[id]; !ok {
			return nil, fmt.Errorf("enabled chain %d is not configured", id)
		}
		enabled[id] = true
	}

	reg := &ChainRegistry{byID: make(map[uint64]ChainConfig)}
	for id, entry := range entries {
		if len(enabled) > 0 && !enabled[id] {
			continue
		}
		key := strconv.FormatUint(id, 10)
		if rpcURL, ok := cfg.RPC[key]; ok {
			entry.RPC = rpcURL
		}
		if indexURL, ok := cfg.IndexURL[key]; ok {
			entry.IndexURL = indexURL
		}
		if entry.RPC == "" {
			if enabled[id] || hasEntry(cfg.Chains, id) {
				return nil, fmt.Errorf("chain %d: rpc url is required", id)
			}
			// built-in chain that nobody asked for
			continue
		}
		chainCfg, err := entry.build()
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", id, err)
		}
		reg.byID[id] = chainCfg
		reg.ids = append(reg.ids, id)
	}
	if len(reg.ids) == 0 {
		return nil, fmt.Errorf("no chain configured with an rpc url")
	}
	sort.Slice(reg.ids, func(i, j int) bool { return reg.ids[i] < reg.ids[j] })
	return reg, nil
}

// Get returns the chain config for id.
func (r *ChainRegistry) Get(id uint64) (ChainConfig, bool) {
	cfg, ok := r.byID[id]
	return cfg, ok
}

// Supports reports whether id is configured.
func (r *ChainRegistry) Supports(id uint64) bool {
	_, ok := r.byID[id]
	return ok
}

// PositionManagerFor returns the position manager of chain id.
func (r *ChainRegistry) PositionManagerFor(id uint64) (common.Address, bool) {
	cfg, ok := r.byID[id]
	return cfg.PositionManager, ok
}

// IDs returns the supported chain ids in ascending order.
func (r *ChainRegistry) IDs() []uint64 {
	out := make([]uint64, len(r.ids))
	copy(out, r.ids)
	return out
}

// Chains returns every chain config ordered by id.
func (r *ChainRegistry) Chains() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// AllowedContracts returns the deduplicated, sorted set of contracts the signer may call:
// pool manager, position manager, state view and the Permit2 approval spender of every chain.
func (r *ChainRegistry) AllowedContracts() []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for _, id := range r.ids {
		cfg := r.byID[id]
		for _, addr := range []common.Address{cfg.PoolManager, cfg.PositionManager, cfg.StateView, cfg.Permit2} {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}

func hasEntry(entries []ChainEntry, id uint64) bool {
	for _, entry := range entries {
		if entry.ID == id {
			return true
		}
	}
	return false
}

func mergeEntry(base, override ChainEntry) ChainEntry {
	base.ID = override.ID
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.RPC != "" {
		base.RPC = override.RPC
	}
	if override.IndexURL != "" {
		base.IndexURL = override.IndexURL
	}
	if override.PoolManager != "" {
		base.PoolManager = override.PoolManager
	}
	if override.PositionManager != "" {
		base.PositionManager = override.PositionManager
	}
	if override.StateView != "" {
		base.StateView = override.StateView
	}
	if override.Permit2 != "" {
		base.Permit2 = override.Permit2
	}
	if override.NativeSymbol != "" {
		base.NativeSymbol = override.NativeSymbol
	}
	return base
}

func (e ChainEntry) build() (ChainConfig, error) {
	permit2 := e.Permit2
	if permit2 == "" {
		permit2 = Permit2Address
	}
	symbol := e.NativeSymbol
	if symbol == "" {
		symbol = "ETH"
	}
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("chain-%d", e.ID)
	}

	addrs := make([]common.Address, 4)
	for i, raw := range []struct{ label, value string }{
		{"pool-manager", e.PoolManager},
		{"position-manager", e.PositionManager},
		{"state-view", e.StateView},
		{"permit2", permit2},
	} {
		addr, err := ParseAddress(raw.value)
		if err != nil {
			return ChainConfig{}, fmt.Errorf("%s: %w", raw.label, err)
		}
		addrs[i] = addr
	}

	return ChainConfig{
		ID:              e.ID,
		Name:            name,
		NativeSymbol:    symbol,
		PoolManager:     addrs[0],
		PositionManager: addrs[1],
		StateView:       addrs[2],
		Permit2:         addrs[3],
		RPCURL:          e.RPC,
		IndexURL:        e.IndexURL,
	}, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}
