package dex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lpgateway/internal/chain"
	"lpgateway/internal/config"
	"lpgateway/internal/fault"
	"lpgateway/internal/metrics"
	"lpgateway/internal/model"
)

type tokenKey struct {
	chainID uint64
	address common.Address
}

// TokenMetaCache resolves and memoizes token symbol/decimals per (chain, address).
// Entries never expire. Failed lookups are not cached.
type TokenMetaCache struct {
	callers  chain.Callers
	registry *config.ChainRegistry
	logger   *zap.Logger

	mu   sync.RWMutex
	data map[tokenKey]model.TokenInfo
}

func NewTokenMetaCache(callers chain.Callers, registry *config.ChainRegistry, logger *zap.Logger) *TokenMetaCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMetaCache{
		callers:  callers,
		registry: registry,
		logger:   logger,
		data:     make(map[tokenKey]model.TokenInfo),
	}
}

func (c *TokenMetaCache) get(key tokenKey) (model.TokenInfo, bool) {
	c.mu.RLock()
	info, ok := c.data[key]
	c.mu.RUnlock()
	return info, ok
}

func (c *TokenMetaCache) set(key tokenKey, info model.TokenInfo) {
	c.mu.Lock()
	c.data[key] = info
	c.mu.Unlock()
}

// Resolve returns token metadata. common.Address is byte-valued, so lookups are
// case-insensitive with respect to the hex the caller parsed.
func (c *TokenMetaCache) Resolve(ctx context.Context, chainID uint64, token common.Address) (model.TokenInfo, error) {
	chainCfg, ok := c.registry.Get(chainID)
	if !ok {
		return model.TokenInfo{}, fault.NotFound("token metadata", "chain %d is not supported", chainID)
	}
	if model.IsNative(token) {
		return model.TokenInfo{Address: token, Symbol: chainCfg.NativeSymbol, Decimals: model.NativeDecimals}, nil
	}

	key := tokenKey{chainID: chainID, address: token}
	if info, ok := c.get(key); ok {
		metrics.TokenCacheLookups.WithLabelValues("hit").Inc()
		return info, nil
	}
	metrics.TokenCacheLookups.WithLabelValues("miss").Inc()

	caller, err := c.callers.Caller(chainID)
	if err != nil {
		return model.TokenInfo{}, fault.Wrap(fault.KindTransient, "token metadata", chainID, err)
	}
	info, err := FetchTokenInfo(ctx, caller, chainID, token, c.logger)
	if err != nil {
		return model.TokenInfo{}, err
	}
	c.set(key, info)
	return info, nil
}

// ResolvePair looks up both tokens concurrently.
func (c *TokenMetaCache) ResolvePair(ctx context.Context, chainID uint64, token0, token1 common.Address) (model.TokenInfo, model.TokenInfo, error) {
	var info0, info1 model.TokenInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info0, err = c.Resolve(gctx, chainID, token0)
		return err
	})
	g.Go(func() error {
		var err error
		info1, err = c.Resolve(gctx, chainID, token1)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.TokenInfo{}, model.TokenInfo{}, err
	}
	return info0, info1, nil
}

// FetchTokenInfo loads token metadata via ERC20 calls. decimals is required;
// symbol falls back to the bytes32 variant and finally to a shortened address.
func FetchTokenInfo(ctx context.Context, caller chain.Caller, chainID uint64, token common.Address, logger *zap.Logger) (model.TokenInfo, error) {
	info := model.TokenInfo{Address: token}

	stringABI, err := ERC20ABI()
	if err != nil {
		return info, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return info, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, chainID, token, stringABI, "decimals")
	if err != nil {
		return info, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return info, &fault.Error{Kind: fault.KindContract, Op: "decimals", ChainID: chainID, Err: err}
	}
	info.Decimals = decimals

	if values, err := callMethod(ctx, caller, chainID, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			info.Symbol = symbol
		}
	} else if fault.Is(err, fault.KindTransient) && !errors.Is(err, errMalformed) {
		return info, err
	} else if values, err := callMethod(ctx, caller, chainID, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			info.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.Uint64("chain_id", chainID), zap.String("token", token.Hex()), zap.Error(err))
	}

	if strings.TrimSpace(info.Symbol) == "" {
		hex := token.Hex()
		info.Symbol = hex[:6] + "…" + hex[len(hex)-4:]
	}
	return info, nil
}
