package service

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpgateway/internal/config"
	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/metrics"
	"lpgateway/internal/model"
	"lpgateway/internal/preflight"
)

// Gate is the policy startup gate.
type Gate interface {
	Ready() error
}

type Discoverer interface {
	Discover(ctx context.Context, req dex.DiscoverRequest) (dex.Discovery, error)
}

type Assembler interface {
	Plan(ctx context.Context, chainID uint64, key model.PoolKey, desired0, desired1 *big.Int) (dex.Plan, error)
	Encode(plan dex.Plan, opts dex.MintOptions) (dex.MintCall, error)
}

type Preflight interface {
	CheckLegs(ctx context.Context, chainID uint64, wallet common.Address, legs []preflight.Leg) error
}

type Tokens interface {
	Resolve(ctx context.Context, chainID uint64, token common.Address) (model.TokenInfo, error)
}

type Wallets interface {
	Resolve(ctx context.Context, userID string) (custody.Wallet, error)
}

type PositionIndex interface {
	TokenIDs(ctx context.Context, chainID uint64, owner common.Address) ([]*big.Int, error)
}

type PositionReader interface {
	ReadPosition(ctx context.Context, chainID uint64, tokenID *big.Int) (model.OwnedPosition, error)
}

// Deps are the collaborators of Service. Index and Positions are only needed for listing.
type Deps struct {
	Registry   *config.ChainRegistry
	Gate       Gate
	Discoverer Discoverer
	Assembler  Assembler
	Preflight  Preflight
	Tokens     Tokens
	Wallets    Wallets
	Custody    custody.Gateway
	Index      PositionIndex
	Positions  PositionReader
	Logger     *zap.Logger
}

// Service runs the discover, mint, approve and listing pipelines. Each call is independent.
type Service struct {
	registry   *config.ChainRegistry
	gate       Gate
	discoverer Discoverer
	assembler  Assembler
	preflight  Preflight
	tokens     Tokens
	wallets    Wallets
	custody    custody.Gateway
	index      PositionIndex
	positions  PositionReader
	now        func() time.Time
	logger     *zap.Logger
}

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   d.Registry,
		gate:       d.Gate,
		discoverer: d.Discoverer,
		assembler:  d.Assembler,
		preflight:  d.Preflight,
		tokens:     d.Tokens,
		wallets:    d.Wallets,
		custody:    d.Custody,
		index:      d.Index,
		positions:  d.Positions,
		now:        time.Now,
		logger:     logger,
	}
}

// WalletFor returns the custodial wallet mapped to userID.
func (s *Service) WalletFor(ctx context.Context, userID string) (custody.Wallet, error) {
	return s.wallets.Resolve(ctx, userID)
}

func (s *Service) observe(op string, start time.Time, err error) {
	kind := "ok"
	if err != nil {
		kind = string(fault.KindOf(err))
	}
	metrics.Operations.WithLabelValues(op, kind).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// parseToken accepts a hex address, or "native" / the chain's native symbol for the native asset.
func (s *Service) parseToken(op string, chainID uint64, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "native") {
		return model.NativeAddress, nil
	}
	if chainCfg, ok := s.registry.Get(chainID); ok && chainCfg.NativeSymbol != "" && strings.EqualFold(raw, chainCfg.NativeSymbol) {
		return model.NativeAddress, nil
	}
	addr, err := config.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fault.Validation(op, "%v", err)
	}
	return addr, nil
}

func (s *Service) requireChain(op string, chainID uint64) error {
	if !s.registry.Supports(chainID) {
		return fault.NotFound(op, "chain %d is not supported", chainID)
	}
	return nil
}
