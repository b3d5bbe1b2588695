package service

import (
	"context"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"lpgateway/internal/chain"
	"lpgateway/internal/config"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

const (
	opList         = "list positions"
	maxConcurrency = 8
)

type PositionView struct {
	model.OwnedPosition
	Token0 model.TokenInfo `json:"token0"`
	Token1 model.TokenInfo `json:"token1"`
}

// ListPositions returns the positions the user's wallet holds on chainID, ordered by token id.
func (s *Service) ListPositions(ctx context.Context, userID string, chainID uint64) (res []PositionView, err error) {
	defer func(start time.Time) { s.observe(opList, start, err) }(time.Now())

	if err := s.requireChain(opList, chainID); err != nil {
		return nil, err
	}
	if s.index == nil || s.positions == nil {
		return nil, fault.NotFound(opList, "position listing is not configured")
	}
	wallet, err := s.wallets.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids, err := s.index.TokenIDs(ctx, chainID, wallet.Address)
	if err != nil {
		return nil, err
	}

	out := make([]PositionView, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			pos, err := s.positions.ReadPosition(gctx, chainID, id)
			if err != nil {
				return err
			}
			view := PositionView{OwnedPosition: pos}
			if view.Token0, err = s.tokens.Resolve(gctx, chainID, pos.Key.Currency0); err != nil {
				return err
			}
			if view.Token1, err = s.tokens.Resolve(gctx, chainID, pos.Key.Currency1); err != nil {
				return err
			}
			out[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChainPositions reads positions from each chain's position manager.
type ChainPositions struct {
	Callers  chain.Callers
	Registry *config.ChainRegistry
}

func (c ChainPositions) ReadPosition(ctx context.Context, chainID uint64, tokenID *big.Int) (model.OwnedPosition, error) {
	pm, ok := c.Registry.PositionManagerFor(chainID)
	if !ok {
		return model.OwnedPosition{}, fault.NotFound(opList, "chain %d is not supported", chainID)
	}
	caller, err := c.Callers.Caller(chainID)
	if err != nil {
		return model.OwnedPosition{}, fault.Wrap(fault.KindTransient, opList, chainID, err)
	}
	return dex.ReadPosition(ctx, caller, chainID, pm, tokenID)
}
