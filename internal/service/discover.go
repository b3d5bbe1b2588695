package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/dex"
)

const opDiscover = "discover"

type DiscoverInput struct {
	ChainID     uint64
	TokenA      string
	TokenB      string
	Fee         *uint32
	TickSpacing *int32
	Hooks       string
}

// Discover locates the pool for a token pair. A missing pool is a result with Exists=false.
func (s *Service) Discover(ctx context.Context, in DiscoverInput) (res dex.Discovery, err error) {
	defer func(start time.Time) { s.observe(opDiscover, start, err) }(time.Now())

	req, err := s.discoverRequest(opDiscover, in)
	if err != nil {
		return dex.Discovery{}, err
	}
	return s.discoverer.Discover(ctx, req)
}

// discoverRequest rejects bad input before checking that the chain is served.
func (s *Service) discoverRequest(op string, in DiscoverInput) (dex.DiscoverRequest, error) {
	tokenA, err := s.parseToken(op, in.ChainID, in.TokenA)
	if err != nil {
		return dex.DiscoverRequest{}, err
	}
	tokenB, err := s.parseToken(op, in.ChainID, in.TokenB)
	if err != nil {
		return dex.DiscoverRequest{}, err
	}
	var hooks common.Address
	if in.Hooks != "" {
		if hooks, err = s.parseToken(op, in.ChainID, in.Hooks); err != nil {
			return dex.DiscoverRequest{}, err
		}
	}
	req := dex.DiscoverRequest{
		ChainID:     in.ChainID,
		TokenA:      tokenA,
		TokenB:      tokenB,
		Fee:         in.Fee,
		TickSpacing: in.TickSpacing,
		Hooks:       hooks,
	}
	if err := dex.ValidateRequest(req); err != nil {
		return dex.DiscoverRequest{}, err
	}
	if err := s.requireChain(op, in.ChainID); err != nil {
		return dex.DiscoverRequest{}, err
	}
	return req, nil
}
