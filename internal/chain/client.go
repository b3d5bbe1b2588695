package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, account, blockNumber)
}

// Endpoint names one chain's RPC URL.
type Endpoint struct {
	ChainID uint64
	RPCURL  string
}

// Pool holds one client per supported chain.
type Pool struct {
	clients map[uint64]*Client
}

// Dial connects to every endpoint and verifies the node reports the expected chain id.
// The first failure closes every client dialed so far.
func Dial(ctx context.Context, endpoints []Endpoint) (*Pool, error) {
	p := &Pool{clients: make(map[uint64]*Client, len(endpoints))}
	for _, ep := range endpoints {
		client, err := NewClient(ctx, ep.RPCURL)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("dial chain %d: %w", ep.ChainID, err)
		}
		p.clients[ep.ChainID] = client

		got, err := client.GetChainID(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("chain %d: get chain id: %w", ep.ChainID, err)
		}
		if !got.IsUint64() || got.Uint64() != ep.ChainID {
			p.Close()
			return nil, fmt.Errorf("chain %d: rpc reports chain id %s", ep.ChainID, got)
		}
	}
	return p, nil
}

// Client returns the client for chainID.
func (p *Pool) Client(chainID uint64) (*Client, bool) {
	client, ok := p.clients[chainID]
	return client, ok
}

// Close closes every client.
func (p *Pool) Close() {
	for _, client := range p.clients {
		client.Close()
	}
}

// Caller is the read surface the core needs from a chain node.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Callers resolves the Caller for a chain id.
type Callers interface {
	Caller(chainID uint64) (Caller, error)
}

// Caller implements Callers.
func (p *Pool) Caller(chainID uint64) (Caller, error) {
	client, ok := p.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc client for chain %d", chainID)
	}
	return client, nil
}
