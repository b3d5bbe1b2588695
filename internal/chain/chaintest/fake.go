// Package chaintest provides an in-memory chain.Caller for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"lpgateway/internal/chain"
)

// ErrReverted mimics a node reporting an execution revert.
var ErrReverted = errors.New("execution reverted")

// Handler answers one eth_call with the method's output values.
type Handler func(to common.Address, args []interface{}) ([]interface{}, error)

type route struct {
	method  abi.Method
	handler Handler
}

// Caller dispatches eth_call by method selector. Calls without a route revert.
type Caller struct {
	mu         sync.Mutex
	routes     map[[4]byte]route
	balances   map[common.Address]*big.Int
	balanceErr error
	calls      map[string]int
}

func NewCaller() *Caller {
	return &Caller{
		routes:   make(map[[4]byte]route),
		balances: make(map[common.Address]*big.Int),
		calls:    make(map[string]int),
	}
}

// Handle registers fn for method.
func (c *Caller) Handle(method abi.Method, fn Handler) *Caller {
	var id [4]byte
	copy(id[:], method.ID)
	c.mu.Lock()
	c.routes[id] = route{method: method, handler: fn}
	c.mu.Unlock()
	return c
}

// SetBalance sets the native balance of account.
func (c *Caller) SetBalance(account common.Address, balance *big.Int) *Caller {
	c.mu.Lock()
	c.balances[account] = balance
	c.mu.Unlock()
	return c
}

// FailBalances makes every BalanceAt return err.
func (c *Caller) FailBalances(err error) *Caller {
	c.mu.Lock()
	c.balanceErr = err
	c.mu.Unlock()
	return c
}

// Calls returns how often the method with signature sig (e.g. "balanceOf(address)") was called.
func (c *Caller) Calls(sig string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[sig]
}

// TotalCalls returns the number of eth_call and balance requests served.
func (c *Caller) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *Caller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(msg.Data) < 4 || msg.To == nil {
		return nil, fmt.Errorf("malformed call")
	}
	var id [4]byte
	copy(id[:], msg.Data[:4])

	c.mu.Lock()
	r, ok := c.routes[id]
	if ok {
		c.calls[r.method.Sig]++
	}
	c.mu.Unlock()
	if !ok {
		return nil, ErrReverted
	}

	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s input: %w", r.method.Name, err)
	}
	out, err := r.handler(*msg.To, args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(out...)
}

func (c *Caller) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_getBalance"]++
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	if bal, ok := c.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// Callers maps chain ids to callers.
type Callers map[uint64]chain.Caller

func (c Callers) Caller(chainID uint64) (chain.Caller, error) {
	caller, ok := c[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc client for chain %d", chainID)
	}
	return caller, nil
}
