package preflight

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpgateway/internal/chain/chaintest"
	"lpgateway/internal/config"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/model"
)

var (
	wallet = common.HexToAddress("0x1234567890123456789012345678901234567890")
	usdc   = model.TokenInfo{Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}
	weth   = model.TokenInfo{Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	native = model.TokenInfo{Address: model.NativeAddress, Symbol: "ETH", Decimals: 18}
	now    = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

type chainState struct {
	balances       map[common.Address]*big.Int
	allowances     map[common.Address]*big.Int
	permits        map[common.Address]*big.Int
	permitExpiry   time.Time
	failBalanceFor common.Address
}

func newFixture(t *testing.T, st chainState) (*Validator, *chaintest.Caller) {
	t.Helper()
	reg, err := config.NewChainRegistry(config.Config{RPC: map[string]string{"8453": "https://base.example"}})
	require.NoError(t, err)
	base, _ := reg.Get(8453)

	erc20, err := dex.ERC20ABI()
	require.NoError(t, err)
	permit2, err := dex.Permit2ABI()
	require.NoError(t, err)

	lookup := func(m map[common.Address]*big.Int, token common.Address) *big.Int {
		if v, ok := m[token]; ok {
			return v
		}
		return big.NewInt(0)
	}
	caller := chaintest.NewCaller().
		Handle(erc20.Methods["balanceOf"], func(token common.Address, _ []interface{}) ([]interface{}, error) {
			if token == st.failBalanceFor {
				return nil, errors.New("i/o timeout")
			}
			return []interface{}{lookup(st.balances, token)}, nil
		}).
		Handle(erc20.Methods["allowance"], func(token common.Address, args []interface{}) ([]interface{}, error) {
			if args[1].(common.Address) != base.Permit2 {
				return []interface{}{big.NewInt(0)}, nil
			}
			return []interface{}{lookup(st.allowances, token)}, nil
		}).
		Handle(permit2.Methods["allowance"], func(_ common.Address, args []interface{}) ([]interface{}, error) {
			token := args[1].(common.Address)
			if args[2].(common.Address) != base.PositionManager {
				return []interface{}{big.NewInt(0), big.NewInt(0), big.NewInt(0)}, nil
			}
			return []interface{}{lookup(st.permits, token), big.NewInt(st.permitExpiry.Unix()), big.NewInt(0)}, nil
		})
	if bal, ok := st.balances[model.NativeAddress]; ok {
		caller.SetBalance(wallet, bal)
	}

	v := NewValidator(chaintest.Callers{8453: caller}, reg, nil)
	v.now = func() time.Time { return now }
	return v, caller
}

func TestCheckAllowanceNativeIsUnlimitedWithoutCall(t *testing.T) {
	v, caller := newFixture(t, chainState{})
	allowance, err := v.CheckAllowance(context.Background(), 8453, wallet, model.NativeAddress, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, 0, allowance.Cmp(Unlimited))
	assert.Equal(t, 256, allowance.BitLen())
	assert.Equal(t, 0, caller.TotalCalls())
}

func TestCheckBalanceReportsShortfallAsResult(t *testing.T) {
	v, _ := newFixture(t, chainState{balances: map[common.Address]*big.Int{usdc.Address: big.NewInt(5)}})
	res, err := v.CheckBalance(context.Background(), 8453, wallet, usdc.Address, big.NewInt(10))
	require.NoError(t, err)
	assert.False(t, res.Sufficient)
	assert.Equal(t, int64(5), res.Balance.Int64())
	assert.Equal(t, int64(10), res.Required.Int64())
}

func TestCheckLegsReportsToken0First(t *testing.T) {
	v, _ := newFixture(t, chainState{balances: map[common.Address]*big.Int{
		weth.Address: big.NewInt(1),
		usdc.Address: big.NewInt(1),
	}})
	legs := []Leg{
		{Name: "token0", Token: weth, Required: big.NewInt(100)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	}
	for i := 0; i < 20; i++ {
		err := v.CheckLegs(context.Background(), 8453, wallet, legs)
		require.True(t, fault.Is(err, fault.KindInsufficientFunds), "got %v", err)

		var shortfall *Shortfall
		require.True(t, errors.As(err, &shortfall))
		assert.Equal(t, "token0", shortfall.Leg)
		assert.Equal(t, "WETH", shortfall.Symbol)
		assert.Equal(t, int64(1), shortfall.Available.Int64())
	}
}

func TestCheckLegsBalancesBeforeAllowances(t *testing.T) {
	// token0 is funded but unapproved, token1 is underfunded: the balance error wins
	v, _ := newFixture(t, chainState{balances: map[common.Address]*big.Int{
		weth.Address: big.NewInt(100),
		usdc.Address: big.NewInt(1),
	}})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token0", Token: weth, Required: big.NewInt(100)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	})
	require.True(t, fault.Is(err, fault.KindInsufficientFunds), "got %v", err)
	var shortfall *Shortfall
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, "token1", shortfall.Leg)
}

func TestCheckLegsNeedsPermit2Approval(t *testing.T) {
	v, _ := newFixture(t, chainState{
		balances:     map[common.Address]*big.Int{weth.Address: big.NewInt(100), usdc.Address: big.NewInt(100)},
		allowances:   map[common.Address]*big.Int{weth.Address: big.NewInt(100), usdc.Address: big.NewInt(99)},
		permits:      map[common.Address]*big.Int{weth.Address: big.NewInt(100), usdc.Address: big.NewInt(100)},
		permitExpiry: now.Add(time.Hour),
	})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token0", Token: weth, Required: big.NewInt(100)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	})
	require.True(t, fault.Is(err, fault.KindNotApproved), "got %v", err)
	var need *ApprovalNeeded
	require.True(t, errors.As(err, &need))
	assert.Equal(t, "token1", need.Leg)
	assert.Equal(t, SpenderPermit2, need.SpenderName)
	assert.Equal(t, config.Permit2Address, need.Spender.Hex())
}

func TestCheckLegsExpiredPermit(t *testing.T) {
	v, _ := newFixture(t, chainState{
		balances:     map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		allowances:   map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		permits:      map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		permitExpiry: now.Add(-time.Minute),
	})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token1", Token: weth, Required: big.NewInt(100)},
	})
	var need *ApprovalNeeded
	require.True(t, errors.As(err, &need), "got %v", err)
	assert.Equal(t, SpenderPositionManager, need.SpenderName)
	assert.True(t, need.Expired)
}

func TestCheckLegsPermitValidAtExpiry(t *testing.T) {
	v, _ := newFixture(t, chainState{
		balances:     map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		allowances:   map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		permits:      map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		permitExpiry: now,
	})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token1", Token: weth, Required: big.NewInt(100)},
	})
	require.NoError(t, err)
}

func TestCheckLegsNativeAndFundedPass(t *testing.T) {
	v, caller := newFixture(t, chainState{
		balances:     map[common.Address]*big.Int{model.NativeAddress: big.NewInt(1000), usdc.Address: big.NewInt(100)},
		allowances:   map[common.Address]*big.Int{usdc.Address: big.NewInt(100)},
		permits:      map[common.Address]*big.Int{usdc.Address: big.NewInt(100)},
		permitExpiry: now.Add(24 * time.Hour),
	})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token0", Token: native, Required: big.NewInt(1000)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, caller.Calls("eth_getBalance"))
	assert.Equal(t, 1, caller.Calls("allowance(address,address)"))
	assert.Equal(t, 1, caller.Calls("allowance(address,address,address)"))
}

func TestCheckLegsReadFailureNamesLeg(t *testing.T) {
	v, _ := newFixture(t, chainState{
		balances:       map[common.Address]*big.Int{weth.Address: big.NewInt(100)},
		failBalanceFor: usdc.Address,
	})
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token0", Token: weth, Required: big.NewInt(100)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	})
	require.True(t, fault.Is(err, fault.KindTransient), "got %v", err)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "token1", fe.Leg)
}

func TestCheckLegsNativeBalanceFailureIsTransient(t *testing.T) {
	v, caller := newFixture(t, chainState{balances: map[common.Address]*big.Int{usdc.Address: big.NewInt(100)}})
	caller.FailBalances(errors.New("connection reset"))
	err := v.CheckLegs(context.Background(), 8453, wallet, []Leg{
		{Name: "token0", Token: native, Required: big.NewInt(1)},
		{Name: "token1", Token: usdc, Required: big.NewInt(100)},
	})
	require.True(t, fault.Is(err, fault.KindTransient), "got %v", err)
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "token0", fe.Leg)
}
