package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpgateway/internal/custody"
	"lpgateway/internal/dex"
	"lpgateway/internal/fault"
	"lpgateway/internal/preflight"
	"lpgateway/internal/service"
)

type fakePipelines struct {
	discoverIn service.DiscoverInput
	mintIn     service.MintInput
	err        error
}

func (f *fakePipelines) Discover(_ context.Context, in service.DiscoverInput) (dex.Discovery, error) {
	f.discoverIn = in
	return dex.Discovery{Exists: true, Price: "1.5"}, f.err
}

func (f *fakePipelines) Mint(_ context.Context, in service.MintInput) (service.MintResult, error) {
	f.mintIn = in
	if f.err != nil {
		return service.MintResult{}, f.err
	}
	return service.MintResult{TxHash: common.HexToHash("0x01")}, nil
}

func (f *fakePipelines) Approve(context.Context, service.ApproveInput) (service.ApproveResult, error) {
	return service.ApproveResult{}, f.err
}

func (f *fakePipelines) ListPositions(context.Context, string, uint64) ([]service.PositionView, error) {
	return nil, f.err
}

func (f *fakePipelines) WalletFor(_ context.Context, user string) (custody.Wallet, error) {
	return custody.Wallet{ID: "w_" + user}, f.err
}

type readiness struct{ err error }

func (r readiness) Ready() error { return r.err }

func do(t *testing.T, p *fakePipelines, ready error, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(p, readiness{err: ready}, nil).ServeHTTP(rec, req)

	out := map[string]interface{}{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealthzFollowsPolicyGate(t *testing.T) {
	rec, _ := do(t, &fakePipelines{}, fault.PolicyIntegrity("policy gate", "policy is verifying"), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(t, &fakePipelines{}, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestDiscoverParsesQuery(t *testing.T) {
	p := &fakePipelines{}
	rec, body := do(t, p, nil, http.MethodGet, "/v1/pools?chain_id=8453&token_a=0x01&token_b=native&fee=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, uint64(8453), p.discoverIn.ChainID)
	require.NotNil(t, p.discoverIn.Fee)
	assert.Equal(t, uint32(500), *p.discoverIn.Fee)
	assert.Nil(t, p.discoverIn.TickSpacing)

	rec, body = do(t, p, nil, http.MethodGet, "/v1/pools?chain_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", body["error"])
}

func TestMintBindsRequest(t *testing.T) {
	p := &fakePipelines{}
	rec, _ := do(t, p, nil, http.MethodPost, "/v1/positions", map[string]interface{}{
		"user_id": "alice", "chain_id": 8453, "token_a": "0x01", "token_b": "0x02",
		"amount_a": "1.5", "slippage_pct": 1.0, "deadline_seconds": 60,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "alice", p.mintIn.UserID)
	assert.Equal(t, "1.5", p.mintIn.AmountA)
	require.NotNil(t, p.mintIn.SlippagePct)
	assert.Equal(t, 1.0, *p.mintIn.SlippagePct)
	assert.Equal(t, float64(60), p.mintIn.Deadline.Seconds())

	rec, _ = do(t, p, nil, http.MethodPost, "/v1/positions", map[string]interface{}{"chain_id": 8453})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	shortfall := &preflight.Shortfall{Leg: "token0", Symbol: "USDC", Required: big.NewInt(10), Available: big.NewInt(1)}
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fault.Validation("mint", "bad"), http.StatusBadRequest},
		{"not found", fault.NotFound("mint", "no pool"), http.StatusNotFound},
		{"insufficient", &fault.Error{Kind: fault.KindInsufficientFunds, Leg: "token0", Err: shortfall}, http.StatusUnprocessableEntity},
		{"not approved", &fault.Error{Kind: fault.KindNotApproved, Leg: "token1", Err: &preflight.ApprovalNeeded{Leg: "token1"}}, http.StatusUnprocessableEntity},
		{"contract", &fault.Error{Kind: fault.KindContract, Msg: "reverted"}, http.StatusBadRequest},
		{"transient", &fault.Error{Kind: fault.KindTransient, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"transaction", fault.Transaction("send", 8453, errors.New("denied")), http.StatusBadGateway},
		{"policy", fault.PolicyIntegrity("policy gate", "inactive"), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, &fakePipelines{err: tc.err}, nil, http.MethodPost, "/v1/positions", map[string]interface{}{
				"user_id": "u", "chain_id": 1, "token_a": "a", "token_b": "b",
			})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err.Error(), body["message"])
		})
	}
}

func TestShortfallDetails(t *testing.T) {
	shortfall := &preflight.Shortfall{Leg: "token0", Symbol: "USDC", Decimals: 6, Required: big.NewInt(10), Available: big.NewInt(1)}
	err := &fault.Error{Kind: fault.KindInsufficientFunds, ChainID: 8453, Leg: "token0", Err: shortfall}
	rec, body := do(t, &fakePipelines{err: err}, nil, http.MethodPost, "/v1/positions", map[string]interface{}{
		"user_id": "u", "chain_id": 8453, "token_a": "a", "token_b": "b",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_funds", body["error"])
	assert.Equal(t, "token0", body["leg"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "USDC", details["symbol"])
}

func TestWalletRoute(t *testing.T) {
	rec, body := do(t, &fakePipelines{}, nil, http.MethodGet, "/v1/wallets/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w_bob", body["id"])
}
