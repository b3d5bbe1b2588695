package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// rpcServer answers eth_chainId with result, or with a JSON-RPC error when result is empty.
func rpcServer(t *testing.T, result string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result == "" {
			resp["error"] = map[string]interface{}{"code": -32000, "message": "node warming up"}
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialVerifiesChainID(t *testing.T) {
	var calls int32
	srv := rpcServer(t, "0x2105", &calls)

	pool, err := Dial(context.Background(), []Endpoint{{ChainID: 8453, RPCURL: srv.URL}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer pool.Close()
	if _, ok := pool.Client(8453); !ok {
		t.Fatalf("client for 8453 missing")
	}
	if _, err := pool.Caller(1); err == nil {
		t.Fatalf("expected error for unknown chain")
	}
}

func TestDialRejectsMismatchedChainID(t *testing.T) {
	var calls int32
	srv := rpcServer(t, "0x1", &calls)

	_, err := Dial(context.Background(), []Endpoint{{ChainID: 8453, RPCURL: srv.URL}})
	if err == nil || !strings.Contains(err.Error(), "rpc reports chain id 1") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestDialSurfacesFirstFailure(t *testing.T) {
	var calls int32
	srv := rpcServer(t, "", &calls)

	_, err := Dial(context.Background(), []Endpoint{{ChainID: 8453, RPCURL: srv.URL}})
	if err == nil || !strings.Contains(err.Error(), "node warming up") {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("chain id requests: got %d want 1", got)
	}
}
