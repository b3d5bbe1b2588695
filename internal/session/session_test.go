package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpgateway/internal/custody"
	"lpgateway/internal/fault"
)

type gate struct{ err error }

func (g gate) Ready() error        { return g.err }
func (g gate) PolicyIDs() []string { return []string{"pol_1"} }

type fakeCustody struct {
	creates  atomic.Int32
	policies []string
	err      error
}

func (f *fakeCustody) CreateWallet(ctx context.Context, userID string, policyIDs []string) (custody.Wallet, error) {
	n := f.creates.Add(1)
	if f.err != nil {
		return custody.Wallet{}, f.err
	}
	f.policies = policyIDs
	return custody.Wallet{ID: "w_" + string(rune('0'+n)), Address: common.HexToAddress("0x01"), PolicyIDs: policyIDs}, nil
}

func (f *fakeCustody) SendTransaction(ctx context.Context, tx custody.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("not used")
}

func TestResolveCreatesOnceWithPolicies(t *testing.T) {
	gw := &fakeCustody{}
	s := NewStore(gw, gate{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Resolve(context.Background(), "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := s.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "w_1", w.ID)
	assert.Equal(t, int32(1), gw.creates.Load())
	assert.Equal(t, []string{"pol_1"}, gw.policies)
}

func TestResolveRefusesBeforePolicyActive(t *testing.T) {
	gw := &fakeCustody{}
	notReady := fault.PolicyIntegrity("policy gate", "policy is uninitialized")
	s := NewStore(gw, gate{err: notReady}, nil)

	_, err := s.Resolve(context.Background(), "bob")
	assert.True(t, fault.Is(err, fault.KindPolicyIntegrity))
	assert.Equal(t, int32(0), gw.creates.Load())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	gw := &fakeCustody{err: fault.Transaction("create wallet", 0, errors.New("quota exceeded"))}
	s := NewStore(gw, gate{}, nil)

	_, err := s.Resolve(context.Background(), "carol")
	assert.True(t, fault.Is(err, fault.KindTransaction))
	_, ok := s.Lookup("carol")
	assert.False(t, ok)

	gw.err = nil
	_, err = s.Resolve(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, int32(2), gw.creates.Load())
}

func TestResolveRequiresUser(t *testing.T) {
	s := NewStore(&fakeCustody{}, gate{}, nil)
	_, err := s.Resolve(context.Background(), "  ")
	assert.True(t, fault.Is(err, fault.KindValidation))
}
