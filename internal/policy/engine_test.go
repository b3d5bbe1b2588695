package policy

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpgateway/internal/config"
	"lpgateway/internal/fault"
)

const signer = "signer-key-1"

type memStore struct {
	policies map[string]Policy
	gets     int
	creates  int
	getErr   error
	ownerFor func(Policy) string
}

func newMemStore() *memStore {
	return &memStore{policies: map[string]Policy{}}
}

func (s *memStore) Get(ctx context.Context, id string) (Policy, error) {
	s.gets++
	if s.getErr != nil {
		return Policy{}, s.getErr
	}
	p, ok := s.policies[id]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

func (s *memStore) Create(ctx context.Context, p Policy) (Policy, error) {
	s.creates++
	p.ID = "pol_created"
	if s.ownerFor != nil {
		p.OwnerID = s.ownerFor(p)
	}
	s.policies[p.ID] = p
	return p, nil
}

type memPins struct {
	pins  map[string]string
	saves int
}

func (m *memPins) Load(ctx context.Context, name string) (string, bool, error) {
	id, ok := m.pins[name]
	return id, ok, nil
}

func (m *memPins) Save(ctx context.Context, name, policyID, ownerID string) error {
	if m.pins == nil {
		m.pins = map[string]string{}
	}
	m.pins[name] = policyID
	m.saves++
	return nil
}

func expectedPolicy(t *testing.T) Policy {
	t.Helper()
	reg, err := config.NewChainRegistry(config.Config{RPC: map[string]string{
		"1":    "https://eth.example",
		"8453": "https://base.example",
	}})
	require.NoError(t, err)
	p, err := ExpectedPolicy(reg, big.NewInt(1e18), "lp", signer)
	require.NoError(t, err)
	return p
}

func TestExpectedPolicyComposition(t *testing.T) {
	p := expectedPolicy(t)
	require.Len(t, p.Rules, 1)
	rule := p.Rules[0]
	assert.Equal(t, ActionAllow, rule.Action)
	assert.Equal(t, MethodSendTransaction, rule.Method)
	require.Len(t, rule.Conditions, 3)

	assert.Equal(t, "chain_id", rule.Conditions[0].Field)
	assert.Equal(t, OpIn, rule.Conditions[0].Operator)
	assert.Equal(t, []string{"1", "8453"}, rule.Conditions[0].Value)

	targets := rule.Conditions[1].Value.([]string)
	// 3 contracts per chain plus the shared Permit2
	assert.Len(t, targets, 7)
	assert.Contains(t, targets, "0x000000000022d473030f116ddee9f6b43ac78ba3")

	assert.Equal(t, OpLte, rule.Conditions[2].Operator)
	assert.Equal(t, "1000000000000000000", rule.Conditions[2].Value)
}

func TestValidateOwnerMismatchFailsClosed(t *testing.T) {
	expected := expectedPolicy(t)
	actual := expected
	actual.ID = "pol_1"
	actual.OwnerID = "someone-else"
	err := Validate(expected, actual)
	assert.True(t, fault.Is(err, fault.KindPolicyIntegrity), "got %v", err)
}

func TestValidateCardinality(t *testing.T) {
	expected := expectedPolicy(t)

	extraRule := expected
	extraRule.Rules = append(append([]Rule(nil), expected.Rules...), Rule{Method: MethodSendTransaction, Action: ActionDeny})
	assert.True(t, fault.Is(Validate(expected, extraRule), fault.KindPolicyIntegrity))

	fewerConds := expected
	r := expected.Rules[0]
	r.Conditions = r.Conditions[:2]
	fewerConds.Rules = []Rule{r}
	assert.True(t, fault.Is(Validate(expected, fewerConds), fault.KindPolicyIntegrity))

	denied := expected
	d := expected.Rules[0]
	d.Action = ActionDeny
	denied.Rules = []Rule{d}
	assert.True(t, fault.Is(Validate(expected, denied), fault.KindPolicyIntegrity))

	assert.NoError(t, Validate(expected, expected))
}

func TestInitializeCreatesAndPins(t *testing.T) {
	store := newMemStore()
	pins := &memPins{}
	e := NewEngine(store, pins, expectedPolicy(t), "", nil)

	require.Error(t, e.Ready())
	assert.Nil(t, e.PolicyIDs())

	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, StateActive, e.State())
	assert.NoError(t, e.Ready())
	assert.Equal(t, []string{"pol_created"}, e.PolicyIDs())
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, "pol_created", pins.pins["lp"])
}

func TestInitializeIsIdempotent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, &memPins{}, expectedPolicy(t), "", nil)
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Initialize(context.Background()))

	assert.Equal(t, StateActive, e.State())
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.gets)
	assert.Equal(t, []string{"pol_created"}, e.PolicyIDs())
}

func TestInitializeVerifiesPinFromStore(t *testing.T) {
	expected := expectedPolicy(t)
	store := newMemStore()
	existing := expected
	existing.ID = "pol_7"
	store.policies["pol_7"] = existing

	e := NewEngine(store, &memPins{pins: map[string]string{"lp": "pol_7"}}, expected, "", nil)
	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, []string{"pol_7"}, e.PolicyIDs())
	assert.Equal(t, 0, store.creates)
}

func TestInitializePinnedOwnerMismatchIsTerminal(t *testing.T) {
	expected := expectedPolicy(t)
	store := newMemStore()
	foreign := expected
	foreign.ID = "pol_9"
	foreign.OwnerID = "attacker"
	store.policies["pol_9"] = foreign

	e := NewEngine(store, nil, expected, "pol_9", nil)
	err := e.Initialize(context.Background())
	require.True(t, fault.Is(err, fault.KindPolicyIntegrity), "got %v", err)
	assert.Equal(t, StateFailed, e.State())
	assert.Nil(t, e.PolicyIDs())

	// fixing the remote record does not revive a failed engine
	fixed := expected
	fixed.ID = "pol_9"
	store.policies["pol_9"] = fixed
	err = e.Initialize(context.Background())
	assert.True(t, fault.Is(err, fault.KindPolicyIntegrity))
	assert.Equal(t, StateFailed, e.State())
	assert.Error(t, e.Ready())
	assert.Equal(t, 1, store.gets)
}

func TestInitializeMissingPinnedPolicy(t *testing.T) {
	e := NewEngine(newMemStore(), nil, expectedPolicy(t), "pol_gone", nil)
	err := e.Initialize(context.Background())
	assert.True(t, fault.Is(err, fault.KindPolicyIntegrity), "got %v", err)
}

func TestInitializeStoreFailureFailsStartup(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	e := NewEngine(store, nil, expectedPolicy(t), "pol_1", nil)
	err := e.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindTransient))
	assert.Equal(t, StateFailed, e.State())
}

func TestInitializeCreatedWithWrongOwner(t *testing.T) {
	store := newMemStore()
	store.ownerFor = func(Policy) string { return "app-default" }
	pins := &memPins{}
	e := NewEngine(store, pins, expectedPolicy(t), "", nil)
	err := e.Initialize(context.Background())
	assert.True(t, fault.Is(err, fault.KindPolicyIntegrity), "got %v", err)
	assert.Equal(t, 0, pins.saves)
}

func TestFilePinStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pins.json")
	s := &FilePinStore{Path: path}

	_, ok, err := s.Load(context.Background(), "lp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(context.Background(), "lp", "pol_1", signer))
	require.NoError(t, s.Save(context.Background(), "other", "pol_2", signer))

	id, ok, err := s.Load(context.Background(), "lp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pol_1", id)
}
