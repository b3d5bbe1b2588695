package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"lpgateway/internal/fault"
	"lpgateway/internal/metrics"
)

const opInit = "policy init"

// State is the engine lifecycle over the remote policy record.
type State int

const (
	StateUninitialized State = iota
	StateVerifying
	StateCreating
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateVerifying:
		return "verifying"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine reconciles the expected policy with the remote store once at startup and gates
// every mint, approve and wallet creation on the result.
type Engine struct {
	store    Store
	pins     PinStore
	expected Policy
	pinnedID string
	logger   *zap.Logger

	mu       sync.RWMutex
	state    State
	policyID string
	failure  error
}

// NewEngine builds an engine for expected. pinnedID, when set, takes precedence over the pin store.
func NewEngine(store Store, pins PinStore, expected Policy, pinnedID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:    store,
		pins:     pins,
		expected: expected,
		pinnedID: pinnedID,
		logger:   logger,
	}
	metrics.PolicyState.Set(float64(StateUninitialized))
	return e
}

// Initialize verifies the pinned policy or creates a new one. Running it again on an active
// engine re-validates the same policy. Failed is terminal.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateFailed:
		return e.failure
	case StateActive:
		e.setState(StateVerifying)
		return e.finish(e.verify(ctx, e.policyID))
	}

	id := e.pinnedID
	if id == "" && e.pins != nil {
		pinned, ok, err := e.pins.Load(ctx, e.expected.Name)
		if err != nil {
			return e.finish("", fault.Wrap(fault.KindTransient, opInit, 0, fmt.Errorf("load pin: %w", err)))
		}
		if ok {
			id = pinned
		}
	}

	if id != "" {
		e.setState(StateVerifying)
		return e.finish(e.verify(ctx, id))
	}
	e.setState(StateCreating)
	return e.finish(e.create(ctx))
}

func (e *Engine) verify(ctx context.Context, id string) (string, error) {
	actual, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			return "", fault.PolicyIntegrity(opInit, "pinned policy %s does not exist", id)
		}
		return "", fault.Wrap(fault.KindTransient, opInit, 0, fmt.Errorf("get policy %s: %w", id, err))
	}
	if actual.ID == "" {
		actual.ID = id
	} else if actual.ID != id {
		return "", fault.PolicyIntegrity(opInit, "policy store returned %s for %s", actual.ID, id)
	}
	if err := Validate(e.expected, actual); err != nil {
		return "", err
	}
	if fingerprint(actual) != fingerprint(e.expected) {
		e.logger.Warn("policy condition values differ from local composition",
			zap.String("policy_id", id),
			zap.String("expected", fingerprint(e.expected)),
			zap.String("actual", fingerprint(actual)),
		)
	}
	return id, nil
}

func (e *Engine) create(ctx context.Context) (string, error) {
	created, err := e.store.Create(ctx, e.expected)
	if err != nil {
		return "", fault.Wrap(fault.KindTransient, opInit, 0, fmt.Errorf("create policy: %w", err))
	}
	if created.ID == "" {
		return "", fault.PolicyIntegrity(opInit, "policy store returned no id")
	}
	if err := Validate(e.expected, created); err != nil {
		return "", err
	}
	if e.pins != nil {
		if err := e.pins.Save(ctx, e.expected.Name, created.ID, created.OwnerID); err != nil {
			e.logger.Warn("persist policy pin failed; set policy-id to reuse it",
				zap.String("policy_id", created.ID), zap.Error(err))
		}
	}
	e.logger.Info("policy created", zap.String("policy_id", created.ID), zap.String("owner_id", created.OwnerID))
	return created.ID, nil
}

// finish must be called with mu held.
func (e *Engine) finish(id string, err error) error {
	if err != nil {
		e.failure = err
		e.setState(StateFailed)
		e.logger.Error("policy initialization failed", zap.Error(err))
		return err
	}
	e.policyID = id
	e.setState(StateActive)
	e.logger.Info("policy active", zap.String("policy_id", id))
	return nil
}

func (e *Engine) setState(s State) {
	e.state = s
	metrics.PolicyState.Set(float64(s))
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Ready returns nil only when the policy is active.
func (e *Engine) Ready() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == StateActive {
		return nil
	}
	if e.failure != nil {
		return e.failure
	}
	return fault.PolicyIntegrity("policy gate", "policy is %s", e.state)
}

// PolicyIDs returns the ids to attach to wallet creation. It is empty until active.
func (e *Engine) PolicyIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateActive {
		return nil
	}
	return []string{e.policyID}
}

// Expected returns the locally composed policy.
func (e *Engine) Expected() Policy {
	return e.expected
}
