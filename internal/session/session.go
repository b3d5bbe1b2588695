package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"lpgateway/internal/custody"
	"lpgateway/internal/fault"
)

// Gate reports whether wallet creation may proceed and which policies to attach.
type Gate interface {
	Ready() error
	PolicyIDs() []string
}

// Store maps external user ids to custodial wallets. Entries live for the process lifetime.
type Store struct {
	custody custody.Gateway
	gate    Gate
	logger  *zap.Logger

	mu      sync.RWMutex
	wallets map[string]custody.Wallet
	group   singleflight.Group
}

func NewStore(gw custody.Gateway, gate Gate, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		custody: gw,
		gate:    gate,
		logger:  logger,
		wallets: make(map[string]custody.Wallet),
	}
}

// Lookup returns the wallet already mapped to userID.
func (s *Store) Lookup(userID string) (custody.Wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	return w, ok
}

// Resolve returns the wallet for userID, creating one under the active policy on first use.
func (s *Store) Resolve(ctx context.Context, userID string) (custody.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return custody.Wallet{}, fault.Validation("resolve wallet", "user id is required")
	}
	if w, ok := s.Lookup(userID); ok {
		return w, nil
	}
	if err := s.gate.Ready(); err != nil {
		return custody.Wallet{}, err
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		if w, ok := s.Lookup(userID); ok {
			return w, nil
		}
		w, err := s.custody.CreateWallet(ctx, userID, s.gate.PolicyIDs())
		if err != nil {
			return custody.Wallet{}, err
		}
		s.mu.Lock()
		s.wallets[userID] = w
		s.mu.Unlock()
		s.logger.Info("wallet mapped", zap.String("user_id", userID), zap.String("wallet_id", w.ID))
		return w, nil
	})
	if err != nil {
		return custody.Wallet{}, err
	}
	return v.(custody.Wallet), nil
}
