package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lpgateway/internal/storage/postgres"
)

// PinStore persists the id of the policy created at startup so later runs verify it instead of
// creating another one.
type PinStore interface {
	Load(ctx context.Context, name string) (string, bool, error)
	Save(ctx context.Context, name, policyID, ownerID string) error
}

// FilePinStore stores pins in a local JSON file keyed by policy name.
type FilePinStore struct {
	Path string
}

type pinRecord struct {
	PolicyID  string `json:"policy_id"`
	OwnerID   string `json:"owner_id"`
	UpdatedAt string `json:"updated_at"`
}

func (s *FilePinStore) read() (map[string]pinRecord, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]pinRecord{}, nil
		}
		return nil, fmt.Errorf("read pin file: %w", err)
	}
	recs := map[string]pinRecord{}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse pin file: %w", err)
	}
	return recs, nil
}

func (s *FilePinStore) Load(ctx context.Context, name string) (string, bool, error) {
	if s == nil || s.Path == "" {
		return "", false, nil
	}
	recs, err := s.read()
	if err != nil {
		return "", false, err
	}
	rec, ok := recs[name]
	if !ok || rec.PolicyID == "" {
		return "", false, nil
	}
	return rec.PolicyID, true, nil
}

func (s *FilePinStore) Save(ctx context.Context, name, policyID, ownerID string) error {
	if s == nil || s.Path == "" {
		return nil
	}
	recs, err := s.read()
	if err != nil {
		return err
	}
	recs[name] = pinRecord{
		PolicyID:  policyID,
		OwnerID:   ownerID,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pin dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pins: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write pin tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename pin file: %w", err)
	}
	return nil
}

// DBPinStore stores pins in the policy_pins table.
type DBPinStore struct {
	Store *postgres.Store
}

func (s *DBPinStore) Load(ctx context.Context, name string) (string, bool, error) {
	if s == nil || s.Store == nil {
		return "", false, nil
	}
	pin, ok, err := s.Store.LoadPin(ctx, name)
	if err != nil || !ok {
		return "", false, err
	}
	return pin.PolicyID, true, nil
}

func (s *DBPinStore) Save(ctx context.Context, name, policyID, ownerID string) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SavePin(ctx, postgres.Pin{Name: name, PolicyID: policyID, OwnerID: ownerID})
}
