package policy

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"lpgateway/internal/custody"
)

// ErrPolicyNotFound is returned by Store.Get when the id is unknown remotely.
var ErrPolicyNotFound = errors.New("policy not found")

// Store is the remote policy record store.
type Store interface {
	Get(ctx context.Context, id string) (Policy, error)
	Create(ctx context.Context, p Policy) (Policy, error)
}

// HTTPStore talks to the custody provider's policy endpoints.
type HTTPStore struct {
	api *custody.API
}

func NewHTTPStore(api *custody.API) *HTTPStore {
	return &HTTPStore{api: api}
}

func (s *HTTPStore) Get(ctx context.Context, id string) (Policy, error) {
	var out Policy
	err := s.api.Do(ctx, http.MethodGet, "/v1/policies/"+url.PathEscape(id), "get_policy", nil, &out, nil)
	if err != nil {
		var apiErr *custody.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Policy{}, ErrPolicyNotFound
		}
		return Policy{}, err
	}
	return out, nil
}

func (s *HTTPStore) Create(ctx context.Context, p Policy) (Policy, error) {
	var out Policy
	err := s.api.Do(ctx, http.MethodPost, "/v1/policies", "create_policy", p, &out,
		map[string]string{"Idempotency-Key": custody.IdempotencyKey("policy", p.Name, p.OwnerID, fingerprint(p))})
	if err != nil {
		return Policy{}, err
	}
	return out, nil
}
