// Package registry tracks the store owner and the add-only set of
// providers authorized to append records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/types"
)

const (
	ownerKey          = "registry/owner"
	providerKeyPrefix = "registry/provider/"
)

// providerMarker is the stored value of an authorized provider key.
var providerMarker = []byte("1")

// Registry is the identity and role registry. Writes are serialized on one
// mutex; reads go straight to the backend.
type Registry struct {
	backend storage.Backend
	logger  *logger.Logger

	mu    sync.Mutex
	owner atomic.Pointer[types.Identity]
}

// New creates a registry over backend.
func New(backend storage.Backend, log *logger.Logger) *Registry {
	return &Registry{
		backend: backend,
		logger:  log,
	}
}

// Initialize makes caller the owner. It succeeds exactly once per store.
func (r *Registry) Initialize(ctx context.Context, caller types.Identity) error {
	if caller.IsZero() {
		return types.ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.backend.Apply(ctx, storage.NewBatch().Create(ownerKey, []byte(caller)))
	if errors.Is(err, storage.ErrKeyExists) {
		return types.ErrAlreadyInitialized
	}
	if err != nil {
		return types.NewInternalError("failed to store owner", err)
	}

	owner := caller
	r.owner.Store(&owner)

	r.logger.WithComponent("registry").WithField("owner", caller.String()).Info("Store initialized")
	return nil
}

// Owner returns the owner identity, or ErrNotInitialized.
func (r *Registry) Owner(ctx context.Context) (types.Identity, error) {
	if cached := r.owner.Load(); cached != nil {
		return *cached, nil
	}

	value, err := r.backend.Get(ctx, ownerKey)
	if err != nil {
		return "", types.NewInternalError("failed to read owner", err)
	}
	if value == nil {
		return "", types.ErrNotInitialized
	}

	owner := types.Identity(value)
	r.owner.Store(&owner)
	return owner, nil
}

// Initialized reports whether an owner has been set.
func (r *Registry) Initialized(ctx context.Context) (bool, error) {
	_, err := r.Owner(ctx)
	if errors.Is(err, types.ErrNotInitialized) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Authorize adds provider to the authorized set. Only the owner may call it.
// Re-authorizing a provider is a no-op; added reports whether the set changed.
// The caller is checked before the provider argument.
func (r *Registry) Authorize(ctx context.Context, caller, provider types.Identity) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, err := r.Owner(ctx)
	if err != nil {
		return false, err
	}
	if caller != owner {
		return false, types.ErrNotOwner.WithDetail("caller", caller.String())
	}
	if provider.IsZero() {
		return false, types.ErrInvalidIdentity.WithDetail("field", "provider")
	}

	authorized, err := r.IsAuthorized(ctx, provider)
	if err != nil {
		return false, err
	}
	if authorized {
		return false, nil
	}

	if err := r.backend.Apply(ctx, storage.NewBatch().Put(providerKey(provider), providerMarker)); err != nil {
		return false, types.NewInternalError("failed to store provider", err)
	}

	r.logger.WithComponent("registry").WithField("provider", provider.String()).Info("Provider authorized")
	return true, nil
}

// IsAuthorized reports whether provider is in the authorized set.
func (r *Registry) IsAuthorized(ctx context.Context, provider types.Identity) (bool, error) {
	if provider.IsZero() {
		return false, nil
	}

	value, err := r.backend.Get(ctx, providerKey(provider))
	if err != nil {
		return false, types.NewInternalError(fmt.Sprintf("failed to read provider %s", provider), err)
	}
	return value != nil, nil
}

func providerKey(provider types.Identity) string {
	return providerKeyPrefix + provider.String()
}
