package metadata

import (
	"crypto/x509"
	"errors"
	"sync"
)

var (
	ErrNilProvider       = errors.New("metadata: provider is nil")
	ErrEmptyEntityID     = errors.New("metadata: provider entity id is empty")
	ErrDuplicateEntityID = errors.New("metadata: provider already registered")
	ErrUnknownEntity     = errors.New("metadata: entity is not registered")
)

// Registry holds the identity providers this service provider trusts and
// resolves their signing certificates for the trust verifier. Registration
// happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*IdentityProvider
}

func NewRegistry(providers ...*IdentityProvider) (*Registry, error) {
	r := &Registry{
		providers: map[string]*IdentityProvider{},
	}

	for _, provider := range providers {
		if err := r.Register(provider); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) Register(provider *IdentityProvider) error {
	if provider == nil {
		return ErrNilProvider
	}

	entityID := provider.EntityID()
	if entityID == "" {
		return ErrEmptyEntityID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[entityID]; exists {
		return ErrDuplicateEntityID
	}

	r.providers[entityID] = provider
	return nil
}

func (r *Registry) Provider(entityID string) (*IdentityProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[entityID]
	return provider, ok
}

// SigningCertificates satisfies the trust verifier's certificate source.
func (r *Registry) SigningCertificates(entityID string) ([]*x509.Certificate, error) {
	provider, ok := r.Provider(entityID)
	if !ok {
		return nil, ErrUnknownEntity
	}
	return provider.Certificates(), nil
}
