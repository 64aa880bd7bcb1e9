// Package metadata supplies the entity descriptions the validation engine
// consults: the local service provider's identity and endpoints, and the
// signing certificates of trusted identity providers.
package metadata

import (
	"github.com/porthorian/websso/pkg/protocol/saml"
)

// Endpoint is a registered message-consumption location, keyed by binding.
type Endpoint struct {
	URL     string
	Binding saml.Binding
	Index   int
}

// ServiceProvider describes the local entity. Lookups are read-only and
// must be stable for the duration of a validation call.
type ServiceProvider interface {
	EntityID() string
	EndpointsForBinding(binding saml.Binding) []Endpoint
	WantAssertionsSigned() bool
}
