package metadata

import (
	"github.com/porthorian/websso/pkg/protocol/saml"
)

// StaticServiceProvider is a ServiceProvider declared in code or loaded
// from a descriptor, with no remote refresh.
type StaticServiceProvider struct {
	ID                      string
	Endpoints               []Endpoint
	RequireSignedAssertions bool
}

var _ ServiceProvider = (*StaticServiceProvider)(nil)

func (s *StaticServiceProvider) EntityID() string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (s *StaticServiceProvider) EndpointsForBinding(binding saml.Binding) []Endpoint {
	if s == nil {
		return nil
	}

	var matched []Endpoint
	for _, endpoint := range s.Endpoints {
		if endpoint.Binding == binding {
			matched = append(matched, endpoint)
		}
	}
	return matched
}

func (s *StaticServiceProvider) WantAssertionsSigned() bool {
	return s != nil && s.RequireSignedAssertions
}
