// Package confirmation judges subject-confirmation entries. Each handler
// implements one confirmation method; entries whose method has no handler
// are irrelevant to the profile and skipped entirely.
package confirmation

import (
	"errors"
	"time"

	"github.com/porthorian/websso/pkg/protocol/saml"
)

// Input carries everything a method needs to judge one confirmation entry.
// Now is the engine's single per-call clock sample.
type Input struct {
	Data *saml.SubjectConfirmationData
	Now  time.Time

	// HasCorrelatedRequest is set when the response resolved to an
	// original request; CorrelatedRequestID is that request's ID.
	HasCorrelatedRequest bool
	CorrelatedRequestID  string

	// RecipientURLs are the local endpoints registered for the binding
	// the message arrived over.
	RecipientURLs []string

	// PeerAddress is the transport peer the message arrived from, empty
	// when the transport does not know it. Handlers that honor the
	// confirmation data Address attribute compare against it.
	PeerAddress string
}

type Outcome int

const (
	// OutcomeConfirmed marks the subject confirmed; scanning stops.
	OutcomeConfirmed Outcome = iota
	// OutcomeSkipped rejects this entry only; scanning continues.
	OutcomeSkipped
	// OutcomeRejected fails the whole assertion immediately.
	OutcomeRejected
)

// Handler judges entries of a single confirmation method. The error
// explains a skip or rejection; it is nil for OutcomeConfirmed.
type Handler interface {
	Method() string
	Confirm(input Input) (Outcome, error)
}

type Registry struct {
	handlers map[string]Handler
}

var (
	ErrNilHandler      = errors.New("confirmation: handler is nil")
	ErrEmptyMethod     = errors.New("confirmation: handler method is empty")
	ErrDuplicateMethod = errors.New("confirmation: handler already exists")
)

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		handlers: map[string]Handler{},
	}

	for _, handler := range handlers {
		if err := r.Register(handler); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// DefaultRegistry recognizes only the bearer method, per the WebSSO
// profile.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Bearer{})
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	method := handler.Method()
	if method == "" {
		return ErrEmptyMethod
	}

	if _, exists := r.handlers[method]; exists {
		return ErrDuplicateMethod
	}

	r.handlers[method] = handler
	return nil
}

func (r *Registry) Handler(method string) (Handler, bool) {
	handler, ok := r.handlers[method]
	return handler, ok
}
