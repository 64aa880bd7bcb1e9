package websso

import (
	"context"
	"time"

	"github.com/porthorian/websso/pkg/protocol/saml"
	"github.com/porthorian/websso/pkg/session"
)

type ValidationContext struct {
	PeerEntityID  string       // PeerEntityID names the identity provider the response must come from; issuer values and signatures are checked against it, never against whatever the message claims.
	LocalEntityID string       // LocalEntityID is the audience the assertions must be restricted to; defaults to the configured service provider's entity ID.
	Binding       saml.Binding // Binding is the transport profile the message arrived over; destination checks only accept endpoints registered for it. Defaults to HTTP-POST.
	PeerAddress   string       // PeerAddress is the network address the message was received from when the transport knows it; empty disables subject locality checks.
}

type Credential struct {
	Subject          string              // Subject is the bearer-confirmed name identifier of the authenticated principal.
	Issuer           string              // Issuer is the entity ID of the identity provider that vouched for the subject.
	Assertion        *saml.Assertion     // Assertion is the authentication assertion the subject was confirmed against, kept for post-validation inspection.
	AuthenticatedAt  time.Time           // AuthenticatedAt preserves the reported authentication instant for freshness controls and auditing.
	SessionIndex     string              // SessionIndex identifies the identity provider session so single logout can name it later.
	SessionExpiresAt time.Time           // SessionExpiresAt bounds the provider session; zero when the provider left it open-ended.
	Attributes       map[string][]string // Attributes carries the assertion's attribute statements keyed by attribute name.
}

// SessionRecord projects the credential into a local session record. The
// caller's session manager owns it from there.
func (c Credential) SessionRecord() session.Record {
	return session.Record{
		Subject:        c.Subject,
		IssuerEntityID: c.Issuer,
		SessionIndex:   c.SessionIndex,
		ExpiresAt:      c.SessionExpiresAt,
		Attributes:     c.Attributes,
	}
}

// Consumer validates inbound responses and mints credentials from the ones
// that survive. A non-nil error is an *errors.Error whose code names the first
// check that failed.
type Consumer interface {
	ConsumeResponse(ctx context.Context, response *saml.Response, vc ValidationContext) (Credential, error)
}

func (vc ValidationContext) normalize(localEntityID string) ValidationContext {
	if vc.LocalEntityID == "" {
		vc.LocalEntityID = localEntityID
	}
	if vc.Binding == "" {
		vc.Binding = saml.BindingHTTPPost
	}
	return vc
}
