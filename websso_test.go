package websso

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	oerrors "github.com/porthorian/websso/pkg/errors"
	"github.com/porthorian/websso/pkg/storage"
	"github.com/porthorian/websso/pkg/trust"
)

const responseDocument = `<?xml version="1.0" encoding="UTF-8"?>
<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_response-1" Version="2.0" IssueInstant="2024-05-14T12:00:00Z" Destination="https://sp.example.net/sso/acs" InResponseTo="request-77">
  <saml:Issuer>https://idp.example.org/metadata</saml:Issuer>
  <samlp:Status>
    <samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/>
  </samlp:Status>
  <saml:Assertion ID="_assertion-1" Version="2.0" IssueInstant="2024-05-14T12:00:00Z">
    <saml:Issuer>https://idp.example.org/metadata</saml:Issuer>
    <saml:Subject>
      <saml:NameID>jdoe@example.net</saml:NameID>
      <saml:SubjectConfirmation Method="urn:oasis:names:tc:SAML:2.0:cm:bearer">
        <saml:SubjectConfirmationData NotOnOrAfter="2024-05-14T12:05:00Z" Recipient="https://sp.example.net/sso/acs" InResponseTo="request-77"/>
      </saml:SubjectConfirmation>
    </saml:Subject>
    <saml:Conditions NotBefore="2024-05-14T11:59:00Z" NotOnOrAfter="2024-05-14T12:05:00Z">
      <saml:AudienceRestriction>
        <saml:Audience>https://sp.example.net/metadata</saml:Audience>
      </saml:AudienceRestriction>
    </saml:Conditions>
    <saml:AuthnStatement AuthnInstant="2024-05-14T11:59:00Z" SessionIndex="session-9"/>
  </saml:Assertion>
</samlp:Response>`

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewDefault(Config{
		ServiceProvider: testProvider(),
		TrustVerifier:   &capturingVerifier{decision: trust.DecisionAuthentic},
		Clock:           clockwork.NewFakeClockAt(reference),
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: StorageBackendMemory},
		},
	})
	if err != nil {
		t.Fatalf("NewDefault returned %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientConsumeDocument(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	tracked, err := client.TrackRequest(ctx, storage.PendingRequest{ID: "request-77"})
	if err != nil {
		t.Fatalf("TrackRequest returned %v", err)
	}
	if tracked.Kind != storage.KindAuthnRequest {
		t.Fatalf("unexpected kind %q", tracked.Kind)
	}

	credential, err := client.ConsumeDocument(ctx, []byte(responseDocument), testContext())
	if err != nil {
		t.Fatalf("ConsumeDocument returned %v", err)
	}
	if credential.Subject != "jdoe@example.net" {
		t.Fatalf("unexpected subject %q", credential.Subject)
	}
	if credential.SessionIndex != "session-9" {
		t.Fatalf("unexpected session index %q", credential.SessionIndex)
	}

	// The request was spent above, so the same document replays as
	// unsolicited.
	_, err = client.ConsumeDocument(ctx, []byte(responseDocument), testContext())
	if got := oerrors.CodeOf(err); got != oerrors.CodeUnsolicitedResponse {
		t.Fatalf("expected %s on replay, got %s: %v", oerrors.CodeUnsolicitedResponse, got, err)
	}
}

func TestClientConsumeDocumentUnparseable(t *testing.T) {
	client := newTestClient(t)

	_, err := client.ConsumeDocument(context.Background(), []byte("not xml at all"), testContext())
	if err == nil {
		t.Fatal("expected parse failure")
	}
	if got := oerrors.CodeOf(err); got != oerrors.CodeUnknown {
		t.Fatalf("expected %s, got %s", oerrors.CodeUnknown, got)
	}
}

func TestClientTrackRequestGeneratesID(t *testing.T) {
	client := newTestClient(t)

	tracked, err := client.TrackRequest(context.Background(), storage.PendingRequest{})
	if err != nil {
		t.Fatalf("TrackRequest returned %v", err)
	}
	if tracked.ID == "" {
		t.Fatal("expected a generated request ID")
	}
	if !tracked.CreatedAt.Equal(reference) {
		t.Fatalf("unexpected CreatedAt %s", tracked.CreatedAt)
	}
}

func TestClientTrackRequestDuplicate(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.TrackRequest(ctx, storage.PendingRequest{ID: "request-1"}); err != nil {
		t.Fatalf("TrackRequest returned %v", err)
	}
	if _, err := client.TrackRequest(ctx, storage.PendingRequest{ID: "request-1"}); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestClientRequiresConsumer(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, oerrors.ErrMissingConsumer) {
		t.Fatalf("expected ErrMissingConsumer, got %v", err)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	client := newTestClient(t)

	if err := client.Close(); err != nil {
		t.Fatalf("first close returned %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close returned %v", err)
	}

	if _, err := client.Consume(context.Background(), validResponse(""), testContext()); !errors.Is(err, oerrors.ErrMissingConsumer) {
		t.Fatalf("expected ErrMissingConsumer after close, got %v", err)
	}
}

func TestNewDefaultUnknownStorageBackend(t *testing.T) {
	_, err := NewDefault(Config{
		ServiceProvider: testProvider(),
		TrustVerifier:   &capturingVerifier{decision: trust.DecisionAuthentic},
		Runtime: RuntimeConfig{
			Storage: StorageConfig{Backend: StorageBackend("cassandra")},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported runtime.storage.backend") {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}
}
