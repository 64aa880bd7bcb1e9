package httptransport

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const document = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_r1" Version="2.0"/>`

func postForm(t *testing.T, form url.Values) *http.Request {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "https://sp.example.net/sso/acs", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = "203.0.113.9:49152"
	return r
}

func TestExtractSubmission(t *testing.T) {
	form := url.Values{}
	form.Set("SAMLResponse", base64.StdEncoding.EncodeToString([]byte(document)))
	form.Set("RelayState", "return-to-dashboard")

	submission, err := ExtractSubmission(postForm(t, form), DefaultConfig())
	if err != nil {
		t.Fatalf("ExtractSubmission returned %v", err)
	}

	if string(submission.Document) != document {
		t.Fatalf("unexpected document %q", submission.Document)
	}
	if submission.RelayState != "return-to-dashboard" {
		t.Fatalf("unexpected relay state %q", submission.RelayState)
	}
	if submission.PeerAddress != "203.0.113.9" {
		t.Fatalf("unexpected peer address %q", submission.PeerAddress)
	}
}

func TestExtractSubmissionWrappedBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(document))
	wrapped := encoded[:20] + "\r\n" + encoded[20:40] + "\n   " + encoded[40:]

	form := url.Values{}
	form.Set("SAMLResponse", wrapped)

	submission, err := ExtractSubmission(postForm(t, form), DefaultConfig())
	if err != nil {
		t.Fatalf("ExtractSubmission returned %v", err)
	}
	if string(submission.Document) != document {
		t.Fatalf("unexpected document %q", submission.Document)
	}
}

func TestExtractSubmissionRejectsGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://sp.example.net/sso/acs", nil)

	if _, err := ExtractSubmission(r, DefaultConfig()); !errors.Is(err, ErrMethodNotAllowed) {
		t.Fatalf("expected ErrMethodNotAllowed, got %v", err)
	}
}

func TestExtractSubmissionMissingResponse(t *testing.T) {
	form := url.Values{}
	form.Set("RelayState", "whatever")

	if _, err := ExtractSubmission(postForm(t, form), DefaultConfig()); !errors.Is(err, ErrMissingResponse) {
		t.Fatalf("expected ErrMissingResponse, got %v", err)
	}
}

func TestExtractSubmissionSizeLimit(t *testing.T) {
	form := url.Values{}
	form.Set("SAMLResponse", base64.StdEncoding.EncodeToString([]byte(document)))

	config := DefaultConfig()
	config.MaxEncodedSize = 16

	if _, err := ExtractSubmission(postForm(t, form), config); !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
}

func TestExtractSubmissionBadEncoding(t *testing.T) {
	form := url.Values{}
	form.Set("SAMLResponse", "!!not base64!!")

	if _, err := ExtractSubmission(postForm(t, form), DefaultConfig()); err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestExtractSubmissionCustomFields(t *testing.T) {
	form := url.Values{}
	form.Set("Doc", base64.StdEncoding.EncodeToString([]byte(document)))
	form.Set("State", "opaque")

	config := DefaultConfig()
	config.ResponseField = "Doc"
	config.RelayStateField = "State"

	submission, err := ExtractSubmission(postForm(t, form), config)
	if err != nil {
		t.Fatalf("ExtractSubmission returned %v", err)
	}
	if submission.RelayState != "opaque" {
		t.Fatalf("unexpected relay state %q", submission.RelayState)
	}
}

func TestPeerAddressForwardedFor(t *testing.T) {
	form := url.Values{}
	form.Set("SAMLResponse", base64.StdEncoding.EncodeToString([]byte(document)))

	r := postForm(t, form)
	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	if got := PeerAddress(r, false); got != "203.0.113.9" {
		t.Fatalf("untrusted proxy chain should use the socket address, got %q", got)
	}
	if got := PeerAddress(r, true); got != "198.51.100.4" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
