package httptransport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrMethodNotAllowed = errors.New("httptransport: binding requires POST")
	ErrMissingResponse  = errors.New("httptransport: submission carries no response document")
	ErrDocumentTooLarge = errors.New("httptransport: encoded document exceeds the configured limit")
)

const (
	defaultResponseField   = "SAMLResponse"
	defaultRelayStateField = "RelayState"
	defaultMaxEncodedSize  = 1 << 20
)

// Config bounds HTTP-POST binding submissions arriving at an
// assertion-consumer endpoint.
type Config struct {
	ResponseField     string
	RelayStateField   string
	MaxEncodedSize    int64
	TrustForwardedFor bool
}

func DefaultConfig() Config {
	return Config{
		ResponseField:   defaultResponseField,
		RelayStateField: defaultRelayStateField,
		MaxEncodedSize:  defaultMaxEncodedSize,
	}
}

func (c Config) normalize() Config {
	defaults := DefaultConfig()

	if c.ResponseField == "" {
		c.ResponseField = defaults.ResponseField
	}
	if c.RelayStateField == "" {
		c.RelayStateField = defaults.RelayStateField
	}
	if c.MaxEncodedSize <= 0 {
		c.MaxEncodedSize = defaults.MaxEncodedSize
	}
	return c
}

// Submission is one decoded HTTP-POST binding delivery: the raw response
// document ready for the consumer, the opaque relay state echoed back by the
// identity provider, and the transport peer address for locality checks.
type Submission struct {
	Document    []byte
	RelayState  string
	PeerAddress string
}

func ExtractSubmission(r *http.Request, config Config) (Submission, error) {
	if r.Method != http.MethodPost {
		return Submission{}, ErrMethodNotAllowed
	}

	config = config.normalize()

	if err := r.ParseForm(); err != nil {
		return Submission{}, fmt.Errorf("httptransport: failed to parse form: %w", err)
	}

	encoded := r.PostFormValue(config.ResponseField)
	if encoded == "" {
		return Submission{}, ErrMissingResponse
	}
	if int64(len(encoded)) > config.MaxEncodedSize {
		return Submission{}, ErrDocumentTooLarge
	}

	document, err := decodeDocument(encoded)
	if err != nil {
		return Submission{}, fmt.Errorf("httptransport: failed to decode response document: %w", err)
	}

	return Submission{
		Document:    document,
		RelayState:  r.PostFormValue(config.RelayStateField),
		PeerAddress: PeerAddress(r, config.TrustForwardedFor),
	}, nil
}

// decodeDocument tolerates the line-wrapped base64 some providers emit.
func decodeDocument(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, encoded)
	return base64.StdEncoding.DecodeString(cleaned)
}

// PeerAddress reports the transport peer. The forwarded header is consulted
// only when the deployment vouches for its proxy chain; otherwise the socket
// address wins.
func PeerAddress(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if addr := strings.TrimSpace(first); addr != "" {
				return addr
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
