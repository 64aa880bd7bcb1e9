package metadata

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	crewjam "github.com/crewjam/saml"

	"github.com/porthorian/websso/pkg/protocol/saml"
)

// IdentityProvider is a trusted peer entity loaded from its descriptor:
// the entity ID responses must claim, the certificates its signatures must
// verify against, and where to send authentication requests.
type IdentityProvider struct {
	entityID     string
	certificates []*x509.Certificate
	ssoEndpoints []Endpoint
}

func (p *IdentityProvider) EntityID() string {
	if p == nil {
		return ""
	}
	return p.entityID
}

func (p *IdentityProvider) Certificates() []*x509.Certificate {
	if p == nil {
		return nil
	}
	return p.certificates
}

// SSOEndpoint returns the provider's single-sign-on location for the
// binding, if it registered one.
func (p *IdentityProvider) SSOEndpoint(binding saml.Binding) (Endpoint, bool) {
	if p == nil {
		return Endpoint{}, false
	}
	for _, endpoint := range p.ssoEndpoints {
		if endpoint.Binding == binding {
			return endpoint, true
		}
	}
	return Endpoint{}, false
}

// ParseIdentityProvider reads an entity descriptor and collects the signing
// certificates of its identity provider role. Descriptors without a usable
// signing key are rejected; a provider that cannot sign cannot be trusted.
func ParseIdentityProvider(raw []byte) (*IdentityProvider, error) {
	var descriptor crewjam.EntityDescriptor
	if err := xml.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("metadata: parse entity descriptor: %w", err)
	}
	if len(descriptor.IDPSSODescriptors) == 0 {
		return nil, errors.New("metadata: descriptor has no identity provider role")
	}

	provider := &IdentityProvider{entityID: descriptor.EntityID}
	for _, role := range descriptor.IDPSSODescriptors {
		for _, keyDescriptor := range role.KeyDescriptors {
			if keyDescriptor.Use != "" && keyDescriptor.Use != "signing" {
				continue
			}
			for _, certificate := range keyDescriptor.KeyInfo.X509Data.X509Certificates {
				parsed, err := decodeCertificate(certificate.Data)
				if err != nil {
					return nil, fmt.Errorf("metadata: decode signing certificate for %s: %w", descriptor.EntityID, err)
				}
				provider.certificates = append(provider.certificates, parsed)
			}
		}
		for _, service := range role.SingleSignOnServices {
			provider.ssoEndpoints = append(provider.ssoEndpoints, Endpoint{
				URL:     service.Location,
				Binding: saml.Binding(service.Binding),
			})
		}
	}

	if len(provider.certificates) == 0 {
		return nil, fmt.Errorf("metadata: descriptor for %s has no signing certificates", descriptor.EntityID)
	}
	return provider, nil
}

// ParseServiceProvider reads an entity descriptor's service provider role
// into a StaticServiceProvider.
func ParseServiceProvider(raw []byte) (*StaticServiceProvider, error) {
	var descriptor crewjam.EntityDescriptor
	if err := xml.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("metadata: parse entity descriptor: %w", err)
	}
	if len(descriptor.SPSSODescriptors) == 0 {
		return nil, errors.New("metadata: descriptor has no service provider role")
	}

	provider := &StaticServiceProvider{ID: descriptor.EntityID}
	for _, role := range descriptor.SPSSODescriptors {
		if role.WantAssertionsSigned != nil {
			provider.RequireSignedAssertions = *role.WantAssertionsSigned
		}
		for _, service := range role.AssertionConsumerServices {
			provider.Endpoints = append(provider.Endpoints, Endpoint{
				URL:     service.Location,
				Binding: saml.Binding(service.Binding),
				Index:   service.Index,
			})
		}
	}
	return provider, nil
}

// FetchIdentityProvider retrieves and parses a descriptor from a metadata
// URL.
func FetchIdentityProvider(ctx context.Context, metadataURL string) (*IdentityProvider, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: build request: %w", err)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("metadata: fetch %s: %w", metadataURL, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata: fetch %s: unexpected status %d", metadataURL, response.StatusCode)
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("metadata: read %s: %w", metadataURL, err)
	}
	return ParseIdentityProvider(raw)
}

// decodeCertificate handles the base64 DER payload of an X509Certificate
// element, which descriptors commonly wrap across lines.
func decodeCertificate(data string) (*x509.Certificate, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)

	der, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return certificate, nil
}
