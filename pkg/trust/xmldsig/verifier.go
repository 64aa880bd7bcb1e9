// Package xmldsig implements the trust verifier on enveloped XML digital
// signatures, resolving signer keys through service provider metadata.
package xmldsig

import (
	"context"
	"crypto/x509"
	"errors"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/porthorian/websso/pkg/trust"
)

// CertificateSource resolves the signing certificates registered for an
// entity. Typically backed by identity provider metadata.
type CertificateSource interface {
	SigningCertificates(entityID string) ([]*x509.Certificate, error)
}

type Config struct {
	Source CertificateSource

	// Clock is only consulted for certificate validity periods. Nil uses
	// the wall clock.
	Clock *dsig.Clock
}

type Verifier struct {
	source CertificateSource
	clock  *dsig.Clock
}

var _ trust.Verifier = (*Verifier)(nil)

var ErrNilSource = errors.New("xmldsig: certificate source is required")

func NewVerifier(config Config) (*Verifier, error) {
	if config.Source == nil {
		return nil, ErrNilSource
	}
	return &Verifier{
		source: config.Source,
		clock:  config.Clock,
	}, nil
}

// VerifySignature validates the enveloped signature on the document's root
// element. A document that cannot be parsed, or that carries no signature,
// is malformed; a signature that does not verify against the signer's
// registered certificates is forged. An entity with no registered
// certificates can never produce an authentic signature.
func (v *Verifier) VerifySignature(ctx context.Context, document []byte, signerEntityID string) trust.Decision {
	certificates, err := v.source.SigningCertificates(signerEntityID)
	if err != nil || len(certificates) == 0 {
		return trust.DecisionForged
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return trust.DecisionMalformed
	}
	root := doc.Root()
	if root == nil {
		return trust.DecisionMalformed
	}

	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: certificates,
	})
	if v.clock != nil {
		vctx.Clock = v.clock
	}

	if _, err := vctx.Validate(root); err != nil {
		if errors.Is(err, dsig.ErrMissingSignature) {
			return trust.DecisionMalformed
		}
		return trust.DecisionForged
	}
	return trust.DecisionAuthentic
}
