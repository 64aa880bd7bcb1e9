// Package trust defines the capability boundary the validation engine uses
// to prove a signature was produced by an already-trusted entity. The
// engine consumes the three-valued decision and never inspects PKI detail.
package trust

import "context"

type Decision int

const (
	// DecisionAuthentic means the signature verified against a known key
	// of the claimed signer.
	DecisionAuthentic Decision = iota
	// DecisionForged means the document carries a signature that does not
	// verify against any known key of the claimed signer.
	DecisionForged
	// DecisionMalformed means the document could not be evaluated at all:
	// unparseable, or missing the signature it claims to carry.
	DecisionMalformed
)

func (d Decision) String() string {
	switch d {
	case DecisionAuthentic:
		return "authentic"
	case DecisionForged:
		return "forged"
	case DecisionMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Verifier checks a serialized XML document against the known signing keys
// of the claimed signer entity. Implementations must be safe for
// concurrent use; the engine may call VerifySignature several times per
// validation.
type Verifier interface {
	VerifySignature(ctx context.Context, document []byte, signerEntityID string) Decision
}
