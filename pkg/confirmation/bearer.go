package confirmation

import (
	oerrors "github.com/porthorian/websso/pkg/errors"
	"github.com/porthorian/websso/pkg/protocol/saml"
	"github.com/porthorian/websso/pkg/skew"
)

// Bearer implements the bearer confirmation method. The protocol requires
// confirmation data with an expiry and forbids a not-before bound; those
// violations reject the assertion outright. A lapsed expiry or an
// unmatched recipient only disqualifies the single entry, since another
// entry on the same subject may still confirm it. The in-response-to check
// is the hard anti-replay tie between assertion and original request.
type Bearer struct{}

var _ Handler = Bearer{}

func (Bearer) Method() string {
	return saml.ConfirmationMethodBearer
}

func (Bearer) Confirm(input Input) (Outcome, error) {
	data := input.Data
	if data == nil {
		return OutcomeRejected, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation has no confirmation data")
	}
	if !data.NotBefore.IsZero() {
		return OutcomeRejected, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation must not carry NotBefore")
	}
	if data.NotOnOrAfter.IsZero() {
		return OutcomeRejected, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation has no NotOnOrAfter")
	}
	if skew.Elapsed(input.Now, data.NotOnOrAfter) {
		return OutcomeSkipped, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation has lapsed")
	}

	if input.HasCorrelatedRequest {
		if data.InResponseTo == "" {
			return OutcomeRejected, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation lacks InResponseTo for a correlated response")
		}
		if data.InResponseTo != input.CorrelatedRequestID {
			return OutcomeRejected, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation InResponseTo does not match the original request")
		}
	}

	if data.Recipient == "" {
		return OutcomeSkipped, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation has no recipient")
	}
	if !containsURL(input.RecipientURLs, data.Recipient) {
		return OutcomeSkipped, oerrors.New(oerrors.CodeConfirmationInvalid, "bearer confirmation recipient is not a registered endpoint")
	}

	return OutcomeConfirmed, nil
}

func containsURL(urls []string, candidate string) bool {
	for _, url := range urls {
		if url == candidate {
			return true
		}
	}
	return false
}
