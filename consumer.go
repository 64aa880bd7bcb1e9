package websso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jonboulle/clockwork"
	"github.com/porthorian/websso/pkg/confirmation"
	oerrors "github.com/porthorian/websso/pkg/errors"
	"github.com/porthorian/websso/pkg/metadata"
	"github.com/porthorian/websso/pkg/protocol/saml"
	"github.com/porthorian/websso/pkg/skew"
	"github.com/porthorian/websso/pkg/storage"
	"github.com/porthorian/websso/pkg/trust"
)

type ConditionPolicy string

const (
	// ConditionPolicyIgnoreUnknown accepts assertions carrying condition
	// types the engine does not evaluate.
	ConditionPolicyIgnoreUnknown ConditionPolicy = "ignore_unknown"

	// ConditionPolicyRejectUnknown rejects such assertions. An unevaluated
	// condition is an obligation the issuer imposed that this side cannot
	// claim to have honored.
	ConditionPolicyRejectUnknown ConditionPolicy = "reject_unknown"
)

// ConsumerService runs the response validation sequence: message-level
// checks first, then every assertion independently, then the selection of
// the single bearer-confirmed authentication assertion the credential is
// minted from. Checks run in a fixed order and the first failure wins, so
// a rejection always reports the earliest defect.
type ConsumerService struct {
	provider        metadata.ServiceProvider
	verifier        trust.Verifier
	requests        storage.RequestStore
	confirmations   *confirmation.Registry
	conditionPolicy ConditionPolicy
	windows         skew.Windows
	clock           clockwork.Clock
	logger          logr.Logger
}

var _ Consumer = (*ConsumerService)(nil)

func NewConsumer(config Config) (*ConsumerService, error) {
	if config.ServiceProvider == nil {
		return nil, oerrors.ErrMissingServiceProvider
	}
	if config.TrustVerifier == nil {
		return nil, oerrors.ErrMissingVerifier
	}

	confirmations := config.Confirmations
	if confirmations == nil {
		confirmations = confirmation.DefaultRegistry()
	}

	windows := config.Skew
	if windows == (skew.Windows{}) {
		windows = skew.DefaultWindows()
	}

	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	policy := config.ConditionPolicy
	if policy == "" {
		policy = ConditionPolicyIgnoreUnknown
	}

	return &ConsumerService{
		provider:        config.ServiceProvider,
		verifier:        config.TrustVerifier,
		requests:        config.RequestStore,
		confirmations:   confirmations,
		conditionPolicy: policy,
		windows:         windows,
		clock:           clock,
		logger:          resolveLogger(config.Logger),
	}, nil
}

func (s *ConsumerService) ConsumeResponse(ctx context.Context, response *saml.Response, vc ValidationContext) (Credential, error) {
	if s == nil || s.provider == nil {
		return Credential{}, oerrors.ErrMissingServiceProvider
	}
	if s.verifier == nil {
		return Credential{}, oerrors.ErrMissingVerifier
	}
	if response == nil {
		return Credential{}, oerrors.ErrNilResponse
	}
	if vc.PeerEntityID == "" {
		return Credential{}, oerrors.ErrMissingPeerEntity
	}

	vc = vc.normalize(s.provider.EntityID())

	// One clock sample per call keeps every window check in the same frame
	// of reference.
	now := s.clock.Now().UTC()

	original, correlated, err := s.validateResponse(ctx, response, vc, now)
	if err != nil {
		return Credential{}, err
	}

	// The per-entry judgment context is identical for every assertion in
	// the response; build it once.
	confirmationInput := confirmation.Input{
		Now:                  now,
		HasCorrelatedRequest: correlated,
		CorrelatedRequestID:  original.ID,
		RecipientURLs:        s.recipientURLs(vc.Binding),
		PeerAddress:          vc.PeerAddress,
	}

	var subjectAssertion *saml.Assertion
	var subject string
	for i := range response.Assertions {
		assertion := &response.Assertions[i]

		confirmedSubject, err := s.validateAssertion(ctx, assertion, vc, now, confirmationInput)
		if err != nil {
			return Credential{}, err
		}

		if subjectAssertion == nil && assertion.HasAuthnStatement() {
			subjectAssertion = assertion
			subject = confirmedSubject
		}
	}

	if subjectAssertion == nil {
		return Credential{}, oerrors.New(oerrors.CodeNoAuthenticationStatement, "response carries no confirmed authentication assertion")
	}

	statement := subjectAssertion.AuthnStatements[0]
	return Credential{
		Subject:          subject,
		Issuer:           vc.PeerEntityID,
		Assertion:        subjectAssertion,
		AuthenticatedAt:  statement.AuthnInstant,
		SessionIndex:     statement.SessionIndex,
		SessionExpiresAt: statement.SessionNotOnOrAfter,
		Attributes:       subjectAssertion.Attributes(),
	}, nil
}

// validateResponse runs the message-level checks in their fixed order and
// resolves the original request when the response claims one. The stored
// request is consumed on lookup, before the remaining checks run, so a
// replayed response finds nothing even when its first presentation was
// rejected later in the sequence.
func (s *ConsumerService) validateResponse(ctx context.Context, response *saml.Response, vc ValidationContext, now time.Time) (storage.PendingRequest, bool, error) {
	none := storage.PendingRequest{}

	if err := s.validateStatus(response.Status); err != nil {
		return none, false, err
	}

	if response.Signature != nil {
		if err := s.verifySignature(ctx, response.Signature.Raw, vc.PeerEntityID, "response"); err != nil {
			return none, false, err
		}
	}

	if !s.windows.Response.Contains(now, response.IssueInstant) {
		return none, false, oerrors.New(oerrors.CodeMessageExpired,
			fmt.Sprintf("response issued at %s is outside the acceptance window", response.IssueInstant.Format(time.RFC3339)))
	}

	original, correlated, err := s.correlateRequest(ctx, response.InResponseTo)
	if err != nil {
		return none, false, err
	}

	if err := s.validateDestination(response.Destination, vc.Binding); err != nil {
		return none, false, err
	}

	if response.Issuer != nil {
		if err := validateIssuer(response.Issuer, vc.PeerEntityID, "response"); err != nil {
			return none, false, err
		}
	}

	return original, correlated, nil
}

func (s *ConsumerService) validateStatus(status saml.Status) error {
	if status.StatusCode.Value == saml.StatusSuccess {
		return nil
	}

	message := fmt.Sprintf("response reported status %s", status.StatusCode.Value)
	if nested := status.StatusCode.StatusCode; nested != nil && nested.Value != "" {
		message = fmt.Sprintf("%s (%s)", message, nested.Value)
	}
	if status.StatusMessage != nil && status.StatusMessage.Value != "" {
		message = fmt.Sprintf("%s: %s", message, status.StatusMessage.Value)
	}
	return oerrors.New(oerrors.CodeStatusFailure, message)
}

func (s *ConsumerService) verifySignature(ctx context.Context, document []byte, peerEntityID, scope string) error {
	decision := s.verifier.VerifySignature(ctx, document, peerEntityID)
	if decision == trust.DecisionAuthentic {
		return nil
	}
	return oerrors.New(oerrors.CodeSignatureInvalid,
		fmt.Sprintf("%s signature from %s judged %s", scope, peerEntityID, decision))
}

// correlateRequest consumes the stored request named by InResponseTo. An
// uncorrelated response (no InResponseTo) passes through untouched; IdP
// initiated flows are legitimate and carry no request to resolve.
func (s *ConsumerService) correlateRequest(ctx context.Context, inResponseTo string) (storage.PendingRequest, bool, error) {
	none := storage.PendingRequest{}
	if inResponseTo == "" {
		return none, false, nil
	}

	if s.requests == nil {
		return none, false, oerrors.New(oerrors.CodeUnsolicitedResponse,
			"response claims an original request but no request store is configured")
	}

	original, err := s.requests.Consume(ctx, inResponseTo)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return none, false, oerrors.New(oerrors.CodeUnsolicitedResponse,
				fmt.Sprintf("no pending request matches %s", inResponseTo))
		}
		// Fail closed: an unreachable store must not let a response through
		// as if it were solicited.
		return none, false, oerrors.Wrap(oerrors.CodeStorageUnavailable, "request store lookup failed", err)
	}

	if original.Kind != storage.KindAuthnRequest {
		return none, false, oerrors.New(oerrors.CodeUnsolicitedResponse,
			fmt.Sprintf("correlated record %s is not an authentication request", original.ID))
	}

	return original, true, nil
}

func (s *ConsumerService) validateDestination(destination string, binding saml.Binding) error {
	if destination == "" {
		return nil
	}

	for _, endpoint := range s.provider.EndpointsForBinding(binding) {
		if endpoint.URL == destination {
			return nil
		}
	}
	return oerrors.New(oerrors.CodeDestinationMismatch,
		fmt.Sprintf("destination %s is not a registered %s endpoint", destination, binding))
}

func validateIssuer(issuer *saml.Issuer, peerEntityID, scope string) error {
	if issuer.Format != "" && issuer.Format != saml.NameIDFormatEntity {
		return oerrors.New(oerrors.CodeIssuerInvalid,
			fmt.Sprintf("%s issuer format %s is not the entity format", scope, issuer.Format))
	}
	if issuer.Value != peerEntityID {
		return oerrors.New(oerrors.CodeIssuerInvalid,
			fmt.Sprintf("%s issuer %s does not match peer %s", scope, issuer.Value, peerEntityID))
	}
	return nil
}

// validateAssertion verifies one assertion end to end and returns the
// bearer-confirmed subject identifier. Every assertion in the response must
// pass; a single bad assertion rejects the whole message.
func (s *ConsumerService) validateAssertion(ctx context.Context, assertion *saml.Assertion, vc ValidationContext, now time.Time, input confirmation.Input) (string, error) {
	if !s.windows.Assertion.Contains(now, assertion.IssueInstant) {
		return "", oerrors.New(oerrors.CodeAssertionExpired,
			fmt.Sprintf("assertion %s issued at %s is outside the acceptance window", assertion.ID, assertion.IssueInstant.Format(time.RFC3339)))
	}

	if assertion.Issuer == nil {
		return "", oerrors.New(oerrors.CodeIssuerInvalid,
			fmt.Sprintf("assertion %s has no issuer", assertion.ID))
	}
	if err := validateIssuer(assertion.Issuer, vc.PeerEntityID, "assertion"); err != nil {
		return "", err
	}

	if assertion.Signature == nil {
		if s.provider.WantAssertionsSigned() {
			return "", oerrors.New(oerrors.CodeSignatureRequired,
				fmt.Sprintf("assertion %s is unsigned but the provider requires signed assertions", assertion.ID))
		}
	} else if err := s.verifySignature(ctx, assertion.Signature.Raw, vc.PeerEntityID, "assertion"); err != nil {
		return "", err
	}

	subject, err := s.confirmSubject(assertion, input)
	if err != nil {
		return "", err
	}

	if err := s.validateConditions(assertion, vc.LocalEntityID, now); err != nil {
		return "", err
	}

	if err := s.validateAuthnStatements(assertion, vc.PeerAddress, now); err != nil {
		return "", err
	}

	return subject, nil
}

// confirmSubject scans the subject-confirmation entries until a handler
// confirms one. Entries whose method has no handler are not part of the
// profile and are passed over without judgement.
func (s *ConsumerService) confirmSubject(assertion *saml.Assertion, input confirmation.Input) (string, error) {
	subject := assertion.Subject
	if subject == nil {
		return "", oerrors.New(oerrors.CodeConfirmationInvalid,
			fmt.Sprintf("assertion %s has no subject", assertion.ID))
	}

	confirmed := false
	for _, entry := range subject.SubjectConfirmations {
		handler, ok := s.confirmations.Handler(entry.Method)
		if !ok {
			continue
		}

		input.Data = entry.SubjectConfirmationData
		outcome, err := handler.Confirm(input)
		switch outcome {
		case confirmation.OutcomeConfirmed:
			confirmed = true
		case confirmation.OutcomeSkipped:
			reason := "entry disqualified"
			if err != nil {
				reason = err.Error()
			}
			s.logger.V(1).Info("confirmation entry skipped",
				"assertion", assertion.ID,
				"method", entry.Method,
				"reason", reason,
			)
			continue
		case confirmation.OutcomeRejected:
			if err == nil {
				err = oerrors.New(oerrors.CodeConfirmationInvalid,
					fmt.Sprintf("confirmation of assertion %s was rejected", assertion.ID))
			}
			return "", err
		}
		if confirmed {
			break
		}
	}

	if !confirmed {
		return "", oerrors.New(oerrors.CodeConfirmationInvalid,
			fmt.Sprintf("no confirmation entry validated the subject of assertion %s", assertion.ID))
	}

	if subject.NameID == nil || subject.NameID.Value == "" {
		return "", oerrors.New(oerrors.CodeConfirmationInvalid,
			fmt.Sprintf("confirmed subject of assertion %s has no name identifier", assertion.ID))
	}
	return subject.NameID.Value, nil
}

// validateConditions enforces the validity window and audience rules.
// Absent conditions are vacuously valid, even on authentication assertions.
func (s *ConsumerService) validateConditions(assertion *saml.Assertion, localEntityID string, now time.Time) error {
	conditions := assertion.Conditions
	if conditions == nil {
		return nil
	}

	if !conditions.NotBefore.IsZero() && skew.InFuture(now, conditions.NotBefore) {
		return oerrors.New(oerrors.CodeAssertionNotYetValid,
			fmt.Sprintf("assertion %s is not valid before %s", assertion.ID, conditions.NotBefore.Format(time.RFC3339)))
	}
	if !conditions.NotOnOrAfter.IsZero() && skew.Elapsed(now, conditions.NotOnOrAfter) {
		return oerrors.New(oerrors.CodeAssertionExpired,
			fmt.Sprintf("assertion %s is not valid on or after %s", assertion.ID, conditions.NotOnOrAfter.Format(time.RFC3339)))
	}

	if s.conditionPolicy == ConditionPolicyRejectUnknown {
		if name, found := unevaluatedCondition(conditions); found {
			return oerrors.New(oerrors.CodeUnknownCondition,
				fmt.Sprintf("assertion %s carries condition %s which is not evaluated here", assertion.ID, name))
		}
	}

	// Only authentication assertions must name this provider; attribute-only
	// assertions may omit audience restrictions.
	if len(conditions.AudienceRestrictions) == 0 {
		if assertion.HasAuthnStatement() {
			return oerrors.New(oerrors.CodeAudienceMissing,
				fmt.Sprintf("authentication assertion %s restricts no audience", assertion.ID))
		}
		return nil
	}

	for _, restriction := range conditions.AudienceRestrictions {
		if len(restriction.Audiences) == 0 {
			return oerrors.New(oerrors.CodeAudienceInvalid,
				fmt.Sprintf("assertion %s carries an audience restriction naming no audience", assertion.ID))
		}
		if !audienceMatches(restriction, localEntityID) {
			return oerrors.New(oerrors.CodeAudienceInvalid,
				fmt.Sprintf("assertion %s is not addressed to %s", assertion.ID, localEntityID))
		}
	}
	return nil
}

// unevaluatedCondition names the first condition the engine parses but does
// not enforce. OneTimeUse and ProxyRestriction are schema-named yet carry
// obligations this engine leaves to the caller, so the reject policy treats
// them the same as extension types.
func unevaluatedCondition(conditions *saml.Conditions) (string, bool) {
	if conditions.OneTimeUse != nil {
		return "OneTimeUse", true
	}
	if conditions.ProxyRestriction != nil {
		return "ProxyRestriction", true
	}
	if len(conditions.Extensions) > 0 {
		return conditions.Extensions[0].XMLName.Local, true
	}
	return "", false
}

func audienceMatches(restriction saml.AudienceRestriction, localEntityID string) bool {
	for _, audience := range restriction.Audiences {
		if audience.Value == localEntityID {
			return true
		}
	}
	return false
}

func (s *ConsumerService) validateAuthnStatements(assertion *saml.Assertion, peerAddress string, now time.Time) error {
	for _, statement := range assertion.AuthnStatements {
		if !s.windows.Authentication.Contains(now, statement.AuthnInstant) {
			return oerrors.New(oerrors.CodeCredentialsExpired,
				fmt.Sprintf("authentication at %s is outside the freshness window", statement.AuthnInstant.Format(time.RFC3339)))
		}

		if !statement.SessionNotOnOrAfter.IsZero() && skew.Elapsed(now, statement.SessionNotOnOrAfter) {
			return oerrors.New(oerrors.CodeCredentialsExpired,
				fmt.Sprintf("provider session ended at %s", statement.SessionNotOnOrAfter.Format(time.RFC3339)))
		}

		if locality := statement.SubjectLocality; locality != nil && locality.Address != "" && peerAddress != "" && locality.Address != peerAddress {
			return oerrors.New(oerrors.CodeAddressMismatch,
				fmt.Sprintf("authentication was bound to %s but the message arrived from %s", locality.Address, peerAddress))
		}
	}
	return nil
}

func (s *ConsumerService) recipientURLs(binding saml.Binding) []string {
	endpoints := s.provider.EndpointsForBinding(binding)
	urls := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		urls = append(urls, endpoint.URL)
	}
	return urls
}
