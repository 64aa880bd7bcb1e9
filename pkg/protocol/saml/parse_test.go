package saml

import (
	"bytes"
	"testing"
	"time"
)

const signedAssertionResponse = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_resp1" Version="2.0" IssueInstant="2024-05-14T12:00:00Z" InResponseTo="_req1" Destination="https://sp.example.org/acs">
  <saml:Issuer xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion">https://idp.example.org</saml:Issuer>
  <samlp:Status>
    <samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/>
  </samlp:Status>
  <saml:Assertion xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_a1" Version="2.0" IssueInstant="2024-05-14T12:00:00Z">
    <saml:Issuer>https://idp.example.org</saml:Issuer>
    <ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:SignedInfo/></ds:Signature>
    <saml:Subject>
      <saml:NameID Format="urn:oasis:names:tc:SAML:2.0:nameid-format:persistent">jdoe</saml:NameID>
      <saml:SubjectConfirmation Method="urn:oasis:names:tc:SAML:2.0:cm:bearer">
        <saml:SubjectConfirmationData NotOnOrAfter="2024-05-14T12:05:00Z" Recipient="https://sp.example.org/acs" InResponseTo="_req1"/>
      </saml:SubjectConfirmation>
    </saml:Subject>
    <saml:Conditions NotBefore="2024-05-14T11:55:00Z" NotOnOrAfter="2024-05-14T12:05:00Z">
      <saml:AudienceRestriction>
        <saml:Audience>https://sp.example.org/metadata</saml:Audience>
      </saml:AudienceRestriction>
      <saml:OneTimeUse/>
      <saml:DoNotCacheCondition/>
    </saml:Conditions>
    <saml:AuthnStatement AuthnInstant="2024-05-14T11:59:00Z" SessionIndex="s1">
      <saml:SubjectLocality Address="203.0.113.7"/>
      <saml:AuthnContext>
        <saml:AuthnContextClassRef>urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport</saml:AuthnContextClassRef>
      </saml:AuthnContext>
    </saml:AuthnStatement>
    <saml:AttributeStatement>
      <saml:Attribute Name="mail"><saml:AttributeValue>jdoe@example.org</saml:AttributeValue></saml:Attribute>
      <saml:Attribute FriendlyName="displayName"><saml:AttributeValue>Jane Doe</saml:AttributeValue></saml:Attribute>
    </saml:AttributeStatement>
  </saml:Assertion>
</samlp:Response>`

func TestParseResponse(t *testing.T) {
	response, err := ParseResponse([]byte(signedAssertionResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	if response.Status.StatusCode.Value != StatusSuccess {
		t.Fatalf("status code is %q, want success", response.Status.StatusCode.Value)
	}
	if response.InResponseTo != "_req1" {
		t.Fatalf("in-response-to is %q", response.InResponseTo)
	}
	if response.Destination != "https://sp.example.org/acs" {
		t.Fatalf("destination is %q", response.Destination)
	}

	wantInstant := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	if !response.IssueInstant.Equal(wantInstant) {
		t.Fatalf("issue instant is %v, want %v", response.IssueInstant, wantInstant)
	}
	if response.Issuer == nil || response.Issuer.Value != "https://idp.example.org" {
		t.Fatalf("issuer not parsed: %+v", response.Issuer)
	}
	if response.Signature != nil {
		t.Fatal("response is unsigned, signature must be nil")
	}

	if len(response.Assertions) != 1 {
		t.Fatalf("parsed %d assertions, want 1", len(response.Assertions))
	}
	assertion := response.Assertions[0]

	if assertion.Subject == nil || assertion.Subject.NameID == nil {
		t.Fatal("subject name identifier not parsed")
	}
	if assertion.Subject.NameID.Value != "jdoe" {
		t.Fatalf("subject is %q", assertion.Subject.NameID.Value)
	}
	if len(assertion.Subject.SubjectConfirmations) != 1 {
		t.Fatalf("parsed %d confirmations, want 1", len(assertion.Subject.SubjectConfirmations))
	}
	confirmation := assertion.Subject.SubjectConfirmations[0]
	if confirmation.Method != ConfirmationMethodBearer {
		t.Fatalf("confirmation method is %q", confirmation.Method)
	}
	data := confirmation.SubjectConfirmationData
	if data == nil {
		t.Fatal("confirmation data not parsed")
	}
	if data.Recipient != "https://sp.example.org/acs" || data.InResponseTo != "_req1" {
		t.Fatalf("confirmation data mismatch: %+v", data)
	}
	if !data.NotBefore.IsZero() {
		t.Fatalf("absent NotBefore must stay zero, got %v", data.NotBefore)
	}
	if data.NotOnOrAfter.IsZero() {
		t.Fatal("NotOnOrAfter attribute not parsed")
	}

	conditions := assertion.Conditions
	if conditions == nil {
		t.Fatal("conditions not parsed")
	}
	if len(conditions.AudienceRestrictions) != 1 || len(conditions.AudienceRestrictions[0].Audiences) != 1 {
		t.Fatalf("audience restrictions mismatch: %+v", conditions.AudienceRestrictions)
	}
	if got := conditions.AudienceRestrictions[0].Audiences[0].Value; got != "https://sp.example.org/metadata" {
		t.Fatalf("audience is %q", got)
	}
	if conditions.OneTimeUse == nil {
		t.Fatal("OneTimeUse condition not parsed")
	}
	if len(conditions.Extensions) != 1 || conditions.Extensions[0].XMLName.Local != "DoNotCacheCondition" {
		t.Fatalf("extension conditions mismatch: %+v", conditions.Extensions)
	}

	if !assertion.HasAuthnStatement() {
		t.Fatal("assertion carries an authentication statement")
	}
	statement := assertion.AuthnStatements[0]
	if statement.SubjectLocality == nil || statement.SubjectLocality.Address != "203.0.113.7" {
		t.Fatalf("subject locality mismatch: %+v", statement.SubjectLocality)
	}
	if statement.AuthnContext == nil || statement.AuthnContext.AuthnContextClassRef == nil {
		t.Fatal("authn context not parsed")
	}
	if !statement.SessionNotOnOrAfter.IsZero() {
		t.Fatal("absent SessionNotOnOrAfter must stay zero")
	}
}

func TestParseResponseCapturesSignedAssertion(t *testing.T) {
	response, err := ParseResponse([]byte(signedAssertionResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	signature := response.Assertions[0].Signature
	if signature == nil {
		t.Fatal("assertion signature presence not detected")
	}
	if len(signature.Raw) == 0 {
		t.Fatal("signed assertion subtree not captured")
	}
	if !bytes.Contains(signature.Raw, []byte(`ID="_a1"`)) {
		t.Fatalf("captured subtree does not contain the assertion element:\n%s", signature.Raw)
	}
	if bytes.Contains(signature.Raw, []byte("samlp:Response")) {
		t.Fatal("captured subtree must be detached from the enclosing response")
	}
}

func TestParseResponseCapturesResponseSignature(t *testing.T) {
	raw := []byte(`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="_resp2" Version="2.0" IssueInstant="2024-05-14T12:00:00Z">
  <ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:SignedInfo/></ds:Signature>
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
</samlp:Response>`)

	response, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if response.Signature == nil {
		t.Fatal("response signature presence not detected")
	}
	if !bytes.Equal(response.Signature.Raw, raw) {
		t.Fatal("response-level blob must be the whole document")
	}
}

func TestParseResponseMalformed(t *testing.T) {
	if _, err := ParseResponse([]byte("<samlp:Response")); err == nil {
		t.Fatal("malformed document must not parse")
	}
}

func TestAttributeHelpers(t *testing.T) {
	response, err := ParseResponse([]byte(signedAssertionResponse))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	assertion := response.Assertions[0]

	attributes := assertion.Attributes()
	if got := attributes["mail"]; len(got) != 1 || got[0] != "jdoe@example.org" {
		t.Fatalf("mail attribute mismatch: %v", got)
	}
	if got := attributes["displayName"]; len(got) != 1 || got[0] != "Jane Doe" {
		t.Fatalf("friendly-name fallback mismatch: %v", got)
	}
	if got := assertion.AttributeValue("mail"); got != "jdoe@example.org" {
		t.Fatalf("AttributeValue returned %q", got)
	}
	if got := assertion.AttributeValue("missing"); got != "" {
		t.Fatalf("absent attribute returned %q", got)
	}
}
