package saml

// XML namespaces used by the protocol schema.
const (
	NamespaceProtocol  = "urn:oasis:names:tc:SAML:2.0:protocol"
	NamespaceAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"
	NamespaceSignature = "http://www.w3.org/2000/09/xmldsig#"
)

const VersionSAML2 = "2.0"

// Top-level status codes. Only StatusSuccess admits a response into the
// validation pipeline; the rest exist for diagnostics.
const (
	StatusSuccess     = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusRequester   = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusResponder   = "urn:oasis:names:tc:SAML:2.0:status:Responder"
	StatusAuthnFailed = "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed"
)

// Subject confirmation methods. The WebSSO profile only recognizes bearer.
const (
	ConfirmationMethodBearer        = "urn:oasis:names:tc:SAML:2.0:cm:bearer"
	ConfirmationMethodHolderOfKey   = "urn:oasis:names:tc:SAML:2.0:cm:holder-of-key"
	ConfirmationMethodSenderVouches = "urn:oasis:names:tc:SAML:2.0:cm:sender-vouches"
)

const (
	NameIDFormatUnspecified  = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	NameIDFormatEmailAddress = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	NameIDFormatEntity       = "urn:oasis:names:tc:SAML:2.0:nameid-format:entity"
	NameIDFormatPersistent   = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	NameIDFormatTransient    = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
)

// Binding identifies the transport profile a message arrived over. Endpoint
// registration in service provider metadata is keyed by binding.
type Binding string

const (
	BindingHTTPPost     Binding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	BindingHTTPRedirect Binding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	BindingHTTPArtifact Binding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"
)

func (b Binding) String() string {
	return string(b)
}
