package saml

import (
	"encoding/xml"
	"time"
)

// Response is a parsed samlp:Response message. The validation engine treats
// it as immutable input; optional fields are pointers or zero values.
type Response struct {
	XMLName      xml.Name    `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`
	ID           string      `xml:"ID,attr"`
	InResponseTo string      `xml:"InResponseTo,attr,omitempty"`
	Version      string      `xml:"Version,attr"`
	IssueInstant time.Time   `xml:"IssueInstant,attr"`
	Destination  string      `xml:"Destination,attr,omitempty"`
	Issuer       *Issuer     `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature    *Signature  `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Status       Status      `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	Assertions   []Assertion `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
}

// Signature marks the presence of an enveloped ds:Signature. The element
// body is not modeled here; Raw carries the serialized document subtree the
// signature covers, filled in by ParseResponse and handed opaquely to the
// trust verifier.
type Signature struct {
	XMLName xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Raw     []byte   `xml:"-"`
}

type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Format  string   `xml:"Format,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type Status struct {
	XMLName       xml.Name       `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	StatusCode    StatusCode     `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
	StatusMessage *StatusMessage `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusMessage"`
}

type StatusCode struct {
	Value      string      `xml:"Value,attr"`
	StatusCode *StatusCode `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

type StatusMessage struct {
	Value string `xml:",chardata"`
}

type Assertion struct {
	XMLName             xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
	ID                  string               `xml:"ID,attr"`
	Version             string               `xml:"Version,attr"`
	IssueInstant        time.Time            `xml:"IssueInstant,attr"`
	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature           *Signature           `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Subject             *Subject             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions          *Conditions          `xml:"urn:oasis:names:tc:SAML:2.0:assertion Conditions"`
	AuthnStatements     []AuthnStatement     `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnStatement"`
	AttributeStatements []AttributeStatement `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement"`
}

// HasAuthnStatement reports whether the assertion is an authentication
// assertion, which is held to the stricter audience rules.
func (a *Assertion) HasAuthnStatement() bool {
	return a != nil && len(a.AuthnStatements) > 0
}

type Subject struct {
	XMLName              xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameID               *NameID               `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	SubjectConfirmations []SubjectConfirmation `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmation"`
}

type NameID struct {
	Format          string `xml:"Format,attr,omitempty"`
	NameQualifier   string `xml:"NameQualifier,attr,omitempty"`
	SPNameQualifier string `xml:"SPNameQualifier,attr,omitempty"`
	Value           string `xml:",chardata"`
}

type SubjectConfirmation struct {
	Method                  string                   `xml:"Method,attr"`
	SubjectConfirmationData *SubjectConfirmationData `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectConfirmationData"`
}

// SubjectConfirmationData carries the bearer constraints. Absent time attrs
// unmarshal to the zero time; callers test with IsZero.
type SubjectConfirmationData struct {
	NotBefore    time.Time `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter time.Time `xml:"NotOnOrAfter,attr,omitempty"`
	Recipient    string    `xml:"Recipient,attr,omitempty"`
	InResponseTo string    `xml:"InResponseTo,attr,omitempty"`
	Address      string    `xml:"Address,attr,omitempty"`
}

// Conditions constrains assertion validity. Extension condition types that
// the schema does not name land in Extensions via the xml ",any" rule so
// the engine's condition policy can see them.
type Conditions struct {
	NotBefore            time.Time             `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter         time.Time             `xml:"NotOnOrAfter,attr,omitempty"`
	AudienceRestrictions []AudienceRestriction `xml:"urn:oasis:names:tc:SAML:2.0:assertion AudienceRestriction"`
	OneTimeUse           *OneTimeUse           `xml:"urn:oasis:names:tc:SAML:2.0:assertion OneTimeUse"`
	ProxyRestriction     *ProxyRestriction     `xml:"urn:oasis:names:tc:SAML:2.0:assertion ProxyRestriction"`
	Extensions           []ExtensionCondition  `xml:",any"`
}

type ExtensionCondition struct {
	XMLName xml.Name
}

type AudienceRestriction struct {
	Audiences []Audience `xml:"urn:oasis:names:tc:SAML:2.0:assertion Audience"`
}

type Audience struct {
	Value string `xml:",chardata"`
}

type OneTimeUse struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion OneTimeUse"`
}

type ProxyRestriction struct {
	Count     int        `xml:"Count,attr,omitempty"`
	Audiences []Audience `xml:"urn:oasis:names:tc:SAML:2.0:assertion Audience"`
}

type AuthnStatement struct {
	AuthnInstant        time.Time        `xml:"AuthnInstant,attr"`
	SessionIndex        string           `xml:"SessionIndex,attr,omitempty"`
	SessionNotOnOrAfter time.Time        `xml:"SessionNotOnOrAfter,attr,omitempty"`
	SubjectLocality     *SubjectLocality `xml:"urn:oasis:names:tc:SAML:2.0:assertion SubjectLocality"`
	AuthnContext        *AuthnContext    `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContext"`
}

type SubjectLocality struct {
	Address string `xml:"Address,attr,omitempty"`
	DNSName string `xml:"DNSName,attr,omitempty"`
}

type AuthnContext struct {
	AuthnContextClassRef *AuthnContextClassRef `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContextClassRef"`
}

type AuthnContextClassRef struct {
	Value string `xml:",chardata"`
}

type AttributeStatement struct {
	Attributes []Attribute `xml:"urn:oasis:names:tc:SAML:2.0:assertion Attribute"`
}

type Attribute struct {
	Name         string           `xml:"Name,attr"`
	NameFormat   string           `xml:"NameFormat,attr,omitempty"`
	FriendlyName string           `xml:"FriendlyName,attr,omitempty"`
	Values       []AttributeValue `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

type AttributeValue struct {
	Type  string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr,omitempty"`
	Value string `xml:",chardata"`
}
