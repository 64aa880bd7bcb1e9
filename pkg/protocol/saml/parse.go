package saml

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ParseResponse decodes a raw samlp:Response document. Struct fields
// describe the message; Signature.Raw on the response and on each signed
// assertion holds the serialized XML subtree the trust verifier will
// re-canonicalize. The response-level blob is the whole document, the
// assertion-level blob is the assertion element detached into its own
// document.
func ParseResponse(raw []byte) (*Response, error) {
	var response Response
	if err := xml.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("websso/saml: unmarshal response: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("websso/saml: read response document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("websso/saml: response document has no root element")
	}

	if response.Signature != nil {
		response.Signature.Raw = raw
	}

	// Element order from etree matches the unmarshal order of Assertions.
	elements := root.FindElements("./Assertion")
	for i := range response.Assertions {
		if response.Assertions[i].Signature == nil {
			continue
		}
		if i >= len(elements) {
			return nil, fmt.Errorf("websso/saml: signed assertion %d missing from document", i)
		}
		subtree, err := detachElement(elements[i])
		if err != nil {
			return nil, fmt.Errorf("websso/saml: serialize assertion %d: %w", i, err)
		}
		response.Assertions[i].Signature.Raw = subtree
	}

	return &response, nil
}

func detachElement(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	return doc.WriteToBytes()
}
