package saml

// Attributes flattens the assertion's attribute statements into a map of
// attribute name to values. FriendlyName is used when Name is absent;
// attributes with neither are dropped.
func (a *Assertion) Attributes() map[string][]string {
	if a == nil || len(a.AttributeStatements) == 0 {
		return nil
	}

	out := make(map[string][]string)
	for _, statement := range a.AttributeStatements {
		for _, attribute := range statement.Attributes {
			name := attribute.Name
			if name == "" {
				name = attribute.FriendlyName
			}
			if name == "" {
				continue
			}
			for _, value := range attribute.Values {
				out[name] = append(out[name], value.Value)
			}
		}
	}
	return out
}

// AttributeValue returns the first value of the named attribute, or the
// empty string when the attribute is absent.
func (a *Assertion) AttributeValue(name string) string {
	if a == nil {
		return ""
	}
	for _, statement := range a.AttributeStatements {
		for _, attribute := range statement.Attributes {
			if attribute.Name != name && attribute.FriendlyName != name {
				continue
			}
			for _, value := range attribute.Values {
				return value.Value
			}
		}
	}
	return ""
}
