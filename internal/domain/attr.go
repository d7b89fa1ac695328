package domain

// Attributes are a variable's NetCDF attributes keyed by name. Values keep
// whatever Go type the reader produced.
type Attributes map[string]any

// AttributeString extracts a string attribute of variable. Absence yields a
// *MissingVariableError naming "<variable>.<name>"; any non-string value
// yields a *MalformedAttributeError.
func AttributeString(attrs Attributes, variable, name string) (string, error) {
	v, ok := attrs[name]
	if !ok {
		return "", &MissingVariableError{Name: variable + "." + name}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MalformedAttributeError{Variable: variable, Attribute: name}
	}
	return s, nil
}
