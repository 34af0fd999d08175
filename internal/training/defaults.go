package training

// ResolveDefault fills in an unspecified user choice. An empty value resolves
// to fallback (which is expected to be a member of allowed); a non-empty
// value is returned unchanged only if it is in allowed, otherwise the call
// fails with an UnsupportedChoiceError. Pure: no I/O, no side effects.
func ResolveDefault[T ~string](value, fallback T, field string, allowed []T) (T, error) {
	if value == "" {
		return fallback, nil
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	allowedStrs := make([]string, len(allowed))
	for i, a := range allowed {
		allowedStrs[i] = string(a)
	}
	return "", &UnsupportedChoiceError{Field: field, Value: string(value), Allowed: allowedStrs}
}
