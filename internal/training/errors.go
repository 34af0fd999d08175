package training

import (
	"errors"
	"fmt"
)

// ErrNotSupported marks a (framework, repository) combination an adapter
// does not implement. The dispatcher treats it as "no pipeline" and records
// a nil loss instead of failing the run.
var ErrNotSupported = errors.New("framework or repository not implemented")

// ErrDatasetExists guards against silently training on a possibly-stale
// dataset file left by an earlier run. Clearing the dataset cache removes
// the guard.
var ErrDatasetExists = errors.New("dataset already exists")

// UnsupportedChoiceError reports an explicit user override that is not in
// the allow-list for the field being resolved.
type UnsupportedChoiceError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *UnsupportedChoiceError) Error() string {
	return fmt.Sprintf("%s %q is not supported, must be one of %v", e.Field, e.Value, e.Allowed)
}
