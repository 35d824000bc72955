package entitygraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEntity is returned when a name does not match any registered entity.
var ErrUnknownEntity = errors.New("unknown entity")

// UnresolvedPathError reports a projection path segment that is not a declared association.
type UnresolvedPathError struct {
	Entity  string
	Segment string
	Path    []string
	Err     error
}

func (e *UnresolvedPathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("unresolved path %q: %s %q", strings.Join(e.Path, "."), e.errText(), e.Entity)
	}
	return fmt.Sprintf("unresolved path %q: entity %s has no association %q", strings.Join(e.Path, "."), e.Entity, e.Segment)
}

func (e *UnresolvedPathError) errText() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown entity"
}

func (e *UnresolvedPathError) Unwrap() error {
	return e.Err
}

// MetadataError reports an invalid entity or association declaration.
type MetadataError struct {
	Entity      string
	Association string
	Message     string
}

func (e *MetadataError) Error() string {
	if e.Association != "" {
		return fmt.Sprintf("metadata: %s.%s: %s", e.Entity, e.Association, e.Message)
	}
	return fmt.Sprintf("metadata: %s: %s", e.Entity, e.Message)
}
