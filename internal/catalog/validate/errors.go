package validate

import (
	"errors"
	"fmt"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

// ErrNoValidMaterials is returned when every unit of a source file is
// rejected by FilterSourceUnits.
var ErrNoValidMaterials = errors.New("No valid materials found in file")

// ValidationError reports an artifact whose JSON does not have the shape
// expected for its kind.
type ValidationError struct {
	Kind   materials.ArtifactKind
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseError reports a source document that could not be turned into a list
// of source units.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("YAML parsing failed in %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
