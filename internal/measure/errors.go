package measure

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is wrapped by every definition decoding failure.
	ErrInvalidDefinition = errors.New("measure: invalid definition")
	// ErrInvalidDocument is wrapped by document parsing failures.
	ErrInvalidDocument = errors.New("measure: invalid document")
	// ErrStorageDisabled is returned by stored-measure operations when the
	// service runs without a database.
	ErrStorageDisabled = errors.New("measure: storage is not configured")
	// ErrNotFound is returned when a stored measure does not exist.
	ErrNotFound = errors.New("measure: not found")
	// ErrDuplicateName is returned when a stored measure with the same name
	// already exists.
	ErrDuplicateName = errors.New("measure: name already exists")
)

// UnknownCategoryError is returned by an Importer in strict mode when a
// property names a category outside the closed set.
type UnknownCategoryError struct {
	Property string
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("measure: property %q: unknown category %q", e.Property, e.Category)
}

func invalidDefinition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
