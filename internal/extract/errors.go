package extract

import "fmt"

// ConfigurationError reports a selector that could not be compiled. It is
// returned while building extractors and is never produced by Extract.
type ConfigurationError struct {
	Selector string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("extract: invalid selector %q: %v", e.Selector, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// QueryError reports a selector that could not be evaluated against a
// particular document.
type QueryError struct {
	Selector string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("extract: evaluate %q: %v", e.Selector, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
