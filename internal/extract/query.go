package extract

import (
	"errors"

	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// DefaultCodeSelector locates the code of an entry when a LocationQuery has no
// override.
const DefaultCodeSelector = "./cda:code"

// LocationQuery pairs the selector that finds entry nodes with an optional
// selector, evaluated relative to each entry, for the node that carries the
// entry's code. An empty Code means DefaultCodeSelector.
type LocationQuery struct {
	Entry string `json:"entry" yaml:"entry"`
	Code  string `json:"code,omitempty" yaml:"code,omitempty"`
}

// HasOverride reports whether the query redirects code resolution away from
// the default code child.
func (q LocationQuery) HasOverride() bool {
	return q.Code != ""
}

// Validate compiles both selectors without keeping the result.
func (q LocationQuery) Validate(ns map[string]string) error {
	_, _, err := q.compile(ns)
	return err
}

func (q LocationQuery) compile(ns map[string]string) (entry, code *ccda.Selector, err error) {
	if q.Entry == "" {
		return nil, nil, &ConfigurationError{Selector: q.Entry, Err: errors.New("entry selector is empty")}
	}
	entry, err = ccda.CompileSelector(q.Entry, ns)
	if err != nil {
		return nil, nil, &ConfigurationError{Selector: q.Entry, Err: err}
	}

	codeSrc := q.Code
	if codeSrc == "" {
		codeSrc = DefaultCodeSelector
	}
	code, err = ccda.CompileSelector(codeSrc, ns)
	if err != nil {
		return nil, nil, &ConfigurationError{Selector: codeSrc, Err: err}
	}
	return entry, code, nil
}
