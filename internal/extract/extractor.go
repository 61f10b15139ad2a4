package extract

import (
	"errors"

	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Rules carries the matching rules of a measure property. Extractors hand
// them through untouched; filtering records against them is the caller's job.
type Rules map[string]interface{}

// Extractor produces records for one kind of clinical entry.
type Extractor interface {
	Extract(doc *ccda.Document, rules Rules) ([]Record, error)
}

// SectionExtractor finds entries with a LocationQuery and turns each one into
// a Record. It holds no mutable state and is safe for concurrent use.
type SectionExtractor struct {
	query LocationQuery
	entry *ccda.Selector
	code  *ccda.Selector
}

// NewSectionExtractor compiles q with the given namespace bindings. It fails
// with a *ConfigurationError when either selector is malformed.
func NewSectionExtractor(q LocationQuery, ns map[string]string) (*SectionExtractor, error) {
	entry, code, err := q.compile(ns)
	if err != nil {
		return nil, err
	}
	return &SectionExtractor{query: q, entry: entry, code: code}, nil
}

// Query returns the location query the extractor was built from.
func (e *SectionExtractor) Query() LocationQuery {
	return e.query
}

// Extract returns one record per entry in document order. Entries whose code
// override selects nothing are skipped. rules are not applied.
func (e *SectionExtractor) Extract(doc *ccda.Document, _ Rules) ([]Record, error) {
	root := doc.Root()
	if root == nil {
		return nil, &QueryError{Selector: e.entry.String(), Err: errors.New("document is nil")}
	}

	entries, err := e.entry.Nodes(root)
	if err != nil {
		return nil, &QueryError{Selector: e.entry.String(), Err: err}
	}

	var records []Record
	for _, entry := range entries {
		sources, err := e.code.Nodes(entry)
		if err != nil {
			return nil, &QueryError{Selector: e.code.String(), Err: err}
		}
		if len(sources) == 0 {
			if e.query.HasOverride() {
				continue
			}
			records = append(records, newRecord(entry, nil))
			continue
		}
		records = append(records, newRecord(entry, sources[0]))
	}
	return records, nil
}
