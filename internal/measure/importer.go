package measure

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/measure-importer/internal/extract"
	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Result maps each property of a definition to the records extracted for it.
// Records appear in category order, then document order.
type Result map[string][]extract.Record

// Importer resolves measure definition categories to extractors and runs them
// against a parsed document. The extractor table is built once and never
// modified, so one Importer can serve concurrent Parse calls.
type Importer struct {
	profile    Profile
	strict     bool
	logger     zerolog.Logger
	overrides  map[Category]extract.LocationQuery
	extractors map[Category]extract.Extractor
}

// Option configures an Importer.
type Option func(*Importer)

// WithProfile selects the document layout. The default is ProfileC32.
func WithProfile(p Profile) Option {
	return func(imp *Importer) { imp.profile = p }
}

// WithStrictCategories makes Parse fail with *UnknownCategoryError instead of
// skipping category names it does not know.
func WithStrictCategories() Option {
	return func(imp *Importer) { imp.strict = true }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(imp *Importer) { imp.logger = l }
}

// WithQuery replaces the location query of a single category.
func WithQuery(c Category, q extract.LocationQuery) Option {
	return func(imp *Importer) { imp.overrides[c] = q }
}

// NewImporter builds the category table. A selector that fails to compile
// aborts construction with the underlying *extract.ConfigurationError.
func NewImporter(opts ...Option) (*Importer, error) {
	imp := &Importer{
		profile:   ProfileC32,
		logger:    zerolog.Nop(),
		overrides: make(map[Category]extract.LocationQuery),
	}
	for _, opt := range opts {
		opt(imp)
	}
	if _, ok := profileQueries[imp.profile]; !ok {
		return nil, fmt.Errorf("measure: unknown document profile %q", imp.profile)
	}

	queries := imp.profile.Queries()
	for c, q := range imp.overrides {
		queries[c] = q
	}

	imp.extractors = make(map[Category]extract.Extractor, len(queries))
	for _, c := range AllCategories() {
		q, ok := queries[c]
		if !ok {
			return nil, fmt.Errorf("measure: category %s has no location query", c)
		}
		ex, err := extract.NewSectionExtractor(q, ccda.Namespaces)
		if err != nil {
			return nil, fmt.Errorf("measure: category %s: %w", c, err)
		}
		imp.extractors[c] = ex
	}
	return imp, nil
}

// Profile returns the document profile the importer was built for.
func (imp *Importer) Profile() Profile {
	return imp.profile
}

// Parse runs every property of def against doc. Each property gets an entry
// in the result, empty when nothing matched. Extraction errors abort the call.
func (imp *Importer) Parse(def Definition, doc *ccda.Document) (Result, error) {
	result := make(Result, len(def))
	for _, p := range def {
		records := []extract.Record{}
		for _, name := range p.Description.Categories {
			c, ok := ParseCategory(name)
			if !ok {
				if imp.strict {
					return nil, &UnknownCategoryError{Property: p.Name, Category: name}
				}
				imp.logger.Debug().
					Str("property", p.Name).
					Str("category", name).
					Msg("skipping unknown category")
				continue
			}

			found, err := imp.extractors[c].Extract(doc, p.Description.Rules)
			if err != nil {
				return nil, fmt.Errorf("measure: property %q category %s: %w", p.Name, c, err)
			}
			records = append(records, found...)
		}
		imp.logger.Debug().
			Str("property", p.Name).
			Int("records", len(records)).
			Msg("property extracted")
		result[p.Name] = records
	}
	return result, nil
}

// Validate checks def without a document. Rule fields must parse, and in
// strict mode every category must be known.
func (imp *Importer) Validate(def Definition) error {
	for _, p := range def {
		if imp.strict {
			for _, name := range p.Description.Categories {
				if _, ok := ParseCategory(name); !ok {
					return &UnknownCategoryError{Property: p.Name, Category: name}
				}
			}
		}
		if _, err := ParseRules(p.Description.Rules); err != nil {
			return fmt.Errorf("measure: property %q: %w", p.Name, err)
		}
	}
	return nil
}
