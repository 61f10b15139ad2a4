package measure

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Extraction is the outcome of running a definition against one document.
type Extraction struct {
	Profile Profile     `json:"profile"`
	Header  ccda.Header `json:"header"`
	Results Result      `json:"results"`
}

// Service ties document parsing, extraction, optional rule filtering and
// stored definitions together.
type Service struct {
	parser   *ccda.Parser
	importer *Importer
	repo     MeasureRepository
	logger   zerolog.Logger
}

// NewService returns a service backed by imp. repo may be nil, in which case
// stored-measure operations return ErrStorageDisabled.
func NewService(imp *Importer, repo MeasureRepository, logger zerolog.Logger) *Service {
	return &Service{
		parser:   ccda.NewParser(),
		importer: imp,
		repo:     repo,
		logger:   logger,
	}
}

// StorageEnabled reports whether the service has a repository.
func (s *Service) StorageEnabled() bool { return s.repo != nil }

// Extract parses xmlData and runs def against it. With filter set, each
// property's rule fields are applied to its records.
func (s *Service) Extract(ctx context.Context, def Definition, xmlData []byte, filter bool) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.parser.Parse(xmlData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	res, err := s.importer.Parse(def, doc)
	if err != nil {
		return nil, err
	}
	if filter {
		if res, err = Filter(def, res); err != nil {
			return nil, err
		}
	}

	total := 0
	for _, records := range res {
		total += len(records)
	}
	s.logger.Info().
		Int("properties", len(def)).
		Int("records", total).
		Bool("filtered", filter).
		Str("profile", string(s.importer.Profile())).
		Msg("document extracted")

	return &Extraction{
		Profile: s.importer.Profile(),
		Header:  doc.Header(),
		Results: res,
	}, nil
}

// ExtractStored runs the stored definition id against xmlData.
func (s *Service) ExtractStored(ctx context.Context, id uuid.UUID, xmlData []byte, filter bool) (*Extraction, error) {
	m, err := s.GetMeasure(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Extract(ctx, m.Definition, xmlData, filter)
}

// CreateMeasure validates and stores m.
func (s *Service) CreateMeasure(ctx context.Context, m *Measure) error {
	if s.repo == nil {
		return ErrStorageDisabled
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return invalidDefinition("name is required")
	}
	if len(m.Definition) == 0 {
		return invalidDefinition("definition has no properties")
	}
	if err := s.importer.Validate(m.Definition); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}
	s.logger.Info().Str("measure_id", m.ID.String()).Str("name", m.Name).Msg("measure stored")
	return nil
}

func (s *Service) GetMeasure(ctx context.Context, id uuid.UUID) (*Measure, error) {
	if s.repo == nil {
		return nil, ErrStorageDisabled
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetMeasureByName(ctx context.Context, name string) (*Measure, error) {
	if s.repo == nil {
		return nil, ErrStorageDisabled
	}
	return s.repo.GetByName(ctx, name)
}

func (s *Service) ListMeasures(ctx context.Context, limit, offset int) ([]*Measure, int, error) {
	if s.repo == nil {
		return nil, 0, ErrStorageDisabled
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) DeleteMeasure(ctx context.Context, id uuid.UUID) error {
	if s.repo == nil {
		return ErrStorageDisabled
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("measure_id", id.String()).Msg("measure deleted")
	return nil
}
