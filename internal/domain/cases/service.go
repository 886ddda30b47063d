package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/salulink/salulink/internal/domain/conditions"
)

// ErrInvalid marks validation failures; handlers map it to 400.
var ErrInvalid = errors.New("invalid case")

type Service struct {
	repo    Repository
	catalog *conditions.Catalog
}

func NewService(repo Repository, catalog *conditions.Catalog) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// CreateCase validates c against the condition catalog and saves it.
// Detected conditions are extracted from the note when the caller omits
// them; ICD-10 descriptions are taken from the catalog.
func (s *Service) CreateCase(ctx context.Context, c *Case) error {
	if strings.TrimSpace(c.ClinicalNote) == "" {
		return fmt.Errorf("%w: clinical_note is required", ErrInvalid)
	}

	if c.DetectedConditions == nil {
		c.DetectedConditions = s.catalog.Extractor().Extract(c.ClinicalNote)
	}
	for i, label := range c.DetectedConditions {
		e, ok := s.catalog.Lookup(label)
		if !ok {
			return fmt.Errorf("%w: unknown detected condition %q", ErrInvalid, label)
		}
		c.DetectedConditions[i] = e.Label
	}

	if c.ConfirmedCondition == "" {
		if len(c.ICDCodes) > 0 {
			return fmt.Errorf("%w: icd_codes require confirmed_condition", ErrInvalid)
		}
		c.ICDCodes = []conditions.ICDCode{}
		return s.repo.Create(ctx, c)
	}

	entry, ok := s.catalog.Lookup(c.ConfirmedCondition)
	if !ok {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalid, c.ConfirmedCondition)
	}
	c.ConfirmedCondition = entry.Label

	codes := make([]conditions.ICDCode, 0, len(c.ICDCodes))
	seen := make(map[string]bool, len(c.ICDCodes))
	for _, sel := range c.ICDCodes {
		code, ok := entry.HasICDCode(strings.TrimSpace(sel.Code))
		if !ok {
			return fmt.Errorf("%w: icd code %q does not belong to %s", ErrInvalid, sel.Code, entry.Label)
		}
		if seen[code.Code] {
			continue
		}
		seen[code.Code] = true
		codes = append(codes, code)
	}
	c.ICDCodes = codes

	return s.repo.Create(ctx, c)
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListCases(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) DeleteCase(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
