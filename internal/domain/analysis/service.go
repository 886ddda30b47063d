package analysis

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/salulink/salulink/internal/platform/inference"
)

// Extractor finds condition labels in a note.
type Extractor interface {
	Extract(note string) []string
}

// Recorder receives one call per completed analysis.
type Recorder interface {
	RecordAnalysis(method string, conditions []string)
}

type Service struct {
	extractor Extractor
	model     inference.Model
	recorder  Recorder
	logger    zerolog.Logger
}

func NewService(extractor Extractor, model inference.Model, logger zerolog.Logger) *Service {
	return &Service{
		extractor: extractor,
		model:     model,
		logger:    logger,
	}
}

// WithRecorder sets the recorder notified after each analysis.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Analyze runs the model over text and extracts conditions by keyword. The
// model output never influences the conditions; a model failure only swaps
// the token count for the keyword_extraction method flag.
func (s *Service) Analyze(ctx context.Context, text string) *Result {
	res := &Result{
		Success:    true,
		TextLength: utf8.RuneCountInString(text),
	}

	inf, err := s.model.Analyze(ctx, text)
	if err != nil {
		if !errors.Is(err, inference.ErrModelUnavailable) {
			s.logger.Warn().Err(err).Str("model", s.model.Name()).Msg("model analysis failed, using keyword extraction")
		}
		res.Method = MethodKeywordExtraction
	} else {
		tokens := inf.TokenCount
		res.TokensAnalyzed = &tokens
	}

	res.Conditions = s.extractor.Extract(text)
	if res.Conditions == nil {
		res.Conditions = []string{}
	}

	if s.recorder != nil {
		method := res.Method
		if method == "" {
			method = MethodModel
		}
		s.recorder.RecordAnalysis(method, res.Conditions)
	}
	return res
}

// Acknowledge formats the Authi acknowledgment for a condition/action pair.
func (s *Service) Acknowledge(condition, action string) *Acknowledgment {
	return &Acknowledgment{
		Success:   true,
		Condition: condition,
		Action:    action,
		Message:   fmt.Sprintf("Authi %s processed %s for %s", AuthiVersion, condition, action),
	}
}

func (s *Service) Health() *Health {
	return &Health{
		Status:  "healthy",
		Model:   s.model.Name(),
		Version: AuthiVersion,
	}
}
