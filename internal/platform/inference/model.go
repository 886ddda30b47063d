package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrModelUnavailable is returned by models that were not loaded.
var ErrModelUnavailable = errors.New("inference: model unavailable")

// DefaultMaxLength matches the BERT position embedding limit.
const DefaultMaxLength = 512

// Inference is the part of a model run that callers consume. The logits of
// the forward pass are not exposed.
type Inference struct {
	TokenCount int
}

// Model is the surface the analysis service needs from a language model.
type Model interface {
	Name() string
	Analyze(ctx context.Context, text string) (*Inference, error)
	Close() error
}

// Config describes where the model artefacts live on disk.
type Config struct {
	Name           string
	TokenizerPath  string
	ONNXPath       string
	ORTLibraryPath string
	MaxLength      int
}

// New loads the model described by cfg. Without a tokenizer path a Disabled
// model is returned so the service still answers with keyword analysis.
func New(cfg Config, logger zerolog.Logger) (Model, error) {
	if cfg.TokenizerPath == "" {
		logger.Warn().Str("model", cfg.Name).Msg("no tokenizer configured, inference disabled")
		return Disabled{ModelName: cfg.Name}, nil
	}
	m, err := NewBERT(cfg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Name, err)
	}
	logger.Info().
		Str("model", cfg.Name).
		Int("max_length", m.maxLength).
		Bool("forward_pass", m.session != nil).
		Msg("model loaded")
	return m, nil
}

// Disabled is a Model that never runs.
type Disabled struct {
	ModelName string
}

func (d Disabled) Name() string { return d.ModelName }

func (d Disabled) Analyze(context.Context, string) (*Inference, error) {
	return nil, ErrModelUnavailable
}

func (d Disabled) Close() error { return nil }
