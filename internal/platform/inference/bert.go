package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	bertInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	bertOutputs = []string{"logits"}
)

// BERT wraps a HuggingFace tokenizer and, optionally, an ONNX export of a
// masked-language model. The tokenizer and session are read-only after
// construction and may be shared between goroutines.
type BERT struct {
	name      string
	maxLength int
	tk        *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	ownsEnv   bool
}

// NewBERT loads the tokenizer and, when cfg.ONNXPath is set, an ONNX Runtime
// session for the forward pass.
func NewBERT(cfg Config) (*BERT, error) {
	if cfg.TokenizerPath == "" {
		return nil, errors.New("tokenizer path is required")
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", cfg.TokenizerPath, err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: maxLength,
		Strategy:  tokenizer.LongestFirst,
		Stride:    0,
	})

	b := &BERT{name: cfg.Name, maxLength: maxLength, tk: tk}
	if cfg.ONNXPath == "" {
		return b, nil
	}

	if !ort.IsInitialized() {
		if cfg.ORTLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.ORTLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
		b.ownsEnv = true
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ONNXPath, bertInputs, bertOutputs, nil)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create onnx session %s: %w", cfg.ONNXPath, err)
	}
	b.session = session
	return b, nil
}

func (b *BERT) Name() string { return b.name }

// Analyze tokenizes text (truncated to the configured maximum) and runs the
// forward pass. Only the token count survives.
func (b *BERT) Analyze(ctx context.Context, text string) (*Inference, error) {
	enc, err := b.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(enc.Ids) == 0 {
		return nil, errors.New("tokenize: empty encoding")
	}

	if b.session != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.forward(enc); err != nil {
			return nil, err
		}
	}

	return &Inference{TokenCount: len(enc.Ids)}, nil
}

func (b *BERT) forward(enc *tokenizer.Encoding) error {
	shape := ort.NewShape(1, int64(len(enc.Ids)))

	inputs := make([]ort.Value, 0, len(bertInputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, ids := range [][]int{enc.Ids, enc.AttentionMask, enc.TypeIds} {
		t, err := ort.NewTensor(shape, toInt64(ids, len(enc.Ids)))
		if err != nil {
			return fmt.Errorf("build input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	// A nil output is allocated by onnxruntime.
	outputs := []ort.Value{nil}
	if err := b.session.Run(inputs, outputs); err != nil {
		return fmt.Errorf("forward pass: %w", err)
	}
	if outputs[0] != nil {
		outputs[0].Destroy()
	}
	return nil
}

// Close releases the ONNX session and, if this model initialized it, the
// onnxruntime environment.
func (b *BERT) Close() error {
	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Destroy())
		b.session = nil
	}
	if b.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
		b.ownsEnv = false
	}
	return errors.Join(errs...)
}

// toInt64 widens ids to the tensor element type, padding with zeros when a
// mask is shorter than the id sequence.
func toInt64(ids []int, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n && i < len(ids); i++ {
		out[i] = int64(ids[i])
	}
	return out
}
