//go:build llama

package engine

import (
	"context"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"inferd/internal/config"
)

// llamaEngine runs generation through the in-process llama.cpp binding.
// The binding is single-threaded per model context, so calls are serialized
// with a mutex; concurrency across requests is the control plane's problem.
type llamaEngine struct {
	mu      sync.Mutex
	model   *llama.LLama
	info    Info
	threads int
}

func newLlamaEngine(cfg config.Config) (Engine, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, ErrUnavailable("model path is empty")
	}
	m, err := llama.New(cfg.ModelPath, llama.SetContext(2048))
	if err != nil {
		return nil, err
	}
	return &llamaEngine{
		model:   m,
		info:    Info{ID: cfg.ModelID, Type: "llama", Path: cfg.ModelPath},
		threads: cfg.Workers,
	}, nil
}

func (e *llamaEngine) Info() Info { return e.info }

func (e *llamaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func (e *llamaEngine) CountTokens(text string) int { return approxTokens(text) }

func (e *llamaEngine) GenerateText(ctx context.Context, p GenerateParams) (*Result, error) {
	return e.generate(ctx, p.Prompt, p.Sampling, nil)
}

func (e *llamaEngine) GenerateTextStream(ctx context.Context, p GenerateParams, onChunk func(string) error) (*Result, error) {
	return e.generate(ctx, p.Prompt, p.Sampling, onChunk)
}

func (e *llamaEngine) GenerateChatCompletion(ctx context.Context, p ChatParams) (*Result, error) {
	return e.generate(ctx, chatPromptText(p.Messages), p.Sampling, nil)
}

func (e *llamaEngine) GenerateChatCompletionStream(ctx context.Context, p ChatParams, onChunk func(string) error) (*Result, error) {
	return e.generate(ctx, chatPromptText(p.Messages), p.Sampling, onChunk)
}

func (e *llamaEngine) ClassifyText(ctx context.Context, text string) (*Classification, error) {
	return nil, ErrUnavailable("llama backend does not support classification")
}

func (e *llamaEngine) GetEmbeddings(ctx context.Context, inputs []string) (*Embeddings, error) {
	return nil, ErrUnavailable("llama backend does not support embeddings")
}

func (e *llamaEngine) generate(ctx context.Context, prompt string, s Sampling, onChunk func(string) error) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, ErrUnavailable("llama model closed")
	}

	var buf strings.Builder
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		buf.WriteString(tok)
		if onChunk != nil {
			if err := onChunk(tok); err != nil {
				return false
			}
		}
		return true
	})
	defer e.model.SetTokenCallback(nil)

	text, err := e.model.Predict(prompt, predictOptions(s, e.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if text == "" {
		text = buf.String()
	}
	return &Result{Content: text, FinishReason: "stop"}, nil
}

// predictOptions converts sampling params into go-llama.cpp options.
func predictOptions(s Sampling, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(intOr(s.MaxTokens, 128)),
		llama.SetThreads(intOr(threads, 1)),
		llama.SetTopP(f32Ptr(s.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(intOr(s.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(f32Ptr(s.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(f32Or(s.RepetitionPenalty, llama.DefaultOptions.Penalty)),
	}
	if len(s.Stop) > 0 {
		po = append(po, llama.SetStopWords(s.Stop...))
	}
	return po
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func f32Or(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// f32Ptr honors an explicit zero; only a nil pointer falls back.
func f32Ptr(v *float64, def float32) float32 {
	if v == nil {
		return def
	}
	return float32(*v)
}
