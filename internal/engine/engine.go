package engine

import (
	"context"

	"inferd/internal/config"
	"inferd/pkg/types"
)

// Sampling carries generation parameters shared by text and chat requests.
// Temperature and TopP are pointers so an explicit zero (greedy decoding)
// is distinguishable from an absent value, which means the backend default.
type Sampling struct {
	MaxTokens         int
	Temperature       *float64
	TopP              *float64
	TopK              int
	RepetitionPenalty float64
	Stop              []string
}

// GenerateParams is the input to plain text generation.
type GenerateParams struct {
	Prompt string
	Sampling
}

// ChatParams is the input to chat completion.
type ChatParams struct {
	Messages []types.Message
	Sampling
}

// Result is the outcome of a (possibly streamed) generation. Token
// accounting is done by the caller via CountTokens, not by the engine.
type Result struct {
	Content      string
	FinishReason string
}

// Classification is the outcome of ClassifyText.
type Classification struct {
	Labels   []types.LabelScore
	TopLabel string
}

// Embeddings is the outcome of GetEmbeddings, one vector per input.
type Embeddings struct {
	Vectors [][]float32
}

// Info describes the loaded model.
type Info struct {
	ID   string
	Type string
	Path string
}

// Engine is the abstract inference capability the serving control plane
// calls into. Implementations are selected once at load time; the control
// plane never re-dispatches on model type per request. Streaming methods
// invoke onChunk for each produced piece, in order, and must return promptly
// when ctx is canceled.
type Engine interface {
	GenerateText(ctx context.Context, p GenerateParams) (*Result, error)
	GenerateTextStream(ctx context.Context, p GenerateParams, onChunk func(string) error) (*Result, error)
	GenerateChatCompletion(ctx context.Context, p ChatParams) (*Result, error)
	GenerateChatCompletionStream(ctx context.Context, p ChatParams, onChunk func(string) error) (*Result, error)
	ClassifyText(ctx context.Context, text string) (*Classification, error)
	GetEmbeddings(ctx context.Context, inputs []string) (*Embeddings, error)
	CountTokens(text string) int
	Info() Info
	Close() error
}

// Load selects and initializes the engine variant named by the config.
// A failure here is fatal to server startup.
func Load(cfg config.Config) (Engine, error) {
	switch cfg.ModelType {
	case "llama":
		return newLlamaEngine(cfg)
	case "echo":
		return NewEcho(cfg.ModelID), nil
	default:
		return nil, ErrUnavailable("unknown model type: " + cfg.ModelType)
	}
}
