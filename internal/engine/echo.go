package engine

import (
	"context"
	"hash/fnv"
	"strings"

	"inferd/pkg/types"
)

// echoLabels is the closed label set the echo variant classifies into.
var echoLabels = []string{"positive", "negative", "neutral"}

const echoEmbeddingDim = 8

// Echo is a deterministic in-process engine. It echoes prompts back,
// derives classification scores and embeddings from a hash of the input,
// and needs no model weights. It backs development setups and tests.
type Echo struct {
	modelID string
}

// NewEcho returns an Echo engine reporting the given model id.
func NewEcho(modelID string) *Echo {
	if modelID == "" {
		modelID = "echo"
	}
	return &Echo{modelID: modelID}
}

func (e *Echo) Info() Info { return Info{ID: e.modelID, Type: "echo"} }

func (e *Echo) Close() error { return nil }

func (e *Echo) CountTokens(text string) int { return approxTokens(text) }

// truncate applies MaxTokens to the echoed output so sampling parameters
// observably affect the response.
func truncate(text string, maxTokens int) (string, string) {
	if maxTokens <= 0 {
		return text, "stop"
	}
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return text, "stop"
	}
	return strings.Join(fields[:maxTokens], " "), "length"
}

func (e *Echo) GenerateText(ctx context.Context, p GenerateParams) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, reason := truncate(p.Prompt, p.MaxTokens)
	return &Result{Content: out, FinishReason: reason}, nil
}

func (e *Echo) GenerateTextStream(ctx context.Context, p GenerateParams, onChunk func(string) error) (*Result, error) {
	out, reason := truncate(p.Prompt, p.MaxTokens)
	if err := streamFields(ctx, out, onChunk); err != nil {
		return nil, err
	}
	return &Result{Content: out, FinishReason: reason}, nil
}

func (e *Echo) GenerateChatCompletion(ctx context.Context, p ChatParams) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, reason := truncate(lastUserContent(p.Messages), p.MaxTokens)
	return &Result{Content: out, FinishReason: reason}, nil
}

func (e *Echo) GenerateChatCompletionStream(ctx context.Context, p ChatParams, onChunk func(string) error) (*Result, error) {
	out, reason := truncate(lastUserContent(p.Messages), p.MaxTokens)
	if err := streamFields(ctx, out, onChunk); err != nil {
		return nil, err
	}
	return &Result{Content: out, FinishReason: reason}, nil
}

func (e *Echo) ClassifyText(ctx context.Context, text string) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	// Derive per-label weights from the hash and normalize to sum 1.
	weights := make([]float64, len(echoLabels))
	var total float64
	for i := range echoLabels {
		w := float64(1 + (seed>>(i*8))&0xff)
		weights[i] = w
		total += w
	}
	labels := make([]types.LabelScore, len(echoLabels))
	top := 0
	for i, name := range echoLabels {
		labels[i] = types.LabelScore{Label: name, Score: weights[i] / total}
		if labels[i].Score > labels[top].Score {
			top = i
		}
	}
	return &Classification{Labels: labels, TopLabel: labels[top].Label}, nil
}

func (e *Echo) GetEmbeddings(ctx context.Context, inputs []string) (*Embeddings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(inputs))
	for i, in := range inputs {
		h := fnv.New64a()
		_, _ = h.Write([]byte(in))
		seed := h.Sum64()
		vec := make([]float32, echoEmbeddingDim)
		for d := range vec {
			// Spread hash bits across dimensions, scaled into [-1, 1).
			v := int64((seed >> (d * 8)) & 0xff)
			vec[d] = float32(v-128) / 128
		}
		vectors[i] = vec
	}
	return &Embeddings{Vectors: vectors}, nil
}

// streamFields emits out word by word, honoring cancellation between chunks.
func streamFields(ctx context.Context, out string, onChunk func(string) error) error {
	fields := strings.Fields(out)
	for i, f := range fields {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		chunk := f
		if i < len(fields)-1 {
			chunk += " "
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func lastUserContent(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}
