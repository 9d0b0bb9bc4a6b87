package engine

import (
	"context"
	"strings"
	"testing"

	"inferd/internal/config"
	"inferd/pkg/types"
)

func TestLoadSelectsVariantOnce(t *testing.T) {
	e, err := Load(config.Config{ModelType: "echo", ModelID: "m1"})
	if err != nil {
		t.Fatalf("load echo: %v", err)
	}
	if e.Info().Type != "echo" || e.Info().ID != "m1" {
		t.Fatalf("unexpected info: %+v", e.Info())
	}
	if _, err := Load(config.Config{ModelType: "bogus"}); !IsUnavailable(err) {
		t.Fatalf("expected unavailable error for unknown type, got %v", err)
	}
}

func TestEchoGenerate(t *testing.T) {
	e := NewEcho("")
	res, err := e.GenerateText(context.Background(), GenerateParams{Prompt: "hello there world"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Content != "hello there world" || res.FinishReason != "stop" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = e.GenerateText(context.Background(), GenerateParams{
		Prompt:   "one two three four",
		Sampling: Sampling{MaxTokens: 2},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Content != "one two" || res.FinishReason != "length" {
		t.Fatalf("max_tokens not honored: %+v", res)
	}
}

func TestEchoStreamChunkOrder(t *testing.T) {
	e := NewEcho("")
	var got []string
	res, err := e.GenerateTextStream(context.Background(), GenerateParams{Prompt: "a b c"}, func(c string) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(got, "") != res.Content {
		t.Fatalf("chunks %q do not reassemble to %q", got, res.Content)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
}

func TestEchoStreamCancellation(t *testing.T) {
	e := NewEcho("")
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := e.GenerateTextStream(ctx, GenerateParams{Prompt: "a b c d e"}, func(string) error {
		calls++
		cancel()
		return nil
	})
	if err == nil {
		t.Fatalf("expected context error after cancel")
	}
	if calls != 1 {
		t.Fatalf("chunks kept flowing after cancel: %d", calls)
	}
}

func TestEchoChatUsesLastUserMessage(t *testing.T) {
	e := NewEcho("")
	res, err := e.GenerateChatCompletion(context.Background(), ChatParams{Messages: []types.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "second question"},
	}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Content != "second question" {
		t.Fatalf("unexpected content: %q", res.Content)
	}
}

func TestEchoClassifyDeterministic(t *testing.T) {
	e := NewEcho("")
	a, err := e.ClassifyText(context.Background(), "some text")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	b, _ := e.ClassifyText(context.Background(), "some text")
	if a.TopLabel != b.TopLabel || len(a.Labels) != len(echoLabels) {
		t.Fatalf("classification not deterministic: %+v vs %+v", a, b)
	}
	var sum float64
	top := ""
	best := -1.0
	for _, l := range a.Labels {
		sum += l.Score
		if l.Score > best {
			best = l.Score
			top = l.Label
		}
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("scores not normalized: sum=%v", sum)
	}
	if top != a.TopLabel {
		t.Fatalf("top label mismatch: %q vs %q", top, a.TopLabel)
	}
}

func TestEchoEmbeddings(t *testing.T) {
	e := NewEcho("")
	em, err := e.GetEmbeddings(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("embeddings: %v", err)
	}
	if len(em.Vectors) != 2 || len(em.Vectors[0]) != echoEmbeddingDim {
		t.Fatalf("unexpected shape: %d x %d", len(em.Vectors), len(em.Vectors[0]))
	}
	again, _ := e.GetEmbeddings(context.Background(), []string{"x"})
	for d := range again.Vectors[0] {
		if again.Vectors[0][d] != em.Vectors[0][d] {
			t.Fatalf("embedding not deterministic at dim %d", d)
		}
	}
}

func TestCountTokens(t *testing.T) {
	e := NewEcho("")
	if got := e.CountTokens("one two  three"); got != 3 {
		t.Fatalf("count: want 3, got %d", got)
	}
	if got := e.CountTokens(""); got != 0 {
		t.Fatalf("count empty: want 0, got %d", got)
	}
}
