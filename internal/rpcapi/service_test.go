package rpcapi

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"inferd/internal/auth"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/metrics"
	"inferd/internal/ratelimit"
	"inferd/pkg/types"
)

func newTestClient(t *testing.T, cfg config.Config, eng engine.Engine) (*Client, *metrics.Recorder) {
	t.Helper()
	cfg = config.ApplyDefaults(cfg)
	rec := metrics.NewRecorder()
	limiter := ratelimit.New(cfg.RateLimitEnabled, cfg.RateLimitPerMinute)
	gate := auth.NewGate(cfg.AuthEnabled, cfg.APIKeys)
	svc := NewService(cfg, eng, rec, limiter, gate, zerolog.Nop(), "test")

	srv, err := NewServer(cfg, svc)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), rec
}

func TestGenerateTextUnary(t *testing.T) {
	c, rec := newTestClient(t, config.Config{ModelType: "echo"}, engine.NewEcho("m1"))

	resp, err := c.GenerateText(context.Background(), &types.GenerateRequest{Prompt: "hello world"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello world" || resp.FinishReason != "stop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage.PromptTokens != 2 || resp.Usage.CompletionTokens != 2 || resp.Usage.TotalTokens != 4 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if req, errs, _ := rec.Counters(); req != 1 || errs != 0 {
		t.Fatalf("metrics: req=%d errs=%d", req, errs)
	}
}

func TestGenerateTextValidation(t *testing.T) {
	c, _ := newTestClient(t, config.Config{ModelType: "echo"}, engine.NewEcho("m1"))
	_, err := c.GenerateText(context.Background(), &types.GenerateRequest{Prompt: "  "})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestUnauthenticated(t *testing.T) {
	cfg := config.Config{ModelType: "echo", AuthEnabled: true, APIKeys: []string{"k1"}}
	c, _ := newTestClient(t, cfg, engine.NewEcho("m1"))

	_, err := c.GenerateText(context.Background(), &types.GenerateRequest{Prompt: "x"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("missing key: want Unauthenticated, got %v", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), apiKeyMetadata, "k1")
	if _, err := c.GenerateText(ctx, &types.GenerateRequest{Prompt: "x"}); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	// GetServerInfo is exempt.
	if _, err := c.GetServerInfo(context.Background(), &types.ServerInfoRequest{}); err != nil {
		t.Fatalf("server info should be exempt: %v", err)
	}
}

func TestResourceExhausted(t *testing.T) {
	cfg := config.Config{ModelType: "echo", RateLimitEnabled: true, RateLimitPerMinute: 2}
	c, _ := newTestClient(t, cfg, engine.NewEcho("m1"))

	ctx := metadata.AppendToOutgoingContext(context.Background(), apiKeyMetadata, "client-a")
	for i := 0; i < 2; i++ {
		if _, err := c.GenerateText(ctx, &types.GenerateRequest{Prompt: "x"}); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	_, err := c.GenerateText(ctx, &types.GenerateRequest{Prompt: "x"})
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("want ResourceExhausted, got %v", err)
	}
}

type failingEngine struct{ *engine.Echo }

func (f failingEngine) GenerateText(ctx context.Context, p engine.GenerateParams) (*engine.Result, error) {
	return nil, errors.New("backend exploded")
}

func TestInternalError(t *testing.T) {
	c, rec := newTestClient(t, config.Config{ModelType: "echo"}, failingEngine{engine.NewEcho("m1")})
	_, err := c.GenerateText(context.Background(), &types.GenerateRequest{Prompt: "x"})
	if status.Code(err) != codes.Internal || !strings.Contains(status.Convert(err).Message(), "backend exploded") {
		t.Fatalf("want Internal with message, got %v", err)
	}
	if req, errs, _ := rec.Counters(); req != 1 || errs != 1 {
		t.Fatalf("error not recorded: req=%d errs=%d", req, errs)
	}
}

func TestGenerateTextStream(t *testing.T) {
	c, rec := newTestClient(t, config.Config{ModelType: "echo"}, engine.NewEcho("m1"))

	stream, err := c.GenerateTextStream(context.Background(), &types.GenerateRequest{Prompt: "a b c"})
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	var chunks []string
	finish := ""
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
			continue
		}
		chunks = append(chunks, chunk.Text)
	}
	if strings.Join(chunks, "") != "a b c" {
		t.Fatalf("chunks out of order or lossy: %q", chunks)
	}
	if finish != "stop" {
		t.Fatalf("missing finish reason, got %q", finish)
	}
	if _, _, toks := rec.Counters(); toks != 6 {
		t.Fatalf("stream usage: want 6 tokens, got %d", toks)
	}
}

func TestChatStreamAndUnary(t *testing.T) {
	c, _ := newTestClient(t, config.Config{ModelType: "echo"}, engine.NewEcho("m1"))
	msgs := []types.Message{{Role: "user", Content: "hi there"}}

	resp, err := c.GenerateChatCompletion(context.Background(), &types.ChatRequest{Messages: msgs})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Message.Role != "assistant" || resp.Message.Content != "hi there" {
		t.Fatalf("unexpected chat response: %+v", resp)
	}

	stream, err := c.GenerateChatCompletionStream(context.Background(), &types.ChatRequest{Messages: msgs})
	if err != nil {
		t.Fatalf("open chat stream: %v", err)
	}
	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		text.WriteString(chunk.Text)
	}
	if text.String() != "hi there" {
		t.Fatalf("streamed chat text: %q", text.String())
	}
}

func TestClassifyEmbeddingsAndInfo(t *testing.T) {
	c, _ := newTestClient(t, config.Config{ModelType: "echo", EnableHealthChecking: true, EnableReflection: true}, engine.NewEcho("m1"))

	cr, err := c.ClassifyText(context.Background(), &types.ClassifyRequest{Text: "great stuff"})
	if err != nil || cr.TopLabel == "" || cr.Tokens != 2 {
		t.Fatalf("classify: %+v err=%v", cr, err)
	}

	er, err := c.GetEmbeddings(context.Background(), &types.EmbeddingsRequest{Inputs: []string{"a", "b"}})
	if err != nil || len(er.Data) != 2 || er.Model != "m1" {
		t.Fatalf("embeddings: %+v err=%v", er, err)
	}

	info, err := c.GetServerInfo(context.Background(), &types.ServerInfoRequest{})
	if err != nil {
		t.Fatalf("server info: %v", err)
	}
	if info.ModelID != "m1" || info.ModelType != "echo" || info.Version != "test" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.RequestCount != 2 {
		t.Fatalf("info counters: %+v", info)
	}
}
