package rpcapi

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"inferd/internal/auth"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/metrics"
	"inferd/internal/ratelimit"
	"inferd/pkg/types"
)

// apiKeyMetadata is the incoming metadata key carrying the client credential.
const apiKeyMetadata = "x-api-key"

// Service is the RPC protocol adapter: the same pipeline as the REST
// adapter (auth, rate limit, metrics, engine call) expressed over gRPC.
type Service struct {
	cfg     config.Config
	eng     engine.Engine
	rec     *metrics.Recorder
	limiter *ratelimit.Limiter
	gate    *auth.Gate
	log     zerolog.Logger
	version string
}

// NewService constructs the RPC adapter around the server's shared state.
func NewService(cfg config.Config, eng engine.Engine, rec *metrics.Recorder, limiter *ratelimit.Limiter, gate *auth.Gate, log zerolog.Logger, version string) *Service {
	return &Service{cfg: cfg, eng: eng, rec: rec, limiter: limiter, gate: gate, log: log, version: version}
}

func apiKeyFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(apiKeyMetadata); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func clientIDFrom(ctx context.Context) string {
	if key := apiKeyFrom(ctx); key != "" {
		return key
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// admit applies the auth gate and the rate limiter. GetServerInfo is exempt,
// matching the REST health/metrics exemption.
func (s *Service) admit(ctx context.Context, method string) error {
	if !s.gate.Authorize(apiKeyFrom(ctx)) {
		s.log.Info().Str("method", method).Msg("rpc rejected: invalid api key")
		return status.Error(codes.Unauthenticated, "invalid or missing API key")
	}
	if !s.limiter.Allow(clientIDFrom(ctx)) {
		s.log.Info().Str("method", method).Msg("rpc rejected: rate limit exceeded")
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

// inferenceStatus maps an engine failure to the RPC status, preserving
// cancellation semantics.
func inferenceStatus(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func samplingFrom(maxTokens, topK int, temperature, topP *float64, repetitionPenalty float64, stop []string) engine.Sampling {
	return engine.Sampling{
		MaxTokens:         maxTokens,
		Temperature:       temperature,
		TopP:              topP,
		TopK:              topK,
		RepetitionPenalty: repetitionPenalty,
		Stop:              stop,
	}
}

func (s *Service) usage(promptTokens int, content string) types.Usage {
	completion := s.eng.CountTokens(content)
	return types.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completion,
		TotalTokens:      promptTokens + completion,
	}
}

func (s *Service) promptTokensForChat(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += s.eng.CountTokens(m.Role) + s.eng.CountTokens(m.Content)
	}
	return total
}

func (s *Service) GenerateText(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error) {
	if err := s.admit(ctx, "GenerateText"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}
	params := engine.GenerateParams{
		Prompt:   req.Prompt,
		Sampling: samplingFrom(req.MaxTokens, req.TopK, req.Temperature, req.TopP, req.RepetitionPenalty, req.Stop),
	}
	promptTokens := s.eng.CountTokens(req.Prompt)

	start := s.rec.RecordRequestStart()
	res, err := s.eng.GenerateText(ctx, params)
	if err != nil {
		s.rec.RecordError(start)
		return nil, inferenceStatus(ctx, err)
	}
	usage := s.usage(promptTokens, res.Content)
	s.rec.RecordSuccess(start, usage.TotalTokens)
	return &types.GenerateResponse{Text: res.Content, FinishReason: res.FinishReason, Usage: usage}, nil
}

func (s *Service) GenerateTextStream(req *types.GenerateRequest, stream Inference_GenerateTextStreamServer) error {
	ctx := stream.Context()
	if err := s.admit(ctx, "GenerateTextStream"); err != nil {
		return err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return status.Error(codes.InvalidArgument, "prompt is required")
	}
	params := engine.GenerateParams{
		Prompt:   req.Prompt,
		Sampling: samplingFrom(req.MaxTokens, req.TopK, req.Temperature, req.TopP, req.RepetitionPenalty, req.Stop),
	}
	return s.streamGeneration(ctx, stream.SendMsg, s.eng.CountTokens(req.Prompt), func(onChunk func(string) error) (*engine.Result, error) {
		return s.eng.GenerateTextStream(ctx, params, onChunk)
	})
}

func (s *Service) GenerateChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if err := s.admit(ctx, "GenerateChatCompletion"); err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, status.Error(codes.InvalidArgument, "messages are required")
	}
	params := engine.ChatParams{
		Messages: req.Messages,
		Sampling: samplingFrom(req.MaxTokens, req.TopK, req.Temperature, req.TopP, req.RepetitionPenalty, req.Stop),
	}
	promptTokens := s.promptTokensForChat(req.Messages)

	start := s.rec.RecordRequestStart()
	res, err := s.eng.GenerateChatCompletion(ctx, params)
	if err != nil {
		s.rec.RecordError(start)
		return nil, inferenceStatus(ctx, err)
	}
	usage := s.usage(promptTokens, res.Content)
	s.rec.RecordSuccess(start, usage.TotalTokens)
	return &types.ChatResponse{
		Message:      types.Message{Role: "assistant", Content: res.Content},
		FinishReason: res.FinishReason,
		Usage:        usage,
	}, nil
}

func (s *Service) GenerateChatCompletionStream(req *types.ChatRequest, stream Inference_GenerateChatCompletionStreamServer) error {
	ctx := stream.Context()
	if err := s.admit(ctx, "GenerateChatCompletionStream"); err != nil {
		return err
	}
	if len(req.Messages) == 0 {
		return status.Error(codes.InvalidArgument, "messages are required")
	}
	params := engine.ChatParams{
		Messages: req.Messages,
		Sampling: samplingFrom(req.MaxTokens, req.TopK, req.Temperature, req.TopP, req.RepetitionPenalty, req.Stop),
	}
	return s.streamGeneration(ctx, stream.SendMsg, s.promptTokensForChat(req.Messages), func(onChunk func(string) error) (*engine.Result, error) {
		return s.eng.GenerateChatCompletionStream(ctx, params, onChunk)
	})
}

// streamGeneration pumps chunks to the client in production order and
// records accounting once after the stream completes. A disconnected client
// cancels ctx, which stops chunk production.
func (s *Service) streamGeneration(ctx context.Context, send func(any) error, promptTokens int, run func(onChunk func(string) error) (*engine.Result, error)) error {
	start := s.rec.RecordRequestStart()
	completionTokens := 0
	res, err := run(func(chunk string) error {
		completionTokens += s.eng.CountTokens(chunk)
		return send(&types.StreamChunk{Text: chunk})
	})
	if err != nil {
		s.rec.RecordError(start)
		if ctx.Err() != nil {
			s.log.Debug().Msg("rpc stream interrupted by disconnect")
			return status.FromContextError(ctx.Err()).Err()
		}
		s.log.Error().Err(err).Msg("rpc stream failed")
		return status.Error(codes.Internal, err.Error())
	}
	if err := send(&types.StreamChunk{FinishReason: res.FinishReason}); err != nil {
		s.rec.RecordError(start)
		return err
	}
	s.rec.RecordSuccess(start, promptTokens+completionTokens)
	return nil
}

func (s *Service) ClassifyText(ctx context.Context, req *types.ClassifyRequest) (*types.ClassifyResponse, error) {
	if err := s.admit(ctx, "ClassifyText"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	start := s.rec.RecordRequestStart()
	res, err := s.eng.ClassifyText(ctx, req.Text)
	if err != nil {
		s.rec.RecordError(start)
		return nil, inferenceStatus(ctx, err)
	}
	tokens := s.eng.CountTokens(req.Text)
	s.rec.RecordSuccess(start, tokens)
	return &types.ClassifyResponse{Labels: res.Labels, TopLabel: res.TopLabel, Tokens: tokens}, nil
}

func (s *Service) GetEmbeddings(ctx context.Context, req *types.EmbeddingsRequest) (*types.EmbeddingsResponse, error) {
	if err := s.admit(ctx, "GetEmbeddings"); err != nil {
		return nil, err
	}
	if len(req.Inputs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "inputs are required")
	}
	start := s.rec.RecordRequestStart()
	res, err := s.eng.GetEmbeddings(ctx, req.Inputs)
	if err != nil {
		s.rec.RecordError(start)
		return nil, inferenceStatus(ctx, err)
	}
	promptTokens := 0
	for _, in := range req.Inputs {
		promptTokens += s.eng.CountTokens(in)
	}
	s.rec.RecordSuccess(start, promptTokens)

	data := make([]types.EmbeddingData, len(res.Vectors))
	for i, v := range res.Vectors {
		data[i] = types.EmbeddingData{Embedding: v, Index: i}
	}
	return &types.EmbeddingsResponse{
		Data:  data,
		Model: s.eng.Info().ID,
		Usage: types.EmbeddingUsage{PromptTokens: promptTokens, TotalTokens: promptTokens},
	}, nil
}

// GetServerInfo is exempt from auth and rate limiting, like the REST health
// and metrics endpoints.
func (s *Service) GetServerInfo(ctx context.Context, req *types.ServerInfoRequest) (*types.ServerInfo, error) {
	requests, errs, tokens := s.rec.Counters()
	info := s.eng.Info()
	return &types.ServerInfo{
		ModelID:       info.ID,
		ModelType:     info.Type,
		Version:       s.version,
		UptimeSeconds: s.rec.UptimeSeconds(),
		RequestCount:  requests,
		ErrorCount:    errs,
		TokenCount:    tokens,
	}, nil
}
