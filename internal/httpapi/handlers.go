package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// decodeJSON enforces the Content-Type and body-size rules shared by every
// JSON endpoint. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleCompletions serves text generation.
//
// @Summary      Generate a text completion
// @Accept       json
// @Produce      json
// @Param        request body types.GenerateRequest true "generation request"
// @Success      200 {object} types.GenerateResponse
// @Failure      401 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /v1/completions [post]
func (a *API) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	params := engine.GenerateParams{
		Prompt: req.Prompt,
		Sampling: engine.Sampling{
			MaxTokens:         req.MaxTokens,
			Temperature:       req.Temperature,
			TopP:              req.TopP,
			TopK:              req.TopK,
			RepetitionPenalty: req.RepetitionPenalty,
			Stop:              req.Stop,
		},
	}
	promptTokens := a.eng.CountTokens(req.Prompt)

	if req.Stream {
		a.streamGeneration(w, r, promptTokens, func(ctx context.Context, onChunk func(string) error) (*engine.Result, error) {
			return a.eng.GenerateTextStream(ctx, params, onChunk)
		})
		return
	}

	ctx, cancel := a.requestCtx(r, false)
	defer cancel()
	start := a.rec.RecordRequestStart()
	res, err := a.eng.GenerateText(ctx, params)
	if err != nil {
		a.rec.RecordError(start)
		a.inferenceError(w, r, err)
		return
	}
	usage := a.usage(promptTokens, res.Content)
	a.rec.RecordSuccess(start, usage.TotalTokens)
	writeJSON(w, types.GenerateResponse{Text: res.Content, FinishReason: res.FinishReason, Usage: usage})
}

// handleChatCompletions serves chat completion.
//
// @Summary      Generate a chat completion
// @Accept       json
// @Produce      json
// @Param        request body types.ChatRequest true "chat request"
// @Success      200 {object} types.ChatResponse
// @Router       /v1/chat/completions [post]
func (a *API) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages are required")
		return
	}
	params := engine.ChatParams{
		Messages: req.Messages,
		Sampling: engine.Sampling{
			MaxTokens:         req.MaxTokens,
			Temperature:       req.Temperature,
			TopP:              req.TopP,
			TopK:              req.TopK,
			RepetitionPenalty: req.RepetitionPenalty,
			Stop:              req.Stop,
		},
	}
	promptTokens := a.promptTokensForChat(req.Messages)

	if req.Stream {
		a.streamGeneration(w, r, promptTokens, func(ctx context.Context, onChunk func(string) error) (*engine.Result, error) {
			return a.eng.GenerateChatCompletionStream(ctx, params, onChunk)
		})
		return
	}

	ctx, cancel := a.requestCtx(r, false)
	defer cancel()
	start := a.rec.RecordRequestStart()
	res, err := a.eng.GenerateChatCompletion(ctx, params)
	if err != nil {
		a.rec.RecordError(start)
		a.inferenceError(w, r, err)
		return
	}
	usage := a.usage(promptTokens, res.Content)
	a.rec.RecordSuccess(start, usage.TotalTokens)
	writeJSON(w, types.ChatResponse{
		Message:      types.Message{Role: "assistant", Content: res.Content},
		FinishReason: res.FinishReason,
		Usage:        usage,
	})
}

// handleClassify serves text classification.
//
// @Summary      Classify text
// @Accept       json
// @Produce      json
// @Param        request body types.ClassifyRequest true "classification request"
// @Success      200 {object} types.ClassifyResponse
// @Router       /v1/classify [post]
func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req types.ClassifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}
	ctx, cancel := a.requestCtx(r, false)
	defer cancel()
	start := a.rec.RecordRequestStart()
	res, err := a.eng.ClassifyText(ctx, req.Text)
	if err != nil {
		a.rec.RecordError(start)
		a.inferenceError(w, r, err)
		return
	}
	tokens := a.eng.CountTokens(req.Text)
	a.rec.RecordSuccess(start, tokens)
	writeJSON(w, types.ClassifyResponse{Labels: res.Labels, TopLabel: res.TopLabel, Tokens: tokens})
}

// handleEmbeddings serves embedding extraction.
//
// @Summary      Compute embeddings
// @Accept       json
// @Produce      json
// @Param        request body types.EmbeddingsRequest true "embeddings request"
// @Success      200 {object} types.EmbeddingsResponse
// @Router       /v1/embeddings [post]
func (a *API) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req types.EmbeddingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Inputs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "inputs are required")
		return
	}
	ctx, cancel := a.requestCtx(r, false)
	defer cancel()
	start := a.rec.RecordRequestStart()
	res, err := a.eng.GetEmbeddings(ctx, req.Inputs)
	if err != nil {
		a.rec.RecordError(start)
		a.inferenceError(w, r, err)
		return
	}
	promptTokens := 0
	for _, in := range req.Inputs {
		promptTokens += a.eng.CountTokens(in)
	}
	a.rec.RecordSuccess(start, promptTokens)

	data := make([]types.EmbeddingData, len(res.Vectors))
	for i, v := range res.Vectors {
		data[i] = types.EmbeddingData{Embedding: v, Index: i}
	}
	writeJSON(w, types.EmbeddingsResponse{
		Data:  data,
		Model: a.eng.Info().ID,
		Usage: types.EmbeddingUsage{PromptTokens: promptTokens, TotalTokens: promptTokens},
	})
}

// handleHealth reports liveness and model identity. Exempt from auth and
// rate limiting.
//
// @Summary      Health check
// @Produce      json
// @Success      200 {object} types.HealthResponse
// @Router       /v1/health [get]
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := a.eng.Info()
	writeJSON(w, types.HealthResponse{
		Status:        "ok",
		Version:       a.version,
		ModelID:       info.ID,
		ModelType:     info.Type,
		UptimeSeconds: a.rec.UptimeSeconds(),
	})
}

// handleMetrics returns the JSON metric list. The Prometheus exposition
// format lives at /v1/metrics/prometheus.
//
// @Summary      Aggregate request metrics
// @Produce      json
// @Success      200 {object} types.MetricsResponse
// @Router       /v1/metrics [get]
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := a.rec.Snapshot()
	labels := map[string]string{"model_id": a.eng.Info().ID}
	ms := []types.MetricValue{
		{Name: "requests_total", Value: float64(snap.RequestCount), Labels: labels},
		{Name: "errors_total", Value: float64(snap.ErrorCount), Labels: labels},
		{Name: "tokens_total", Value: float64(snap.TokenCount), Labels: labels},
		{Name: "latency_ms_mean", Value: snap.MeanMs, Labels: labels},
		{Name: "latency_ms_median", Value: snap.MedianMs, Labels: labels},
		{Name: "latency_ms_p90", Value: snap.P90Ms, Labels: labels},
		{Name: "latency_ms_p95", Value: snap.P95Ms, Labels: labels},
		{Name: "latency_ms_p99", Value: snap.P99Ms, Labels: labels},
		{Name: "uptime_seconds", Value: float64(a.rec.UptimeSeconds()), Labels: labels},
	}
	writeJSON(w, types.MetricsResponse{Metrics: ms})
}

// usage assembles token accounting from the prompt count and response text.
func (a *API) usage(promptTokens int, content string) types.Usage {
	completion := a.eng.CountTokens(content)
	return types.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completion,
		TotalTokens:      promptTokens + completion,
	}
}

func (a *API) promptTokensForChat(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += a.eng.CountTokens(m.Role) + a.eng.CountTokens(m.Content)
	}
	return total
}

// inferenceError maps engine failures to the protocol error. Only a client
// disconnect suppresses the body; a still-connected caller always gets an
// error envelope, including when shutdown cancels the joined context.
func (a *API) inferenceError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	a.log.Error().Err(err).Str("path", r.URL.Path).Msg("inference failed")
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
