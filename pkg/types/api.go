package types

// Message is a single turn in a chat conversation.
type Message struct {
	// Role of the author: system, user, or assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// Content of the message.
	// example: What is the capital of France?
	Content string `json:"content" example:"What is the capital of France?"`
}

// GenerateRequest is the payload for POST /v1/completions.
type GenerateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random). Omitted means the
	// backend default; an explicit 0 requests greedy decoding.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability. Omitted means the backend default.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Penalty applied to repeated tokens.
	// example: 1.1
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty" example:"1.1"`
	// Optional stop sequences. Generation stops when any sequence is matched.
	Stop []string `json:"stop,omitempty"`
	// If true, stream results as server-sent events.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
}

// ChatRequest is the payload for POST /v1/chat/completions.
type ChatRequest struct {
	// Ordered conversation history, oldest first.
	Messages []Message `json:"messages"`
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// example: 1.1
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty" example:"1.1"`
	Stop              []string `json:"stop,omitempty"`
	Stream            bool     `json:"stream,omitempty"`
}

// ClassifyRequest is the payload for POST /v1/classify.
type ClassifyRequest struct {
	// Text to classify.
	// example: This movie was fantastic!
	Text string `json:"text" example:"This movie was fantastic!"`
}

// EmbeddingsRequest is the payload for POST /v1/embeddings.
type EmbeddingsRequest struct {
	// Input texts to embed, one vector returned per input.
	Inputs []string `json:"inputs"`
}

// Usage carries token accounting for a completed generation.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 34
	CompletionTokens int `json:"completion_tokens" example:"34"`
	// example: 46
	TotalTokens int `json:"total_tokens" example:"46"`
}

// GenerateResponse is the non-streaming completion result.
type GenerateResponse struct {
	// Generated text.
	Text string `json:"text"`
	// Why generation ended: stop, length, or error.
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	Usage        Usage  `json:"usage"`
}

// ChatResponse is the non-streaming chat completion result.
type ChatResponse struct {
	// Assistant reply message.
	Message Message `json:"message"`
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	Usage        Usage  `json:"usage"`
}

// StreamChunk is one incremental piece of a streamed generation. Over REST it
// is the JSON body of a server-sent-event frame; over RPC it is one streamed
// message. FinishReason is empty until the final chunk.
type StreamChunk struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	// Error detail when FinishReason is "error".
	Error string `json:"error,omitempty"`
}

// LabelScore is one classification label with its confidence.
type LabelScore struct {
	// example: positive
	Label string `json:"label" example:"positive"`
	// example: 0.93
	Score float64 `json:"score" example:"0.93"`
}

// ClassifyResponse is returned by POST /v1/classify.
type ClassifyResponse struct {
	Labels []LabelScore `json:"labels"`
	// Highest-scoring label.
	// example: positive
	TopLabel string `json:"top_label" example:"positive"`
	// Tokens consumed by the input text.
	// example: 7
	Tokens int `json:"tokens" example:"7"`
}

// EmbeddingData is one embedding vector keyed by input position.
type EmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingUsage carries token accounting for an embeddings call.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingsResponse is returned by POST /v1/embeddings.
type EmbeddingsResponse struct {
	Data  []EmbeddingData `json:"data"`
	Model string          `json:"model"`
	Usage EmbeddingUsage  `json:"usage"`
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// example: 1.0.0
	Version string `json:"version" example:"1.0.0"`
	// example: tinyllama-q4
	ModelID   string `json:"model_id" example:"tinyllama-q4"`
	ModelType string `json:"model_type" example:"llama"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// MetricValue is one named sample in GET /v1/metrics.
type MetricValue struct {
	// example: requests_total
	Name string `json:"name" example:"requests_total"`
	// example: 1234
	Value  float64           `json:"value" example:"1234"`
	Labels map[string]string `json:"labels,omitempty"`
}

// MetricsResponse wraps the metric list returned by GET /v1/metrics.
type MetricsResponse struct {
	Metrics []MetricValue `json:"metrics"`
}

// ServerInfoRequest is the (empty) GetServerInfo RPC request.
type ServerInfoRequest struct{}

// ServerInfo is returned by the GetServerInfo RPC.
type ServerInfo struct {
	ModelID       string `json:"model_id"`
	ModelType     string `json:"model_type"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	RequestCount  uint64 `json:"request_count"`
	ErrorCount    uint64 `json:"error_count"`
	TokenCount    uint64 `json:"token_count"`
}

// ErrorResponse is the JSON error envelope returned by the REST API.
type ErrorResponse struct {
	// Error message.
	// example: invalid or missing API key
	Detail string `json:"detail" example:"invalid or missing API key"`
}
