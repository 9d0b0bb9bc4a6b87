package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inferd/pkg/types"
)

const apiKeyHeader = "X-API-Key"

// restBackend talks to the REST frontend under /v1.
type restBackend struct {
	base   string
	apiKey string
	client *http.Client
}

func newRESTBackend(addr, apiKey string) *restBackend {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &restBackend{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{},
	}
}

func (b *restBackend) Close() error { return nil }

func (b *restBackend) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set(apiKeyHeader, b.apiKey)
	}
	return req, nil
}

// do executes a request and decodes the JSON response into out. Non-2xx
// responses are surfaced with the server's error detail.
func (b *restBackend) do(ctx context.Context, method, path string, body, out any) error {
	req, err := b.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var e types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Detail != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Detail)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

func (b *restBackend) Health(ctx context.Context) (*types.HealthResponse, error) {
	out := new(types.HealthResponse)
	return out, b.do(ctx, http.MethodGet, "/v1/health", nil, out)
}

func (b *restBackend) Metrics(ctx context.Context) (*types.MetricsResponse, error) {
	out := new(types.MetricsResponse)
	return out, b.do(ctx, http.MethodGet, "/v1/metrics", nil, out)
}

func (b *restBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	req.Stream = false
	out := new(types.GenerateResponse)
	return out, b.do(ctx, http.MethodPost, "/v1/completions", req, out)
}

func (b *restBackend) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	req.Stream = false
	out := new(types.ChatResponse)
	return out, b.do(ctx, http.MethodPost, "/v1/chat/completions", req, out)
}

func (b *restBackend) Classify(ctx context.Context, req types.ClassifyRequest) (*types.ClassifyResponse, error) {
	out := new(types.ClassifyResponse)
	return out, b.do(ctx, http.MethodPost, "/v1/classify", req, out)
}

func (b *restBackend) Embed(ctx context.Context, req types.EmbeddingsRequest) (*types.EmbeddingsResponse, error) {
	out := new(types.EmbeddingsResponse)
	return out, b.do(ctx, http.MethodPost, "/v1/embeddings", req, out)
}

// GenerateStream consumes the server-sent-event stream until the [DONE]
// sentinel, invoking onChunk per data frame.
func (b *restBackend) GenerateStream(ctx context.Context, req types.GenerateRequest, onChunk func(types.StreamChunk)) error {
	req.Stream = true
	httpReq, err := b.newRequest(ctx, http.MethodPost, "/v1/completions", req)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}
		var chunk types.StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}
		onChunk(chunk)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without [DONE]")
}
