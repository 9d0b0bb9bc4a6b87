package main

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"inferd/internal/rpcapi"
	"inferd/pkg/types"
)

// rpcBackend talks to the RPC frontend. Health and Metrics are synthesized
// from GetServerInfo since the RPC surface exposes counters there rather
// than as a separate endpoint.
type rpcBackend struct {
	conn   *grpc.ClientConn
	client *rpcapi.Client
	apiKey string
}

func newRPCBackend(addr, apiKey string) (*rpcBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &rpcBackend{conn: conn, client: rpcapi.NewClient(conn), apiKey: apiKey}, nil
}

func (b *rpcBackend) Close() error { return b.conn.Close() }

func (b *rpcBackend) ctx(ctx context.Context) context.Context {
	if b.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-api-key", b.apiKey)
}

func (b *rpcBackend) Health(ctx context.Context) (*types.HealthResponse, error) {
	info, err := b.client.GetServerInfo(b.ctx(ctx), &types.ServerInfoRequest{})
	if err != nil {
		return nil, err
	}
	return &types.HealthResponse{
		Status:        "ok",
		Version:       info.Version,
		ModelID:       info.ModelID,
		ModelType:     info.ModelType,
		UptimeSeconds: info.UptimeSeconds,
	}, nil
}

func (b *rpcBackend) Metrics(ctx context.Context) (*types.MetricsResponse, error) {
	info, err := b.client.GetServerInfo(b.ctx(ctx), &types.ServerInfoRequest{})
	if err != nil {
		return nil, err
	}
	return &types.MetricsResponse{Metrics: []types.MetricValue{
		{Name: "requests_total", Value: float64(info.RequestCount)},
		{Name: "errors_total", Value: float64(info.ErrorCount)},
		{Name: "tokens_total", Value: float64(info.TokenCount)},
		{Name: "uptime_seconds", Value: float64(info.UptimeSeconds), Labels: map[string]string{"model_id": info.ModelID}},
	}}, nil
}

func (b *rpcBackend) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResponse, error) {
	return b.client.GenerateText(b.ctx(ctx), &req)
}

func (b *rpcBackend) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	return b.client.GenerateChatCompletion(b.ctx(ctx), &req)
}

func (b *rpcBackend) Classify(ctx context.Context, req types.ClassifyRequest) (*types.ClassifyResponse, error) {
	return b.client.ClassifyText(b.ctx(ctx), &req)
}

func (b *rpcBackend) Embed(ctx context.Context, req types.EmbeddingsRequest) (*types.EmbeddingsResponse, error) {
	return b.client.GetEmbeddings(b.ctx(ctx), &req)
}

func (b *rpcBackend) GenerateStream(ctx context.Context, req types.GenerateRequest, onChunk func(types.StreamChunk)) error {
	stream, err := b.client.GenerateTextStream(b.ctx(ctx), &req)
	if err != nil {
		return err
	}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		onChunk(*chunk)
	}
}
