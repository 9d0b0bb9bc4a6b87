package rpcapi

import (
	"context"

	"google.golang.org/grpc"

	"inferd/pkg/types"
)

// Client is a typed client for the inference service. It pins the JSON
// content-subtype on every call so any grpc.ClientConn works unmodified.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *Client) GenerateText(ctx context.Context, req *types.GenerateRequest, opts ...grpc.CallOption) (*types.GenerateResponse, error) {
	out := new(types.GenerateResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GenerateText", req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GenerateChatCompletion(ctx context.Context, req *types.ChatRequest, opts ...grpc.CallOption) (*types.ChatResponse, error) {
	out := new(types.ChatResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GenerateChatCompletion", req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClassifyText(ctx context.Context, req *types.ClassifyRequest, opts ...grpc.CallOption) (*types.ClassifyResponse, error) {
	out := new(types.ClassifyResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ClassifyText", req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetEmbeddings(ctx context.Context, req *types.EmbeddingsRequest, opts ...grpc.CallOption) (*types.EmbeddingsResponse, error) {
	out := new(types.EmbeddingsResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetEmbeddings", req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetServerInfo(ctx context.Context, req *types.ServerInfoRequest, opts ...grpc.CallOption) (*types.ServerInfo, error) {
	out := new(types.ServerInfo)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetServerInfo", req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ChunkStream is the receive side of a server-streaming generation.
type ChunkStream interface {
	Recv() (*types.StreamChunk, error)
}

type chunkStreamClient struct {
	grpc.ClientStream
}

func (x *chunkStreamClient) Recv() (*types.StreamChunk, error) {
	m := new(types.StreamChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) newChunkStream(ctx context.Context, desc *grpc.StreamDesc, method string, req any, opts []grpc.CallOption) (ChunkStream, error) {
	s, err := c.cc.NewStream(ctx, desc, method, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	if err := s.SendMsg(req); err != nil {
		return nil, err
	}
	if err := s.CloseSend(); err != nil {
		return nil, err
	}
	return &chunkStreamClient{s}, nil
}

func (c *Client) GenerateTextStream(ctx context.Context, req *types.GenerateRequest, opts ...grpc.CallOption) (ChunkStream, error) {
	return c.newChunkStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/GenerateTextStream", req, opts)
}

func (c *Client) GenerateChatCompletionStream(ctx context.Context, req *types.ChatRequest, opts ...grpc.CallOption) (ChunkStream, error) {
	return c.newChunkStream(ctx, &serviceDesc.Streams[1], "/"+ServiceName+"/GenerateChatCompletionStream", req, opts)
}
