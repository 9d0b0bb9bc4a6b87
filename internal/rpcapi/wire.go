package rpcapi

import (
	"context"

	"google.golang.org/grpc"

	"inferd/pkg/types"
)

// ServiceName is the fully qualified RPC service name.
const ServiceName = "inferd.v1.InferenceService"

// InferenceServer is the server-side contract of the RPC service. Every
// method mirrors a REST endpoint; both protocols must behave symmetrically.
type InferenceServer interface {
	GenerateText(ctx context.Context, req *types.GenerateRequest) (*types.GenerateResponse, error)
	GenerateTextStream(req *types.GenerateRequest, stream Inference_GenerateTextStreamServer) error
	GenerateChatCompletion(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
	GenerateChatCompletionStream(req *types.ChatRequest, stream Inference_GenerateChatCompletionStreamServer) error
	ClassifyText(ctx context.Context, req *types.ClassifyRequest) (*types.ClassifyResponse, error)
	GetEmbeddings(ctx context.Context, req *types.EmbeddingsRequest) (*types.EmbeddingsResponse, error)
	GetServerInfo(ctx context.Context, req *types.ServerInfoRequest) (*types.ServerInfo, error)
}

// Inference_GenerateTextStreamServer is the send side of GenerateTextStream.
type Inference_GenerateTextStreamServer interface {
	Send(*types.StreamChunk) error
	grpc.ServerStream
}

// Inference_GenerateChatCompletionStreamServer is the send side of
// GenerateChatCompletionStream.
type Inference_GenerateChatCompletionStreamServer interface {
	Send(*types.StreamChunk) error
	grpc.ServerStream
}

type generateTextStreamServer struct{ grpc.ServerStream }

func (x *generateTextStreamServer) Send(m *types.StreamChunk) error { return x.SendMsg(m) }

type generateChatStreamServer struct{ grpc.ServerStream }

func (x *generateChatStreamServer) Send(m *types.StreamChunk) error { return x.SendMsg(m) }

func unaryHandler[Req any, Resp any](method string, call func(InferenceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	full := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InferenceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InferenceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func generateTextStreamHandler(srv any, stream grpc.ServerStream) error {
	m := new(types.GenerateRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(InferenceServer).GenerateTextStream(m, &generateTextStreamServer{stream})
}

func generateChatStreamHandler(srv any, stream grpc.ServerStream) error {
	m := new(types.ChatRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(InferenceServer).GenerateChatCompletionStream(m, &generateChatStreamServer{stream})
}

// serviceDesc wires method names to handlers the way generated stubs do.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateText", Handler: unaryHandler("GenerateText", func(s InferenceServer, ctx context.Context, r *types.GenerateRequest) (*types.GenerateResponse, error) {
			return s.GenerateText(ctx, r)
		})},
		{MethodName: "GenerateChatCompletion", Handler: unaryHandler("GenerateChatCompletion", func(s InferenceServer, ctx context.Context, r *types.ChatRequest) (*types.ChatResponse, error) {
			return s.GenerateChatCompletion(ctx, r)
		})},
		{MethodName: "ClassifyText", Handler: unaryHandler("ClassifyText", func(s InferenceServer, ctx context.Context, r *types.ClassifyRequest) (*types.ClassifyResponse, error) {
			return s.ClassifyText(ctx, r)
		})},
		{MethodName: "GetEmbeddings", Handler: unaryHandler("GetEmbeddings", func(s InferenceServer, ctx context.Context, r *types.EmbeddingsRequest) (*types.EmbeddingsResponse, error) {
			return s.GetEmbeddings(ctx, r)
		})},
		{MethodName: "GetServerInfo", Handler: unaryHandler("GetServerInfo", func(s InferenceServer, ctx context.Context, r *types.ServerInfoRequest) (*types.ServerInfo, error) {
			return s.GetServerInfo(ctx, r)
		})},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GenerateTextStream", Handler: generateTextStreamHandler, ServerStreams: true},
		{StreamName: "GenerateChatCompletionStream", Handler: generateChatStreamHandler, ServerStreams: true},
	},
	Metadata: "inferd/v1/inference",
}
