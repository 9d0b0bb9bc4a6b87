package rpcapi

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"inferd/internal/config"
)

// NewServer builds a grpc.Server with the service registered and the
// configured limits, transport credentials and optional sub-services.
func NewServer(cfg config.Config, svc InferenceServer) (*grpc.Server, error) {
	maxBytes := cfg.MaxMessageMB << 20
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxBytes),
		grpc.MaxSendMsgSize(maxBytes),
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentStreams)),
	}
	if cfg.EnableTLS {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, svc)

	if cfg.EnableReflection {
		reflection.Register(s)
	}
	if cfg.EnableHealthChecking {
		healthServer := health.NewServer()
		healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		grpc_health_v1.RegisterHealthServer(s, healthServer)
	}
	return s, nil
}
