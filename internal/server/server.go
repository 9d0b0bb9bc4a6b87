package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"inferd/internal/auth"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/metrics"
	"inferd/internal/ratelimit"
	"inferd/internal/rpcapi"
)

// Version is reported by health and server-info endpoints.
const Version = "0.1.0"

// defaultGrace bounds how long Stop waits for in-flight requests to drain
// before terminating connections.
const defaultGrace = 5 * time.Second

// State is the lifecycle state of a Server. Transitions are owned
// exclusively by Start and Stop.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Server owns one protocol listener plus the control-plane state shared by
// every request handler: the metrics recorder, the rate limiter and the
// auth gate. The wire protocol is fixed at construction.
type Server struct {
	cfg     config.Config
	eng     engine.Engine
	rec     *metrics.Recorder
	limiter *ratelimit.Limiter
	gate    *auth.Gate
	log     zerolog.Logger
	grace   time.Duration

	mu         sync.Mutex
	state      State
	lis        net.Listener
	httpSrv    *http.Server
	grpcSrv    *grpc.Server
	done       chan struct{}
	baseCancel context.CancelFunc
}

// New wires a server around an already-loaded engine. Engine load failures
// are the caller's to handle before this point; a server is never
// constructed around a missing model.
func New(cfg config.Config, eng engine.Engine, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		eng:     eng,
		rec:     metrics.NewRecorder(),
		limiter: ratelimit.New(cfg.RateLimitEnabled, cfg.RateLimitPerMinute),
		gate:    auth.NewGate(cfg.AuthEnabled, cfg.APIKeys),
		log:     log,
		grace:   defaultGrace,
		state:   StateStopped,
	}
}

// Recorder exposes the shared metrics recorder.
func (s *Server) Recorder() *metrics.Recorder { return s.rec }

// IsRunning reports whether the server is accepting requests. Safe from any
// goroutine.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// Addr returns the bound listen address, or "" when not running. With a
// configured port of 0 this is where the kernel-assigned port shows up.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Start binds the listener and spawns the serve loop. Valid only from
// Stopped; calling it on a server that is already Starting or Running is a
// warning-level no-op. A bind failure leaves the state Stopped and returns
// a bind error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		st := s.state
		s.mu.Unlock()
		s.log.Warn().Str("state", string(st)).Msg("start ignored: server not stopped")
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return ErrBind(s.cfg.Addr(), err)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	var serve func() error
	var httpSrv *http.Server
	var grpcSrv *grpc.Server

	switch s.cfg.Protocol {
	case config.ProtocolRPC:
		svc := rpcapi.NewService(s.cfg, s.eng, s.rec, s.limiter, s.gate, s.log, Version)
		grpcSrv, err = rpcapi.NewServer(s.cfg, svc)
		if err != nil {
			_ = lis.Close()
			baseCancel()
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			return err
		}
		serve = func() error { return grpcSrv.Serve(lis) }
	default:
		api := httpapi.New(s.cfg, s.eng, s.rec, s.limiter, s.gate, s.log, Version, baseCtx)
		httpSrv = &http.Server{
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if s.cfg.EnableTLS {
			serve = func() error { return httpSrv.ServeTLS(lis, s.cfg.CertFile, s.cfg.KeyFile) }
		} else {
			serve = func() error { return httpSrv.Serve(lis) }
		}
	}

	go func() {
		defer close(done)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error().Err(err).Msg("serve loop exited")
		}
	}()

	s.mu.Lock()
	s.lis = lis
	s.httpSrv = httpSrv
	s.grpcSrv = grpcSrv
	s.done = done
	s.baseCancel = baseCancel
	s.state = StateRunning
	s.mu.Unlock()

	s.log.Info().
		Str("protocol", string(s.cfg.Protocol)).
		Str("addr", lis.Addr().String()).
		Str("model", s.eng.Info().ID).
		Msg("server listening")
	return nil
}

// Stop drains in-flight requests for the grace period, then terminates
// remaining connections, joins the serve loop and returns the server to
// Stopped. Calling Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		st := s.state
		s.mu.Unlock()
		if st != StateStopped {
			s.log.Warn().Str("state", string(st)).Msg("stop ignored: server not running")
		}
		return nil
	}
	s.state = StateStopping
	httpSrv := s.httpSrv
	grpcSrv := s.grpcSrv
	done := s.done
	baseCancel := s.baseCancel
	s.mu.Unlock()

	// In-flight handlers keep their joined context until the grace period
	// runs out; only then does the base context cancel and unblock them.
	graceTimer := time.AfterFunc(s.grace, baseCancel)

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.grace)
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Msg("graceful drain expired, closing connections")
			_ = httpSrv.Close()
		}
		cancel()
	}
	if grpcSrv != nil {
		drained := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(s.grace):
			s.log.Warn().Msg("graceful drain expired, closing connections")
			grpcSrv.Stop()
			<-drained
		}
	}
	graceTimer.Stop()
	baseCancel()
	<-done

	s.mu.Lock()
	s.lis = nil
	s.httpSrv = nil
	s.grpcSrv = nil
	s.done = nil
	s.baseCancel = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.log.Info().Msg("server stopped")
	return nil
}
