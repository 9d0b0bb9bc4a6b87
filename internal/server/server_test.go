package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/engine"
)

func testConfig(t *testing.T, proto config.Protocol) config.Config {
	t.Helper()
	cfg := config.Config{
		Protocol:  proto,
		Host:      "127.0.0.1",
		ModelType: "echo",
	}
	cfg = config.ApplyDefaults(cfg)
	cfg.Port = 0 // ephemeral
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate: %+v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, proto config.Protocol) *Server {
	t.Helper()
	cfg := testConfig(t, proto)
	eng, err := engine.Load(cfg)
	if err != nil {
		t.Fatalf("load engine: %+v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return New(cfg, eng, zerolog.Nop())
}

func TestServerLifecycleREST(t *testing.T) {
	s := newTestServer(t, config.ProtocolREST)

	if s.IsRunning() {
		t.Fatal("new server reports running")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %+v", err)
	}
	if !s.IsRunning() {
		t.Fatal("server not running after start")
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no listen address after start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/v1/health", addr))
	if err != nil {
		t.Fatalf("health request: %+v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %+v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("health status = %q, want ok", health.Status)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %+v", err)
	}
	if s.IsRunning() {
		t.Fatal("server still running after stop")
	}
	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Fatal("listener still accepting after stop")
	}
}

func TestServerLifecycleRPC(t *testing.T) {
	s := newTestServer(t, config.ProtocolRPC)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %+v", err)
	}
	if !s.IsRunning() {
		t.Fatal("server not running after start")
	}
	addr := s.Addr()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial rpc listener: %+v", err)
	}
	_ = conn.Close()

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %+v", err)
	}
	if s.IsRunning() {
		t.Fatal("server still running after stop")
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	s := newTestServer(t, config.ProtocolREST)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %+v", err)
	}
	defer func() { _ = s.Stop() }()

	addr := s.Addr()
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %+v", err)
	}
	if got := s.Addr(); got != addr {
		t.Fatalf("second start changed address: %q -> %q", addr, got)
	}
}

func TestStopIsIdempotentWhileStopped(t *testing.T) {
	s := newTestServer(t, config.ProtocolREST)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop on stopped server: %+v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %+v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %+v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %+v", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	s := newTestServer(t, config.ProtocolREST)
	for i := 0; i < 2; i++ {
		if err := s.Start(); err != nil {
			t.Fatalf("start %d: %+v", i, err)
		}
		if !s.IsRunning() {
			t.Fatalf("not running after start %d", i)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("stop %d: %+v", i, err)
		}
	}
}

func TestStartBindFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %+v", err)
	}
	defer lis.Close()

	cfg := testConfig(t, config.ProtocolREST)
	cfg.Port = lis.Addr().(*net.TCPAddr).Port
	eng, err := engine.Load(cfg)
	if err != nil {
		t.Fatalf("load engine: %+v", err)
	}
	defer eng.Close()

	s := New(cfg, eng, zerolog.Nop())
	err = s.Start()
	if err == nil {
		t.Fatal("expected bind error on occupied port")
	}
	if !IsBindError(err) {
		t.Fatalf("err = %+v, want bind error", err)
	}
	if s.IsRunning() {
		t.Fatal("server reports running after failed start")
	}

	// The failed start must not wedge the state machine.
	lis.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("start after bind failure: %+v", err)
	}
	_ = s.Stop()
}
