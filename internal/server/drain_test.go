package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// slowEngine signals when a generation enters, then holds it for delay.
type slowEngine struct {
	*engine.Echo
	entered chan struct{}
	delay   time.Duration
}

func (s slowEngine) GenerateText(ctx context.Context, p engine.GenerateParams) (*engine.Result, error) {
	close(s.entered)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Echo.GenerateText(ctx, p)
}

// Stop must let an in-flight request run to completion within the grace
// period; the connected client gets the full response, not an aborted one.
func TestStopDrainsInflightRequest(t *testing.T) {
	cfg := testConfig(t, config.ProtocolREST)
	eng := slowEngine{
		Echo:    engine.NewEcho("m1"),
		entered: make(chan struct{}),
		delay:   300 * time.Millisecond,
	}
	s := New(cfg, eng, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %+v", err)
	}

	type result struct {
		code int
		body []byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Post(fmt.Sprintf("http://%s/v1/completions", s.Addr()),
			"application/json", strings.NewReader(`{"prompt":"still here"}`))
		if err != nil {
			resCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		resCh <- result{code: resp.StatusCode, body: b, err: err}
	}()

	select {
	case <-eng.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the engine")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %+v", err)
	}

	r := <-resCh
	if r.err != nil {
		t.Fatalf("request aborted during drain: %+v", r.err)
	}
	if r.code != http.StatusOK {
		t.Fatalf("status = %d body = %s", r.code, r.body)
	}
	var out types.GenerateResponse
	if err := json.Unmarshal(r.body, &out); err != nil {
		t.Fatalf("decode drained response %q: %+v", r.body, err)
	}
	if out.Text != "still here" || out.FinishReason != "stop" {
		t.Fatalf("drained request truncated: %+v", out)
	}
}
