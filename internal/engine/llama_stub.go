//go:build !llama

package engine

import "inferd/internal/config"

// This file provides a no-CGO stub for the llama engine. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real engine lives in llama.go (tagged 'llama').

func newLlamaEngine(cfg config.Config) (Engine, error) {
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}
