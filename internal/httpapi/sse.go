package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// streamFunc runs a streamed generation, calling onChunk once per produced
// piece, and returns the final result when the stream completes.
type streamFunc func(ctx context.Context, onChunk func(string) error) (*engine.Result, error)

// streamGeneration writes a server-sent-event response: one `data: {json}`
// frame per chunk, a final frame carrying the finish reason and usage, then
// the `data: [DONE]` sentinel. Metrics are recorded once, after the stream
// finishes, from the accumulated counters. A client disconnect mid-stream
// stops chunk production without an error response.
func (a *API) streamGeneration(w http.ResponseWriter, r *http.Request, promptTokens int, run streamFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported by connection")
		return
	}
	ctx, cancel := a.requestCtx(r, true)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	start := a.rec.RecordRequestStart()
	completionTokens := 0

	res, err := run(ctx, func(chunk string) error {
		completionTokens += a.eng.CountTokens(chunk)
		return writeSSE(w, flusher, types.StreamChunk{Text: chunk})
	})
	if err != nil {
		a.rec.RecordError(start)
		if r.Context().Err() != nil {
			// Interrupted stream: the client is gone, nothing to send.
			a.log.Debug().Str("path", r.URL.Path).Msg("stream interrupted by disconnect")
			return
		}
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("stream failed")
		// Headers are already sent; surface the failure as a final frame.
		_ = writeSSE(w, flusher, types.StreamChunk{FinishReason: "error", Error: err.Error()})
		writeSSEDone(w, flusher)
		return
	}

	_ = writeSSE(w, flusher, types.StreamChunk{FinishReason: res.FinishReason})
	writeSSEDone(w, flusher)
	a.rec.RecordSuccess(start, promptTokens+completionTokens)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
