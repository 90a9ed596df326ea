// internal/app/features/deltasync/sse.go
package deltasync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dalemusser/rosterhub/internal/app/delta"
)

// sseEmitter writes delta changes in the Server-Sent Events wire format.
// Each change is one "data:" line; heartbeats are comment lines.
type sseEmitter struct {
	w       io.Writer
	flusher http.Flusher
}

var _ delta.Emitter = (*sseEmitter)(nil)

func newSSEEmitter(w http.ResponseWriter) (*sseEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseEmitter{w: w, flusher: flusher}, nil
}

func (e *sseEmitter) Change(c delta.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	e.flusher.Flush()
	return nil
}

func (e *sseEmitter) Heartbeat() error {
	if _, err := io.WriteString(e.w, ": keep-alive\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	e.flusher.Flush()
	return nil
}

// comment writes a one-off SSE comment line.
func (e *sseEmitter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
