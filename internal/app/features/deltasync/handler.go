// internal/app/features/deltasync/handler.go
package deltasync

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/timeouts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the poll and push sync endpoints.
type Handler struct {
	Sync   *delta.Service
	Stream delta.Options // interval, heartbeat and max duration; kinds come from the request
	Log    *zap.Logger
}

// NewHandler constructs a sync Handler.
func NewHandler(svc *delta.Service, stream delta.Options, logger *zap.Logger) *Handler {
	return &Handler{Sync: svc, Stream: stream, Log: logger}
}

// ServePoll handles GET /api/sync/poll?since=<RFC3339>.
func (h *Handler) ServePoll(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		apperr.WriteJSON(w, apperr.Validation("since is required"))
		return
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("since must be an RFC3339 timestamp"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "sync poll")
	defer cancel()

	res, err := h.Sync.Poll(ctx, since)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.Log.Error("sync poll failed", zap.Error(err))
		}
		apperr.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(res)
}

// ServeStream handles GET /api/sync/stream?entities=a,b. The connection
// stays open until the stream's maximum duration; clients reconnect.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	kinds, err := delta.ParseKinds(r.URL.Query().Get("entities"))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	em, err := newSSEEmitter(w)
	if err != nil {
		apperr.WriteJSON(w, apperr.Internal(err, "streaming unsupported"))
		return
	}

	opts := h.Stream
	opts.Kinds = kinds
	st := h.Sync.Open(opts)

	streamID := uuid.NewString()
	log := h.Log.With(zap.String("stream_id", streamID))

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := em.comment("stream " + streamID); err != nil {
		return
	}

	log.Debug("sync stream opened", zap.Int("kinds", len(kinds)))
	reason := st.Run(r.Context(), em)
	if errors.Is(reason, delta.ErrMaxDuration) {
		log.Debug("sync stream closed", zap.String("reason", "max duration"))
		return
	}
	log.Debug("sync stream closed", zap.Error(reason))
}
