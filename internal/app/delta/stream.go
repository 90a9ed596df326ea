package delta

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/telemetry"
	"github.com/dalemusser/rosterhub/internal/app/system/timeouts"
	"github.com/dalemusser/rosterhub/internal/app/system/versiontoken"
	"go.uber.org/zap"
)

// Stream defaults.
const (
	DefaultInterval       = 2 * time.Second
	DefaultHeartbeatEvery = 15 * time.Second
	DefaultMaxDuration    = 30 * time.Second
)

// Change actions.
const (
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// State is the push loop state.
type State int

const (
	Waiting State = iota
	Scanning
	Closed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Scanning:
		return "scanning"
	default:
		return "closed"
	}
}

// Why a stream closed.
var (
	ErrMaxDuration  = errors.New("stream reached its maximum duration")
	ErrDisconnected = errors.New("client disconnected")
)

// Change is one push notification. Only identifiers are pushed; subscribers
// re-fetch full state through a poll or a direct read.
type Change struct {
	Entity      Kind      `json:"entity"`
	Action      string    `json:"action"`
	AffectedIDs []string  `json:"affectedIds"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter writes stream lines to the transport. An error means the client is
// gone and the stream closes.
type Emitter interface {
	Change(c Change) error
	Heartbeat() error
}

// Options configures a stream. Zero durations take the defaults; nil Kinds
// selects every kind.
type Options struct {
	Kinds          []Kind
	Interval       time.Duration
	HeartbeatEvery time.Duration
	MaxDuration    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = DefaultHeartbeatEvery
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if len(o.Kinds) == 0 {
		o.Kinds = append([]Kind(nil), Kinds...)
	}
	return o
}

// Stream is one viewer connection's push loop. It is single-goroutine: a
// scan never overlaps another scan of the same stream.
type Stream struct {
	src   Source
	log   *zap.Logger
	opts  Options
	state State

	// High-water marks, one per kind, advanced only after a successful read.
	updated map[Kind]time.Time
	deleted map[Kind]time.Time
}

// Open starts tracking changes from now. Marks sit one resolution step
// behind the open time so a write stamped in the same millisecond is not
// missed.
func (s *Service) Open(opts Options) *Stream {
	opts = opts.withDefaults()
	start := s.now().UTC().Truncate(versiontoken.Resolution).Add(-versiontoken.Resolution)
	st := &Stream{
		src:     s.src,
		log:     s.log,
		opts:    opts,
		state:   Waiting,
		updated: make(map[Kind]time.Time, len(opts.Kinds)),
		deleted: make(map[Kind]time.Time, len(opts.Kinds)),
	}
	for _, k := range opts.Kinds {
		st.updated[k] = start
		st.deleted[k] = start
	}
	return st
}

// State returns the current loop state.
func (st *Stream) State() State { return st.state }

// Run drives the loop until the maximum duration elapses, ctx is cancelled
// (client disconnect), or the emitter fails. It returns why it closed. No
// emitter call happens after Run returns.
func (st *Stream) Run(ctx context.Context, em Emitter) error {
	done := telemetry.StreamOpened()
	defer done()

	deadline := time.NewTimer(st.opts.MaxDuration)
	defer deadline.Stop()
	tick := time.NewTimer(st.opts.Interval)
	defer tick.Stop()
	heartbeat := time.NewTicker(st.opts.HeartbeatEvery)
	defer heartbeat.Stop()

	var reason error
	for {
		switch st.state {
		case Waiting:
			select {
			case <-ctx.Done():
				reason = ErrDisconnected
				st.state = Closed
			case <-deadline.C:
				reason = ErrMaxDuration
				st.state = Closed
			case <-heartbeat.C:
				if err := em.Heartbeat(); err != nil {
					reason = ErrDisconnected
					st.state = Closed
					continue
				}
				telemetry.StreamEvent("heartbeat")
			case <-tick.C:
				st.state = Scanning
			}

		case Scanning:
			if err := st.scan(ctx, em); err != nil {
				reason = err
				st.state = Closed
				continue
			}
			if ctx.Err() != nil {
				reason = ErrDisconnected
				st.state = Closed
				continue
			}
			tick.Reset(st.opts.Interval)
			st.state = Waiting

		case Closed:
			return reason
		}
	}
}

// scan reads every requested kind once. Read failures are logged and the
// kind's mark stays put so the next tick retries the same window. Only an
// emitter failure is returned.
func (st *Stream) scan(ctx context.Context, em Emitter) error {
	sctx, cancel := timeouts.WithTimeout(ctx, timeouts.Scan(), st.log, "stream scan")
	defer cancel()

	for _, k := range st.opts.Kinds {
		if sctx.Err() != nil {
			return nil
		}

		stamps, err := st.src.ChangedIDs(sctx, k, st.updated[k])
		if err != nil {
			st.scanFailed(k, err)
		} else if len(stamps) > 0 {
			c := Change{Entity: k, Action: ActionUpdated, AffectedIDs: make([]string, 0, len(stamps))}
			for _, s := range stamps {
				c.AffectedIDs = append(c.AffectedIDs, s.ID.Hex())
				if s.UpdatedAt.After(c.Timestamp) {
					c.Timestamp = s.UpdatedAt.UTC()
				}
			}
			if err := em.Change(c); err != nil {
				return ErrDisconnected
			}
			telemetry.StreamEvent("change")
			st.updated[k] = c.Timestamp
		}

		tombs, err := st.src.Deleted(sctx, k, st.deleted[k])
		if err != nil {
			st.scanFailed(k, err)
			continue
		}
		if len(tombs) == 0 {
			continue
		}
		c := Change{Entity: k, Action: ActionDeleted, AffectedIDs: make([]string, 0, len(tombs))}
		for _, t := range tombs {
			c.AffectedIDs = append(c.AffectedIDs, t.EntityID.Hex())
			if t.DeletedAt.After(c.Timestamp) {
				c.Timestamp = t.DeletedAt.UTC()
			}
		}
		if err := em.Change(c); err != nil {
			return ErrDisconnected
		}
		telemetry.StreamEvent("change")
		st.deleted[k] = c.Timestamp
	}
	return nil
}

func (st *Stream) scanFailed(k Kind, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	telemetry.ScanError()
	st.log.Warn("stream scan failed; retrying next tick",
		zap.String("entity", string(k)),
		zap.Error(err))
}
