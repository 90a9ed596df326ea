// Package assign moves members between the reserve pool and the squads of
// an activity. Every request is validated in full against a fresh snapshot
// and then written as one grouped commit together with its audit record.
//
// There are no application-level locks. Concurrency is optimistic: callers
// may present the activity's version token, and the store commit itself
// compares the activity's updated_at with the value the plan was built from.
package assign

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/auditlog"
	"github.com/dalemusser/rosterhub/internal/app/system/telemetry"
	"github.com/dalemusser/rosterhub/internal/app/system/versiontoken"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds re-planning of unconditional writes that lose
// the commit race to another writer.
const DefaultMaxAttempts = 3

// MaxBatch is the largest number of items accepted in one request.
const MaxBatch = 200

var roleTag = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]{0,31}$`)

// Actor is the caller of a roster operation. Moderator is computed by the
// authorization layer before the call.
type Actor struct {
	ID        primitive.ObjectID
	Name      string
	Moderator bool
}

// Scope identifies the activity an operation applies to and the version
// token the caller last observed. An empty IfMatch is an unconditional write.
type Scope struct {
	Actor      Actor
	ActivityID primitive.ObjectID
	IfMatch    string
}

// Result is returned by every write.
type Result struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	Version string `json:"-"`
}

// Service is the Assignment Service.
type Service struct {
	store       Store
	audit       *auditlog.Logger
	log         *zap.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp commits.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a Service.
func New(store Store, audit *auditlog.Logger, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		audit:       audit,
		log:         log,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// outcome is what an operation reports after mutating the plan.
type outcome struct {
	message string
	target  *primitive.ObjectID
	details map[string]string
}

type planFunc func(ctx context.Context, p *plan) (outcome, error)

func (s *Service) load(ctx context.Context, activityID primitive.ObjectID) (Snapshot, error) {
	snap, err := s.store.LoadRoster(ctx, activityID)
	if errors.Is(err, ErrActivityNotFound) {
		return Snapshot{}, apperr.NotFound("activity %s not found", activityID.Hex())
	}
	if err != nil {
		return Snapshot{}, apperr.Internal(fmt.Errorf("load roster: %w", err), "failed to load roster")
	}
	return snap, nil
}

// run executes one write: authorize, load, guard, plan, commit.
func (s *Service) run(ctx context.Context, sc Scope, action string, fn planFunc) (Result, error) {
	if !sc.Actor.Moderator {
		telemetry.RosterWrite(action, telemetry.OutcomeInvalid)
		return Result{}, apperr.Forbidden("moderator capability required")
	}

	for attempt := 1; ; attempt++ {
		res, err := s.attempt(ctx, sc, action, fn)
		if !errors.Is(err, ErrStale) {
			s.count(action, res, err)
			return res, err
		}

		if !versiontoken.Unconditional(sc.IfMatch) {
			// The caller's token was current when checked but another write
			// committed first; the token they hold is now stale.
			err = apperr.Conflict(apperr.ReasonPrecondition,
				"activity was modified by someone else; refresh and retry")
			s.count(action, res, err)
			return Result{}, err
		}
		if attempt >= s.maxAttempts {
			err = apperr.Conflict(apperr.ReasonConcurrent,
				"activity is being modified concurrently; refresh and retry")
			s.count(action, res, err)
			return Result{}, err
		}
		telemetry.RosterRetry(action)
		s.log.Debug("roster commit lost race; re-planning",
			zap.String("action", action),
			zap.String("activity_id", sc.ActivityID.Hex()),
			zap.Int("attempt", attempt))
	}
}

func (s *Service) attempt(ctx context.Context, sc Scope, action string, fn planFunc) (Result, error) {
	snap, err := s.load(ctx, sc.ActivityID)
	if err != nil {
		return Result{}, err
	}
	current := versiontoken.TokenOf(snap.Activity.UpdatedAt)
	if err := versiontoken.Check(sc.IfMatch, current); err != nil {
		return Result{}, err
	}
	if snap.Activity.Status == models.ActivityArchived {
		return Result{}, apperr.Validation("activity %s is archived", sc.ActivityID.Hex())
	}

	p := newPlan(snap)
	out, err := fn(ctx, p)
	if err != nil {
		return Result{}, err
	}
	if p.changes == 0 {
		return Result{Message: "nothing to change", Count: 0, Version: current}, nil
	}

	at := versiontoken.Next(s.now(), snap.Activity.UpdatedAt)
	ev := s.audit.Event(auditlog.Entry{
		ActorID:    sc.Actor.ID,
		ActorName:  sc.Actor.Name,
		Action:     action,
		ActivityID: sc.ActivityID,
		TargetID:   out.target,
		Count:      p.changes,
		Summary:    summarize(sc.Actor.Name, out.message),
		Details:    out.details,
	}, at)

	start := time.Now()
	committed, err := s.store.Commit(ctx, p.commit(at, ev))
	telemetry.CommitDuration(action, time.Since(start))
	if errors.Is(err, ErrStale) {
		return Result{}, ErrStale
	}
	if err != nil {
		return Result{}, apperr.Internal(fmt.Errorf("commit %s: %w", action, err), "failed to save roster")
	}

	ev.Timestamp = committed
	s.audit.Committed(ev)
	return Result{Message: out.message, Count: p.changes, Version: versiontoken.TokenOf(committed)}, nil
}

func (s *Service) count(action string, res Result, err error) {
	switch {
	case err == nil && res.Count == 0:
		telemetry.RosterWrite(action, telemetry.OutcomeNoop)
	case err == nil:
		telemetry.RosterWrite(action, telemetry.OutcomeOK)
	case apperr.IsConflict(err):
		telemetry.RosterWrite(action, telemetry.OutcomeConflict)
	case apperr.KindOf(err) == apperr.KindInternal:
		telemetry.RosterWrite(action, telemetry.OutcomeError)
		s.log.Error("roster write failed", zap.String("action", action), zap.Error(err))
	default:
		telemetry.RosterWrite(action, telemetry.OutcomeInvalid)
	}
}

func summarize(actor, message string) string {
	if actor == "" {
		return message
	}
	return actor + ": " + message
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func sortedSquads(m map[primitive.ObjectID]models.Squad) []models.Squad {
	out := make([]models.Squad, 0, len(m))
	for _, sq := range m {
		out = append(out, sq)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}
