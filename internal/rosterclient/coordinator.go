package rosterclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultUndoWindow is how long a confirmed drag stays undoable.
const DefaultUndoWindow = 5 * time.Second

var (
	// ErrConflict means the server's roster moved on since the last read.
	// The caller should offer Refresh or Override.
	ErrConflict = errors.New("roster changed on the server")
	// ErrUndoExpired is returned for an action past its undo window.
	ErrUndoExpired = errors.New("undo window has expired")
	// ErrUnknownAction is returned for an id with no undo entry.
	ErrUnknownAction = errors.New("unknown action")
	// ErrNoPending is returned by Override when no gesture lost a conflict.
	ErrNoPending = errors.New("no pending gesture")
)

// API is the subset of the roster endpoints the coordinator drives. *Client
// implements it.
type API interface {
	Roster(ctx context.Context, activityID primitive.ObjectID) (assign.RosterView, error)
	PoolToSquad(ctx context.Context, activityID primitive.ObjectID, ifMatch string, moves []PoolMove) (Ack, error)
	SquadToSquad(ctx context.Context, activityID primitive.ObjectID, ifMatch string, moves []SquadMove) (Ack, error)
	SquadToPool(ctx context.Context, activityID primitive.ObjectID, ifMatch string, memberIDs []primitive.ObjectID) (Ack, error)
}

// Gesture is one drag: members dropped on a squad, or on the pool when
// Target is nil.
type Gesture struct {
	MemberIDs []primitive.ObjectID
	Target    *primitive.ObjectID
}

// Action is a confirmed gesture.
type Action struct {
	ID        string
	Plan      Plan
	ExpiresAt time.Time // zero when nothing was sent
}

// undoEntry holds the members' placements before the action.
type undoEntry struct {
	prior     Layout
	expiresAt time.Time
}

// Coordinator keeps a local roster layout that runs ahead of the server.
// Gestures are serialized; reads of the layout never wait on the network.
type Coordinator struct {
	api        API
	activityID primitive.ObjectID
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
	undoWindow time.Duration

	op sync.Mutex // one gesture, undo, refresh, or override at a time

	mu        sync.Mutex
	local     Layout
	confirmed Layout
	version   string
	undo      map[string]undoEntry
	pending   *Gesture
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for undo expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithUndoWindow overrides DefaultUndoWindow.
func WithUndoWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.undoWindow = d
		}
	}
}

// NewCoordinator creates a coordinator for one activity. Call Refresh before
// the first Drag.
func NewCoordinator(api API, activityID primitive.ObjectID, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		api:        api,
		activityID: activityID,
		log:        logger,
		now:        time.Now,
		newID:      uuid.NewString,
		undoWindow: DefaultUndoWindow,
		local:      Layout{},
		confirmed:  Layout{},
		undo:       make(map[string]undoEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Layout returns a copy of the local (optimistic) layout.
func (c *Coordinator) Layout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Clone()
}

// Confirmed returns a copy of the last layout the server acknowledged.
func (c *Coordinator) Confirmed() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed.Clone()
}

// Version returns the activity's version token as last seen.
func (c *Coordinator) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Pending returns the gesture that lost a conflict, if any.
func (c *Coordinator) Pending() (Gesture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Gesture{}, false
	}
	return *c.pending, true
}

// Refresh replaces both layouts with the server's roster.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()
	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) error {
	view, err := c.api.Roster(ctx, c.activityID)
	if err != nil {
		return err
	}
	placed := Layout(view.Placement())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = placed
	c.local = placed.Clone()
	c.version = view.Version
	return nil
}

// Drag applies g locally, then sends the calls that move the confirmed
// layout to the target. On failure the local layout is restored before Drag
// returns. A lost precondition wraps ErrConflict and g becomes pending.
func (c *Coordinator) Drag(ctx context.Context, g Gesture) (Action, error) {
	c.op.Lock()
	defer c.op.Unlock()
	return c.drag(ctx, g)
}

func (c *Coordinator) drag(ctx context.Context, g Gesture) (Action, error) {
	c.mu.Lock()
	c.pruneLocked()
	prior := make(Layout, len(g.MemberIDs))
	for _, m := range g.MemberIDs {
		sq, ok := c.local[m]
		if !ok {
			c.mu.Unlock()
			return Action{}, apperr.Validation("member %s is not on the roster", m.Hex())
		}
		prior[m] = copyID(sq)
	}
	target := c.confirmed.Clone()
	for _, m := range g.MemberIDs {
		target[m] = copyID(g.Target)
		c.local[m] = copyID(g.Target)
	}
	confirmed := c.confirmed.Clone()
	version := c.version
	c.mu.Unlock()

	act := Action{ID: c.newID()}
	plan, err := Diff(confirmed, target, g.MemberIDs)
	if err != nil {
		c.restore(prior)
		return act, err
	}
	act.Plan = plan
	if plan.Empty() {
		return act, nil
	}

	next, sent, err := c.execute(ctx, plan, version)
	if err != nil {
		c.restore(prior)
		if sent > 0 {
			// Part of the plan landed; the snapshot no longer describes the server.
			if rerr := c.refresh(ctx); rerr != nil {
				c.log.Warn("resync after partial drag failed", zap.Error(rerr))
			}
		}
		if apperr.IsConflict(err) {
			c.mu.Lock()
			c.pending = &Gesture{MemberIDs: append([]primitive.ObjectID(nil), g.MemberIDs...), Target: copyID(g.Target)}
			c.mu.Unlock()
			return act, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return act, err
	}

	act.ExpiresAt = c.now().Add(c.undoWindow)
	c.mu.Lock()
	for m, sq := range target {
		c.confirmed[m] = sq
	}
	c.version = next
	c.pending = nil
	c.undo[act.ID] = undoEntry{prior: prior, expiresAt: act.ExpiresAt}
	c.mu.Unlock()

	c.log.Debug("drag confirmed",
		zap.String("action", act.ID),
		zap.Int("calls", plan.Calls()),
		zap.String("version", next))
	return act, nil
}

// execute issues the plan's calls in order, chaining each response's version
// token into the next request's precondition. It reports how many calls
// succeeded.
func (c *Coordinator) execute(ctx context.Context, p Plan, version string) (string, int, error) {
	sent := 0
	step := func(call func(ifMatch string) (Ack, error)) error {
		ack, err := call(version)
		if err != nil {
			return err
		}
		sent++
		if ack.Version != "" {
			version = ack.Version
		}
		return nil
	}

	if len(p.ToPool) > 0 {
		if err := step(func(v string) (Ack, error) { return c.api.SquadToPool(ctx, c.activityID, v, p.ToPool) }); err != nil {
			return "", sent, err
		}
	}
	if len(p.SquadToSquad) > 0 {
		if err := step(func(v string) (Ack, error) { return c.api.SquadToSquad(ctx, c.activityID, v, p.SquadToSquad) }); err != nil {
			return "", sent, err
		}
	}
	if len(p.PoolToSquad) > 0 {
		if err := step(func(v string) (Ack, error) { return c.api.PoolToSquad(ctx, c.activityID, v, p.PoolToSquad) }); err != nil {
			return "", sent, err
		}
	}
	return version, sent, nil
}

// restore puts members back where prior says, in the local layout only.
func (c *Coordinator) restore(prior Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for m, sq := range prior {
		c.local[m] = copyID(sq)
	}
}

// CanUndo reports whether action id is still inside its undo window.
func (c *Coordinator) CanUndo(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.undo[id]
	return ok && c.now().Before(e.expiresAt)
}

// Undo reverts action id. The local layout snaps back immediately; the
// inverse moves are then sent so the server agrees. If they fail the
// coordinator resyncs from the server before returning the error.
func (c *Coordinator) Undo(ctx context.Context, id string) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	e, ok := c.undo[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownAction
	}
	delete(c.undo, id)
	if !c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return ErrUndoExpired
	}
	members := make([]primitive.ObjectID, 0, len(e.prior))
	target := c.confirmed.Clone()
	for m, sq := range e.prior {
		members = append(members, m)
		target[m] = copyID(sq)
		c.local[m] = copyID(sq)
	}
	confirmed := c.confirmed.Clone()
	version := c.version
	c.mu.Unlock()

	plan, err := Diff(confirmed, target, members)
	if err == nil && !plan.Empty() {
		var next string
		next, _, err = c.execute(ctx, plan, version)
		if err == nil {
			c.mu.Lock()
			for m, sq := range target {
				c.confirmed[m] = sq
			}
			c.version = next
			c.mu.Unlock()
			return nil
		}
	}
	if err == nil {
		return nil
	}

	c.log.Info("undo rejected by server; resyncing", zap.String("action", id), zap.Error(err))
	if rerr := c.refresh(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	if apperr.IsConflict(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// Override re-reads the server roster and token, then re-applies the pending
// gesture against them.
func (c *Coordinator) Override(ctx context.Context) (Action, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	g := c.pending
	c.mu.Unlock()
	if g == nil {
		return Action{}, ErrNoPending
	}
	if err := c.refresh(ctx); err != nil {
		return Action{}, err
	}
	return c.drag(ctx, *g)
}

// pruneLocked drops expired undo entries. Caller holds mu.
func (c *Coordinator) pruneLocked() {
	now := c.now()
	for id, e := range c.undo {
		if !now.Before(e.expiresAt) {
			delete(c.undo, id)
		}
	}
}
