// Package memory provides an in-process implementation of the roster, sync
// and audit stores. It backs tests and the store_backend=memory dev mode.
// Commits are serialized behind one mutex, standing in for the database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/versiontoken"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Compile-time contract assertions.
var (
	_ assign.Store = (*Store)(nil)
	_ delta.Source = (*Store)(nil)
)

// Store holds every collection in maps keyed by _id.
type Store struct {
	mu sync.RWMutex

	members       map[primitive.ObjectID]models.Member
	activities    map[primitive.ObjectID]models.Activity
	announcements map[primitive.ObjectID]models.Announcement
	squads        map[primitive.ObjectID]models.Squad
	memberships   map[primitive.ObjectID]models.SquadMembership
	tombstones    []models.Tombstone
	events        []audit.Event

	// lastAt is the latest change timestamp written to any collection.
	// Commits stamp strictly after it so sync cursors never skip a write.
	lastAt time.Time

	// failNext makes the next store call return the error; tests only.
	failNext error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		members:       make(map[primitive.ObjectID]models.Member),
		activities:    make(map[primitive.ObjectID]models.Activity),
		announcements: make(map[primitive.ObjectID]models.Announcement),
		squads:        make(map[primitive.ObjectID]models.Squad),
		memberships:   make(map[primitive.ObjectID]models.SquadMembership),
	}
}

func cloneMembership(m models.SquadMembership) models.SquadMembership {
	if m.SquadID != nil {
		id := *m.SquadID
		m.SquadID = &id
	}
	return m
}

func cloneMember(m models.Member) models.Member {
	m.Classes = append([]string(nil), m.Classes...)
	return m
}

/*─────────────────────────────────────────────────────────────────────────────*
| Seeding (out-of-scope CRUD stands in here)                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (s *Store) PutMember(m models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen(m.UpdatedAt)
	s.members[m.ID] = cloneMember(m)
}

func (s *Store) PutActivity(a models.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen(a.UpdatedAt)
	s.activities[a.ID] = a
}

func (s *Store) PutAnnouncement(a models.Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen(a.UpdatedAt)
	s.announcements[a.ID] = a
}

func (s *Store) PutSquad(sq models.Squad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen(sq.UpdatedAt)
	s.squads[sq.ID] = sq
}

func (s *Store) PutMembership(m models.SquadMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen(m.UpdatedAt)
	s.memberships[m.ID] = cloneMembership(m)
}

func (s *Store) seen(t time.Time) {
	if t.After(s.lastAt) {
		s.lastAt = t
	}
}

// FailNext makes the next LoadRoster, Members, Commit or change read fail with err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Activity returns the stored activity.
func (s *Store) Activity(id primitive.ObjectID) (models.Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	return a, ok
}

// Memberships returns every membership of an activity ordered by member id.
func (s *Store) Memberships(activityID primitive.ObjectID) []models.SquadMembership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.membershipsLocked(activityID)
}

func (s *Store) membershipsLocked(activityID primitive.ObjectID) []models.SquadMembership {
	var out []models.SquadMembership
	for _, m := range s.memberships {
		if m.ActivityID == activityID {
			out = append(out, cloneMembership(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID.Hex() < out[j].MemberID.Hex() })
	return out
}

// AuditEvents returns every audit event in commit order.
func (s *Store) AuditEvents() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}

/*─────────────────────────────────────────────────────────────────────────────*
| assign.Store                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (s *Store) LoadRoster(ctx context.Context, activityID primitive.ObjectID) (assign.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return assign.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return assign.Snapshot{}, err
	}

	a, ok := s.activities[activityID]
	if !ok {
		return assign.Snapshot{}, assign.ErrActivityNotFound
	}
	snap := assign.Snapshot{Activity: a}
	for _, sq := range s.squads {
		if sq.ActivityID == activityID {
			snap.Squads = append(snap.Squads, sq)
		}
	}
	sort.Slice(snap.Squads, func(i, j int) bool {
		if snap.Squads[i].DisplayOrder != snap.Squads[j].DisplayOrder {
			return snap.Squads[i].DisplayOrder < snap.Squads[j].DisplayOrder
		}
		return snap.Squads[i].ID.Hex() < snap.Squads[j].ID.Hex()
	})
	snap.Memberships = s.membershipsLocked(activityID)
	return snap, nil
}

func (s *Store) Members(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]models.Member, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			out[id] = cloneMember(m)
		}
	}
	return out, nil
}

// Commit applies c atomically: every precondition is checked before the
// first change is made. The stamp is taken under the store lock: c.At, or
// one resolution step after the latest committed change if c.At is not
// later, so commits are visible to sync readers in timestamp order.
func (s *Store) Commit(ctx context.Context, c assign.Commit) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return time.Time{}, err
	}

	a, ok := s.activities[c.ActivityID]
	if !ok {
		return time.Time{}, assign.ErrActivityNotFound
	}
	if !a.UpdatedAt.Equal(c.ReadAt) {
		return time.Time{}, assign.ErrStale
	}
	for _, m := range c.Insert {
		for _, ex := range s.memberships {
			if ex.ActivityID == m.ActivityID && ex.MemberID == m.MemberID {
				return time.Time{}, assign.ErrStale
			}
		}
	}
	for _, m := range c.Update {
		if _, ok := s.memberships[m.ID]; !ok {
			return time.Time{}, assign.ErrStale
		}
	}
	for _, m := range c.Delete {
		if _, ok := s.memberships[m.ID]; !ok {
			return time.Time{}, assign.ErrStale
		}
	}

	at := versiontoken.Next(c.At, s.lastAt)
	s.lastAt = at
	c.Audit.Timestamp = at

	a.UpdatedAt = at
	s.activities[a.ID] = a
	for _, m := range c.Insert {
		m.CreatedAt, m.UpdatedAt = at, at
		s.memberships[m.ID] = cloneMembership(m)
	}
	for _, m := range c.Update {
		m.UpdatedAt = at
		s.memberships[m.ID] = cloneMembership(m)
	}
	for _, m := range c.Delete {
		delete(s.memberships, m.ID)
		activityID := m.ActivityID
		s.tombstones = append(s.tombstones, models.Tombstone{
			ID:         primitive.NewObjectID(),
			Kind:       models.TombstoneMembership,
			EntityID:   m.ID,
			ActivityID: &activityID,
			DeletedAt:  at,
		})
	}
	for _, id := range c.Squads {
		if sq, ok := s.squads[id]; ok {
			sq.UpdatedAt = at
			s.squads[id] = sq
		}
	}
	s.events = append(s.events, c.Audit)
	return at, nil
}
