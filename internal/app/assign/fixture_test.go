package assign_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/store/memory"
	"github.com/dalemusser/rosterhub/internal/app/system/auditlog"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var base = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

// clock advances one second per reading.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	t        *testing.T
	store    *memory.Store
	svc      *assign.Service
	activity models.Activity
	squads   []models.Squad // S1, S2, S3
	members  []models.Member
	mod      assign.Actor
}

// newFixture seeds one activity with three squads and n members, all
// enlisted in the reserve pool.
func newFixture(t *testing.T, n int, opts ...assign.Option) *fixture {
	t.Helper()
	return newFixtureWith(t, n, nil, opts...)
}

func newFixtureWith(t *testing.T, n int, wrap func(*memory.Store) assign.Store, opts ...assign.Option) *fixture {
	t.Helper()
	st := memory.New()
	f := &fixture{
		t:     t,
		store: st,
		mod:   assign.Actor{ID: primitive.NewObjectID(), Name: "Mod", Moderator: true},
	}

	f.activity = models.Activity{
		ID: primitive.NewObjectID(), Name: "Siege", Status: models.ActivityOpen,
		ScheduledAt: base.Add(48 * time.Hour), CreatedAt: base, UpdatedAt: base,
	}
	st.PutActivity(f.activity)

	for i, name := range []string{"Alpha", "Bravo", "Charlie"} {
		sq := models.Squad{ID: primitive.NewObjectID(), ActivityID: f.activity.ID, Name: name, DisplayOrder: i, CreatedAt: base, UpdatedAt: base}
		st.PutSquad(sq)
		f.squads = append(f.squads, sq)
	}

	for i := 0; i < n; i++ {
		m := models.Member{ID: primitive.NewObjectID(), DisplayName: "Member", Power: int64(1000 + i), Classes: []string{"tank"}, Status: models.MemberActive, CreatedAt: base, UpdatedAt: base}
		st.PutMember(m)
		st.PutMembership(models.SquadMembership{
			ID: primitive.NewObjectID(), ActivityID: f.activity.ID, MemberID: m.ID,
			Position: i, CreatedAt: base, UpdatedAt: base,
		})
		f.members = append(f.members, m)
	}

	var backing assign.Store = st
	if wrap != nil {
		backing = wrap(st)
	}
	c := &clock{t: base}
	opts = append([]assign.Option{assign.WithClock(c.Now)}, opts...)
	f.svc = assign.New(backing, auditlog.New(zap.NewNop(), auditlog.Config{}), zap.NewNop(), opts...)
	return f
}

func (f *fixture) scope(ifMatch string) assign.Scope {
	return assign.Scope{Actor: f.mod, ActivityID: f.activity.ID, IfMatch: ifMatch}
}

func (f *fixture) ctx() context.Context { return context.Background() }

func (f *fixture) member(i int) primitive.ObjectID { return f.members[i].ID }

func (f *fixture) squad(i int) primitive.ObjectID { return f.squads[i].ID }

// placement returns the member's membership, failing if there is not exactly one.
func (f *fixture) placement(memberID primitive.ObjectID) (models.SquadMembership, bool) {
	f.t.Helper()
	var found []models.SquadMembership
	for _, m := range f.store.Memberships(f.activity.ID) {
		if m.MemberID == memberID {
			found = append(found, m)
		}
	}
	if len(found) > 1 {
		f.t.Fatalf("member %s has %d memberships", memberID.Hex(), len(found))
	}
	if len(found) == 0 {
		return models.SquadMembership{}, false
	}
	return found[0], true
}

func (f *fixture) token() string {
	f.t.Helper()
	v, err := f.svc.Roster(f.ctx(), f.activity.ID)
	if err != nil {
		f.t.Fatalf("Roster: %v", err)
	}
	return v.Version
}

// assertInvariant checks no member holds more than one membership.
func (f *fixture) assertInvariant() {
	f.t.Helper()
	seen := map[primitive.ObjectID]int{}
	for _, m := range f.store.Memberships(f.activity.ID) {
		seen[m.MemberID]++
		if seen[m.MemberID] > 1 {
			f.t.Fatalf("member %s holds more than one membership", m.MemberID.Hex())
		}
	}
}
