package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/store/memory"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*memory.Store, models.Activity, models.SquadMembership) {
	t.Helper()
	s := memory.New()
	a := models.Activity{ID: primitive.NewObjectID(), Name: "War", Status: models.ActivityOpen, UpdatedAt: t0}
	s.PutActivity(a)
	m := models.SquadMembership{ID: primitive.NewObjectID(), ActivityID: a.ID, MemberID: primitive.NewObjectID(), UpdatedAt: t0}
	s.PutMembership(m)
	return s, a, m
}

func TestCommit_CompareAndSet(t *testing.T) {
	s, a, m := seeded(t)
	ctx := context.Background()

	stale := assign.Commit{ActivityID: a.ID, ReadAt: t0.Add(-time.Second), At: t0.Add(time.Second), Delete: []models.SquadMembership{m}}
	_, err := s.Commit(ctx, stale)
	require.ErrorIs(t, err, assign.ErrStale)
	assert.Len(t, s.Memberships(a.ID), 1, "stale commit must not apply")

	ok := assign.Commit{ActivityID: a.ID, ReadAt: t0, At: t0.Add(time.Second), Delete: []models.SquadMembership{m}}
	at, err := s.Commit(ctx, ok)
	require.NoError(t, err)
	assert.True(t, at.Equal(t0.Add(time.Second)))
	assert.Empty(t, s.Memberships(a.ID))

	got, _ := s.Activity(a.ID)
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Second)))

	tombs, err := s.Deleted(ctx, delta.KindMemberships, t0)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, m.ID, tombs[0].EntityID)
	assert.Equal(t, a.ID, *tombs[0].ActivityID)
}

// A commit planned before another but applied after it must not land
// below the cursor a reader already took from the later one.
func TestCommit_StampsInCommitOrder(t *testing.T) {
	s, a1, _ := seeded(t)
	ctx := context.Background()
	a2 := models.Activity{ID: primitive.NewObjectID(), Name: "Raid", Status: models.ActivityOpen, UpdatedAt: t0}
	s.PutActivity(a2)

	later := t0.Add(5 * time.Millisecond)
	at2, err := s.Commit(ctx, assign.Commit{ActivityID: a2.ID, ReadAt: t0, At: later})
	require.NoError(t, err)
	require.True(t, at2.Equal(later))

	cursor := at2
	at1, err := s.Commit(ctx, assign.Commit{ActivityID: a1.ID, ReadAt: t0, At: t0.Add(time.Millisecond)})
	require.NoError(t, err)
	assert.True(t, at1.After(cursor), "stamp %v not after cursor %v", at1, cursor)

	stamps, err := s.ChangedIDs(ctx, delta.KindActivities, cursor)
	require.NoError(t, err)
	require.Len(t, stamps, 1)
	assert.Equal(t, a1.ID, stamps[0].ID)
	got, _ := s.Activity(a1.ID)
	assert.True(t, got.UpdatedAt.Equal(at1))
}

func TestCommit_DuplicateInsertIsStale(t *testing.T) {
	s, a, m := seeded(t)
	dup := m
	dup.ID = primitive.NewObjectID()

	_, err := s.Commit(context.Background(), assign.Commit{ActivityID: a.ID, ReadAt: t0, At: t0.Add(time.Second), Insert: []models.SquadMembership{dup}})
	require.ErrorIs(t, err, assign.ErrStale)

	got, _ := s.Activity(a.ID)
	assert.True(t, got.UpdatedAt.Equal(t0), "nothing applies when any check fails")
}

func TestCommit_UnknownActivity(t *testing.T) {
	s := memory.New()
	_, err := s.Commit(context.Background(), assign.Commit{ActivityID: primitive.NewObjectID()})
	assert.ErrorIs(t, err, assign.ErrActivityNotFound)

	_, err = s.LoadRoster(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, assign.ErrActivityNotFound)
}

func TestFailNext_AffectsOneCall(t *testing.T) {
	s, a, _ := seeded(t)
	boom := errors.New("boom")
	s.FailNext(boom)

	_, err := s.LoadRoster(context.Background(), a.ID)
	require.ErrorIs(t, err, boom)
	_, err = s.LoadRoster(context.Background(), a.ID)
	require.NoError(t, err)
}

func TestChanged_StrictlyAfter(t *testing.T) {
	s := memory.New()
	for i := 0; i < 3; i++ {
		s.PutSquad(models.Squad{ID: primitive.NewObjectID(), UpdatedAt: t0.Add(time.Duration(i) * time.Second)})
	}

	rows, err := s.Changed(context.Background(), delta.KindSquads, t0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].UpdatedAt.Before(rows[1].UpdatedAt))

	ids, err := s.ChangedIDs(context.Background(), delta.KindSquads, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestQueryAudit_Pages(t *testing.T) {
	s, a, _ := seeded(t)
	ctx := context.Background()
	readAt := t0
	for i := 1; i <= 5; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		ev := audit.Event{ID: primitive.NewObjectID(), Timestamp: at, Action: audit.ActionEnlist, ActivityID: a.ID}
		_, err := s.Commit(ctx, assign.Commit{ActivityID: a.ID, ReadAt: readAt, At: at, Audit: ev})
		require.NoError(t, err)
		readAt = at
	}

	first, err := s.QueryAudit(ctx, audit.QueryFilter{ActivityID: &a.ID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Events, 3)
	require.NotEmpty(t, first.NextCursor)
	assert.True(t, first.Events[0].Timestamp.Equal(t0.Add(5*time.Second)))

	second, err := s.QueryAudit(ctx, audit.QueryFilter{ActivityID: &a.ID, Limit: 3, After: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	assert.Empty(t, second.NextCursor)
	assert.True(t, second.Events[1].Timestamp.Equal(t0.Add(time.Second)))

	none, err := s.QueryAudit(ctx, audit.QueryFilter{Action: audit.ActionKickFromSquad})
	require.NoError(t, err)
	assert.Empty(t, none.Events)

	_, err = s.QueryAudit(ctx, audit.QueryFilter{After: "garbage"})
	assert.Error(t, err)
}

func TestPruneTombstones(t *testing.T) {
	s, a, m := seeded(t)
	ctx := context.Background()
	_, err := s.Commit(ctx, assign.Commit{ActivityID: a.ID, ReadAt: t0, At: t0.Add(time.Second), Delete: []models.SquadMembership{m}})
	require.NoError(t, err)

	n, err := s.PruneTombstones(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n, "cutoff is exclusive")

	n, err = s.PruneTombstones(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tombs, err := s.Deleted(ctx, delta.KindMemberships, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, tombs)
}
