package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/domain/models"
)

// Changed implements delta.Source.
func (s *Store) Changed(ctx context.Context, kind delta.Kind, since time.Time) ([]delta.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var rows []delta.Row
	add := func(r delta.Row) {
		if r.UpdatedAt.After(since) {
			rows = append(rows, r)
		}
	}
	switch kind {
	case delta.KindMembers:
		for _, m := range s.members {
			add(delta.Row{ID: m.ID, UpdatedAt: m.UpdatedAt, Doc: cloneMember(m)})
		}
	case delta.KindActivities:
		for _, a := range s.activities {
			add(delta.Row{ID: a.ID, UpdatedAt: a.UpdatedAt, Doc: a})
		}
	case delta.KindAnnouncements:
		for _, a := range s.announcements {
			add(delta.Row{ID: a.ID, UpdatedAt: a.UpdatedAt, Doc: a})
		}
	case delta.KindSquads:
		for _, sq := range s.squads {
			add(delta.Row{ID: sq.ID, UpdatedAt: sq.UpdatedAt, Doc: sq})
		}
	case delta.KindMemberships:
		for _, m := range s.memberships {
			add(delta.Row{ID: m.ID, UpdatedAt: m.UpdatedAt, Doc: cloneMembership(m)})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].UpdatedAt.Equal(rows[j].UpdatedAt) {
			return rows[i].UpdatedAt.Before(rows[j].UpdatedAt)
		}
		return rows[i].ID.Hex() < rows[j].ID.Hex()
	})
	return rows, nil
}

// ChangedIDs implements delta.Source.
func (s *Store) ChangedIDs(ctx context.Context, kind delta.Kind, since time.Time) ([]delta.Stamp, error) {
	rows, err := s.Changed(ctx, kind, since)
	if err != nil {
		return nil, err
	}
	out := make([]delta.Stamp, len(rows))
	for i, r := range rows {
		out[i] = delta.Stamp{ID: r.ID, UpdatedAt: r.UpdatedAt}
	}
	return out, nil
}

// Deleted implements delta.Source.
func (s *Store) Deleted(ctx context.Context, kind delta.Kind, since time.Time) ([]models.Tombstone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var out []models.Tombstone
	for _, t := range s.tombstones {
		if t.Kind == string(kind) && t.DeletedAt.After(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].DeletedAt.Before(out[j].DeletedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// PruneTombstones drops tombstones written before cutoff.
func (s *Store) PruneTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}

	kept := s.tombstones[:0]
	for _, t := range s.tombstones {
		if !t.DeletedAt.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	n := int64(len(s.tombstones) - len(kept))
	s.tombstones = kept
	return n, nil
}
