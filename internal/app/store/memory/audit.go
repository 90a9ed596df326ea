package memory

import (
	"context"
	"sort"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
)

// QueryAudit mirrors audit.Store.Query over the in-memory trail.
func (s *Store) QueryAudit(ctx context.Context, f audit.QueryFilter) (audit.Page, error) {
	if err := ctx.Err(); err != nil {
		return audit.Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var after *audit.Event
	if f.After != "" {
		ts, id, err := audit.DecodeCursor(f.After)
		if err != nil {
			return audit.Page{}, err
		}
		after = &audit.Event{Timestamp: ts, ID: id}
	}

	var match []audit.Event
	for _, e := range s.events {
		switch {
		case f.ActivityID != nil && e.ActivityID != *f.ActivityID:
			continue
		case f.ActorID != nil && e.ActorID != *f.ActorID:
			continue
		case f.Action != "" && e.Action != f.Action:
			continue
		case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
			continue
		case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
			continue
		}
		if after != nil && !newer(*after, e) {
			continue
		}
		match = append(match, e)
	}
	sort.Slice(match, func(i, j int) bool { return newer(match[i], match[j]) })

	limit := audit.ClampLimit(f.Limit)
	if int64(len(match)) > limit+1 {
		match = match[:limit+1]
	}
	return audit.PageOf(match, limit), nil
}

// newer reports whether a sorts before b in (timestamp desc, _id desc) order.
func newer(a, b audit.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID.Hex() > b.ID.Hex()
}
