// Package delta propagates roster changes to viewers, either as a poll
// against a since cursor or as a push stream of change notifications.
//
// Change detection compares each tracked entity's updated_at against a
// reference point. Deletions come from the tombstones collection so a viewer
// can tell "removed" apart from "unchanged since my cursor".
package delta

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/telemetry"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Feed is the poll result for one kind.
type Feed struct {
	Updated []any              `json:"updated"`
	Deleted []models.Tombstone `json:"deleted"`
}

// PollResult is the poll response. Field order is fixed so identical inputs
// serialize identically.
type PollResult struct {
	Members         Feed      `json:"members"`
	Activities      Feed      `json:"activities"`
	Announcements   Feed      `json:"announcements"`
	Squads          Feed      `json:"squads"`
	Memberships     Feed      `json:"memberships"`
	LatestTimestamp time.Time `json:"latestTimestamp"`
}

// Feed returns the feed for kind.
func (r *PollResult) Feed(k Kind) *Feed {
	switch k {
	case KindMembers:
		return &r.Members
	case KindActivities:
		return &r.Activities
	case KindAnnouncements:
		return &r.Announcements
	case KindSquads:
		return &r.Squads
	case KindMemberships:
		return &r.Memberships
	}
	return nil
}

// Service is the Delta Sync Service.
type Service struct {
	src Source
	log *zap.Logger
	now func() time.Time
}

// NewService creates a Service reading from src.
func NewService(src Source, log *zap.Logger) *Service {
	return &Service{src: src, log: log, now: time.Now}
}

type kindResult struct {
	rows  []Row
	tombs []models.Tombstone
}

// Poll returns every tracked row changed strictly after since, and every
// tombstone written strictly after since. LatestTimestamp is the greatest
// timestamp observed, or since itself when nothing changed, so feeding it
// back as the next cursor never re-delivers a row.
func (s *Service) Poll(ctx context.Context, since time.Time) (PollResult, error) {
	if since.IsZero() {
		return PollResult{}, apperr.Validation("since is required")
	}
	start := time.Now()
	defer func() { telemetry.PollDuration(time.Since(start)) }()

	results := make([]kindResult, len(Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range Kinds {
		g.Go(func() error {
			rows, err := s.src.Changed(gctx, k, since)
			if err != nil {
				return fmt.Errorf("%s changed: %w", k, err)
			}
			tombs, err := s.src.Deleted(gctx, k, since)
			if err != nil {
				return fmt.Errorf("%s deleted: %w", k, err)
			}
			results[i] = kindResult{rows: rows, tombs: tombs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("delta poll failed", zap.Time("since", since), zap.Error(err))
		return PollResult{}, apperr.Internal(err, "failed to read changes")
	}

	out := PollResult{LatestTimestamp: since.UTC()}
	for i, k := range Kinds {
		f := out.Feed(k)
		f.Updated = make([]any, 0, len(results[i].rows))
		f.Deleted = make([]models.Tombstone, 0, len(results[i].tombs))
		for _, r := range results[i].rows {
			f.Updated = append(f.Updated, r.Doc)
			if r.UpdatedAt.After(out.LatestTimestamp) {
				out.LatestTimestamp = r.UpdatedAt.UTC()
			}
		}
		for _, t := range results[i].tombs {
			f.Deleted = append(f.Deleted, t)
			if t.DeletedAt.After(out.LatestTimestamp) {
				out.LatestTimestamp = t.DeletedAt.UTC()
			}
		}
	}
	return out, nil
}
