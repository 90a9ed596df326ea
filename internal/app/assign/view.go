package assign

import (
	"context"
	"fmt"
	"sort"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/versiontoken"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Slot is one member's place on a roster view.
type Slot struct {
	MemberID    primitive.ObjectID `json:"memberId"`
	DisplayName string             `json:"displayName"`
	Power       int64              `json:"power"`
	Classes     []string           `json:"classes"`
	Role        string             `json:"role,omitempty"`
	Position    int                `json:"position"`
}

// SquadView is a squad with its members in display order.
type SquadView struct {
	ID           primitive.ObjectID `json:"id"`
	Name         string             `json:"name"`
	DisplayOrder int                `json:"displayOrder"`
	Members      []Slot             `json:"members"`
}

// RosterView is the read model of one activity's roster.
type RosterView struct {
	Activity models.Activity `json:"activity"`
	Pool     []Slot          `json:"pool"`
	Squads   []SquadView     `json:"squads"`
	Version  string          `json:"version"`
}

// Placement returns where each member sits: squad id, or nil for the pool.
func (v RosterView) Placement() map[primitive.ObjectID]*primitive.ObjectID {
	out := make(map[primitive.ObjectID]*primitive.ObjectID)
	for _, s := range v.Pool {
		out[s.MemberID] = nil
	}
	for _, sq := range v.Squads {
		id := sq.ID
		for _, s := range sq.Members {
			out[s.MemberID] = &id
		}
	}
	return out
}

// Roster reads the authoritative roster of an activity with its version token.
func (s *Service) Roster(ctx context.Context, activityID primitive.ObjectID) (RosterView, error) {
	snap, err := s.load(ctx, activityID)
	if err != nil {
		return RosterView{}, err
	}

	ids := make([]primitive.ObjectID, 0, len(snap.Memberships))
	for _, m := range snap.Memberships {
		ids = append(ids, m.MemberID)
	}
	members, err := s.store.Members(ctx, ids)
	if err != nil {
		return RosterView{}, apperr.Internal(fmt.Errorf("load members: %w", err), "failed to load members")
	}
	return buildView(snap, members), nil
}

func buildView(snap Snapshot, members map[primitive.ObjectID]models.Member) RosterView {
	v := RosterView{
		Activity: snap.Activity,
		Pool:     []Slot{},
		Squads:   []SquadView{},
		Version:  versiontoken.TokenOf(snap.Activity.UpdatedAt),
	}

	squads := make(map[primitive.ObjectID]models.Squad, len(snap.Squads))
	for _, sq := range snap.Squads {
		squads[sq.ID] = sq
	}

	bySquad := map[primitive.ObjectID][]Slot{}
	for _, m := range snap.Memberships {
		info := members[m.MemberID]
		slot := Slot{
			MemberID:    m.MemberID,
			DisplayName: info.DisplayName,
			Power:       info.Power,
			Classes:     info.Classes,
			Role:        m.Role,
			Position:    m.Position,
		}
		if m.InPool() {
			v.Pool = append(v.Pool, slot)
			continue
		}
		if _, ok := squads[*m.SquadID]; !ok {
			// Membership in a squad that no longer exists counts as pool.
			slot.Role = ""
			v.Pool = append(v.Pool, slot)
			continue
		}
		bySquad[*m.SquadID] = append(bySquad[*m.SquadID], slot)
	}
	sortSlots(v.Pool)

	for _, sq := range sortedSquads(squads) {
		slots := bySquad[sq.ID]
		if slots == nil {
			slots = []Slot{}
		}
		sortSlots(slots)
		v.Squads = append(v.Squads, SquadView{
			ID:           sq.ID,
			Name:         sq.Name,
			DisplayOrder: sq.DisplayOrder,
			Members:      slots,
		})
	}
	return v
}

func sortSlots(s []Slot) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Position != s[j].Position {
			return s[i].Position < s[j].Position
		}
		return s[i].MemberID.Hex() < s[j].MemberID.Hex()
	})
}
