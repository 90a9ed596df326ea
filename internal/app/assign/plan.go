package assign

import (
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// poolKey stands for the reserve pool wherever a squad id keys a map.
var poolKey = primitive.NilObjectID

func bucketOf(squadID *primitive.ObjectID) primitive.ObjectID {
	if squadID == nil {
		return poolKey
	}
	return *squadID
}

// plan is a working copy of a roster snapshot. Operations mutate it and it
// records exactly which membership rows changed, so a batch becomes a
// single Commit.
type plan struct {
	activity models.Activity
	squads   map[primitive.ObjectID]models.Squad
	slots    map[primitive.ObjectID]*models.SquadMembership // by member id
	tail     map[primitive.ObjectID]int                     // next position per bucket

	order    []primitive.ObjectID // members in first-touch order
	inserted map[primitive.ObjectID]bool
	updated  map[primitive.ObjectID]bool
	deleted  map[primitive.ObjectID]models.SquadMembership
	touched  map[primitive.ObjectID]bool // squads, pool excluded
	changes  int
}

func newPlan(s Snapshot) *plan {
	p := &plan{
		activity: s.Activity,
		squads:   make(map[primitive.ObjectID]models.Squad, len(s.Squads)),
		slots:    make(map[primitive.ObjectID]*models.SquadMembership, len(s.Memberships)),
		tail:     make(map[primitive.ObjectID]int),
		inserted: make(map[primitive.ObjectID]bool),
		updated:  make(map[primitive.ObjectID]bool),
		deleted:  make(map[primitive.ObjectID]models.SquadMembership),
		touched:  make(map[primitive.ObjectID]bool),
	}
	for _, sq := range s.Squads {
		p.squads[sq.ID] = sq
	}
	for i := range s.Memberships {
		m := s.Memberships[i]
		if m.SquadID != nil {
			if _, ok := p.squads[*m.SquadID]; !ok {
				// Its squad is gone; the member is back in the reserve pool.
				m.SquadID = nil
				m.Role = ""
			}
		}
		p.slots[m.MemberID] = &m
		b := bucketOf(m.SquadID)
		if m.Position >= p.tail[b] {
			p.tail[b] = m.Position + 1
		}
	}
	return p
}

// squad returns the squad if it belongs to the planned activity.
func (p *plan) squad(id primitive.ObjectID) (models.Squad, error) {
	sq, ok := p.squads[id]
	if !ok {
		return models.Squad{}, apperr.Validation("squad %s does not belong to activity %s", id.Hex(), p.activity.ID.Hex())
	}
	return sq, nil
}

// onRoster returns the member's membership or a validation error.
func (p *plan) onRoster(memberID primitive.ObjectID) (*models.SquadMembership, error) {
	s, ok := p.slots[memberID]
	if !ok {
		return nil, apperr.Validation("member %s is not on the roster of activity %s", memberID.Hex(), p.activity.ID.Hex())
	}
	return s, nil
}

func (p *plan) touch(memberID primitive.ObjectID) {
	if p.inserted[memberID] || p.updated[memberID] {
		return
	}
	if _, ok := p.deleted[memberID]; ok {
		return
	}
	p.order = append(p.order, memberID)
}

func (p *plan) next(bucket *primitive.ObjectID) int {
	b := bucketOf(bucket)
	pos := p.tail[b]
	p.tail[b] = pos + 1
	return pos
}

func (p *plan) markSquad(squadID *primitive.ObjectID) {
	if squadID != nil {
		p.touched[*squadID] = true
	}
}

// enlist adds a reserve-pool membership for memberID.
func (p *plan) enlist(memberID primitive.ObjectID) {
	p.touch(memberID)
	p.slots[memberID] = &models.SquadMembership{
		ID:         primitive.NewObjectID(),
		ActivityID: p.activity.ID,
		MemberID:   memberID,
		Position:   p.next(nil),
	}
	p.inserted[memberID] = true
	p.changes++
}

// move re-parents s to target (nil = pool), appending it to the target order.
func (p *plan) move(s *models.SquadMembership, target *primitive.ObjectID, role string) {
	p.touch(s.MemberID)
	p.markSquad(s.SquadID)
	p.markSquad(target)
	if target == nil {
		s.SquadID = nil
	} else {
		id := *target
		s.SquadID = &id
	}
	s.Role = role
	s.Position = p.next(target)
	if !p.inserted[s.MemberID] {
		p.updated[s.MemberID] = true
	}
	p.changes++
}

// remove deletes s from the roster entirely.
func (p *plan) remove(s *models.SquadMembership) {
	p.touch(s.MemberID)
	p.markSquad(s.SquadID)
	delete(p.slots, s.MemberID)
	if p.inserted[s.MemberID] {
		delete(p.inserted, s.MemberID)
	} else {
		delete(p.updated, s.MemberID)
		p.deleted[s.MemberID] = *s
	}
	p.changes++
}

func (p *plan) setRole(s *models.SquadMembership, role string) {
	p.touch(s.MemberID)
	p.markSquad(s.SquadID)
	s.Role = role
	if !p.inserted[s.MemberID] {
		p.updated[s.MemberID] = true
	}
	p.changes++
}

// commit converts the recorded changes into a Commit stamped at.
func (p *plan) commit(at time.Time, ev audit.Event) Commit {
	c := Commit{
		ActivityID: p.activity.ID,
		ReadAt:     p.activity.UpdatedAt,
		At:         at,
		Audit:      ev,
	}
	for _, id := range p.order {
		switch {
		case p.inserted[id]:
			m := *p.slots[id]
			m.CreatedAt, m.UpdatedAt = at, at
			c.Insert = append(c.Insert, m)
		case p.updated[id]:
			m := *p.slots[id]
			m.UpdatedAt = at
			c.Update = append(c.Update, m)
		default:
			if m, ok := p.deleted[id]; ok {
				c.Delete = append(c.Delete, m)
			}
		}
	}
	for _, sq := range sortedSquads(p.squads) {
		if p.touched[sq.ID] {
			c.Squads = append(c.Squads, sq.ID)
		}
	}
	return c
}
