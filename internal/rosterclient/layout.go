package rosterclient

import (
	"bytes"
	"sort"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Layout maps each rostered member to a squad id, or nil for the pool.
// Members absent from the map are not on the roster.
type Layout map[primitive.ObjectID]*primitive.ObjectID

// Clone copies l, including the squad id pointers.
func (l Layout) Clone() Layout {
	out := make(Layout, len(l))
	for m, sq := range l {
		out[m] = copyID(sq)
	}
	return out
}

// Squad reports where m sits.
func (l Layout) Squad(m primitive.ObjectID) (squad *primitive.ObjectID, ok bool) {
	sq, ok := l[m]
	return copyID(sq), ok
}

// Plan is the set of server calls that turns one layout into another.
type Plan struct {
	ToPool       []primitive.ObjectID
	SquadToSquad []SquadMove
	PoolToSquad  []PoolMove
}

// Empty reports whether the plan needs no calls.
func (p Plan) Empty() bool {
	return len(p.ToPool) == 0 && len(p.SquadToSquad) == 0 && len(p.PoolToSquad) == 0
}

// Calls counts the requests the plan issues.
func (p Plan) Calls() int {
	n := 0
	for _, l := range []int{len(p.ToPool), len(p.SquadToSquad), len(p.PoolToSquad)} {
		if l > 0 {
			n++
		}
	}
	return n
}

// Diff compares confirmed against target for the given members and returns
// the minimal calls, each kind batched into one request. Members already in
// place are skipped. A member missing from either layout is a validation
// error.
func Diff(confirmed, target Layout, members []primitive.ObjectID) (Plan, error) {
	ids := uniqueSorted(members)
	var p Plan
	for _, m := range ids {
		from, ok := confirmed[m]
		if !ok {
			return Plan{}, apperr.Validation("member %s is not on the roster", m.Hex())
		}
		to, ok := target[m]
		if !ok {
			return Plan{}, apperr.Validation("member %s has no target placement", m.Hex())
		}
		switch {
		case sameSquad(from, to):
		case to == nil:
			p.ToPool = append(p.ToPool, m)
		case from == nil:
			p.PoolToSquad = append(p.PoolToSquad, PoolMove{MemberID: m, SquadID: *to})
		default:
			p.SquadToSquad = append(p.SquadToSquad, SquadMove{MemberID: m, FromSquadID: *from, ToSquadID: *to})
		}
	}
	return p, nil
}

func sameSquad(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func uniqueSorted(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
