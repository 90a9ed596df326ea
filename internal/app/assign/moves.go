package assign

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PoolMove places one pool member into a squad, optionally with a role tag.
type PoolMove struct {
	MemberID primitive.ObjectID
	SquadID  primitive.ObjectID
	Role     string
}

// SquadMove re-parents one member between squads. SourceSquadID is where
// the caller last saw the member.
type SquadMove struct {
	MemberID      primitive.ObjectID
	SourceSquadID primitive.ObjectID
	TargetSquadID primitive.ObjectID
}

// SquadKick removes one member from the roster, stating the squad the
// caller last saw them in.
type SquadKick struct {
	MemberID primitive.ObjectID
	SquadID  primitive.ObjectID
}

/*─────────────────────────────────────────────────────────────────────────────*
| Request validation (before any read)                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func checkMemberIDs(ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return apperr.Validation("no members given")
	}
	if len(ids) > MaxBatch {
		return apperr.Validation("too many members in one request (max %d)", MaxBatch)
	}
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			return apperr.Validation("member id is required")
		}
		if _, dup := seen[id]; dup {
			return apperr.Validation("member %s appears more than once", id.Hex())
		}
		seen[id] = struct{}{}
	}
	return nil
}

func checkSquadID(id primitive.ObjectID) error {
	if id.IsZero() {
		return apperr.Validation("squad id is required")
	}
	return nil
}

// NormalizeRole trims a role tag and checks its shape. Empty clears the role.
func NormalizeRole(role string) (string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return "", nil
	}
	if !roleTag.MatchString(role) {
		return "", apperr.Validation("invalid role tag %q", role)
	}
	return role, nil
}

// requireMembers checks every id names an organization member.
func (s *Service) requireMembers(ctx context.Context, ids []primitive.ObjectID, mustBeActive bool) error {
	found, err := s.store.Members(ctx, ids)
	if err != nil {
		return apperr.Internal(fmt.Errorf("load members: %w", err), "failed to load members")
	}
	for _, id := range ids {
		m, ok := found[id]
		if !ok {
			return apperr.Validation("member %s not found", id.Hex())
		}
		if mustBeActive && m.Status == models.MemberDisabled {
			return apperr.Validation("member %s is disabled", id.Hex())
		}
	}
	return nil
}

func joinIDs(ids []primitive.ObjectID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Hex()
	}
	return strings.Join(parts, ",")
}

func squadLabel(p *plan, ids map[primitive.ObjectID]struct{}) (string, *primitive.ObjectID) {
	if len(ids) == 1 {
		for id := range ids {
			id := id
			return p.squads[id].Name, &id
		}
	}
	return plural(len(ids), "squad"), nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Operations                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// Enlist adds members to the activity's reserve pool. Members already on
// the roster, in the pool or in a squad, are left where they are.
func (s *Service) Enlist(ctx context.Context, sc Scope, memberIDs []primitive.ObjectID) (Result, error) {
	if err := checkMemberIDs(memberIDs); err != nil {
		return Result{}, err
	}
	return s.run(ctx, sc, audit.ActionEnlist, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, memberIDs, true); err != nil {
			return outcome{}, err
		}
		for _, id := range memberIDs {
			if _, on := p.slots[id]; on {
				continue
			}
			p.enlist(id)
		}
		return outcome{
			message: fmt.Sprintf("Enlisted %s in the reserve pool", plural(p.changes, "member")),
			details: map[string]string{"members": joinIDs(memberIDs)},
		}, nil
	})
}

// MoveFromPoolToSquad moves pool members into one squad.
func (s *Service) MoveFromPoolToSquad(ctx context.Context, sc Scope, memberIDs []primitive.ObjectID, squadID primitive.ObjectID, role string) (Result, error) {
	moves := make([]PoolMove, len(memberIDs))
	for i, id := range memberIDs {
		moves[i] = PoolMove{MemberID: id, SquadID: squadID, Role: role}
	}
	return s.PoolToSquad(ctx, sc, moves)
}

// PoolToSquad is the batch form of MoveFromPoolToSquad; each item names its
// own target squad. A member already in the target squad is a no-op; a
// member found in a different squad is a source mismatch.
func (s *Service) PoolToSquad(ctx context.Context, sc Scope, moves []PoolMove) (Result, error) {
	moves = append([]PoolMove(nil), moves...)
	ids := make([]primitive.ObjectID, len(moves))
	for i := range moves {
		ids[i] = moves[i].MemberID
		if err := checkSquadID(moves[i].SquadID); err != nil {
			return Result{}, err
		}
		role, err := NormalizeRole(moves[i].Role)
		if err != nil {
			return Result{}, err
		}
		moves[i].Role = role
	}
	if err := checkMemberIDs(ids); err != nil {
		return Result{}, err
	}

	return s.run(ctx, sc, audit.ActionPoolToSquad, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, ids, false); err != nil {
			return outcome{}, err
		}
		slots := make([]*models.SquadMembership, len(moves))
		for i, mv := range moves {
			if _, err := p.squad(mv.SquadID); err != nil {
				return outcome{}, err
			}
			slot, err := p.onRoster(mv.MemberID)
			if err != nil {
				return outcome{}, err
			}
			slots[i] = slot
		}

		targets := map[primitive.ObjectID]struct{}{}
		for i, mv := range moves {
			slot := slots[i]
			switch {
			case slot.InSquad(mv.SquadID):
				continue
			case !slot.InPool():
				return outcome{}, apperr.Conflict(apperr.ReasonSourceMismatch,
					"member %s is no longer in the reserve pool", mv.MemberID.Hex())
			}
			target := mv.SquadID
			p.move(slot, &target, mv.Role)
			targets[target] = struct{}{}
		}

		label, target := squadLabel(p, targets)
		return outcome{
			message: fmt.Sprintf("Moved %s from the reserve pool to %s", plural(p.changes, "member"), label),
			target:  target,
			details: map[string]string{"members": joinIDs(ids)},
		}, nil
	})
}

// MoveFromSquadToSquad re-parents members between squads, keeping role tags.
// A member already in the target is a no-op; a member not in the stated
// source squad is a source mismatch and nothing is written.
func (s *Service) MoveFromSquadToSquad(ctx context.Context, sc Scope, moves []SquadMove) (Result, error) {
	ids := make([]primitive.ObjectID, len(moves))
	for i, mv := range moves {
		ids[i] = mv.MemberID
		if err := checkSquadID(mv.SourceSquadID); err != nil {
			return Result{}, err
		}
		if err := checkSquadID(mv.TargetSquadID); err != nil {
			return Result{}, err
		}
	}
	if err := checkMemberIDs(ids); err != nil {
		return Result{}, err
	}

	return s.run(ctx, sc, audit.ActionSquadToSquad, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, ids, false); err != nil {
			return outcome{}, err
		}
		slots := make([]*models.SquadMembership, len(moves))
		for i, mv := range moves {
			if _, err := p.squad(mv.SourceSquadID); err != nil {
				return outcome{}, err
			}
			if _, err := p.squad(mv.TargetSquadID); err != nil {
				return outcome{}, err
			}
			slot, err := p.onRoster(mv.MemberID)
			if err != nil {
				return outcome{}, err
			}
			slots[i] = slot
		}

		targets := map[primitive.ObjectID]struct{}{}
		for i, mv := range moves {
			slot := slots[i]
			if slot.InSquad(mv.TargetSquadID) {
				continue
			}
			if !slot.InSquad(mv.SourceSquadID) {
				return outcome{}, apperr.Conflict(apperr.ReasonSourceMismatch,
					"member %s is no longer in squad %s", mv.MemberID.Hex(), mv.SourceSquadID.Hex())
			}
			target := mv.TargetSquadID
			p.move(slot, &target, slot.Role)
			targets[target] = struct{}{}
		}

		label, target := squadLabel(p, targets)
		return outcome{
			message: fmt.Sprintf("Moved %s to %s", plural(p.changes, "member"), label),
			target:  target,
			details: map[string]string{"members": joinIDs(ids)},
		}, nil
	})
}

// MoveFromSquadToPool returns squad members to the reserve pool, dropping
// their role tags. Members already in the pool are a no-op.
func (s *Service) MoveFromSquadToPool(ctx context.Context, sc Scope, memberIDs []primitive.ObjectID) (Result, error) {
	if err := checkMemberIDs(memberIDs); err != nil {
		return Result{}, err
	}
	return s.run(ctx, sc, audit.ActionSquadToPool, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, memberIDs, false); err != nil {
			return outcome{}, err
		}
		slots := make([]*models.SquadMembership, len(memberIDs))
		for i, id := range memberIDs {
			slot, err := p.onRoster(id)
			if err != nil {
				return outcome{}, err
			}
			slots[i] = slot
		}
		for _, slot := range slots {
			if slot.InPool() {
				continue
			}
			p.move(slot, nil, "")
		}
		return outcome{
			message: fmt.Sprintf("Moved %s to the reserve pool", plural(p.changes, "member")),
			details: map[string]string{"members": joinIDs(memberIDs)},
		}, nil
	})
}

// KickFromPool removes reserve-pool members from the roster. A member found
// in a squad instead is a source mismatch.
func (s *Service) KickFromPool(ctx context.Context, sc Scope, memberIDs []primitive.ObjectID) (Result, error) {
	if err := checkMemberIDs(memberIDs); err != nil {
		return Result{}, err
	}
	return s.run(ctx, sc, audit.ActionKickFromPool, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, memberIDs, false); err != nil {
			return outcome{}, err
		}
		slots := make([]*models.SquadMembership, len(memberIDs))
		for i, id := range memberIDs {
			slot, err := p.onRoster(id)
			if err != nil {
				return outcome{}, err
			}
			slots[i] = slot
		}
		for _, slot := range slots {
			if !slot.InPool() {
				return outcome{}, apperr.Conflict(apperr.ReasonSourceMismatch,
					"member %s is no longer in the reserve pool", slot.MemberID.Hex())
			}
			p.remove(slot)
		}
		return outcome{
			message: fmt.Sprintf("Removed %s from the roster", plural(p.changes, "member")),
			details: map[string]string{"members": joinIDs(memberIDs)},
		}, nil
	})
}

// KickFromSquad removes squad members from the roster. Each kick names the
// squad the caller saw the member in; any other placement is a source mismatch.
func (s *Service) KickFromSquad(ctx context.Context, sc Scope, kicks []SquadKick) (Result, error) {
	ids := make([]primitive.ObjectID, len(kicks))
	for i, k := range kicks {
		ids[i] = k.MemberID
		if err := checkSquadID(k.SquadID); err != nil {
			return Result{}, err
		}
	}
	if err := checkMemberIDs(ids); err != nil {
		return Result{}, err
	}

	return s.run(ctx, sc, audit.ActionKickFromSquad, func(ctx context.Context, p *plan) (outcome, error) {
		if err := s.requireMembers(ctx, ids, false); err != nil {
			return outcome{}, err
		}
		slots := make([]*models.SquadMembership, len(kicks))
		for i, k := range kicks {
			if _, err := p.squad(k.SquadID); err != nil {
				return outcome{}, err
			}
			slot, err := p.onRoster(k.MemberID)
			if err != nil {
				return outcome{}, err
			}
			slots[i] = slot
		}

		squads := map[primitive.ObjectID]struct{}{}
		for i, k := range kicks {
			if !slots[i].InSquad(k.SquadID) {
				return outcome{}, apperr.Conflict(apperr.ReasonSourceMismatch,
					"member %s is no longer in squad %s", k.MemberID.Hex(), k.SquadID.Hex())
			}
			p.remove(slots[i])
			squads[k.SquadID] = struct{}{}
		}

		label, target := squadLabel(p, squads)
		return outcome{
			message: fmt.Sprintf("Removed %s of %s from the roster", plural(p.changes, "member"), label),
			target:  target,
			details: map[string]string{"members": joinIDs(ids)},
		}, nil
	})
}

// AssignRole sets the role tag on members of one squad. Ids not currently in
// that squad are skipped.
func (s *Service) AssignRole(ctx context.Context, sc Scope, squadID primitive.ObjectID, memberIDs []primitive.ObjectID, role string) (Result, error) {
	if err := checkSquadID(squadID); err != nil {
		return Result{}, err
	}
	if err := checkMemberIDs(memberIDs); err != nil {
		return Result{}, err
	}
	role, err := NormalizeRole(role)
	if err != nil {
		return Result{}, err
	}

	return s.run(ctx, sc, audit.ActionAssignRole, func(ctx context.Context, p *plan) (outcome, error) {
		sq, err := p.squad(squadID)
		if err != nil {
			return outcome{}, err
		}
		for _, id := range memberIDs {
			slot, ok := p.slots[id]
			if !ok || !slot.InSquad(squadID) || slot.Role == role {
				continue
			}
			p.setRole(slot, role)
		}
		msg := fmt.Sprintf("Set role %q on %s in %s", role, plural(p.changes, "member"), sq.Name)
		if role == "" {
			msg = fmt.Sprintf("Cleared role on %s in %s", plural(p.changes, "member"), sq.Name)
		}
		target := squadID
		return outcome{
			message: msg,
			target:  &target,
			details: map[string]string{"members": joinIDs(memberIDs), "role": role},
		}, nil
	})
}
