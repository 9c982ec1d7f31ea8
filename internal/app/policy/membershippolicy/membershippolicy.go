// Package membershippolicy decides who may change a membership and how.
//
// Authorization rules:
//   - Approve / Decline: a neighborhood admin of that neighborhood, or staff
//   - PromoteToAdmin: a neighborhood admin of that neighborhood, or staff
//   - DemoteToMember: staff only
//   - MarkMovedOut: the member themselves, a neighborhood admin, or staff
//   - Rejoin: the member themselves only
//
// Nobody approves, declines, promotes, or demotes their own membership, staff
// included. Staff authority here means a staff admin acting as themselves; an
// impersonating staff admin carries only the subject's own authority.
// Authorization is checked before any state is read or written.
package membershippolicy

import (
	"context"
	"errors"
	"fmt"

	membershipstore "github.com/stahlscott/blockclub/internal/app/store/memberships"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Action is a lifecycle transition on a membership.
type Action string

const (
	ActionApprove      Action = "approve"
	ActionDecline      Action = "decline"
	ActionPromote      Action = "promote"
	ActionDemote       Action = "demote"
	ActionMarkMovedOut Action = "mark_moved_out"
	ActionRejoin       Action = "rejoin"
)

var (
	// ErrUnauthorized means the actor lacks the authority for this action.
	ErrUnauthorized = errors.New("not authorized for this membership action")
	// ErrSelfActionForbidden means the actor targeted their own membership
	// with an action that requires a second party.
	ErrSelfActionForbidden = errors.New("cannot perform this action on your own membership")
	// ErrForbiddenTransition means the membership is not in a state this
	// action applies to.
	ErrForbiddenTransition = errors.New("membership state does not allow this action")
	// ErrNotFound means the membership does not exist (or is soft-deleted).
	ErrNotFound = errors.New("membership not found")
	// ErrAlreadyMember means the user already has a live membership here.
	ErrAlreadyMember = errors.New("already a member of this neighborhood")
	// ErrStaffCannotJoin rejects a join by a staff admin acting as themselves.
	ErrStaffCannotJoin = errors.New("staff admins cannot hold memberships")
	// ErrUnknownAction rejects an action outside the lifecycle table.
	ErrUnknownAction = errors.New("unknown membership action")
)

// MembershipStore is the slice of the membership store the policy needs.
type MembershipStore interface {
	Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error)
	Create(ctx context.Context, userID, neighborhoodID primitive.ObjectID, role, status string, stamp audit.Stamp) (models.Membership, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, stamp audit.Stamp) error
	UpdateRole(ctx context.Context, id primitive.ObjectID, role string, stamp audit.Stamp) error
	SoftDelete(ctx context.Context, id primitive.ObjectID, status string, stamp audit.Stamp) error
	CountEverJoined(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error)
}

// NeighborhoodGetter looks up the neighborhood whose join policy applies.
type NeighborhoodGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error)
}

// ItemStore is the slice of the item store the move-out cascade needs.
type ItemStore interface {
	DeleteByOwnerAndNeighborhood(ctx context.Context, ownerID, neighborhoodID primitive.ObjectID) (int64, error)
}

// AdminChecker reports whether the effective identity is an admin of a
// neighborhood. Implemented by authctx.Resolver.
type AdminChecker interface {
	IsNeighborhoodAdmin(ctx context.Context, actx authctx.AuthContext, neighborhoodID primitive.ObjectID) (bool, error)
}

// Policy evaluates and applies membership lifecycle actions.
type Policy struct {
	memberships   MembershipStore
	neighborhoods NeighborhoodGetter
	items         ItemStore
	admins        AdminChecker
	log           *zap.Logger
}

// New builds a Policy.
func New(memberships MembershipStore, neighborhoods NeighborhoodGetter, items ItemStore, admins AdminChecker, logger *zap.Logger) *Policy {
	return &Policy{
		memberships:   memberships,
		neighborhoods: neighborhoods,
		items:         items,
		admins:        admins,
		log:           logger,
	}
}

// JoinStatus returns the role and status a new membership starts in. The very
// first member of a neighborhood starts active regardless of the approval
// policy; there is nobody yet who could approve them. Role is always member;
// admin is granted by promotion, never by joining.
func JoinStatus(requireApproval, firstMember bool) (role, status string) {
	if firstMember || !requireApproval {
		return models.RoleMember, models.StatusActive
	}
	return models.RoleMember, models.StatusPending
}

// Join creates a membership for the effective user in the neighborhood.
//
// A staff admin acting as themselves cannot join anything; impersonating
// staff join on behalf of their subject like any member would. A user with a
// live row here (pending, active, or moved out) cannot join again; moved-out
// members use Rejoin instead.
func (p *Policy) Join(ctx context.Context, actx authctx.AuthContext, neighborhoodID primitive.ObjectID) (models.Membership, error) {
	if actx.IsStaffAdmin && !actx.IsImpersonating {
		return models.Membership{}, ErrStaffCannotJoin
	}

	nbhd, err := p.neighborhoods.GetByID(ctx, neighborhoodID)
	if err != nil {
		return models.Membership{}, fmt.Errorf("load neighborhood: %w", err)
	}

	existing, err := p.memberships.Find(ctx, actx.EffectiveUserID, neighborhoodID)
	if err != nil {
		return models.Membership{}, fmt.Errorf("check existing membership: %w", err)
	}
	if existing != nil {
		return models.Membership{}, ErrAlreadyMember
	}

	ever, err := p.memberships.CountEverJoined(ctx, neighborhoodID)
	if err != nil {
		return models.Membership{}, fmt.Errorf("count memberships: %w", err)
	}

	role, status := JoinStatus(nbhd.RequireApproval, ever == 0)
	m, err := p.memberships.Create(ctx, actx.EffectiveUserID, neighborhoodID, role, status, actx.AuditStamp())
	if err != nil {
		if errors.Is(err, membershipstore.ErrDuplicateMembership) {
			// Lost a race with a concurrent join by the same user.
			return models.Membership{}, ErrAlreadyMember
		}
		return models.Membership{}, err
	}
	return m, nil
}

// Transition applies a lifecycle action to the membership and returns the
// updated row. The returned membership reflects the new state.
func (p *Policy) Transition(ctx context.Context, actx authctx.AuthContext, action Action, membershipID primitive.ObjectID) (models.Membership, error) {
	m, err := p.memberships.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return models.Membership{}, ErrNotFound
		}
		return models.Membership{}, err
	}
	if !m.Effective() {
		return models.Membership{}, ErrNotFound
	}

	isSelf := m.UserID == actx.EffectiveUserID
	stamp := actx.AuditStamp()

	switch action {
	case ActionApprove, ActionDecline, ActionPromote:
		if isSelf {
			return models.Membership{}, ErrSelfActionForbidden
		}
		if err := p.requireNeighborhoodAuthority(ctx, actx, m.NeighborhoodID); err != nil {
			return models.Membership{}, err
		}
	case ActionDemote:
		if isSelf {
			return models.Membership{}, ErrSelfActionForbidden
		}
		// Demotion removes authority rather than granting it, so neighborhood
		// admins cannot demote each other; only staff can.
		if !actx.IsStaffAdmin || actx.IsImpersonating {
			return models.Membership{}, ErrUnauthorized
		}
	case ActionMarkMovedOut:
		if !isSelf {
			if err := p.requireNeighborhoodAuthority(ctx, actx, m.NeighborhoodID); err != nil {
				return models.Membership{}, err
			}
		}
	case ActionRejoin:
		if !isSelf {
			return models.Membership{}, ErrUnauthorized
		}
	default:
		return models.Membership{}, ErrUnknownAction
	}

	switch action {
	case ActionApprove:
		if m.Status != models.StatusPending {
			return models.Membership{}, ErrForbiddenTransition
		}
		if err := p.memberships.UpdateStatus(ctx, m.ID, models.StatusActive, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Status = models.StatusActive

	case ActionDecline:
		if m.Status != models.StatusPending {
			return models.Membership{}, ErrForbiddenTransition
		}
		// Decline soft-deletes: the row leaves the live set so the user may
		// apply again later with a fresh row.
		if err := p.memberships.SoftDelete(ctx, m.ID, models.StatusInactive, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Status = models.StatusInactive

	case ActionPromote:
		if m.Status != models.StatusActive || m.Role != models.RoleMember {
			return models.Membership{}, ErrForbiddenTransition
		}
		if err := p.memberships.UpdateRole(ctx, m.ID, models.RoleAdmin, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Role = models.RoleAdmin

	case ActionDemote:
		if m.Status != models.StatusActive || m.Role != models.RoleAdmin {
			return models.Membership{}, ErrForbiddenTransition
		}
		if err := p.memberships.UpdateRole(ctx, m.ID, models.RoleMember, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Role = models.RoleMember

	case ActionMarkMovedOut:
		if m.Status != models.StatusActive {
			return models.Membership{}, ErrForbiddenTransition
		}
		if err := p.memberships.UpdateStatus(ctx, m.ID, models.StatusMovedOut, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Status = models.StatusMovedOut
		p.cascadeMoveOut(ctx, *m)

	case ActionRejoin:
		if m.Status != models.StatusMovedOut {
			return models.Membership{}, ErrForbiddenTransition
		}
		nbhd, err := p.neighborhoods.GetByID(ctx, m.NeighborhoodID)
		if err != nil {
			return models.Membership{}, fmt.Errorf("load neighborhood: %w", err)
		}
		// The join policy is re-evaluated as of now; prior standing carries
		// no weight, and a former admin returns as a plain member. Rejoining
		// never counts as a first member.
		role, status := JoinStatus(nbhd.RequireApproval, false)
		if m.Role != role {
			if err := p.memberships.UpdateRole(ctx, m.ID, role, stamp); err != nil {
				return models.Membership{}, err
			}
			m.Role = role
		}
		if err := p.memberships.UpdateStatus(ctx, m.ID, status, stamp); err != nil {
			return models.Membership{}, err
		}
		m.Status = status
	}

	return *m, nil
}

// requireNeighborhoodAuthority returns nil when the effective identity is a
// neighborhood admin there or a staff admin acting as themselves. Lookup
// failures deny.
func (p *Policy) requireNeighborhoodAuthority(ctx context.Context, actx authctx.AuthContext, neighborhoodID primitive.ObjectID) error {
	ok, err := p.admins.IsNeighborhoodAdmin(ctx, actx, neighborhoodID)
	if err != nil {
		return fmt.Errorf("authority check: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// cascadeMoveOut removes the member's lending items in the neighborhood they
// left. Best effort: the move-out itself already committed, so a failure here
// is logged and not surfaced.
func (p *Policy) cascadeMoveOut(ctx context.Context, m models.Membership) {
	// The cascade may touch many item rows; give it the long deadline.
	ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()
	removed, err := p.items.DeleteByOwnerAndNeighborhood(ctx, m.UserID, m.NeighborhoodID)
	if err != nil {
		p.log.Error("failed to remove lending items on move-out",
			zap.Error(err),
			zap.String("user_id", m.UserID.Hex()),
			zap.String("neighborhood_id", m.NeighborhoodID.Hex()))
		return
	}
	if removed > 0 {
		p.log.Info("removed lending items on move-out",
			zap.Int64("count", removed),
			zap.String("user_id", m.UserID.Hex()),
			zap.String("neighborhood_id", m.NeighborhoodID.Hex()))
	}
}
