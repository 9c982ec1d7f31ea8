// internal/app/features/memberships/handler.go
package memberships

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	"github.com/stahlscott/blockclub/internal/app/policy/membershippolicy"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MembershipPolicy is the lifecycle core this feature fronts.
type MembershipPolicy interface {
	Join(ctx context.Context, actx authctx.AuthContext, neighborhoodID primitive.ObjectID) (models.Membership, error)
	Transition(ctx context.Context, actx authctx.AuthContext, action membershippolicy.Action, membershipID primitive.ObjectID) (models.Membership, error)
}

// MembershipReader serves the roster and review queues.
type MembershipReader interface {
	Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error)
	ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID, status string) ([]models.Membership, error)
	CountActive(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error)
}

// NeighborhoodGetter distinguishes a missing neighborhood from a denied one.
type NeighborhoodGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error)
}

type Handler struct {
	Policy        MembershipPolicy
	Memberships   MembershipReader
	Neighborhoods NeighborhoodGetter
	Resolver      *authctx.Resolver
	Audit         *auditlog.Logger
	Log           *zap.Logger
}

func NewHandler(policy MembershipPolicy, memberships MembershipReader, neighborhoods NeighborhoodGetter, resolver *authctx.Resolver, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Policy:        policy,
		Memberships:   memberships,
		Neighborhoods: neighborhoods,
		Resolver:      resolver,
		Audit:         auditLogger,
		Log:           logger,
	}
}

// urlActions maps the URL verb to the lifecycle action.
var urlActions = map[string]membershippolicy.Action{
	"approve":  membershippolicy.ActionApprove,
	"decline":  membershippolicy.ActionDecline,
	"promote":  membershippolicy.ActionPromote,
	"demote":   membershippolicy.ActionDemote,
	"move-out": membershippolicy.ActionMarkMovedOut,
	"rejoin":   membershippolicy.ActionRejoin,
}

// actorOfRecord is who the audit trail names: the real staff actor under
// impersonation, the effective user otherwise.
func actorOfRecord(actx authctx.AuthContext) primitive.ObjectID {
	if actx.IsImpersonating {
		return actx.StaffUserID
	}
	return actx.EffectiveUserID
}

// ServeJoin handles POST /neighborhoods/{neighborhoodID}/join.
func (h *Handler) ServeJoin(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	nID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "neighborhoodID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed neighborhood id.")
		return
	}

	m, err := h.Policy.Join(r.Context(), actx, nID)
	if err != nil {
		if errors.Is(err, neighborhoodstore.ErrNotFound) {
			uierrors.NotFound(w, "Neighborhood not found.")
			return
		}
		h.joinError(w, err)
		return
	}

	h.Audit.MembershipCreated(r.Context(), r, actorOfRecord(actx), m.UserID, m.NeighborhoodID, m.Status)
	uierrors.JSON(w, http.StatusCreated, m)
}

// joinError maps policy errors, logging anything unexpected.
func (h *Handler) joinError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, membershippolicy.ErrAlreadyMember),
		errors.Is(err, membershippolicy.ErrStaffCannotJoin):
	default:
		h.Log.Error("membership join", zap.Error(err))
	}
	uierrors.FromPolicy(w, err)
}

// ServeAction handles POST /memberships/{membershipID}/{action}.
func (h *Handler) ServeAction(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	mID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "membershipID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed membership id.")
		return
	}

	action, ok := urlActions[chi.URLParam(r, "action")]
	if !ok {
		uierrors.BadRequest(w, "Unknown membership action.")
		return
	}

	m, err := h.Policy.Transition(r.Context(), actx, action, mID)
	if err != nil {
		if !isExpectedTransitionErr(err) {
			h.Log.Error("membership transition",
				zap.String("action", string(action)),
				zap.Error(err))
		}
		uierrors.FromPolicy(w, err)
		return
	}

	actor := actorOfRecord(actx)
	switch action {
	case membershippolicy.ActionApprove:
		h.Audit.MembershipApproved(r.Context(), r, actor, m.UserID, m.NeighborhoodID)
	case membershippolicy.ActionDecline:
		h.Audit.MembershipDeclined(r.Context(), r, actor, m.UserID, m.NeighborhoodID)
	case membershippolicy.ActionPromote:
		h.Audit.MemberPromoted(r.Context(), r, actor, m.UserID, m.NeighborhoodID)
	case membershippolicy.ActionDemote:
		h.Audit.MemberDemoted(r.Context(), r, actor, m.UserID, m.NeighborhoodID)
	case membershippolicy.ActionMarkMovedOut:
		h.Audit.MemberMovedOut(r.Context(), r, actor, m.UserID, m.NeighborhoodID)
	case membershippolicy.ActionRejoin:
		h.Audit.MemberRejoined(r.Context(), r, actor, m.UserID, m.NeighborhoodID, m.Status)
	}

	uierrors.JSON(w, http.StatusOK, m)
}

func isExpectedTransitionErr(err error) bool {
	for _, known := range []error{
		membershippolicy.ErrNotFound,
		membershippolicy.ErrUnauthorized,
		membershippolicy.ErrSelfActionForbidden,
		membershippolicy.ErrForbiddenTransition,
		membershippolicy.ErrUnknownAction,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// ServeListMembers handles GET /neighborhoods/{neighborhoodID}/members.
//
// The active roster is visible to any member of the neighborhood and to staff
// acting as themselves. Other statuses (the pending review queue in
// particular) require neighborhood authority. A missing neighborhood is 404
// either way; membership gating never masquerades as not-found.
func (h *Handler) ServeListMembers(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	nID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "neighborhoodID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed neighborhood id.")
		return
	}

	if _, err := h.Neighborhoods.GetByID(r.Context(), nID); err != nil {
		if errors.Is(err, neighborhoodstore.ErrNotFound) {
			uierrors.NotFound(w, "Neighborhood not found.")
			return
		}
		h.Log.Error("load neighborhood for roster", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.StatusActive
	}

	allowed, err := h.mayViewRoster(r.Context(), actx, nID, status)
	if err != nil {
		h.Log.Error("roster authorization", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	if !allowed {
		uierrors.Forbidden(w, "")
		return
	}

	rows, err := h.Memberships.ListByNeighborhood(r.Context(), nID, status)
	if err != nil {
		h.Log.Error("list members", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	active, err := h.Memberships.CountActive(r.Context(), nID)
	if err != nil {
		h.Log.Error("count active members", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	uierrors.JSON(w, http.StatusOK, rosterView{ActiveMembers: active, Members: rows})
}

// rosterView carries the requested rows plus the neighborhood's active member
// count, which the UI shows regardless of which status was queried.
type rosterView struct {
	ActiveMembers int64               `json:"active_members"`
	Members       []models.Membership `json:"members"`
}

func (h *Handler) mayViewRoster(ctx context.Context, actx authctx.AuthContext, nID primitive.ObjectID, status string) (bool, error) {
	if status != models.StatusActive {
		ok, err := h.Resolver.IsNeighborhoodAdmin(ctx, actx, nID)
		if err != nil {
			return false, err
		}
		return ok, nil
	}

	if actx.IsStaffAdmin && !actx.IsImpersonating {
		return true, nil
	}
	m, err := h.Memberships.Find(ctx, actx.EffectiveUserID, nID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Status == models.StatusActive, nil
}
