// internal/app/features/profile/handler.go
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/dataaccess"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserStore is the slice of the user store this feature needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateProfile(ctx context.Context, cap dataaccess.Capability, id primitive.ObjectID, fullName, phone, address string, stamp audit.Stamp) error
}

// MembershipLister lists the effective user's memberships for the profile view.
type MembershipLister interface {
	ListByUser(ctx context.Context, cap dataaccess.Capability, userID primitive.ObjectID) ([]models.Membership, error)
}

type Handler struct {
	Users       UserStore
	Memberships MembershipLister
	Resolver    *authctx.Resolver
	Audit       *auditlog.Logger
	Log         *zap.Logger
}

func NewHandler(users UserStore, memberships MembershipLister, resolver *authctx.Resolver, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:       users,
		Memberships: memberships,
		Resolver:    resolver,
		Audit:       auditLogger,
		Log:         logger,
	}
}

// profileView is the profile plus the memberships that hang off it. Under
// impersonation this is the subject's profile, exactly as they would see it.
type profileView struct {
	User        *models.User        `json:"user"`
	Memberships []models.Membership `json:"memberships"`
}

// ServeView handles GET /profile.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	u, err := h.Users.GetByID(r.Context(), actx.EffectiveUserID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			uierrors.NotFound(w, "Profile not found.")
			return
		}
		h.Log.Error("load profile", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	rows, err := h.Memberships.ListByUser(r.Context(), actx.DataAccess, actx.EffectiveUserID)
	if err != nil {
		if errors.Is(err, dataaccess.ErrScope) {
			uierrors.Forbidden(w, "")
			return
		}
		h.Log.Error("list memberships for profile", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	uierrors.JSON(w, http.StatusOK, profileView{User: u, Memberships: rows})
}

type updateRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// ServeUpdate handles PUT /profile. The write targets the effective user, so
// an impersonating staff admin edits the subject's profile and the row carries
// the staff-actor stamp.
func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}
	if actx.IsStaffAdmin && !actx.IsImpersonating {
		// Staff have no profile of their own to edit here.
		uierrors.Forbidden(w, "Staff admins have no resident profile.")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uierrors.BadRequest(w, "Malformed request body.")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		uierrors.BadRequest(w, "Name is required.")
		return
	}

	err = h.Users.UpdateProfile(r.Context(), actx.DataAccess, actx.EffectiveUserID,
		req.FullName, strings.TrimSpace(req.Phone), strings.TrimSpace(req.Address), actx.AuditStamp())
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			uierrors.NotFound(w, "Profile not found.")
			return
		}
		if errors.Is(err, dataaccess.ErrScope) {
			uierrors.Forbidden(w, "")
			return
		}
		h.Log.Error("update profile", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	actor := actx.EffectiveUserID
	if actx.IsImpersonating {
		actor = actx.StaffUserID
	}
	h.Audit.ProfileUpdated(r.Context(), r, actor, actx.EffectiveUserID)

	u, err := h.Users.GetByID(r.Context(), actx.EffectiveUserID)
	if err != nil {
		h.Log.Error("reload profile after update", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, u)
}
