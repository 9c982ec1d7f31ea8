// internal/app/features/staffpanel/handler.go
package staffpanel

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	auditstore "github.com/stahlscott/blockclub/internal/app/store/audit"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserDirectory is the slice of the user store the staff panel needs.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// EventLog reads recent audit events for the panel.
type EventLog interface {
	GetRecent(ctx context.Context, limit int64) ([]auditstore.Event, error)
}

type Handler struct {
	Users  UserDirectory
	Events EventLog
	Allow  *staff.AllowList
	Imp    *impersonate.Manager
	Audit  *auditlog.Logger
	Log    *zap.Logger
}

func NewHandler(users UserDirectory, events EventLog, allow *staff.AllowList, imp *impersonate.Manager, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:  users,
		Events: events,
		Allow:  allow,
		Imp:    imp,
		Audit:  auditLogger,
		Log:    logger,
	}
}

// RequireStaff admits only principals on the allow-list. The check is on the
// real signed-in principal, so a staff admin mid-impersonation can still
// reach the exit endpoint.
func (h *Handler) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.CurrentUser(r)
		if !ok {
			uierrors.Unauthorized(w)
			return
		}
		if !h.Allow.IsStaffAdmin(u.Email) {
			uierrors.Forbidden(w, "Staff only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// panelState is the staff panel summary.
type panelState struct {
	StaffEmail         string `json:"staff_email"`
	IsImpersonating    bool   `json:"is_impersonating"`
	ImpersonatedUserID string `json:"impersonated_user_id,omitempty"`
}

// ServePanel handles GET /staff.
func (h *Handler) ServePanel(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	state := panelState{StaffEmail: u.Email}
	if d := h.Imp.Context(r); d != nil {
		state.IsImpersonating = true
		state.ImpersonatedUserID = d.TargetUserID.Hex()
	}
	uierrors.JSON(w, http.StatusOK, state)
}

// ServeUsers handles GET /staff/users: the full directory, staff visibility.
func (h *Handler) ServeUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		h.Log.Error("staff panel: list users", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, users)
}

// ServeAuditLog handles GET /staff/audit: recent audit events.
func (h *Handler) ServeAuditLog(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.GetRecent(r.Context(), 100)
	if err != nil {
		h.Log.Error("staff panel: load audit events", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, events)
}

// ServeImpersonate handles POST /staff/impersonate/{userID}.
func (h *Handler) ServeImpersonate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	staffID, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	targetID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed user id.")
		return
	}

	target, err := h.Users.GetByID(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			uierrors.NotFound(w, "User not found.")
			return
		}
		h.Log.Error("staff panel: load impersonation target", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	prev := h.Imp.Context(r)

	redirect, err := h.Imp.Start(w, r, u, *target)
	if err != nil {
		h.Audit.ImpersonationDenied(r.Context(), r, staffID, &targetID, err.Error())
		uierrors.FromPolicy(w, err)
		return
	}

	if prev != nil && prev.TargetUserID != targetID {
		// The new cookie replaced an existing delegation; close it out.
		h.Audit.ImpersonationEnded(r.Context(), r, staffID, prev.TargetUserID)
	}
	h.Audit.ImpersonationStarted(r.Context(), r, staffID, targetID, "")

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// ServeExitImpersonation handles POST /staff/impersonate/exit.
func (h *Handler) ServeExitImpersonation(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	staffID, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	d := h.Imp.Context(r)
	redirect := h.Imp.End(w, r)
	if d != nil {
		h.Audit.ImpersonationEnded(r.Context(), r, staffID, d.TargetUserID)
	}

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}
