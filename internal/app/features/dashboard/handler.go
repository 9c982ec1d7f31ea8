// internal/app/features/dashboard/handler.go
package dashboard

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/dataaccess"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MembershipLister lists the effective user's memberships.
type MembershipLister interface {
	ListByUser(ctx context.Context, cap dataaccess.Capability, userID primitive.ObjectID) ([]models.Membership, error)
}

type Handler struct {
	Memberships MembershipLister
	Resolver    *authctx.Resolver
	Log         *zap.Logger
}

func NewHandler(memberships MembershipLister, resolver *authctx.Resolver, logger *zap.Logger) *Handler {
	return &Handler{
		Memberships: memberships,
		Resolver:    resolver,
		Log:         logger,
	}
}

// view is the landing payload. Impersonation state is surfaced so the UI can
// show the banner naming whose view this is.
type view struct {
	Name            string              `json:"name"`
	Email           string              `json:"email"`
	IsStaffAdmin    bool                `json:"is_staff_admin"`
	IsImpersonating bool                `json:"is_impersonating"`
	Memberships     []models.Membership `json:"memberships"`
}

// Serve handles GET /dashboard.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}
	u, _ := auth.CurrentUser(r)

	rows, err := h.Memberships.ListByUser(r.Context(), actx.DataAccess, actx.EffectiveUserID)
	if err != nil {
		if errors.Is(err, dataaccess.ErrScope) {
			uierrors.Forbidden(w, "")
			return
		}
		h.Log.Error("list memberships for dashboard", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	uierrors.JSON(w, http.StatusOK, view{
		Name:            u.Name,
		Email:           u.Email,
		IsStaffAdmin:    actx.IsStaffAdmin,
		IsImpersonating: actx.IsImpersonating,
		Memberships:     rows,
	})
}
