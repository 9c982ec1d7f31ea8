// internal/app/features/neighborhoods/handler.go
package neighborhoods

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// NeighborhoodStore is the slice of the neighborhood store this feature needs.
type NeighborhoodStore interface {
	Create(ctx context.Context, n models.Neighborhood, stamp audit.Stamp) (models.Neighborhood, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error)
	List(ctx context.Context) ([]models.Neighborhood, error)
	UpdateRequireApproval(ctx context.Context, id primitive.ObjectID, require bool, stamp audit.Stamp) error
}

type Handler struct {
	Neighborhoods NeighborhoodStore
	Resolver      *authctx.Resolver
	Audit         *auditlog.Logger
	Log           *zap.Logger
}

func NewHandler(neighborhoods NeighborhoodStore, resolver *authctx.Resolver, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Neighborhoods: neighborhoods,
		Resolver:      resolver,
		Audit:         auditLogger,
		Log:           logger,
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type createRequest struct {
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	City            string `json:"city"`
	State           string `json:"state"`
	RequireApproval bool   `json:"require_approval"`
}

// ServeCreate handles POST /neighborhoods. Staff only, and only while acting
// as themselves; an impersonating staff admin carries the subject's authority,
// which never includes this.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}
	if !actx.IsStaffAdmin || actx.IsImpersonating {
		uierrors.Forbidden(w, "Only staff admins create neighborhoods.")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uierrors.BadRequest(w, "Malformed request body.")
		return
	}
	req.Slug = strings.TrimSpace(strings.ToLower(req.Slug))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		uierrors.BadRequest(w, "Name is required.")
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		uierrors.BadRequest(w, "Slug must be lowercase letters, digits, and hyphens.")
		return
	}

	n, err := h.Neighborhoods.Create(r.Context(), models.Neighborhood{
		Slug:            req.Slug,
		Name:            req.Name,
		City:            strings.TrimSpace(req.City),
		State:           strings.TrimSpace(req.State),
		RequireApproval: req.RequireApproval,
		CreatedBy:       actx.StaffUserID,
	}, actx.AuditStamp())
	if err != nil {
		if errors.Is(err, neighborhoodstore.ErrDuplicateSlug) {
			uierrors.Render(w, http.StatusConflict, "slug_taken", "That slug is already in use.")
			return
		}
		h.Log.Error("create neighborhood", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	h.Audit.NeighborhoodCreated(r.Context(), r, actx.StaffUserID, n.ID, n.Slug)
	uierrors.JSON(w, http.StatusCreated, n)
}

// ServeList handles GET /neighborhoods.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Resolver.Resolve(r); err != nil {
		uierrors.Unauthorized(w)
		return
	}
	rows, err := h.Neighborhoods.List(r.Context())
	if err != nil {
		h.Log.Error("list neighborhoods", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, rows)
}

// ServeGet handles GET /neighborhoods/{neighborhoodID}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Resolver.Resolve(r); err != nil {
		uierrors.Unauthorized(w)
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "neighborhoodID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed neighborhood id.")
		return
	}
	n, err := h.Neighborhoods.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, neighborhoodstore.ErrNotFound) {
			uierrors.NotFound(w, "Neighborhood not found.")
			return
		}
		h.Log.Error("get neighborhood", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, n)
}

type policyRequest struct {
	RequireApproval bool `json:"require_approval"`
}

// ServeUpdatePolicy handles PUT /neighborhoods/{neighborhoodID}/policy.
// Staff only, acting as themselves. The flip applies to future joins;
// memberships already pending keep waiting for review.
func (h *Handler) ServeUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}
	if !actx.IsStaffAdmin || actx.IsImpersonating {
		uierrors.Forbidden(w, "Only staff admins change join policy.")
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "neighborhoodID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed neighborhood id.")
		return
	}

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uierrors.BadRequest(w, "Malformed request body.")
		return
	}

	if err := h.Neighborhoods.UpdateRequireApproval(r.Context(), id, req.RequireApproval, actx.AuditStamp()); err != nil {
		if errors.Is(err, neighborhoodstore.ErrNotFound) {
			uierrors.NotFound(w, "Neighborhood not found.")
			return
		}
		h.Log.Error("update neighborhood policy", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	h.Audit.NeighborhoodPolicyUpdated(r.Context(), r, actx.StaffUserID, id, req.RequireApproval)
	uierrors.JSON(w, http.StatusOK, map[string]bool{"require_approval": req.RequireApproval})
}
