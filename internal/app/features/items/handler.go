// internal/app/features/items/handler.go
package items

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	itemstore "github.com/stahlscott/blockclub/internal/app/store/items"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ItemStore is the slice of the item store this feature needs.
type ItemStore interface {
	Create(ctx context.Context, item models.Item, stamp audit.Stamp) (models.Item, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Item, error)
	ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) ([]models.Item, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// MembershipFinder gates library access on a live membership row.
type MembershipFinder interface {
	Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error)
}

// NeighborhoodGetter distinguishes a missing library from a denied one.
type NeighborhoodGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error)
}

type Handler struct {
	Items         ItemStore
	Memberships   MembershipFinder
	Neighborhoods NeighborhoodGetter
	Resolver      *authctx.Resolver
	Log           *zap.Logger
}

func NewHandler(items ItemStore, memberships MembershipFinder, neighborhoods NeighborhoodGetter, resolver *authctx.Resolver, logger *zap.Logger) *Handler {
	return &Handler{
		Items:         items,
		Memberships:   memberships,
		Neighborhoods: neighborhoods,
		Resolver:      resolver,
		Log:           logger,
	}
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ServeCreate handles POST /neighborhoods/{neighborhoodID}/items. Lending
// requires an active membership of the effective user.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	actx, nID, ok := h.resolveLibrary(w, r)
	if !ok {
		return
	}

	if err := h.requireActiveMember(r.Context(), actx, nID); err != nil {
		h.denyLibrary(w, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		uierrors.BadRequest(w, "Malformed request body.")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		uierrors.BadRequest(w, "Title is required.")
		return
	}

	item, err := h.Items.Create(r.Context(), models.Item{
		NeighborhoodID: nID,
		OwnerID:        actx.EffectiveUserID,
		Title:          req.Title,
		Description:    strings.TrimSpace(req.Description),
		Category:       strings.TrimSpace(req.Category),
	}, actx.AuditStamp())
	if err != nil {
		h.Log.Error("create item", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	uierrors.JSON(w, http.StatusCreated, item)
}

// ServeList handles GET /neighborhoods/{neighborhoodID}/items.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actx, nID, ok := h.resolveLibrary(w, r)
	if !ok {
		return
	}

	if !(actx.IsStaffAdmin && !actx.IsImpersonating) {
		if err := h.requireActiveMember(r.Context(), actx, nID); err != nil {
			h.denyLibrary(w, err)
			return
		}
	}

	rows, err := h.Items.ListByNeighborhood(r.Context(), nID)
	if err != nil {
		h.Log.Error("list items", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, rows)
}

// ServeDelete handles DELETE /items/{itemID}. The owner may remove their own
// listing; a neighborhood admin or staff acting as themselves may remove any.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	itemID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "itemID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed item id.")
		return
	}

	item, err := h.Items.GetByID(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, itemstore.ErrNotFound) {
			uierrors.NotFound(w, "Item not found.")
			return
		}
		h.Log.Error("load item", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	if item.OwnerID != actx.EffectiveUserID {
		ok, err := h.Resolver.IsNeighborhoodAdmin(r.Context(), actx, item.NeighborhoodID)
		if err != nil {
			h.Log.Error("item delete authorization", zap.Error(err))
			uierrors.Internal(w)
			return
		}
		if !ok {
			uierrors.Forbidden(w, "Only the owner or a neighborhood admin can remove a listing.")
			return
		}
	}

	if err := h.Items.Delete(r.Context(), itemID); err != nil && !errors.Is(err, itemstore.ErrNotFound) {
		h.Log.Error("delete item", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNotMember = errors.New("not an active member of this neighborhood")

func (h *Handler) resolveLibrary(w http.ResponseWriter, r *http.Request) (authctx.AuthContext, primitive.ObjectID, bool) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return authctx.AuthContext{}, primitive.NilObjectID, false
	}

	nID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "neighborhoodID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed neighborhood id.")
		return authctx.AuthContext{}, primitive.NilObjectID, false
	}

	if _, err := h.Neighborhoods.GetByID(r.Context(), nID); err != nil {
		if errors.Is(err, neighborhoodstore.ErrNotFound) {
			uierrors.NotFound(w, "Neighborhood not found.")
		} else {
			h.Log.Error("load neighborhood for library", zap.Error(err))
			uierrors.Internal(w)
		}
		return authctx.AuthContext{}, primitive.NilObjectID, false
	}

	return actx, nID, true
}

func (h *Handler) requireActiveMember(ctx context.Context, actx authctx.AuthContext, nID primitive.ObjectID) error {
	m, err := h.Memberships.Find(ctx, actx.EffectiveUserID, nID)
	if err != nil {
		return err
	}
	if m == nil || m.Status != models.StatusActive {
		return errNotMember
	}
	return nil
}

func (h *Handler) denyLibrary(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotMember) {
		uierrors.Forbidden(w, "The lending library is for active members.")
		return
	}
	h.Log.Error("library membership check", zap.Error(err))
	uierrors.Internal(w)
}
