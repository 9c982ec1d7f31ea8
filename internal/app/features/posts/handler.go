// internal/app/features/posts/handler.go
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	uierrors "github.com/stahlscott/blockclub/internal/app/features/errors"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	poststore "github.com/stahlscott/blockclub/internal/app/store/posts"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const listLimit = 50

// PostStore is the slice of the post store this feature needs.
type PostStore interface {
	Create(ctx context.Context, p models.Post, stamp audit.Stamp) (models.Post, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID, limit int64) ([]models.Post, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// MembershipFinder gates board access on a live membership row.
type MembershipFinder interface {
	Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error)
}

// NeighborhoodGetter distinguishes a missing board from a denied one.
type NeighborhoodGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error)
}

type Handler struct {
	Posts         PostStore
	Memberships   MembershipFinder
	Neighborhoods NeighborhoodGetter
	Resolver      *authctx.Resolver
	Log           *zap.Logger

	sanitizer *bluemonday.Policy
}

func NewHandler(posts PostStore, memberships MembershipFinder, neighborhoods NeighborhoodGetter, resolver *authctx.Resolver, logger *zap.Logger) *Handler {
	return &Handler{
		Posts:         posts,
		Memberships:   memberships,
		Neighborhoods: neighborhoods,
		Resolver:      resolver,
		Log:           logger,
		sanitizer:     bluemonday.UGCPolicy(),
	}
}

type createRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ServeCreate handles POST /neighborhoods/{neighborhoodID}/posts. Posting
// requires an active membership of the effective user; staff acting as
// themselves hold none and cannot post.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	actx, nID, ok := h.resolveBoard(w, r)
	if !ok {
		return
	}

	if err := h.requireActiveMember(r.Context(), actx, nID); err != nil {
		h.denyBoard(w, err)
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

	p, err := h.Posts.Create(r.Context(), models.Post{
		NeighborhoodID: nID,
		AuthorID:       actx.EffectiveUserID,
		Title:          req.Title,
		Body:           h.sanitizer.Sanitize(req.Body),
	}, actx.AuditStamp())
	if err != nil {
		h.Log.Error("create post", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	uierrors.JSON(w, http.StatusCreated, p)
}

// ServeList handles GET /neighborhoods/{neighborhoodID}/posts.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actx, nID, ok := h.resolveBoard(w, r)
	if !ok {
		return
	}

	if !(actx.IsStaffAdmin && !actx.IsImpersonating) {
		if err := h.requireActiveMember(r.Context(), actx, nID); err != nil {
			h.denyBoard(w, err)
			return
		}
	}

	rows, err := h.Posts.ListByNeighborhood(r.Context(), nID, listLimit)
	if err != nil {
		h.Log.Error("list posts", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	uierrors.JSON(w, http.StatusOK, rows)
}

// ServeDelete handles DELETE /posts/{postID}. The author may remove their own
// post; a neighborhood admin or staff acting as themselves may remove any.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	actx, err := h.Resolver.Resolve(r)
	if err != nil {
		uierrors.Unauthorized(w)
		return
	}

	pID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "postID"))
	if err != nil {
		uierrors.BadRequest(w, "Malformed post id.")
		return
	}

	p, err := h.Posts.GetByID(r.Context(), pID)
	if err != nil {
		if errors.Is(err, poststore.ErrNotFound) {
			uierrors.NotFound(w, "Post not found.")
			return
		}
		h.Log.Error("load post", zap.Error(err))
		uierrors.Internal(w)
		return
	}

	if p.AuthorID != actx.EffectiveUserID {
		ok, err := h.Resolver.IsNeighborhoodAdmin(r.Context(), actx, p.NeighborhoodID)
		if err != nil {
			h.Log.Error("post delete authorization", zap.Error(err))
			uierrors.Internal(w)
			return
		}
		if !ok {
			uierrors.Forbidden(w, "Only the author or a neighborhood admin can remove a post.")
			return
		}
	}

	if err := h.Posts.Delete(r.Context(), pID); err != nil && !errors.Is(err, poststore.ErrNotFound) {
		h.Log.Error("delete post", zap.Error(err))
		uierrors.Internal(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// errNotMember is the internal deny for board access without a live active
// membership.
var errNotMember = errors.New("not an active member of this neighborhood")

// resolveBoard resolves the auth context and neighborhood, writing the error
// reply itself when either fails.
func (h *Handler) resolveBoard(w http.ResponseWriter, r *http.Request) (authctx.AuthContext, primitive.ObjectID, bool) {
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
			h.Log.Error("load neighborhood for board", zap.Error(err))
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

func (h *Handler) denyBoard(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotMember) {
		uierrors.Forbidden(w, "The bulletin board is for active members.")
		return
	}
	h.Log.Error("board membership check", zap.Error(err))
	uierrors.Internal(w)
}
