// Package authctx resolves the effective identity for a request.
//
// Resolution composes the staff allow-list, the impersonation delegation, and
// membership rows into one AuthContext: which user's permissions apply, what
// authority they carry, and which data-access capability downstream code may
// use. It is computed once per request (the Attach middleware memoizes it)
// and never cached across requests, since impersonation state and membership
// status can change between them.
package authctx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/dataaccess"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrUnauthenticated means no principal is present. The boundary layer turns
// this into a redirect to sign-in; it is a precondition of every protected
// operation, not a defaultable state.
var ErrUnauthenticated = errors.New("no authenticated principal")

// MembershipFinder is the slice of the membership store the resolver needs.
type MembershipFinder interface {
	Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error)
}

// AuthContext is the effective-identity decision for one request.
type AuthContext struct {
	// EffectiveUserID is whose permissions apply: the impersonated subject
	// when a delegation is active, otherwise the principal.
	EffectiveUserID primitive.ObjectID

	// IsStaffAdmin reports whether the real principal is on the allow-list.
	// It never reflects the impersonated subject (there are no staff subjects).
	IsStaffAdmin bool

	// IsImpersonating reports whether a delegation is active.
	IsImpersonating bool

	// StaffUserID is the real principal's id when IsStaffAdmin; under
	// impersonation it is the actor behind EffectiveUserID.
	StaffUserID primitive.ObjectID

	// DataAccess is the capability downstream reads/writes must present to
	// the stores' user-scoped operations.
	DataAccess dataaccess.Capability
}

// AuditStamp returns the stamp every mutation made under this context must
// carry: the real staff actor when impersonating, nothing otherwise.
func (a AuthContext) AuditStamp() audit.Stamp {
	if a.IsImpersonating {
		return audit.ForStaffActor(a.StaffUserID)
	}
	return audit.None()
}

// Resolver computes AuthContexts.
type Resolver struct {
	allow       *staff.AllowList
	imp         *impersonate.Manager
	memberships MembershipFinder
	log         *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(allow *staff.AllowList, imp *impersonate.Manager, memberships MembershipFinder, logger *zap.Logger) *Resolver {
	return &Resolver{
		allow:       allow,
		imp:         imp,
		memberships: memberships,
		log:         logger,
	}
}

// Resolve computes the AuthContext for the request's principal.
//
// Staff admins always get the elevated capability: when impersonating they
// are not themselves members of anything and the restricted path could not
// authorize them; when acting as themselves they have full visibility.
// Everyone else gets the restricted capability scoped to their own id.
//
// Resolution is deterministic given (principal, delegation, membership rows)
// and idempotent within a request. If the request passed through Attach, the
// memoized value is returned.
func (res *Resolver) Resolve(r *http.Request) (AuthContext, error) {
	if cached, ok := fromContext(r.Context()); ok {
		return cached, nil
	}

	u, ok := auth.CurrentUser(r)
	if !ok {
		return AuthContext{}, ErrUnauthenticated
	}

	uid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		// Malformed id in session: fail closed, treat as unauthenticated.
		res.log.Warn("malformed user id in session", zap.String("user_id", u.ID))
		return AuthContext{}, fmt.Errorf("%w: bad session user id", ErrUnauthenticated)
	}

	if !res.allow.IsStaffAdmin(u.Email) {
		// Ordinary member. Any delegation cookie lying around is ignored;
		// impersonation is meaningless without a staff principal.
		return AuthContext{
			EffectiveUserID: uid,
			DataAccess:      dataaccess.Restricted(uid),
		}, nil
	}

	if d := res.imp.Context(r); d != nil && d.StaffUserID == uid {
		return AuthContext{
			EffectiveUserID: d.TargetUserID,
			IsStaffAdmin:    true,
			IsImpersonating: true,
			StaffUserID:     d.StaffUserID,
			DataAccess:      dataaccess.Elevated(),
		}, nil
	}

	return AuthContext{
		EffectiveUserID: uid,
		IsStaffAdmin:    true,
		StaffUserID:     uid,
		DataAccess:      dataaccess.Elevated(),
	}, nil
}

// IsNeighborhoodAdmin reports whether the effective identity carries admin
// authority in the given neighborhood.
//
// A staff admin acting as themselves always does. An impersonating staff
// admin does NOT inherit that: authority comes only from the subject's own
// membership row, so impersonation faithfully reproduces what the subject
// can do and nothing more. Lookup errors fail closed.
func (res *Resolver) IsNeighborhoodAdmin(ctx context.Context, actx AuthContext, neighborhoodID primitive.ObjectID) (bool, error) {
	if actx.IsStaffAdmin && !actx.IsImpersonating {
		return true, nil
	}

	m, err := res.memberships.Find(ctx, actx.EffectiveUserID, neighborhoodID)
	if err != nil {
		return false, fmt.Errorf("membership lookup for %s in %s: %w",
			actx.EffectiveUserID.Hex(), neighborhoodID.Hex(), err)
	}
	return m != nil && m.IsActiveAdmin(), nil
}

// context memoization

type ctxKey string

const authCtxKey ctxKey = "authContext"

func fromContext(ctx context.Context) (AuthContext, bool) {
	v, ok := ctx.Value(authCtxKey).(AuthContext)
	return v, ok
}

// FromRequest returns the memoized AuthContext installed by Attach.
func FromRequest(r *http.Request) (AuthContext, bool) {
	return fromContext(r.Context())
}

// Attach resolves the AuthContext once and stores it in the request context.
// Anonymous requests pass through unresolved; protected routes still guard
// with auth.RequireSignedIn.
func (res *Resolver) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actx, err := res.Resolve(r); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), authCtxKey, actx))
		}
		next.ServeHTTP(w, r)
	})
}
