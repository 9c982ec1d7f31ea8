// Package dataaccess models the two data-access modes the resolver can hand
// to downstream code: restricted (row-level, scoped to the effective user) and
// elevated (staff bypass).
//
// A Capability is a per-request token, not a database handle. Stores enforce
// it at their user-scoped operations through AllowUser, so the mode the
// resolver chose actually governs access. The resolver is the only place an
// elevated capability is minted, so elevated access cannot leak to a
// non-staff effective identity.
package dataaccess

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mode names the access level of a Capability.
type Mode string

const (
	ModeRestricted Mode = "restricted"
	ModeElevated   Mode = "elevated"
)

// ErrScope means a restricted capability was asked to act outside the user
// rows it is scoped to. Callers treat it as an authorization failure, never
// as a retryable store error.
var ErrScope = errors.New("data access outside restricted scope")

// Capability is an access-mode token bound to one request's effective
// identity.
type Capability struct {
	mode   Mode
	userID primitive.ObjectID // zero for elevated
}

// Restricted returns a capability scoped to the given user's rows.
func Restricted(userID primitive.ObjectID) Capability {
	return Capability{mode: ModeRestricted, userID: userID}
}

// Elevated returns a capability that bypasses row-level restriction.
// Only the auth-context resolver should call this.
func Elevated() Capability {
	return Capability{mode: ModeElevated}
}

// Mode returns the capability's access mode.
func (c Capability) Mode() Mode { return c.mode }

// IsElevated reports whether the capability bypasses row-level restriction.
func (c Capability) IsElevated() bool { return c.mode == ModeElevated }

// UserID returns the user a restricted capability is scoped to
// (zero for elevated capabilities).
func (c Capability) UserID() primitive.ObjectID { return c.userID }

// AllowUser reports whether the capability may touch the given user's rows.
// Elevated capabilities may touch any user's rows; restricted capabilities
// only their own. The zero Capability is scoped to nothing, so code that
// forgets to resolve an AuthContext fails closed.
func (c Capability) AllowUser(userID primitive.ObjectID) error {
	if c.mode == ModeElevated {
		return nil
	}
	if c.mode == ModeRestricted && c.userID == userID {
		return nil
	}
	return ErrScope
}
