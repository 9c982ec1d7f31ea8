// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Membership statuses.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusInactive = "inactive" // soft-declined
	StatusMovedOut = "moved_out"
)

// Membership is the authoritative join between users and neighborhoods.
// At most one row per (user_id, neighborhood_id) with deleted_at unset; the
// memberships collection enforces this with a partial unique index.
//
// Status and DeletedAt are deliberately separate fields: a moved-out row keeps
// its history and can be rejoined in place, while a declined row is
// soft-deleted (status flipped to inactive and deleted_at set) so a later join
// request creates a fresh row.
type Membership struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`
	Role           string             `bson:"role" json:"role"`     // "member" | "admin"
	Status         string             `bson:"status" json:"status"` // pending | active | inactive | moved_out
	JoinedAt       time.Time          `bson:"joined_at" json:"joined_at"`
	DeletedAt      *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	// StaffActorID records the real staff actor when the most recent mutation
	// of this row was performed under impersonation.
	StaffActorID *primitive.ObjectID `bson:"staff_actor_id,omitempty" json:"staff_actor_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Effective reports whether the row is live (not soft-deleted).
func (m Membership) Effective() bool {
	return m.DeletedAt == nil
}

// IsActiveAdmin reports whether the row currently carries admin authority.
// Role alone is not enough: a demoted or moved-out admin has none.
func (m Membership) IsActiveAdmin() bool {
	return m.Effective() && m.Role == RoleAdmin && m.Status == StatusActive
}
