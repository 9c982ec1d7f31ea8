// internal/domain/models/neighborhood.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Neighborhood is a membership-gated community. Creation is a staff-admin-only
// action; the authorization core treats it as read-only apart from the
// require-approval policy, which decides what status a new membership starts in.
type Neighborhood struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug   string             `bson:"slug" json:"slug"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped
	City   string             `bson:"city,omitempty" json:"city,omitempty"`
	State  string             `bson:"state,omitempty" json:"state,omitempty"`

	// RequireApproval gates whether new memberships start as pending.
	// The neighborhood's very first member is auto-activated regardless.
	RequireApproval bool `bson:"require_approval" json:"require_approval"`

	CreatedBy primitive.ObjectID `bson:"created_by" json:"created_by"` // staff user
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
