// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a resident profile. Staff admins never have a User row's worth of
// neighborhood relationships; they hold no memberships and act through
// impersonation instead.
//
// Group/neighborhood relationships are not embedded here. Use the memberships
// collection to discover a user's neighborhoods.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"full_name_ci"` // lowercase, diacritics-stripped
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address    string             `bson:"address,omitempty" json:"address,omitempty"`
	AuthMethod string             `bson:"auth_method,omitempty" json:"auth_method,omitempty"` // "password" | "google"

	// PasswordHash is set only for password-auth users (bcrypt).
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	// StaffActorID records the real staff actor when the most recent profile
	// mutation was performed under impersonation.
	StaffActorID *primitive.ObjectID `bson:"staff_actor_id,omitempty" json:"staff_actor_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
