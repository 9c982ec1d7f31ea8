// internal/domain/models/item.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item is a lending-library listing scoped to one neighborhood. When a member
// moves out, their items in that neighborhood are removed (best-effort).
type Item struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`
	OwnerID        primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	Title          string             `bson:"title" json:"title"`
	TitleCI        string             `bson:"title_ci" json:"title_ci"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	Category       string             `bson:"category,omitempty" json:"category,omitempty"`

	StaffActorID *primitive.ObjectID `bson:"staff_actor_id,omitempty" json:"staff_actor_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
