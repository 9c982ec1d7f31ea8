// internal/domain/models/post.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a bulletin-board entry scoped to one neighborhood. Body is stored
// as sanitized HTML (bluemonday UGC policy applied at the boundary).
type Post struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NeighborhoodID primitive.ObjectID `bson:"neighborhood_id" json:"neighborhood_id"`
	AuthorID       primitive.ObjectID `bson:"author_id" json:"author_id"`
	Title          string             `bson:"title" json:"title"`
	Body           string             `bson:"body" json:"body"`

	StaffActorID *primitive.ObjectID `bson:"staff_actor_id,omitempty" json:"staff_actor_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
