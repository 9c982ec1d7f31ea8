// internal/app/store/posts/poststore.go
package poststore

import (
	"context"
	"errors"
	"time"

	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound means no post matched.
var ErrNotFound = errors.New("post not found")

// Store manages bulletin-board posts.
type Store struct {
	c *mongo.Collection
}

// New creates a post Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("posts")}
}

// EnsureIndexes creates the board listing index (newest first).
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "neighborhood_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_posts_neighborhood_created"),
	})
	return err
}

// Create inserts a post. Body must already be sanitized by the caller.
func (s *Store) Create(ctx context.Context, p models.Post, stamp audit.Stamp) (models.Post, error) {
	now := time.Now().UTC()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.StaffActorID = stamp.StaffActorID()
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Post{}, err
	}
	return p, nil
}

// GetByID returns the post with the given id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var p models.Post
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByNeighborhood returns a neighborhood's posts, newest first.
func (s *Store) ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID, limit int64) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx, bson.M{"neighborhood_id": neighborhoodID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var posts []models.Post
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Delete removes one post.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
