// internal/app/store/neighborhoods/neighborhoodstore.go
package neighborhoodstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound means no neighborhood matched.
var ErrNotFound = errors.New("neighborhood not found")

// ErrDuplicateSlug means the slug is already taken.
var ErrDuplicateSlug = errors.New("neighborhood slug already exists")

// Store manages neighborhoods.
type Store struct {
	c *mongo.Collection
}

// New creates a neighborhood Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("neighborhoods")}
}

// EnsureIndexes creates the unique slug index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("idx_neighborhoods_slug").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetName("idx_neighborhoods_name_ci"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a neighborhood. Only staff create neighborhoods, so the
// stamp is expected to be present.
func (s *Store) Create(ctx context.Context, n models.Neighborhood, stamp audit.Stamp) (models.Neighborhood, error) {
	now := time.Now().UTC()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	n.NameCI = text.Fold(n.Name)
	n.CreatedAt = now
	n.UpdatedAt = now

	doc := stamp.Apply(bson.M{
		"_id":              n.ID,
		"slug":             n.Slug,
		"name":             n.Name,
		"name_ci":          n.NameCI,
		"city":             n.City,
		"state":            n.State,
		"require_approval": n.RequireApproval,
		"created_by":       n.CreatedBy,
		"created_at":       n.CreatedAt,
		"updated_at":       n.UpdatedAt,
	})
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Neighborhood{}, ErrDuplicateSlug
		}
		return models.Neighborhood{}, err
	}
	return n, nil
}

// GetByID returns the neighborhood with the given id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Neighborhood, error) {
	var n models.Neighborhood
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetBySlug returns the neighborhood with the given slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*models.Neighborhood, error) {
	var n models.Neighborhood
	err := s.c.FindOne(ctx, bson.M{"slug": slug}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns all neighborhoods ordered by folded name.
func (s *Store) List(ctx context.Context) ([]models.Neighborhood, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.Neighborhood
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateRequireApproval flips the join policy. The change applies to future
// joins only; pending memberships keep waiting for review.
func (s *Store) UpdateRequireApproval(ctx context.Context, id primitive.ObjectID, require bool, stamp audit.Stamp) error {
	set := stamp.Apply(bson.M{
		"require_approval": require,
		"updated_at":       time.Now().UTC(),
	})
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
