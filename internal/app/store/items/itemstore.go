// internal/app/store/items/itemstore.go
package itemstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound means no item matched.
var ErrNotFound = errors.New("item not found")

// Store manages lending-library items.
type Store struct {
	c *mongo.Collection
}

// New creates an item Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("items")}
}

// EnsureIndexes creates the listing indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "neighborhood_id", Value: 1}, {Key: "title_ci", Value: 1}},
			Options: options.Index().SetName("idx_items_neighborhood_title"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "neighborhood_id", Value: 1}},
			Options: options.Index().SetName("idx_items_owner"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts an item listing.
func (s *Store) Create(ctx context.Context, item models.Item, stamp audit.Stamp) (models.Item, error) {
	now := time.Now().UTC()
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	item.TitleCI = text.Fold(item.Title)
	item.StaffActorID = stamp.StaffActorID()
	item.CreatedAt = now
	item.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, item); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

// GetByID returns the item with the given id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Item, error) {
	var item models.Item
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByNeighborhood returns a neighborhood's items ordered by folded title.
func (s *Store) ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx,
		bson.M{"neighborhood_id": neighborhoodID},
		options.Find().SetSort(bson.D{{Key: "title_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var items []models.Item
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes one item.
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

// DeleteByOwnerAndNeighborhood removes all of a member's items in one
// neighborhood. Move-out cascades through here; a member who leaves stops
// lending where they no longer live.
func (s *Store) DeleteByOwnerAndNeighborhood(ctx context.Context, ownerID, neighborhoodID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"owner_id":        ownerID,
		"neighborhood_id": neighborhoodID,
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
