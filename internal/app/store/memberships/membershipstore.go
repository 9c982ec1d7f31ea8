// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/dataaccess"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateMembership means the user already has a live row in this
// neighborhood (the partial unique index fired).
var ErrDuplicateMembership = errors.New("user already has a membership in this neighborhood")

// ErrNotFound means no membership matched.
var ErrNotFound = errors.New("membership not found")

var errBadRole = errors.New(`role must be "member" or "admin"`)
var errBadStatus = errors.New("unknown membership status")

func validRole(role string) bool {
	return role == models.RoleMember || role == models.RoleAdmin
}

func validStatus(status string) bool {
	switch status {
	case models.StatusPending, models.StatusActive, models.StatusInactive, models.StatusMovedOut:
		return true
	}
	return false
}

// Store manages membership rows.
type Store struct {
	c *mongo.Collection
}

// New creates a membership Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

// EnsureIndexes creates the partial unique index enforcing at most one live
// (deleted_at unset) row per (user, neighborhood), plus lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "neighborhood_id", Value: 1}},
			Options: options.Index().
				SetName("idx_memberships_live_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"deleted_at": bson.M{"$exists": false}}),
		},
		{
			Keys:    bson.D{{Key: "neighborhood_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_memberships_neighborhood"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_memberships_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Find returns the live membership for (userID, neighborhoodID), or nil when
// none exists. Soft-deleted rows are always filtered out.
func (s *Store) Find(ctx context.Context, userID, neighborhoodID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{
		"user_id":         userID,
		"neighborhood_id": neighborhoodID,
		"deleted_at":      bson.M{"$exists": false},
	}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID returns the membership row with the given id (live or not).
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new membership row. The partial unique index makes a
// second live row for the same (user, neighborhood) fail with
// ErrDuplicateMembership, so a double-submitted join cannot land twice.
func (s *Store) Create(ctx context.Context, userID, neighborhoodID primitive.ObjectID, role, status string, stamp audit.Stamp) (models.Membership, error) {
	if !validRole(role) {
		return models.Membership{}, errBadRole
	}
	if !validStatus(status) {
		return models.Membership{}, errBadStatus
	}

	now := time.Now().UTC()
	m := models.Membership{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		NeighborhoodID: neighborhoodID,
		Role:           role,
		Status:         status,
		JoinedAt:       now,
		StaffActorID:   stamp.StaffActorID(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateMembership
		}
		return models.Membership{}, err
	}
	return m, nil
}

// UpdateStatus sets the row's status (and the audit stamp, when present).
func (s *Store) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, stamp audit.Stamp) error {
	if !validStatus(status) {
		return errBadStatus
	}
	set := stamp.Apply(bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
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

// UpdateRole sets the row's role (and the audit stamp, when present).
func (s *Store) UpdateRole(ctx context.Context, id primitive.ObjectID, role string, stamp audit.Stamp) error {
	if !validRole(role) {
		return errBadRole
	}
	set := stamp.Apply(bson.M{
		"role":       role,
		"updated_at": time.Now().UTC(),
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

// SoftDelete marks the row deleted and flips its status in one write. Used by
// decline: the row stops counting as live but its history is kept.
func (s *Store) SoftDelete(ctx context.Context, id primitive.ObjectID, status string, stamp audit.Stamp) error {
	if !validStatus(status) {
		return errBadStatus
	}
	now := time.Now().UTC()
	set := stamp.Apply(bson.M{
		"status":     status,
		"deleted_at": now,
		"updated_at": now,
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

// CountActive returns the number of live, active members in a neighborhood.
func (s *Store) CountActive(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"neighborhood_id": neighborhoodID,
		"status":          models.StatusActive,
		"deleted_at":      bson.M{"$exists": false},
	})
}

// CountEverJoined counts every row ever created for a neighborhood, including
// soft-deleted ones. The first-member bootstrap keys off this count rather
// than CountActive so that a rejoin (or a neighborhood whose members all left)
// can never re-trigger auto-activation.
func (s *Store) CountEverJoined(ctx context.Context, neighborhoodID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"neighborhood_id": neighborhoodID})
}

// ListByNeighborhood returns live memberships in a neighborhood, optionally
// filtered by status.
func (s *Store) ListByNeighborhood(ctx context.Context, neighborhoodID primitive.ObjectID, status string) ([]models.Membership, error) {
	filter := bson.M{
		"neighborhood_id": neighborhoodID,
		"deleted_at":      bson.M{"$exists": false},
	}
	if status != "" {
		filter["status"] = status
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.Membership
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByUser returns the user's live memberships across neighborhoods. The
// rows belong to one user, so the caller's capability must reach that user;
// a restricted capability scoped to someone else gets dataaccess.ErrScope.
func (s *Store) ListByUser(ctx context.Context, cap dataaccess.Capability, userID primitive.ObjectID) ([]models.Membership, error) {
	if err := cap.AllowUser(userID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx, bson.M{
		"user_id":    userID,
		"deleted_at": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.Membership
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
