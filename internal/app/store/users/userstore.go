// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/stahlscott/blockclub/internal/app/system/audit"
	"github.com/stahlscott/blockclub/internal/app/system/dataaccess"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound means no user matched.
var ErrNotFound = errors.New("user not found")

// ErrDuplicateEmail means the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Store manages user accounts.
type Store struct {
	c *mongo.Collection
}

// New creates a user Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// EnsureIndexes creates the unique email index and the folded-name index used
// by directory search.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_users_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "full_name_ci", Value: 1}},
			Options: options.Index().SetName("idx_users_full_name_ci"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetByID returns the user with the given id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user with exactly this email. Email comparison is
// exact; the allow-list check upstream depends on that.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user account.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.FullNameCI = text.Fold(u.FullName)
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// FindOrCreateByEmail returns the account for email, creating one on first
// sign-in. Used by the OAuth callback, where the identity provider has already
// verified the address.
func (s *Store) FindOrCreateByEmail(ctx context.Context, email, fullName, authMethod string) (models.User, error) {
	existing, err := s.GetByEmail(ctx, email)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.User{}, err
	}

	created, err := s.Create(ctx, models.User{
		FullName:   fullName,
		Email:      email,
		AuthMethod: authMethod,
	})
	if errors.Is(err, ErrDuplicateEmail) {
		// Lost a race with a concurrent first sign-in; the row exists now.
		existing, err := s.GetByEmail(ctx, email)
		if err != nil {
			return models.User{}, err
		}
		return *existing, nil
	}
	return created, err
}

// UpdateProfile updates the user's editable profile fields. The write is
// user-scoped: a restricted capability can only reach its own row, while the
// elevated capability (staff impersonation) reaches the subject's.
func (s *Store) UpdateProfile(ctx context.Context, cap dataaccess.Capability, id primitive.ObjectID, fullName, phone, address string, stamp audit.Stamp) error {
	if err := cap.AllowUser(id); err != nil {
		return err
	}
	set := stamp.Apply(bson.M{
		"full_name":    fullName,
		"full_name_ci": text.Fold(fullName),
		"phone":        phone,
		"address":      address,
		"updated_at":   time.Now().UTC(),
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

// SetPasswordHash stores a new bcrypt hash for the account.
func (s *Store) SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all users ordered by folded name. Staff panel only.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListByIDs returns the users whose ids appear in ids. Missing ids are
// silently skipped.
func (s *Store) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
