package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/stahlscott/blockclub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with the given name and email.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Email:      email,
		AuthMethod: "password",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateNeighborhood creates a test neighborhood. requireApproval controls the
// join policy new members are evaluated against.
func (f *Fixtures) CreateNeighborhood(ctx context.Context, name string, requireApproval bool) models.Neighborhood {
	f.t.Helper()

	now := time.Now().UTC()
	n := models.Neighborhood{
		ID:              primitive.NewObjectID(),
		Slug:            text.Fold(name),
		Name:            name,
		NameCI:          text.Fold(name),
		City:            "Test City",
		State:           "TS",
		RequireApproval: requireApproval,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := f.db.Collection("neighborhoods").InsertOne(ctx, n)
	if err != nil {
		f.t.Fatalf("failed to create test neighborhood: %v", err)
	}

	return n
}

// CreateMembership creates a membership row directly, bypassing join policy.
func (f *Fixtures) CreateMembership(ctx context.Context, userID, neighborhoodID primitive.ObjectID, role, status string) models.Membership {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.Membership{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		NeighborhoodID: neighborhoodID,
		Role:           role,
		Status:         status,
		JoinedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := f.db.Collection("memberships").InsertOne(ctx, m)
	if err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}

	return m
}

// CreateItem creates a lending-library item owned by the given member.
func (f *Fixtures) CreateItem(ctx context.Context, ownerID, neighborhoodID primitive.ObjectID, title string) models.Item {
	f.t.Helper()

	now := time.Now().UTC()
	item := models.Item{
		ID:             primitive.NewObjectID(),
		OwnerID:        ownerID,
		NeighborhoodID: neighborhoodID,
		Title:          title,
		TitleCI:        text.Fold(title),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := f.db.Collection("items").InsertOne(ctx, item)
	if err != nil {
		f.t.Fatalf("failed to create test item: %v", err)
	}

	return item
}
