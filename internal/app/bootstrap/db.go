// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	auditstore "github.com/stahlscott/blockclub/internal/app/store/audit"
	itemstore "github.com/stahlscott/blockclub/internal/app/store/items"
	membershipstore "github.com/stahlscott/blockclub/internal/app/store/memberships"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/store/oauthstate"
	poststore "github.com/stahlscott/blockclub/internal/app/store/posts"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB establishes the MongoDB connection and verifies it with a ping.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		// Release the half-open client; the returned error aborts startup.
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// EnsureSchema creates the indexes every store depends on. The membership
// store's partial unique index is load-bearing for rejoin semantics, so a
// failure here aborts startup rather than limping along without it.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	ensurers := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", userstore.New(db).EnsureIndexes},
		{"neighborhoods", neighborhoodstore.New(db).EnsureIndexes},
		{"memberships", membershipstore.New(db).EnsureIndexes},
		{"posts", poststore.New(db).EnsureIndexes},
		{"items", itemstore.New(db).EnsureIndexes},
		{"audit_events", auditstore.New(db).EnsureIndexes},
		{"oauth_states", oauthstate.New(db).EnsureIndexes},
	}
	for _, e := range ensurers {
		if err := e.fn(ctx); err != nil {
			logger.Error("ensure indexes failed", zap.String("collection", e.name), zap.Error(err))
			return fmt.Errorf("ensure %s indexes: %w", e.name, err)
		}
	}

	logger.Info("MongoDB indexes ensured", zap.Int("collections", len(ensurers)))
	return nil
}
