// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/stahlscott/blockclub/internal/app/store/oauthstate"
	"github.com/stahlscott/blockclub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
//
// BlockClub applies the configured Mongo operation deadlines and sweeps any
// OAuth state rows left over from interrupted sign-in flows.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	removed, err := oauthstate.New(deps.MongoDatabase).CleanupExpired(ctx)
	if err != nil {
		// Stale states are harmless; the TTL index will catch them later.
		logger.Warn("oauth state cleanup failed", zap.Error(err))
		return nil
	}
	if removed > 0 {
		logger.Info("removed expired oauth states", zap.Int64("count", removed))
	}
	return nil
}
