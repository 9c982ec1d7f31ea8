// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	authgooglefeature "github.com/stahlscott/blockclub/internal/app/features/authgoogle"
	dashboardfeature "github.com/stahlscott/blockclub/internal/app/features/dashboard"
	healthfeature "github.com/stahlscott/blockclub/internal/app/features/health"
	itemsfeature "github.com/stahlscott/blockclub/internal/app/features/items"
	loginfeature "github.com/stahlscott/blockclub/internal/app/features/login"
	logoutfeature "github.com/stahlscott/blockclub/internal/app/features/logout"
	membershipsfeature "github.com/stahlscott/blockclub/internal/app/features/memberships"
	neighborhoodsfeature "github.com/stahlscott/blockclub/internal/app/features/neighborhoods"
	postsfeature "github.com/stahlscott/blockclub/internal/app/features/posts"
	profilefeature "github.com/stahlscott/blockclub/internal/app/features/profile"
	staffpanelfeature "github.com/stahlscott/blockclub/internal/app/features/staffpanel"
	"github.com/stahlscott/blockclub/internal/app/policy/membershippolicy"
	auditstore "github.com/stahlscott/blockclub/internal/app/store/audit"
	itemstore "github.com/stahlscott/blockclub/internal/app/store/items"
	membershipstore "github.com/stahlscott/blockclub/internal/app/store/memberships"
	neighborhoodstore "github.com/stahlscott/blockclub/internal/app/store/neighborhoods"
	"github.com/stahlscott/blockclub/internal/app/store/oauthstate"
	poststore "github.com/stahlscott/blockclub/internal/app/store/posts"
	userstore "github.com/stahlscott/blockclub/internal/app/store/users"
	"github.com/stahlscott/blockclub/internal/app/system/auditlog"
	"github.com/stahlscott/blockclub/internal/app/system/auth"
	"github.com/stahlscott/blockclub/internal/app/system/authctx"
	"github.com/stahlscott/blockclub/internal/app/system/impersonate"
	"github.com/stahlscott/blockclub/internal/app/system/staff"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// BlockClub wires the identity chain here: session middleware loads the
// signed-in principal, the auth-context resolver folds in the staff
// allow-list and any impersonation delegation, and every feature downstream
// reads identity only through that resolved context.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	allow := staff.NewAllowList(staff.ParseList(appCfg.StaffAdmins))
	imp := impersonate.NewManager([]byte(appCfg.SessionKey), allow, appCfg.ImpersonationMaxAge, secure, logger)

	db := deps.MongoDatabase
	users := userstore.New(db)
	neighborhoods := neighborhoodstore.New(db)
	memberships := membershipstore.New(db)
	posts := poststore.New(db)
	items := itemstore.New(db)
	states := oauthstate.New(db)

	resolver := authctx.NewResolver(allow, imp, memberships, logger)
	auditLogger := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})
	policy := membershippolicy.New(memberships, neighborhoods, items, resolver, logger)

	r := chi.NewRouter()
	r.Use(sessionMgr.LoadSessionUser)
	r.Use(resolver.Attach)

	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(deps.MongoClient, logger)))
	r.Mount("/", loginfeature.Routes(loginfeature.NewHandler(users, sessionMgr, auditLogger, logger)))
	r.Mount("/logout", logoutfeature.Routes(logoutfeature.NewHandler(sessionMgr, imp, auditLogger, logger)))

	google := authgooglefeature.NewHandler(users, states, sessionMgr, auditLogger,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	if google.IsConfigured() {
		r.Mount("/auth/google", authgooglefeature.Routes(google))
	} else {
		logger.Info("Google OAuth not configured; /auth/google is disabled")
	}

	// Everything below requires a signed-in session. The neighborhood-scoped
	// features register absolute paths on the group router because they share
	// the /neighborhoods/{neighborhoodID} prefix.
	r.Group(func(r chi.Router) {
		r.Use(sessionMgr.RequireSignedIn)

		r.Mount("/dashboard", dashboardfeature.Routes(dashboardfeature.NewHandler(memberships, resolver, logger)))
		r.Mount("/profile", profilefeature.Routes(profilefeature.NewHandler(users, memberships, resolver, auditLogger, logger)))
		r.Mount("/staff", staffpanelfeature.Routes(staffpanelfeature.NewHandler(users, auditstore.New(db), allow, imp, auditLogger, logger)))

		neighborhoodsfeature.Register(r, neighborhoodsfeature.NewHandler(neighborhoods, resolver, auditLogger, logger))
		membershipsfeature.Register(r, membershipsfeature.NewHandler(policy, memberships, neighborhoods, resolver, auditLogger, logger))
		postsfeature.Register(r, postsfeature.NewHandler(posts, memberships, neighborhoods, resolver, logger))
		itemsfeature.Register(r, itemsfeature.NewHandler(items, memberships, neighborhoods, resolver, logger))
	})

	return r, nil
}
