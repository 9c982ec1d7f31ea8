package bootstrap

import (
	"testing"
	"time"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "blockclub_test",
		SessionKey:          "test-session-key-0123456789ABCDEF",
		StaffAdmins:         "staff@example.com",
		ImpersonationMaxAge: time.Hour,
	}
}

func TestValidateConfig_Accepts(t *testing.T) {
	coreCfg := &config.CoreConfig{Env: "dev"}
	if err := ValidateConfig(coreCfg, validAppConfig(), testLogger()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateConfig_RejectsBadMongoURI(t *testing.T) {
	appCfg := validAppConfig()
	appCfg.MongoURI = "http://not-a-mongo-uri"

	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err == nil {
		t.Fatal("expected an error for a non-mongodb URI")
	}
}

func TestValidateConfig_RejectsDevKeyInProd(t *testing.T) {
	appCfg := validAppConfig()
	appCfg.SessionKey = "dev-only-change-me-please-0123456789ABCDEF"

	if err := ValidateConfig(&config.CoreConfig{Env: "prod"}, appCfg, testLogger()); err == nil {
		t.Fatal("expected the dev session key to be rejected in prod")
	}
	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err != nil {
		t.Fatalf("dev key should be fine outside prod, got %v", err)
	}
}

func TestValidateConfig_RejectsHalfConfiguredGoogle(t *testing.T) {
	appCfg := validAppConfig()
	appCfg.GoogleClientID = "client-id-only"

	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err == nil {
		t.Fatal("expected an error when only one Google credential is set")
	}

	appCfg.GoogleClientSecret = "secret"
	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err != nil {
		t.Fatalf("both credentials set should pass, got %v", err)
	}
}

func TestValidateConfig_RejectsNonPositiveImpersonationAge(t *testing.T) {
	appCfg := validAppConfig()
	appCfg.ImpersonationMaxAge = 0

	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err == nil {
		t.Fatal("expected an error for a zero impersonation lifetime")
	}
}

func TestValidateConfig_AllowsEmptyStaffList(t *testing.T) {
	// A service with no staff admins is degraded but startable.
	appCfg := validAppConfig()
	appCfg.StaffAdmins = ""

	if err := ValidateConfig(&config.CoreConfig{Env: "dev"}, appCfg, testLogger()); err != nil {
		t.Fatalf("empty staff list should only warn, got %v", err)
	}
}
