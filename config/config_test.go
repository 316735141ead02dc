package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.MaxTeamSize)
	assert.Equal(t, 3, cfg.DefaultMaxHints)
	assert.Equal(t, false, cfg.DeleteEmptyTeams)
	assert.Equal(t, 2*time.Hour, cfg.SnapshotTTL)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BIND_ADDRESS", "127.0.0.1")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DEFAULT_MAX_HINTS", "5")
	t.Setenv("DELETE_EMPTY_TEAMS", "true")
	t.Setenv("ADMIN_TOKEN_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 5, cfg.DefaultMaxHints)
	assert.Equal(t, true, cfg.DeleteEmptyTeams)
	assert.Equal(t, 30*time.Minute, cfg.AdminTokenTTL)
}

func TestLoadGeneratesJWTSecretWhenUnset(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	first, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	second, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, 64, len(first.JWTSecret))
	assert.NotEqual(t, first.JWTSecret, second.JWTSecret)

	t.Setenv("JWT_SECRET", "configured")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "configured", cfg.JWTSecret)
}

func TestLoadRejectsBadLimits(t *testing.T) {
	t.Setenv("MAX_TEAM_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero team size")
	}
}

func TestInitDBSQLite(t *testing.T) {
	cfg := &Config{DBDriver: DriverSQLite, SQLitePath: ":memory:"}
	db, err := InitDB(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestInitDBUnknownDriver(t *testing.T) {
	if _, err := InitDB(&Config{DBDriver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
