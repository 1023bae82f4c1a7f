package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
)

func getTestConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "host.docker.internal"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "databridge"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  1,
		PoolMax:  5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// connectOrSkip opens a pool or skips when no database is reachable.
func connectOrSkip(t *testing.T) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewPostgresPool(ctx, getTestConfig())
	if err != nil {
		t.Skipf("Skipping integration test, database unavailable: %v", err)
	}
	return db
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "db.internal", Port: "5433", Name: "bridge",
		User: "loader", Password: "p@ss:w/rd",
	}

	dsn := DSN(cfg)

	if !strings.HasPrefix(dsn, "postgres://loader:") {
		t.Errorf("Unexpected DSN prefix: %s", dsn)
	}
	if !strings.Contains(dsn, "@db.internal:5433/bridge?sslmode=disable") {
		t.Errorf("Unexpected DSN host part: %s", dsn)
	}
	if strings.Contains(dsn, "p@ss:w/rd") {
		t.Errorf("Expected password to be escaped: %s", dsn)
	}
}

func TestNewPostgresPool_Success(t *testing.T) {
	db := connectOrSkip(t)
	defer db.Close()

	if db.Pool == nil {
		t.Error("Expected Pool to be initialized")
	}
	if db.Stats() == nil {
		t.Error("Expected stats to be available")
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewPostgresPool_InvalidHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := getTestConfig()
	cfg.Host = "invalid-host-that-does-not-exist"

	if _, err := NewPostgresPool(ctx, cfg); err == nil {
		t.Error("Expected error when connecting to invalid host")
	}
}

func TestStats_NilPool(t *testing.T) {
	db := &Database{}
	if db.Stats() != nil {
		t.Error("Expected nil stats without a pool")
	}
	db.Close()
}
