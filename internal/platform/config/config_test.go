package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "market-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "market-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Store.Driver != StoreDriverFirestore {
		t.Errorf("expected firestore driver, got %s", cfg.Store.Driver)
	}
	if cfg.Auth.Mode != AuthModeFirebase {
		t.Errorf("expected firebase auth mode, got %s", cfg.Auth.Mode)
	}
	if cfg.RateLimits.GuestOrderWindow != 10*time.Minute {
		t.Errorf("unexpected guest window: %s", cfg.RateLimits.GuestOrderWindow)
	}
	if cfg.RateLimits.GuestOrderMax != 10 {
		t.Errorf("unexpected guest max: %d", cfg.RateLimits.GuestOrderMax)
	}
	if cfg.Orders.TxAttempts != 5 || cfg.Orders.TxTimeout != 15*time.Second {
		t.Errorf("unexpected tx settings: %+v", cfg.Orders)
	}
	if cfg.Orders.LowStockThreshold != 5 {
		t.Errorf("unexpected low stock threshold: %d", cfg.Orders.LowStockThreshold)
	}
	if cfg.Notifications.Topic != "order-events" {
		t.Errorf("unexpected topic: %s", cfg.Notifications.Topic)
	}
	if cfg.Idempotency.Backend != IdempotencyBackendMemory || cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected idempotency settings: %+v", cfg.Idempotency)
	}
}

func TestLoadLegacyRateLimitKeys(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":                 "memory",
		"API_FIREBASE_PROJECT_ID":          "market-dev",
		"GUEST_ORDER_RATE_LIMIT_WINDOW_MS": "60000",
		"GUEST_ORDER_RATE_LIMIT_MAX":       "2",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RateLimits.GuestOrderWindow != time.Minute {
		t.Errorf("expected 1m window, got %s", cfg.RateLimits.GuestOrderWindow)
	}
	if cfg.RateLimits.GuestOrderMax != 2 {
		t.Errorf("expected max 2, got %d", cfg.RateLimits.GuestOrderMax)
	}

	env["API_GUEST_ORDER_RATE_LIMIT_WINDOW"] = "30s"
	env["API_GUEST_ORDER_RATE_LIMIT_MAX"] = "7"
	cfg, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.RateLimits.GuestOrderWindow != 30*time.Second || cfg.RateLimits.GuestOrderMax != 7 {
		t.Errorf("expected API_ keys to win, got %+v", cfg.RateLimits)
	}
}

func TestLoadPostgresWithSecretDSN(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":    "postgres",
		"API_POSTGRES_DSN":    "sm://market/postgres-dsn",
		"API_AUTH_MODE":       "jwt",
		"API_AUTH_JWT_SECRET": "secret://market/jwt",
	}
	secrets := map[string]string{
		"secret://market/postgres-dsn": "postgres://market@db/market",
		"secret://market/jwt":          "s3cret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://market@db/market" {
		t.Errorf("unexpected dsn %q", cfg.Postgres.DSN)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("unexpected jwt secret %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Postgres.AutoMigrate {
		t.Error("expected auto migrate enabled by default")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"market-dot\"\n# comment\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "market-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) < 2 {
		t.Fatalf("expected firestore and firebase fields, got %v", fields)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "market-dev",
		"API_STORE_DRIVER":        "mongo",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 1 || got[0] != "Store.Driver" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestLoadRejectsUnknownIdempotencyBackend(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "market-dev",
		"API_IDEMPOTENCY_BACKEND": "redis",
		"API_IDEMPOTENCY_TTL":     "1h",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 1 || got[0] != "Idempotency.Backend" {
		t.Fatalf("unexpected fields %v", got)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "market-dev",
		"API_AUTH_JWT_SECRET":     "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "market-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Auth.JWTSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Auth.JWTSecret" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_DEFAULT_PROJECT", "market-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_DEFAULT_PROJECT"]; got != "market-prod" {
		t.Fatalf("expected system env value, got %s", got)
	}
}
