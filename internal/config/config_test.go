package config

import "testing"

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestLoadConfigDefaultsToLocalStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USE_REMOTE_STORE", "")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("NOTIFICATIONS_PAGE_LIMIT", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreBackend() != "local" {
		t.Fatalf("expected local backend, got %q", cfg.StoreBackend())
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("expected normalized env, got %q", cfg.AppEnv)
	}
	if cfg.NotificationsPageLimit != 20 {
		t.Fatalf("expected fallback page limit, got %d", cfg.NotificationsPageLimit)
	}
}

func TestLoadConfigRemoteStoreRequiresDBURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USE_REMOTE_STORE", "yes")
	t.Setenv("DB_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DB_URL")
	}

	t.Setenv("DB_URL", "postgres://localhost/care")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreBackend() != "postgres" {
		t.Fatalf("expected postgres backend, got %q", cfg.StoreBackend())
	}
}
