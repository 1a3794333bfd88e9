package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Env:                 "test",
		StoreDriver:         "memory",
		JWTAccessSecret:     "access-secret",
		JWTRefreshSecret:    "refresh-secret",
		JWTAccessTTLMinutes: 15,
		JWTRefreshTTLDays:   7,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing access secret", mutate: func(c *Config) { c.JWTAccessSecret = "" }, wantErr: "JWT_ACCESS_SECRET is required"},
		{name: "missing refresh secret", mutate: func(c *Config) { c.JWTRefreshSecret = "" }, wantErr: "JWT_REFRESH_SECRET is required"},
		{name: "shared secret", mutate: func(c *Config) { c.JWTRefreshSecret = c.JWTAccessSecret }, wantErr: "must differ"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }, wantErr: "STORE_DRIVER"},
		{name: "memory in prod", mutate: func(c *Config) { c.Env = "prod" }, wantErr: "not allowed in prod"},
		{name: "bad ttl", mutate: func(c *Config) { c.JWTAccessTTLMinutes = 0 }, wantErr: "TTLs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("AUTH_RATE_WINDOW", "1m")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DATABASE_URL", "postgres://x@y/z")

	cfg := Load()

	if cfg.Env != "prod" || cfg.Port != 9090 || cfg.StoreDriver != "mongo" {
		t.Fatalf("unexpected basics: %+v", cfg)
	}

	if cfg.AuthRateWindow != time.Minute {
		t.Fatalf("AuthRateWindow = %v", cfg.AuthRateWindow)
	}

	if cfg.JWTAccessTTLMinutes != 15 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.JWTAccessTTLMinutes)
	}

	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}

	if cfg.DBURL != "postgres://x@y/z" {
		t.Fatalf("DBURL = %s", cfg.DBURL)
	}

	if cfg.RefreshTTL() != 7*24*time.Hour {
		t.Fatalf("RefreshTTL = %v", cfg.RefreshTTL())
	}
}
