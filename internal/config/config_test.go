package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.JWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("Identity.JWKSURL = %q", cfg.Identity.JWKSURL)
	}
	if cfg.Identity.Audience != "forma-designer" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if !cfg.Layouts.HotReload {
		t.Error("Layouts.HotReload = false, want true")
	}
	if cfg.Layouts.DefaultDataType != "permit-model" {
		t.Errorf("Layouts.DefaultDataType = %q", cfg.Layouts.DefaultDataType)
	}
	if cfg.Editor.SaveDebounce != 250*time.Millisecond {
		t.Errorf("Editor.SaveDebounce = %v, want 250ms", cfg.Editor.SaveDebounce)
	}
	if cfg.Idempotency.Store.DefaultTTL != 15*time.Minute {
		t.Errorf("Idempotency.Store.DefaultTTL = %v, want 15m", cfg.Idempotency.Store.DefaultTTL)
	}

	if len(cfg.DataModels.Sources) != 1 {
		t.Fatalf("DataModels.Sources = %d entries, want 1", len(cfg.DataModels.Sources))
	}
	src := cfg.DataModels.Sources[0]
	if src.DataType != "permit-model" {
		t.Errorf("source DataType = %q", src.DataType)
	}
	if src.RootSchema != "PermitModel" {
		t.Errorf("source RootSchema = %q", src.RootSchema)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Editor.SaveDebounce != 400*time.Millisecond {
		t.Errorf("default Editor.SaveDebounce = %v, want 400ms", cfg.Editor.SaveDebounce)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("default Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Identity.RequiredRole != "designer" {
		t.Errorf("default Identity.RequiredRole = %q, want designer", cfg.Identity.RequiredRole)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORMA_SERVER_PORT", "3000")
	t.Setenv("FORMA_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("FORMA_IDENTITY_JWKS_URL", "https://env-issuer.com/.well-known/jwks.json")
	t.Setenv("FORMA_IDENTITY_AUDIENCE", "env-audience")
	t.Setenv("FORMA_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "env-audience" {
		t.Errorf("Identity.Audience = %q, want env override", cfg.Identity.Audience)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "forma-designer"
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_unknown_storage_driver(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	cfg.Identity.Audience = "forma-designer"
	cfg.Storage.Driver = "cassandra"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() with unknown storage driver should return error")
	}
}

func TestValidate_rules_provider(t *testing.T) {
	base := func() *Config {
		cfg := Defaults()
		cfg.Identity.Issuer = "https://auth.example.com"
		cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
		cfg.Identity.Audience = "forma-designer"
		return cfg
	}

	cfg := base()
	cfg.Rules.Provider = "magic"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with unknown rules provider should return error")
	}

	cfg = base()
	cfg.Rules.Provider = "static"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with static provider and no path should return error")
	}
	cfg.Rules.Path = "/etc/forma/rules.yaml"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	cfg = base()
	cfg.Rules.Provider = "http"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with http provider and no base_url should return error")
	}
	cfg.Rules.BaseURL = "https://rules.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad_env_priority_over_file(t *testing.T) {
	// File sets port 9090, env sets 5555, env wins.
	t.Setenv("FORMA_SERVER_PORT", "5555")
	_ = os.Setenv("FORMA_IDENTITY_ISSUER", "")
	_ = os.Setenv("FORMA_IDENTITY_JWKS_URL", "")
	_ = os.Setenv("FORMA_IDENTITY_AUDIENCE", "")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5555 {
		t.Errorf("Server.Port = %d, want 5555 (env override beats file)", cfg.Server.Port)
	}
}
