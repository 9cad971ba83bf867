package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q, want %q", cfg.API.BaseURL, "http://localhost:8000")
	}
	if cfg.API.Timeout != "10s" {
		t.Errorf("Timeout = %q, want 10s", cfg.API.Timeout)
	}
	if cfg.Session.Store != "file://"+DefaultCredentialPath() {
		t.Errorf("Session.Store = %q", cfg.Session.Store)
	}
	if cfg.Session.Profile != "default" {
		t.Errorf("Session.Profile = %q, want default", cfg.Session.Profile)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.MockBackend.Addr != "127.0.0.1:8000" {
		t.Errorf("MockBackend.Addr = %q", cfg.MockBackend.Addr)
	}
	if !cfg.MockBackend.SeedEnabled() {
		t.Error("mock backend seeding should default to on")
	}
	if cfg.MockBackend.LoginsPerMinute != 10 || cfg.MockBackend.LoginBurst != 5 {
		t.Errorf("login throttle = %d/min burst %d, want 10/5", cfg.MockBackend.LoginsPerMinute, cfg.MockBackend.LoginBurst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestConfig_SetDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	seed := false
	cfg := Config{
		API:         APIConfig{BaseURL: "https://shop.example.com", Timeout: "3s"},
		Session:     SessionConfig{Store: "memory", Profile: "work"},
		MockBackend: MockBackendConfig{Seed: &seed},
	}
	cfg.SetDefaults()

	if cfg.API.BaseURL != "https://shop.example.com" || cfg.API.Timeout != "3s" {
		t.Errorf("API overwritten: %+v", cfg.API)
	}
	if cfg.Session.Store != "memory" || cfg.Session.Profile != "work" {
		t.Errorf("Session overwritten: %+v", cfg.Session)
	}
	if cfg.MockBackend.SeedEnabled() {
		t.Error("explicit seed=false overwritten")
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{LogLevel: "warn"}
	cfg.SetDevDefaults()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel changed without dev mode: %q", cfg.LogLevel)
	}

	cfg.DevMode = true
	cfg.SetDevDefaults()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug in dev mode", cfg.LogLevel)
	}
}

func TestParseStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    StoreSpec
		wantErr bool
	}{
		{in: "memory", want: StoreSpec{Kind: StoreMemory}},
		{in: "file:///tmp/creds.json", want: StoreSpec{Kind: StoreFile, Target: "/tmp/creds.json"}},
		{in: "file://", want: StoreSpec{Kind: StoreFile, Target: DefaultCredentialPath()}},
		{in: "sqlite://state.db", want: StoreSpec{Kind: StoreSQLite, Target: "state.db"}},
		{in: "redis://localhost:6379/2", want: StoreSpec{Kind: StoreRedis, Target: "redis://localhost:6379/2"}},
		{in: "sqlite://", wantErr: true},
		{in: "redis://", wantErr: true},
		{in: "postgres://db", wantErr: true},
		{in: "/tmp/creds.json", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStore(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStore(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStore(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("Duration(\"\") = %v", got)
	}
	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration(250ms) = %v", got)
	}
	if got := Duration("soon", time.Second); got != time.Second {
		t.Errorf("Duration(soon) = %v", got)
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	t.Parallel()

	empty := t.TempDir()
	withYML := t.TempDir()
	if err := os.WriteFile(filepath.Join(withYML, "storefront.yml"), []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := findConfigFileInPaths([]string{empty}); got != "" {
		t.Errorf("found %q in empty dir", got)
	}
	if got := findConfigFileInPaths([]string{empty, withYML}); got != filepath.Join(withYML, "storefront.yml") {
		t.Errorf("findConfigFileInPaths() = %q", got)
	}
}

// resetViper isolates tests that use the global viper instance.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	yaml := `
api:
  base_url: https://shop.example.com
  timeout: 5s
  breaker:
    max_failures: 3
session:
  store: sqlite:///tmp/storefront.db
  profile: work
telemetry:
  traces: true
mock_backend:
  allowed_origins: ["http://localhost:3000"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOREFRONT_LOG_LEVEL", "warn")
	t.Setenv("STOREFRONT_SESSION_PROFILE", "from-env")

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), path)
	}
	if cfg.API.BaseURL != "https://shop.example.com" || cfg.API.Timeout != "5s" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.API.Breaker.MaxFailures != 3 || cfg.API.Breaker.OpenTimeout != "30s" {
		t.Errorf("Breaker = %+v", cfg.API.Breaker)
	}
	if cfg.Session.Store != "sqlite:///tmp/storefront.db" {
		t.Errorf("Session.Store = %q", cfg.Session.Store)
	}
	if cfg.Session.Profile != "from-env" {
		t.Errorf("Session.Profile = %q, want env override", cfg.Session.Profile)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		t.Errorf("Telemetry = %+v", cfg.Telemetry)
	}
	if len(cfg.MockBackend.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.MockBackend.AllowedOrigins)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STOREFRONT_SESSION_STORE", "memory")

	InitViper("")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want empty", ConfigFileUsed())
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Session.Store = %q, want memory", cfg.Session.Store)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	if err := os.WriteFile(path, []byte("session:\n  store: ftp://nowhere\nlog_level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	InitViper(path)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected validation error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STOREFRONT_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOREFRONT_TEST_DOTENV", "")
	os.Unsetenv("STOREFRONT_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("STOREFRONT_TEST_DOTENV"); got != "loaded" {
		t.Errorf("STOREFRONT_TEST_DOTENV = %q, want loaded", got)
	}
}
