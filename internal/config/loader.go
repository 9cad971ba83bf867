package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for storefront.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError.
		viper.SetConfigName("storefront")
		viper.SetConfigType("yaml")
	}

	// STOREFRONT_API_BASE_URL overrides api.base_url.
	viper.SetEnvPrefix("STOREFRONT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// LoadDotEnv loads environment variables from the given .env files, or from
// ./.env when none are given. Variables already set are not overridden and
// missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".storefront"),
		"/etc/storefront",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for storefront.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "storefront"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every scalar key so nested values can be set
// from the environment, e.g. STOREFRONT_SESSION_STORE.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("api.base_url")
	_ = viper.BindEnv("api.timeout")
	_ = viper.BindEnv("api.breaker.max_failures")
	_ = viper.BindEnv("api.breaker.open_timeout")

	_ = viper.BindEnv("session.store")
	_ = viper.BindEnv("session.profile")
	_ = viper.BindEnv("session.ttl")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")

	_ = viper.BindEnv("telemetry.traces")
	_ = viper.BindEnv("telemetry.metrics")
	_ = viper.BindEnv("telemetry.metric_interval")

	_ = viper.BindEnv("mock_backend.addr")
	_ = viper.BindEnv("mock_backend.seed")
	_ = viper.BindEnv("mock_backend.token_ttl")
	_ = viper.BindEnv("mock_backend.secret")
	_ = viper.BindEnv("mock_backend.logins_per_minute")
	_ = viper.BindEnv("mock_backend.login_burst")
	// mock_backend.allowed_origins is a list; set it in the config file.
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates and returns the Config.
// Callers applying CLI flag overrides should use LoadConfigRaw instead and
// call SetDevDefaults and Validate themselves.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: environment and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
