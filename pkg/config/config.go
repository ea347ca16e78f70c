package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvConfigDir names the directory holding application.yaml and its profiles.
	EnvConfigDir = "APPLICATION_CONFIGURATION_DIR"
	// EnvProfiles is a comma separated list of active profiles.
	EnvProfiles = "APPLICATION_PROFILES_ACTIVE"
	// EnvPrefix restricts environment overrides to variables with this prefix.
	EnvPrefix = "APPLICATION_CONFIGURATION_PREFIX"

	// DefaultConfigDir is used when neither a flag nor EnvConfigDir is given.
	DefaultConfigDir = "./configs"
)

// Defaults are the values the service runs with when nothing overrides them.
var Defaults = map[string]interface{}{
	"server.port":            4000,
	"server.readTimeout":     "15s",
	"server.writeTimeout":    "15s",
	"server.idleTimeout":     "60s",
	"server.shutdownTimeout": "10s",
	"server.lockFile":        "",
	"server.lockTimeout":     "0s",
	"logging.level":          "info",
	"logging.format":         "text",
}

// Config wraps koanf.Koanf to provide configuration access for the application.
// @see https://github.com/knadh/koanf .
// Config.prefix is both the prefix for the configuration keys and the prefix for the environment variables.
// prefix is empty for the root config.
// subconfig system is configured by appending new keys to the prefix. @see GetSubConfig
type Config struct {
	k      *koanf.Koanf
	prefix string
}

// Load loads configuration from the directory named by APPLICATION_CONFIGURATION_DIR.
// @see LoadDir
func Load() (*Config, error) {
	return LoadDir("")
}

// LoadDir layers configuration in this order, later sources winning:
//   - the built-in Defaults
//   - "application.yaml" in dir (or APPLICATION_CONFIGURATION_DIR, or "./configs" when dir is empty)
//   - "application-<profile>.yaml" for every profile in APPLICATION_PROFILES_ACTIVE, in order
//   - environment variables, restricted to APPLICATION_CONFIGURATION_PREFIX when it is set
//
// The directory and its files are optional; a missing directory leaves the defaults in place.
func LoadDir(dir string) (*Config, error) {
	k := koanf.New(".")

	// Only warnings are interesting before the real logger exists.
	tempLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if err := k.Load(confmap.Provider(Defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load default configuration: %w", err)
	}

	configDir := dir
	if configDir == "" {
		configDir = os.Getenv(EnvConfigDir)
	}
	if configDir == "" {
		configDir = DefaultConfigDir
	}

	if err := loadFiles(k, configDir, tempLogger); err != nil {
		return nil, err
	}

	envPrefix := os.Getenv(EnvPrefix)
	tempLogger.Debug("Environment variable prefix", "prefix", envPrefix)

	if envPrefix != "" {
		// Convert AUTH_SERVER_PORT to server.port
		if err := k.Load(env.Provider(envPrefix+"_", ".", func(s string) string {
			s = strings.TrimPrefix(s, envPrefix+"_")
			return envKey(k, s)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables with prefix: %w", err)
		}
	} else {
		// Convert SERVER_PORT to server.port
		if err := k.Load(env.Provider("", ".", func(s string) string {
			return envKey(k, s)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	cfg := &Config{k: k, prefix: ""}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durationKeys are the keys validate parses as durations.
var durationKeys = []string{
	"server.readTimeout",
	"server.writeTimeout",
	"server.idleTimeout",
	"server.shutdownTimeout",
	"server.lockTimeout",
}

// validate rejects values the server would otherwise misread, such as a port
// that is not a number.
func (c *Config) validate() error {
	portStr := c.GetString("server.port")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid server.port %q: must be a number between 0 and 65535", portStr)
	}

	for _, key := range durationKeys {
		if _, err := parseDuration(c.GetString(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// parseDuration reads a Go duration string ("15s") or a whole number of seconds ("15").
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", value)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

// loadFiles reads the base file and the active profile files from configDir.
func loadFiles(k *koanf.Koanf, configDir string, logger *slog.Logger) error {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		logger.Debug("Configuration directory does not exist, using defaults", "directory", configDir)
		return nil
	}

	baseConfigPath := filepath.Join(configDir, "application.yaml")
	if _, err := os.Stat(baseConfigPath); os.IsNotExist(err) {
		logger.Debug("Base configuration file does not exist, using defaults", "file", baseConfigPath)
	} else if err := k.Load(file.Provider(baseConfigPath), yaml.Parser()); err != nil {
		logger.Error("Failed to load base configuration", "file", baseConfigPath, "error", err)
		return fmt.Errorf("failed to load base configuration: %w", err)
	}

	for _, profile := range ActiveProfiles() {
		profileConfigPath := filepath.Join(configDir, fmt.Sprintf("application-%s.yaml", profile))
		if _, err := os.Stat(profileConfigPath); os.IsNotExist(err) {
			logger.Warn("Profile configuration file not found", "profile", profile, "file", profileConfigPath)
			continue
		}

		if err := k.Load(file.Provider(profileConfigPath), yaml.Parser()); err != nil {
			logger.Error("Failed to load profile configuration", "profile", profile, "file", profileConfigPath, "error", err)
			return fmt.Errorf("failed to load profile configuration %s: %w", profile, err)
		}
	}
	return nil
}

// ActiveProfiles returns the trimmed, non-empty profile names from APPLICATION_PROFILES_ACTIVE.
func ActiveProfiles() []string {
	var profiles []string
	for _, profile := range strings.Split(os.Getenv(EnvProfiles), ",") {
		if profile = strings.TrimSpace(profile); profile != "" {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

// envKey maps an environment variable name onto an already known leaf key, matching
// case-insensitively since keys are camelCase (server.readTimeout). Unknown names map
// to "" and are skipped, so SERVER=prod-1 cannot replace the whole server section.
func envKey(k *koanf.Koanf, name string) string {
	key := strings.ToLower(strings.ReplaceAll(name, "_", "."))
	for _, known := range k.Keys() {
		if strings.ToLower(known) == key {
			return known
		}
	}
	return ""
}

// buildKey constructs the full key with current prefix
func (c *Config) buildKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + "." + key
}

// getPropertiesWithPrefix returns a new Config instance with the specified prefix
func (c *Config) getPropertiesWithPrefix(prefix string) *Config {
	return &Config{
		k:      c.k,
		prefix: c.buildKey(prefix),
	}
}

// GetSubConfig returns a configuration instance for a specific sub-tree
func (c *Config) GetSubConfig(prefix string) *Config {
	return c.getPropertiesWithPrefix(prefix)
}

// GetString gets a string value by key
func (c *Config) GetString(key string) string {
	return c.k.String(c.buildKey(key))
}

// GetInt gets an integer value by key
func (c *Config) GetInt(key string) int {
	return c.k.Int(c.buildKey(key))
}

// GetDuration gets a duration value by key. Values are Go duration strings ("15s")
// or whole seconds (15). Unparsable values read as zero.
func (c *Config) GetDuration(key string) time.Duration {
	d, _ := parseDuration(c.GetString(key))
	return d
}

// Exists checks if a key exists
func (c *Config) Exists(key string) bool {
	return c.k.Exists(c.buildKey(key))
}

// GetStringWithDefault gets a string value with a default fallback
func (c *Config) GetStringWithDefault(key, defaultValue string) string {
	if c.Exists(key) {
		return c.GetString(key)
	}
	return defaultValue
}

// GetIntWithDefault gets an integer value with a default fallback
func (c *Config) GetIntWithDefault(key string, defaultValue int) int {
	if c.Exists(key) {
		return c.GetInt(key)
	}
	return defaultValue
}

// GetDurationWithDefault gets a duration value with a default fallback.
// Unparsable or non-positive values fall back as well.
func (c *Config) GetDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if c.Exists(key) {
		if d := c.GetDuration(key); d > 0 {
			return d
		}
	}
	return defaultValue
}

// GetLogLevel gets the log level from configuration with default fallback
func (c *Config) GetLogLevel(defaultLevel slog.Level) slog.Level {
	if c.Exists("logging.level") {
		levelStr := strings.ToLower(c.GetString("logging.level"))
		switch levelStr {
		case "debug":
			return slog.LevelDebug
		case "info":
			return slog.LevelInfo
		case "warn", "warning":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		default:
			return defaultLevel
		}
	}
	return defaultLevel
}
