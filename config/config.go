package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultGroups is the profession group set used when nothing overrides it.
var DefaultGroups = []string{"student", "engineer", "artist", "teacher", "scientist", "other"}

// Config holds every setting the application needs. It is built once at
// startup and handed to the components that need it.
type Config struct {
	Server struct {
		Port         string
		CookieSecure bool
	}
	Database struct {
		Path string // SQLite file, created with its directory on first run
	}
	Session struct {
		Expiration time.Duration
		Secret     []byte
		// GeneratedSecret is set when no secret was configured and a random
		// one was produced for this process.
		GeneratedSecret bool
	}
	Groups []string
	Debug  bool
}

// fileConfig is the optional YAML overlay.
type fileConfig struct {
	Port         string   `yaml:"port"`
	DatabasePath string   `yaml:"database_path"`
	SessionHours int      `yaml:"session_hours"`
	Groups       []string `yaml:"groups"`
}

// Load reads configuration from a .env file (if present), the process
// environment and an optional YAML file. path may be empty; GALAXY_CONFIG_FILE
// is consulted in that case.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	cfg := &Config{}

	// --- Server ---
	cfg.Server.Port = getEnv("GALAXY_PORT", "8080")
	cfg.Server.CookieSecure = getEnv("GALAXY_COOKIE_SECURE", "false") == "true"

	// --- Database ---
	cfg.Database.Path = getEnv("GALAXY_DB_PATH", "instance/user_data.db")

	// --- Sessions ---
	sessionHours, err := strconv.Atoi(getEnv("GALAXY_SESSION_HOURS", "24"))
	if err != nil || sessionHours <= 0 {
		return nil, fmt.Errorf("config: invalid GALAXY_SESSION_HOURS %q", os.Getenv("GALAXY_SESSION_HOURS"))
	}
	cfg.Session.Expiration = time.Duration(sessionHours) * time.Hour

	if secret := os.Getenv("GALAXY_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = []byte(secret)
	} else {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("config: failed to generate session secret: %w", err)
		}
		cfg.Session.Secret = []byte(base64.URLEncoding.EncodeToString(buf))
		cfg.Session.GeneratedSecret = true
	}

	cfg.Groups = DefaultGroups
	if groups := os.Getenv("GALAXY_GROUPS"); groups != "" {
		cfg.Groups = splitGroups(groups)
	}
	cfg.Debug = getEnv("GALAXY_DEBUG", "false") == "true"

	if path == "" {
		path = os.Getenv("GALAXY_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if len(cfg.Groups) == 0 {
		return nil, errors.New("config: at least one profession group is required")
	}
	return cfg, nil
}

// applyFile overlays non-zero values from a YAML file.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if fc.Port != "" {
		c.Server.Port = fc.Port
	}
	if fc.DatabasePath != "" {
		c.Database.Path = fc.DatabasePath
	}
	if fc.SessionHours > 0 {
		c.Session.Expiration = time.Duration(fc.SessionHours) * time.Hour
	}
	if len(fc.Groups) > 0 {
		c.Groups = splitGroups(strings.Join(fc.Groups, ","))
	}
	return nil
}

// IsGroup reports whether name is one of the configured profession groups.
func (c *Config) IsGroup(name string) bool {
	for _, g := range c.Groups {
		if g == name {
			return true
		}
	}
	return false
}

func splitGroups(s string) []string {
	var groups []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		g := strings.ToLower(strings.TrimSpace(part))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	return groups
}

// getEnv returns the value of key, or fallback when it is not set.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
