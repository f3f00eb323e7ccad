/*
Package configs is responsible for loading and parsing the application's configuration settings.

Values come from operating system environment variables. An optional .env file in the
working directory is loaded first; variables already set in the environment win.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPort = 8080

	// defaultDevUsers are the two chat members used when CHAT_USERS is unset in development.
	defaultDevUsers = "rafee@12:2632,partner:0000"

	devJWTSecret = "your_default_insecure_secret_key_change_me"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment   string
	Port          int
	PowDifficulty int
	StaticDir     string

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Users maps each chat member's identity to its plaintext password.
	Users map[string]string
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads an optional .env file, then parses the configuration from
// environment variables.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return FromEnv()
}

// FromEnv parses the configuration from environment variables, applying defaults
// and validating each value.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := intEnv("PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	difficulty, err := intEnv("POW_DIFFICULTY", 0)
	if err != nil {
		return nil, err
	}
	if difficulty < 0 || difficulty > 64 {
		return nil, fmt.Errorf("POW_DIFFICULTY must be between 0 and 64, got %d", difficulty)
	}
	cfg.PowDifficulty = difficulty

	cfg.StaticDir = strings.TrimSpace(os.Getenv("STATIC_DIR"))

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = devJWTSecret
	}

	// --- Chat Members ---
	usersStr := os.Getenv("CHAT_USERS")
	if usersStr == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("CHAT_USERS environment variable is required in %s environment", cfg.Environment)
		}
		usersStr = defaultDevUsers
	}

	users, err := ParseUsers(usersStr)
	if err != nil {
		return nil, err
	}
	cfg.Users = users

	return cfg, nil
}

// ParseUsers parses "id:password,id:password". Identities may contain '@' but not ':'.
func ParseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, password, ok := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" || password == "" {
			return nil, fmt.Errorf("invalid CHAT_USERS entry %q: expected id:password", entry)
		}

		if _, dup := users[id]; dup {
			return nil, fmt.Errorf("duplicate CHAT_USERS identity %q", id)
		}
		users[id] = password
	}

	return users, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
