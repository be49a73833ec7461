// Package config loads runtime settings from MNEMOSYNE_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rcliao/mnemosyne/internal/compact"
	"github.com/rcliao/mnemosyne/internal/rank"
)

const envPrefix = "MNEMOSYNE_"

// MinSecretLen is the shortest accepted JWT signing secret, in bytes.
const MinSecretLen = 32

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Identity IdentityConfig
	Ranking  RankingConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Driver      string // sqlite or postgres
	Path        string
	PostgresDSN string
}

type ServerConfig struct {
	HTTPAddr string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration
	// HeaderIdentity trusts X-User-Id / X-Space-Id headers. Development only.
	HeaderIdentity bool
}

// IdentityConfig is the caller used by stdio and the CLI.
type IdentityConfig struct {
	User  string
	Space string
}

type RankingConfig struct {
	CompactMaxChars   int
	DefaultMaxTokens  int
	HalfLife          time.Duration
	KindWeights       string
	WorkspaceMatch    float64
	WorkspaceUnset    float64
	WorkspaceMismatch float64
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

// Load reads the environment. A non-empty envFile must exist; otherwise a
// .env in the working directory is used when present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	def := rank.DefaultPolicy()
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:        getEnv("DB", defaultDBPath()),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8010"),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTIssuer:      getEnv("JWT_ISSUER", "mnemosyne"),
			JWTTTL:         getEnvDuration("JWT_TTL", 30*24*time.Hour),
			HeaderIdentity: getEnvBool("HEADER_IDENTITY", false),
		},
		Identity: IdentityConfig{
			User:  getEnv("USER", "local"),
			Space: getEnv("SPACE", ""),
		},
		Ranking: RankingConfig{
			CompactMaxChars:   getEnvInt("COMPACT_MAX_CHARS", compact.DefaultMaxChars),
			DefaultMaxTokens:  getEnvInt("DEFAULT_MAX_TOKENS", 2000),
			HalfLife:          getEnvDuration("HALF_LIFE", def.HalfLife),
			KindWeights:       getEnv("KIND_WEIGHTS", rank.FormatKindWeights(def.KindWeights)),
			WorkspaceMatch:    getEnvFloat("WORKSPACE_MATCH", def.WorkspaceMatch),
			WorkspaceUnset:    getEnvFloat("WORKSPACE_UNSET", def.WorkspaceUnset),
			WorkspaceMismatch: getEnvFloat("WORKSPACE_MISMATCH", def.WorkspaceMismatch),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("MNEMOSYNE_DB is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return errors.New("MNEMOSYNE_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown MNEMOSYNE_DB_DRIVER %q (valid: sqlite, postgres)", c.Database.Driver)
	}
	if c.Ranking.CompactMaxChars < 2 {
		return fmt.Errorf("MNEMOSYNE_COMPACT_MAX_CHARS must be at least 2, got %d", c.Ranking.CompactMaxChars)
	}
	if c.Ranking.DefaultMaxTokens <= 0 {
		return fmt.Errorf("MNEMOSYNE_DEFAULT_MAX_TOKENS must be positive, got %d", c.Ranking.DefaultMaxTokens)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown MNEMOSYNE_LOG_FORMAT %q (valid: text, json)", c.Log.Format)
	}
	return nil
}

// ValidateHTTP checks the settings the HTTP transport additionally needs.
func (c *Config) ValidateHTTP() error {
	if c.Auth.HeaderIdentity {
		return nil
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("MNEMOSYNE_JWT_SECRET is required for the http transport")
	}
	if len(c.Auth.JWTSecret) < MinSecretLen {
		return fmt.Errorf("MNEMOSYNE_JWT_SECRET must be at least %d characters", MinSecretLen)
	}
	return nil
}

// Policy builds the ranking policy from the configured constants.
func (c *Config) Policy() (rank.Policy, error) {
	p := rank.DefaultPolicy()
	weights, err := rank.ParseKindWeights(c.Ranking.KindWeights)
	if err != nil {
		return p, fmt.Errorf("MNEMOSYNE_KIND_WEIGHTS: %w", err)
	}
	p.KindWeights = weights
	p.HalfLife = c.Ranking.HalfLife
	p.WorkspaceMatch = c.Ranking.WorkspaceMatch
	p.WorkspaceUnset = c.Ranking.WorkspaceUnset
	p.WorkspaceMismatch = c.Ranking.WorkspaceMismatch
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("ranking policy: %w", err)
	}
	return p, nil
}

// CompactOptions returns the compaction settings.
func (c *Config) CompactOptions() compact.Options {
	return compact.Options{MaxChars: c.Ranking.CompactMaxChars}
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown MNEMOSYNE_LOG_LEVEL %q (valid: debug, info, warn, error)", s)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mnemosyne", "memory.db")
	}
	return filepath.Join(home, ".mnemosyne", "memory.db")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
