package internal

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/refs"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// EnvReferenceDepth overrides references.max_depth when set.
const EnvReferenceDepth = "REFERENCE_EXTRACTION_DEPTH"

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Workspace  WorkspaceConfig   `yaml:"workspace"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Cache      CacheConfig       `yaml:"cache"`
	References ReferencesConfig  `yaml:"references"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.References.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig holds the path to the markdown workspace directory.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CacheConfig holds document cache limits. MaxBytes accepts humanized
// sizes ("64MB", "1 GiB"); empty disables the byte bound. Resistance is
// the highest access weight the evictor may still evict before falling
// back to plain LRU.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	MaxBytes   string `yaml:"max_bytes"`
	Resistance int    `yaml:"resistance"`

	maxBytes int64
}

// Validate validates the cache configuration and parses MaxBytes.
func (c *CacheConfig) Validate() error {
	c.maxBytes = 0
	if c.MaxBytes != "" {
		size, err := humanize.ParseBytes(c.MaxBytes)
		if err != nil {
			return fmt.Errorf("cache: parse max_bytes %q: %w", c.MaxBytes, err)
		}
		c.maxBytes = int64(size)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxEntries, validation.Min(0)),
		validation.Field(&c.Resistance, validation.Min(0), validation.Max(3)),
	)
}

// MaxBytesValue returns the parsed byte bound, zero when unbounded.
// Valid only after Validate.
func (c *CacheConfig) MaxBytesValue() int64 {
	return c.maxBytes
}

// ReferencesConfig bounds reference-graph traversal.
type ReferencesConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// Validate normalizes the depth, applying the REFERENCE_EXTRACTION_DEPTH
// environment override when present.
func (c *ReferencesConfig) Validate() error {
	if env := os.Getenv(EnvReferenceDepth); env != "" {
		d, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("references: parse %s %q: %w", EnvReferenceDepth, env, err)
		}
		c.MaxDepth = d
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = refs.DefaultMaxDepth
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxDepth, validation.Min(refs.MinDepth), validation.Max(refs.MaxDepth)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path: "./workspace",
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Cache: CacheConfig{
			MaxEntries: cache.DefaultMaxEntries,
		},
		References: ReferencesConfig{
			MaxDepth: refs.DefaultMaxDepth,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
