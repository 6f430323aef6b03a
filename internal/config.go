package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/nbweb/internal/api"
	"github.com/starford/nbweb/internal/settings"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Notebook settings.Notebook `yaml:"notebook"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration and normalizes the notebook settings.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notebook.Validate(); err != nil {
		return fmt.Errorf("notebook: %w", err)
	}
	c.Notebook.Normalize()
	if err := c.SQLite.Validate(); err != nil {
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
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the location of the derived index database. The
// database can be deleted at any time and is rebuilt from the notebook.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every request may read and edit everything.
//   - "token": ReaderToken unlocks protected directories and a bearer token
//     matching EditorTokenHash (bcrypt) unlocks drafts and editing.
type AuthConfig struct {
	Mode            string `yaml:"mode"`
	ReaderToken     string `yaml:"reader_token"`
	EditorTokenHash string `yaml:"editor_token_hash"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.EditorTokenHash, validation.By(bcryptHash)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.ReaderToken == "" && c.EditorTokenHash == "" {
		return fmt.Errorf("auth: mode is %q but no reader token or editor token hash is set", AuthModeToken)
	}
	return nil
}

func bcryptHash(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return fmt.Errorf("must be a bcrypt hash: %w", err)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// API converts the configuration into the settings the API middleware reads.
func (c *AuthConfig) API() api.Auth {
	return api.Auth{
		Enabled:         c.AuthEnabled(),
		ReaderToken:     c.ReaderToken,
		EditorTokenHash: c.EditorTokenHash,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 5050,
			},
		},
		Notebook: settings.Default(),
		SQLite: SQLiteConfig{
			Path: "./nbweb.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
