package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/growthlab/internal/convert"
	"github.com/starford/growthlab/internal/upload"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	extensionRe   = regexp.MustCompile(`^\.[a-z0-9]+$`)
	sessionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	Upload  UploadConfig      `yaml:"upload"`
	Convert ConvertConfig     `yaml:"convert"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	GC      GCConfig          `yaml:"gc"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Content, &c.Upload, &c.Convert, &c.SQLite, &c.GC, &c.Auth} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  LogFile    `yaml:"log_file"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return fmt.Errorf("log_file: %w", err)
	}
	return c.HTTP.Validate()
}

// LogFile configures an optional rotating log file written alongside stdout.
type LogFile struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFile) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
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

// ContentConfig locates the content root. Session documents live in
// SessionsDir under Root; media always lives in media/ under Root.
type ContentConfig struct {
	Root        string `yaml:"root"`
	SessionsDir string `yaml:"sessions_dir"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.SessionsDir, validation.Required, validation.NotIn("media", "media/")),
	)
}

// UploadConfig holds upload validation limits.
type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	DefaultSession    string   `yaml:"default_session"`
}

// Validate validates the upload configuration.
func (c *UploadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.AllowedExtensions, validation.Required, validation.Each(validation.Match(extensionRe))),
		validation.Field(&c.DefaultSession, validation.Required, validation.Match(sessionNameRe)),
	)
}

// Options converts the section into upload service settings.
func (c *UploadConfig) Options() upload.Config {
	return upload.Config{
		MaxBytes:          c.MaxBytes,
		AllowedExtensions: c.AllowedExtensions,
		DefaultSession:    c.DefaultSession,
	}
}

// ConvertConfig holds media converter settings.
type ConvertConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	AnimatedTimeout time.Duration `yaml:"animated_timeout"`
	MaxWidth        int           `yaml:"max_width"`
	Quality         int           `yaml:"quality"`
	MaxConcurrent   int64         `yaml:"max_concurrent"`
}

// Validate validates the converter configuration.
func (c *ConvertConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.AnimatedTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxWidth, validation.Required, validation.Min(16)),
		validation.Field(&c.Quality, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MaxConcurrent, validation.Required, validation.Min(int64(1))),
	)
}

// Options converts the section into gateway settings.
func (c *ConvertConfig) Options() convert.Options {
	return convert.Options{
		Timeout:         c.Timeout,
		AnimatedTimeout: c.AnimatedTimeout,
		MaxWidth:        c.MaxWidth,
		Quality:         c.Quality,
		MaxConcurrent:   c.MaxConcurrent,
	}
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

// GCConfig holds garbage collection settings.
type GCConfig struct {
	// SweepMinAge keeps unreferenced media younger than this during a sweep.
	SweepMinAge time.Duration `yaml:"sweep_min_age"`
}

// Validate validates the GC configuration.
func (c *GCConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SweepMinAge, validation.Min(time.Duration(0))),
	)
}

// WatchConfig controls the sessions directory watcher.
type WatchConfig struct {
	Enabled       bool `yaml:"enabled"`
	SweepOnRemove bool `yaml:"sweep_on_remove"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
			LogFile: LogFile{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Root:        "./content",
			SessionsDir: "sessions",
		},
		Upload: UploadConfig{
			MaxBytes:          upload.DefaultMaxBytes,
			AllowedExtensions: append([]string(nil), upload.DefaultExtensions...),
			DefaultSession:    upload.DefaultSession,
		},
		Convert: ConvertConfig{
			Timeout:         30 * time.Second,
			AnimatedTimeout: 60 * time.Second,
			MaxWidth:        1600,
			Quality:         75,
			MaxConcurrent:   2,
		},
		SQLite: SQLiteConfig{
			Path: "./growthlab.db",
		},
		GC: GCConfig{
			SweepMinAge: time.Hour,
		},
		Watch: WatchConfig{
			Enabled:       true,
			SweepOnRemove: false,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
