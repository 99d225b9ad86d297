package internal

import (
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	Grid    GridConfig        `yaml:"grid"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	CORS    CORSConfig        `yaml:"cors"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	return c.SQLite.Validate()
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

// ContentConfig describes the content tree.
//
// Root is the directory holding the tabs. Prefix is the path prefix clients
// send in front of content-relative paths (the browser editor sends
// "content/tab1/row1/cell2/_index.md").
type ContentConfig struct {
	Root      string `yaml:"root"`
	Prefix    string `yaml:"prefix"`
	IndexFile string `yaml:"index_file"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Prefix, validation.Required, validation.By(trailingSlash)),
		validation.Field(&c.IndexFile, validation.Required, validation.By(baseName)),
	)
}

func trailingSlash(value any) error {
	s, _ := value.(string)
	if !strings.HasSuffix(s, "/") {
		return fmt.Errorf("must end with /")
	}
	return nil
}

func baseName(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("must be a file name, not a path")
	}
	return nil
}

// GridConfig holds grid engine settings.
type GridConfig struct {
	DefaultCells int `yaml:"default_cells"`
}

// Validate validates the grid configuration.
func (c *GridConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultCells, validation.Required, validation.Min(1), validation.Max(702)),
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

// CORSConfig holds the allowed browser origins. Empty allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3001,
			},
		},
		Content: ContentConfig{
			Root:      "./content",
			Prefix:    "content/",
			IndexFile: "_index.md",
		},
		Grid: GridConfig{
			DefaultCells: 3,
		},
		SQLite: SQLiteConfig{
			Path: "./gridedit.db",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}
