// Package config loads leapgrid configuration from defaults, leapgrid.yaml,
// LEAPGRID_* environment variables and command-line flags.
package config

import "time"

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Default configuration values.
const (
	DefaultConfigFile    = "leapgrid.yaml"
	DefaultStorePath     = ".leapgrid/explorer.db"
	DefaultOutput        = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultPageSize      = 20
	DefaultPort          = 8765
	DefaultHost          = "localhost"
	DefaultSessionMaxAge = 30 * 24 * time.Hour
	DefaultViewTTL       = 10 * time.Minute
)

// DefaultPageSizes are the rows-per-page choices offered by the UIs.
var DefaultPageSizes = []int{10, 20, 30, 40, 50}

// Config holds all CLI configuration options.
type Config struct {
	Verbose bool   `koanf:"verbose"`
	Output  string `koanf:"output" validate:"oneof=auto text markdown json"`

	Store StoreConfig `koanf:"store"`
	Grid  GridConfig  `koanf:"grid"`
	UI    UIConfig    `koanf:"ui"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// StoreConfig selects the transaction database.
type StoreConfig struct {
	Type string `koanf:"type" validate:"oneof=sqlite postgres"`
	Path string `koanf:"path" validate:"required_if=Type sqlite"`
	// DSN is the PostgreSQL connection string. ${VAR} references are
	// expanded from the environment.
	DSN string `koanf:"dsn" validate:"required_if=Type postgres"`
}

// GridConfig holds grid defaults shared by every front end.
type GridConfig struct {
	DefaultPageSize int   `koanf:"default_page_size" validate:"gte=1,lte=1000"`
	PageSizes       []int `koanf:"page_sizes" validate:"min=1,dive,gte=1,lte=1000"`
	// ParamPrefix namespaces the grid's query parameters.
	ParamPrefix string `koanf:"param_prefix" validate:"omitempty,printascii,excludesall=&=?#"`
}

// UIConfig holds configuration for the web explorer.
type UIConfig struct {
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port" validate:"gte=0,lte=65535"`
	AutoOpen      bool          `koanf:"auto_open"`
	Watch         bool          `koanf:"watch"`
	Dev           bool          `koanf:"dev"`
	SessionSecret string        `koanf:"session_secret" validate:"omitempty,min=16"`
	SessionMaxAge time.Duration `koanf:"session_max_age" validate:"gte=0"`
	ViewTTL       time.Duration `koanf:"view_ttl" validate:"gte=0"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Output: DefaultOutput,
		Store: StoreConfig{
			Type: StoreSQLite,
			Path: DefaultStorePath,
		},
		Grid: GridConfig{
			DefaultPageSize: DefaultPageSize,
			PageSizes:       append([]int(nil), DefaultPageSizes...),
		},
		UI: UIConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			AutoOpen:      true,
			Watch:         true,
			SessionMaxAge: DefaultSessionMaxAge,
			ViewTTL:       DefaultViewTTL,
		},
	}
}
