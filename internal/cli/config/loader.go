package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the loader reads. A double
// underscore separates nesting levels: LEAPGRID_STORE__PATH -> store.path.
const EnvPrefix = "LEAPGRID_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"verbose":   "verbose",
	"output":    "output",
	"driver":    "store.type",
	"db":        "store.path",
	"dsn":       "store.dsn",
	"page-size": "grid.default_page_size",
	"prefix":    "grid.param_prefix",
	"host":      "ui.host",
	"port":      "ui.port",
	"open":      "ui.auto_open",
	"watch":     "ui.watch",
	"dev":       "ui.dev",
}

var configNames = []string{"leapgrid.yaml", "leapgrid.yml"}

// findConfigUpward searches upward from startDir for a leapgrid config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load reads the configuration. Precedence (highest to lowest): explicitly
// set flags > env vars > config file > defaults. An explicit cfgFile must
// exist; otherwise leapgrid.yaml is searched for upward from the working
// directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	d := Defaults()
	if err := k.Load(confmap.Provider(map[string]any{
		"verbose":                d.Verbose,
		"output":                 d.Output,
		"store.type":             d.Store.Type,
		"store.path":             d.Store.Path,
		"store.dsn":              d.Store.DSN,
		"grid.default_page_size": d.Grid.DefaultPageSize,
		"grid.page_sizes":        d.Grid.PageSizes,
		"grid.param_prefix":      d.Grid.ParamPrefix,
		"ui.host":                d.UI.Host,
		"ui.port":                d.UI.Port,
		"ui.auto_open":           d.UI.AutoOpen,
		"ui.watch":               d.UI.Watch,
		"ui.dev":                 d.UI.Dev,
		"ui.session_max_age":     d.UI.SessionMaxAge,
		"ui.view_ttl":            d.UI.ViewTTL,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	path := cfgFile
	if path == "" {
		path = findConfigUpward(cwd)
	}
	root := cwd
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			root = filepath.Dir(abs)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only those explicitly set)
	var flagPath string
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
		if f := flags.Lookup("db"); f != nil && f.Changed {
			flagPath = f.Value.String()
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = root
	cfg.File = path

	// 6. Resolve paths and expand secrets. A --db flag is relative to the
	// working directory, everything else to the project root.
	switch {
	case flagPath != "":
		cfg.Store.Path = resolvePath(flagPath, cwd)
	default:
		cfg.Store.Path = resolvePath(cfg.Store.Path, root)
	}
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.UI.SessionSecret = expandEnvVars(cfg.UI.SessionSecret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey transforms LEAPGRID_GRID__DEFAULT_PAGE_SIZE -> grid.default_page_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// resolvePath resolves path relative to baseDir if it's not absolute.
// ":memory:" and empty paths are returned unchanged.
func resolvePath(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			_, key, _ := strings.Cut(fe.Namespace(), ".")
			msg := key + ": failed " + fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			msgs = append(msgs, msg)
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if !slices.Contains(c.Grid.PageSizes, c.Grid.DefaultPageSize) {
		return fmt.Errorf("grid.default_page_size %d is not one of grid.page_sizes %v",
			c.Grid.DefaultPageSize, c.Grid.PageSizes)
	}
	return nil
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from the command context, or the
// defaults when none was loaded.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	d := Defaults()
	return &d
}
