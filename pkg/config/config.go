package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/consts"
	"gopkg.in/yaml.v3"
)

type (
	// Logging configures the process-wide slog handler.
	Logging struct {
		// Level is one of debug, info, warn or error.
		Level string `yaml:"level,omitempty" env:"LOG_LEVEL"`

		// Format is either text or json.
		Format string `yaml:"format,omitempty" env:"LOG_FORMAT"`
	}

	// Rules holds the defaults applied to newly added plans.
	Rules struct {
		// ExcludeTypes lists object kinds new plans ignore.
		ExcludeTypes []string `yaml:"exclude_types" env:"EXCLUDE_TYPES" envSeparator:","`
	}

	// Config represents the leaf configuration.
	Config struct {
		// Database is the path of the SQLite state database.
		Database string `yaml:"database" env:"DATABASE"`

		Logging Logging `yaml:"logging"`

		// ScriptsDir is where deployment scripts are written by default.
		ScriptsDir string `yaml:"scripts_dir" env:"SCRIPTS_DIR"`

		Rules Rules `yaml:"rules"`

		// MetricsFile, when set, receives deployment metrics in the Prometheus
		// text format after every run.
		MetricsFile string `yaml:"metrics_file,omitempty" env:"METRICS_FILE"`
	}
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig parses a configuration from r, fills in defaults and applies
// LEAF_ prefixed environment overrides. Empty input yields the defaults.
//
// Example:
//
//	cfg, err := config.LoadConfig(strings.NewReader(`
//	database: /var/lib/leaf/leaf.db
//	logging:
//	  level: debug
//	`))
//	if err != nil {
//		return err
//	}
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.setDefaults()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: consts.EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed to apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Database = expandHome(cfg.Database)
	return &cfg, nil
}

// LoadConfigFile loads the configuration at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return LoadConfig(f)
}

// Load loads the configuration at path, falling back to the defaults (with
// environment overrides) when the file does not exist.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfigFile(path)
	if err == nil {
		return cfg, nil
	}

	if !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}

	return LoadConfig(strings.NewReader(""))
}

// Validate checks the logging settings.
func (c *Config) Validate() error {
	if _, err := c.Logging.level(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "text", "json":
		return nil
	default:
		return errors.Errorf("invalid log format %q: expected text or json", c.Logging.Format)
	}
}

// Write writes c as YAML to w.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return enc.Close()
}

func (c *Config) setDefaults() {
	if c.Database == "" {
		c.Database = defaultDatabase()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = consts.DefaultScriptsDir
	}
	if c.Rules.ExcludeTypes == nil {
		c.Rules.ExcludeTypes = append([]string(nil), consts.DefaultExcludedTypes...)
	}
}

func defaultDatabase() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return consts.DefaultDatabase
	}
	return filepath.Join(home, consts.DefaultDatabase)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
