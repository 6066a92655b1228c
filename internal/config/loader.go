// Package config loads the booth configuration: a YAML file of sections,
// each mapping option names to values. The state machine and the plugin
// manager treat the result as opaque; plugins read it through Get or decode
// a section into one of the typed views below.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Section names.
const (
	SectionGeneral  = "general"
	SectionControls = "controls"
	SectionPicture  = "picture"
	SectionPrinter  = "printer"
	SectionPlugins  = "plugins"
	SectionAPI      = "api"
)

// GeneralConfig is the typed view of the general section.
type GeneralConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	Debug         bool          `mapstructure:"debug" yaml:"debug"`
	FailSafeDelay time.Duration `mapstructure:"failsafe_delay" yaml:"failsafe_delay"`
}

// ControlsConfig maps physical and keyboard inputs to booth actions.
type ControlsConfig struct {
	CaptureKey    string `mapstructure:"capture_key" yaml:"capture_key"`
	PrintKey      string `mapstructure:"print_key" yaml:"print_key"`
	QuitKey       string `mapstructure:"quit_key" yaml:"quit_key"`
	CaptureButton string `mapstructure:"capture_button" yaml:"capture_button"`
	PrintButton   string `mapstructure:"print_button" yaml:"print_button"`
}

// PictureConfig describes the capture sequence.
type PictureConfig struct {
	Captures      []int         `mapstructure:"captures" yaml:"captures"`
	ChooseTimeout time.Duration `mapstructure:"choose_timeout" yaml:"choose_timeout"`
	ChosenDelay   time.Duration `mapstructure:"chosen_delay" yaml:"chosen_delay"`
	PreviewDelay  time.Duration `mapstructure:"preview_delay" yaml:"preview_delay"`
	FinishDelay   time.Duration `mapstructure:"finish_delay" yaml:"finish_delay"`
}

// PrinterConfig describes the printing step.
type PrinterConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	PrintDelay    time.Duration `mapstructure:"print_delay" yaml:"print_delay"`
	MaxDuplicates int           `mapstructure:"max_duplicates" yaml:"max_duplicates"`
	MaxPages      int           `mapstructure:"max_pages" yaml:"max_pages"`
}

// PluginsConfig selects plugins.
type PluginsConfig struct {
	Disabled []string `mapstructure:"disabled" yaml:"disabled"`
	Scripts  []string `mapstructure:"scripts" yaml:"scripts"`
	States   []string `mapstructure:"states" yaml:"states"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]map[string]any {
	return map[string]map[string]any{
		SectionGeneral: {
			"tick_interval":  "40ms",
			"debug":          false,
			"failsafe_delay": "3s",
		},
		SectionControls: {
			"capture_key":    "p",
			"print_key":      "e",
			"quit_key":       "q",
			"capture_button": "capture",
			"print_button":   "print",
		},
		SectionPicture: {
			"captures":       []any{1, 4},
			"choose_timeout": "15s",
			"chosen_delay":   "2s",
			"preview_delay":  "3s",
			"finish_delay":   "3s",
		},
		SectionPrinter: {
			"enabled":        true,
			"print_delay":    "10s",
			"max_duplicates": 3,
			"max_pages":      -1,
		},
		SectionPlugins: {
			"disabled": []any{},
			"scripts":  []any{},
			"states":   []any{},
		},
		SectionAPI: {
			"enabled": true,
			"port":    8081,
		},
	}
}

// Config holds the loaded sections. It is read-only once loaded.
type Config struct {
	sections map[string]map[string]any
}

// New builds a Config from raw sections layered over the defaults.
func New(sections map[string]map[string]any) *Config {
	merged := Defaults()
	for name, options := range sections {
		if merged[name] == nil {
			merged[name] = make(map[string]any, len(options))
		}
		for option, value := range options {
			merged[name][option] = value
		}
	}
	return &Config{sections: merged}
}

// Get returns the raw value of option in section.
func (c *Config) Get(section, option string) (any, bool) {
	options, ok := c.sections[section]
	if !ok {
		return nil, false
	}
	value, ok := options[option]
	return value, ok
}

// Sections returns the section names, sorted.
func (c *Config) Sections() []string {
	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode decodes a section into out, converting duration strings.
func (c *Config) Decode(section string, out any) error {
	options, ok := c.sections[section]
	if !ok {
		return fmt.Errorf("unknown config section %q", section)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode %s section: %w", section, err)
	}
	return nil
}

// General decodes the general section.
func (c *Config) General() (GeneralConfig, error) {
	var cfg GeneralConfig
	if err := c.Decode(SectionGeneral, &cfg); err != nil {
		return cfg, err
	}
	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("general section: tick_interval must be positive, got %s", cfg.TickInterval)
	}
	return cfg, nil
}

// Controls decodes the controls section.
func (c *Config) Controls() (ControlsConfig, error) {
	var cfg ControlsConfig
	err := c.Decode(SectionControls, &cfg)
	return cfg, err
}

// Picture decodes the picture section.
func (c *Config) Picture() (PictureConfig, error) {
	var cfg PictureConfig
	if err := c.Decode(SectionPicture, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Captures) == 0 {
		return cfg, fmt.Errorf("picture section: at least one captures choice is required")
	}
	for _, n := range cfg.Captures {
		if n < 1 {
			return cfg, fmt.Errorf("picture section: invalid captures number %d", n)
		}
	}
	return cfg, nil
}

// Printer decodes the printer section.
func (c *Config) Printer() (PrinterConfig, error) {
	var cfg PrinterConfig
	err := c.Decode(SectionPrinter, &cfg)
	return cfg, err
}

// Plugins decodes the plugins section.
func (c *Config) Plugins() (PluginsConfig, error) {
	var cfg PluginsConfig
	err := c.Decode(SectionPlugins, &cfg)
	return cfg, err
}

// API decodes the api section.
func (c *Config) API() (APIConfig, error) {
	var cfg APIConfig
	err := c.Decode(SectionAPI, &cfg)
	return cfg, err
}

// Loader reads the configuration file.
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader creates a loader for the YAML file at path.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger.Named("config"),
	}
}

// Load reads the file and layers it over the defaults. A missing file
// yields the defaults.
func (l *Loader) Load() (*Config, error) {
	l.logger.Debug("Loading configuration", zap.String("path", l.path))

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Configuration file not found, using defaults", zap.String("path", l.path))
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var sections map[string]map[string]any
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := New(sections)
	if _, err := cfg.General(); err != nil {
		return nil, err
	}
	if _, err := cfg.Picture(); err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		zap.String("path", l.path),
		zap.Strings("sections", cfg.Sections()))
	return cfg, nil
}

// WriteDefault writes the default configuration to the loader's path,
// refusing to overwrite an existing file.
func (l *Loader) WriteDefault() error {
	if _, err := os.Stat(l.path); err == nil {
		return fmt.Errorf("config file %s already exists", l.path)
	}

	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	l.logger.Info("Default configuration written", zap.String("path", l.path))
	return nil
}
