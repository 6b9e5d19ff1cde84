// Package config loads geotile settings from defaults, an optional YAML
// file and GEOTILE_* environment variables, and turns them into the
// immutable configurations of the tiling packages.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/batch"
	"github.com/1F47E/go-geo-tiles/pkg/chrono"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
)

// EnvPrefix prefixes environment overrides: GEOTILE_CHRONO_PATH_MAX → chrono.path_max
const EnvPrefix = "GEOTILE"

// Log formats
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds all geotile configuration.
type Config struct {
	Chrono    chrono.Config   `mapstructure:"chrono" yaml:"chrono"`
	Geo       GeoConfig       `mapstructure:"geo" yaml:"geo"`
	Aggregate AggregateConfig `mapstructure:"aggregate" yaml:"aggregate"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type GeoConfig struct {
	Zoom   int  `mapstructure:"zoom" yaml:"zoom"`
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

type AggregateConfig struct {
	MaxDepth   int    `mapstructure:"max_depth" yaml:"max_depth"`
	MinDepth   int    `mapstructure:"min_depth" yaml:"min_depth"`
	Step       int    `mapstructure:"step" yaml:"step"`
	ZoomMargin int    `mapstructure:"zoom_margin" yaml:"zoom_margin"`
	Sentinel   string `mapstructure:"sentinel" yaml:"sentinel"`
}

type BatchConfig struct {
	Workers      int    `mapstructure:"workers" yaml:"workers"`
	ChronoPrefix string `mapstructure:"chrono_prefix" yaml:"chrono_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("chrono.path_max", chrono.DefaultPathMax)
	v.SetDefault("chrono.max_depth", chrono.DefaultMaxDepth)

	v.SetDefault("geo.zoom", event.DefaultZoom)
	v.SetDefault("geo.strict", false)

	v.SetDefault("aggregate.max_depth", aggregate.DefaultMaxDepth)
	v.SetDefault("aggregate.min_depth", aggregate.DefaultMinDepth)
	v.SetDefault("aggregate.step", aggregate.DefaultStep)
	v.SetDefault("aggregate.zoom_margin", aggregate.DefaultZoomMargin)
	v.SetDefault("aggregate.sentinel", mercator.SentinelPrefix)

	v.SetDefault("batch.workers", 0) // 0 = one per CPU
	v.SetDefault("batch.chrono_prefix", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", FormatAuto)
}

// Load reads configuration. An explicit path must exist; otherwise
// geotile.yaml is looked up in . and ./configs and may be missing.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("geotile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "failed to read config")
			}
		}
	}

	// Environment variables: GEOTILE_AGGREGATE_MAX_DEPTH → aggregate.max_depth
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	var errs []string

	if c.Chrono.PathMax <= 0 {
		errs = append(errs, "chrono.path_max must be positive")
	}
	if c.Chrono.MaxDepth <= 0 {
		errs = append(errs, "chrono.max_depth must be positive")
	}
	if c.Geo.Zoom < 0 || c.Geo.Zoom > mercator.MaxZoom {
		errs = append(errs, "geo.zoom must be 0-32")
	}
	if c.Aggregate.MaxDepth <= 0 || c.Aggregate.MaxDepth > mercator.MaxZoom {
		errs = append(errs, "aggregate.max_depth must be 1-32")
	}
	if c.Aggregate.MinDepth <= 0 || c.Aggregate.MinDepth > c.Aggregate.MaxDepth {
		errs = append(errs, "aggregate.min_depth must be between 1 and aggregate.max_depth")
	}
	if c.Aggregate.Step <= 0 {
		errs = append(errs, "aggregate.step must be positive")
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, "batch.workers must not be negative")
	}
	switch c.Log.Format {
	case FormatAuto, FormatJSON, FormatConsole:
	default:
		errs = append(errs, "log.format must be auto, json or console")
	}

	if len(errs) > 0 {
		return errors.Newf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ChronoConfig returns the chrono tiler configuration
func (c *Config) ChronoConfig() chrono.Config {
	return c.Chrono
}

// ChronoTiler builds a chrono tiler from the configuration
func (c *Config) ChronoTiler() *chrono.Tiler {
	return chrono.New(c.ChronoConfig())
}

// EventZoom is the geo depth of encoded keys
func (c *Config) EventZoom() int {
	return c.Geo.Zoom
}

// EventTiler builds an event tiler from the configuration
func (c *Config) EventTiler() *event.Tiler {
	return event.New(c.ChronoTiler(), c.EventZoom())
}

// AggregateOptions returns the aggregator options of the configuration
func (c *Config) AggregateOptions() []aggregate.Option {
	return []aggregate.Option{
		aggregate.WithMaxDepth(c.Aggregate.MaxDepth),
		aggregate.WithMinDepth(c.Aggregate.MinDepth),
		aggregate.WithStep(c.Aggregate.Step),
		aggregate.WithZoomMargin(c.Aggregate.ZoomMargin),
		aggregate.WithSentinel(c.Aggregate.Sentinel),
		aggregate.WithChrono(c.ChronoTiler()),
	}
}

// BatchOptions returns the batch encoder options of the configuration
func (c *Config) BatchOptions() []batch.Option {
	return []batch.Option{
		batch.WithWorkers(c.Batch.Workers),
		batch.WithStrict(c.Geo.Strict),
		batch.WithChronoPrefix(c.Batch.ChronoPrefix),
	}
}
