// Package config loads the service configuration through viper: defaults,
// an optional YAML file and FIRMSCOPE_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/layout"
	"github.com/firmscope/core/internal/palette"
	"github.com/firmscope/core/internal/selection"
	"github.com/firmscope/core/internal/sizing"
)

// EnvPrefix is prepended to environment overrides, e.g. FIRMSCOPE_SERVER_ADDR.
const EnvPrefix = "FIRMSCOPE"

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Selection SelectionConfig `mapstructure:"selection" yaml:"selection"`
}

// LoggerConfig configures the zap logger and its optional rotated log file.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color of each level in console format.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr" yaml:"addr"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket shared by all clients.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// PipelineConfig holds the build tunables.
type PipelineConfig struct {
	NodeSizeFactor         float64         `mapstructure:"node_size_factor" yaml:"node_size_factor"`
	EdgeThicknessThreshold float64         `mapstructure:"edge_thickness_threshold" yaml:"edge_thickness_threshold"`
	MetricScale            string          `mapstructure:"metric_scale" yaml:"metric_scale"`
	PaletteFile            string          `mapstructure:"palette_file" yaml:"palette_file"`
	BuildTimeout           time.Duration   `mapstructure:"build_timeout" yaml:"build_timeout"`
	Layout                 layout.Settings `mapstructure:"layout" yaml:"layout"`
}

// SelectionConfig holds the interaction timings.
type SelectionConfig struct {
	HighlightDuration time.Duration `mapstructure:"highlight_duration" yaml:"highlight_duration"`
	CameraDuration    time.Duration `mapstructure:"camera_duration" yaml:"camera_duration"`
	HitSlack          float64       `mapstructure:"hit_slack" yaml:"hit_slack"`
}

// SetDefaults registers every default on v. Environment overrides only apply
// to keys registered here.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "firmscope")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origin", "http://localhost:3000")
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)

	// -- Pipeline --
	v.SetDefault("pipeline.node_size_factor", graph.DefaultNodeSizeFactor)
	v.SetDefault("pipeline.edge_thickness_threshold", graph.DefaultEdgeThicknessThreshold)
	v.SetDefault("pipeline.metric_scale", sizing.ScaleDatasetMax.String())
	v.SetDefault("pipeline.palette_file", "")
	v.SetDefault("pipeline.build_timeout", "2m")

	rings := layout.DefaultRings()
	v.SetDefault("pipeline.layout.rings.min_radius", rings.Min)
	v.SetDefault("pipeline.layout.rings.max_radius", rings.Max)
	v.SetDefault("pipeline.layout.rings.outer_radius", rings.Outer)
	v.SetDefault("pipeline.layout.padding", layout.DefaultPadding)
	v.SetDefault("pipeline.layout.max_attempts", layout.DefaultMaxAttempts)

	fa := layout.DefaultForceAtlas()
	v.SetDefault("pipeline.layout.force_atlas.iterations", fa.Iterations)
	v.SetDefault("pipeline.layout.force_atlas.gravity", fa.Gravity)
	v.SetDefault("pipeline.layout.force_atlas.scaling_ratio", fa.ScalingRatio)
	v.SetDefault("pipeline.layout.force_atlas.strong_gravity", fa.StrongGravity)
	v.SetDefault("pipeline.layout.force_atlas.edge_weight_influence", fa.EdgeWeightInfluence)
	v.SetDefault("pipeline.layout.force_atlas.outbound_attraction_distribution", fa.OutboundAttractionDistribution)
	v.SetDefault("pipeline.layout.force_atlas.slow_down", fa.SlowDown)

	// -- Selection --
	v.SetDefault("selection.highlight_duration", selection.DefaultHighlightDuration.String())
	v.SetDefault("selection.camera_duration", selection.DefaultCameraDuration.String())
	v.SetDefault("selection.hit_slack", 0.0)
}

// Load points v at a config file (or ./config.yaml when path is empty) and at
// the environment. A missing default file is not an error.
func Load(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// NewDefaultConfig returns the configuration built from defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return &cfg
}

// NewConfigFromViper decodes and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be a positive integer")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("server.rate_limit.requests_per_second must be positive")
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("server.rate_limit.burst must be a positive integer")
		}
	}
	if !nonNegative(c.Pipeline.NodeSizeFactor) {
		return fmt.Errorf("pipeline.node_size_factor must be a non-negative finite number")
	}
	if !nonNegative(c.Pipeline.EdgeThicknessThreshold) {
		return fmt.Errorf("pipeline.edge_thickness_threshold must be a non-negative finite number")
	}
	if _, err := sizing.ParseScale(c.Pipeline.MetricScale); err != nil {
		return fmt.Errorf("pipeline.metric_scale: %w", err)
	}
	l := c.Pipeline.Layout
	if l.Rings.Min <= 0 || l.Rings.Max < l.Rings.Min || l.Rings.Outer < l.Rings.Max {
		return fmt.Errorf("pipeline.layout.rings must satisfy 0 < min_radius <= max_radius <= outer_radius")
	}
	if l.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.layout.max_attempts must be a positive integer")
	}
	if l.ForceAtlas.Iterations < 0 {
		return fmt.Errorf("pipeline.layout.force_atlas.iterations must not be negative")
	}
	if c.Selection.HighlightDuration <= 0 || c.Selection.CameraDuration <= 0 {
		return fmt.Errorf("selection durations must be positive")
	}
	return nil
}

// GraphParams turns the pipeline section into build parameters, layering the
// palette file (if any) over the built-in industry colors.
func (c *Config) GraphParams() (graph.Params, error) {
	scale, err := sizing.ParseScale(c.Pipeline.MetricScale)
	if err != nil {
		return graph.Params{}, err
	}

	colors := palette.DefaultOverrides()
	if c.Pipeline.PaletteFile != "" {
		file, err := palette.LoadOverrides(c.Pipeline.PaletteFile)
		if err != nil {
			return graph.Params{}, err
		}
		colors = palette.Merge(colors, file)
	}

	return graph.Params{
		NodeSizeFactor:         c.Pipeline.NodeSizeFactor,
		EdgeThicknessThreshold: c.Pipeline.EdgeThicknessThreshold,
		MetricScale:            scale,
		Layout:                 c.Pipeline.Layout,
		Colors:                 colors,
	}, nil
}

// SelectionOptions returns controller options for the selection section.
func (c *Config) SelectionOptions() selection.Options {
	return selection.Options{
		HighlightDuration: c.Selection.HighlightDuration,
		CameraDuration:    c.Selection.CameraDuration,
		HitTester:         selection.CircleHitTester{Slack: c.Selection.HitSlack},
	}
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
