// Package config provides configuration management for the orchestration
// server. It supports loading from environment variables, an optional
// config file, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Detector DetectorConfig `mapstructure:"detector"`
	Bus      BusConfig      `mapstructure:"bus"`
	Task     TaskConfig     `mapstructure:"task"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration. An empty URL selects
// the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LLMConfig holds the conversation LLM configuration. The API key is
// read from OPENAI_API_KEY; its absence disables the conversation
// manager with a startup warning rather than failing.
type LLMConfig struct {
	APIKey      string  `mapstructure:"apiKey"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSecs int     `mapstructure:"timeoutSecs"`
}

// EngineConfig holds automation engine configuration.
type EngineConfig struct {
	// Kind selects the engine factory: "none" or "scripted".
	Kind string `mapstructure:"kind"`

	// DefaultCDPEndpoint is used when a start request carries none.
	// Read from BROWSERAI_ENGINE_DEFAULT_CDP_ENDPOINT or CDP_ENDPOINT.
	DefaultCDPEndpoint string `mapstructure:"defaultCdpEndpoint"`

	// MaxSteps bounds a single agent run.
	MaxSteps int `mapstructure:"maxSteps"`
}

// DetectorConfig holds stuck detector thresholds. All spec thresholds
// are configuration, not constants.
type DetectorConfig struct {
	WindowSize          int     `mapstructure:"windowSize"`          // W
	RepeatWindow        int     `mapstructure:"repeatWindow"`        // N
	CheckInterval       int     `mapstructure:"checkInterval"`       // K steps
	StepTimeoutSecs     int     `mapstructure:"stepTimeoutSecs"`     // Dmax
	NoProgressSecs      int     `mapstructure:"noProgressSecs"`      // Tmax
	CooldownSecs        int     `mapstructure:"cooldownSecs"`        // Cmin
	SimilarityThreshold float64 `mapstructure:"similarityThreshold"` // tau
}

// BusConfig holds event fan-out sizing.
type BusConfig struct {
	RingSize     int `mapstructure:"ringSize"`     // retained log events
	ReplayWindow int `mapstructure:"replayWindow"` // events replayed on connect
	ClientQueue  int `mapstructure:"clientQueue"`  // per-client outbound buffer
}

// TaskConfig holds task manager timeouts.
type TaskConfig struct {
	HelpTimeoutSecs    int `mapstructure:"helpTimeoutSecs"`    // help rendezvous wait
	AbandonTimeoutSecs int `mapstructure:"abandonTimeoutSecs"` // stop -> terminal hard cap
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Timeout returns the LLM call timeout as a time.Duration.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSecs) * time.Second
}

// StepTimeout returns Dmax as a time.Duration.
func (d *DetectorConfig) StepTimeout() time.Duration {
	return time.Duration(d.StepTimeoutSecs) * time.Second
}

// NoProgressTimeout returns Tmax as a time.Duration.
func (d *DetectorConfig) NoProgressTimeout() time.Duration {
	return time.Duration(d.NoProgressSecs) * time.Second
}

// Cooldown returns Cmin as a time.Duration.
func (d *DetectorConfig) Cooldown() time.Duration {
	return time.Duration(d.CooldownSecs) * time.Second
}

// HelpTimeout returns the help rendezvous wait as a time.Duration.
func (t *TaskConfig) HelpTimeout() time.Duration {
	return time.Duration(t.HelpTimeoutSecs) * time.Second
}

// AbandonTimeout returns the stop hard cap as a time.Duration.
func (t *TaskConfig) AbandonTimeout() time.Duration {
	return time.Duration(t.AbandonTimeoutSecs) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "browserai-server")
	v.SetDefault("nats.maxReconnects", 10)

	// LLM defaults
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeoutSecs", 60)

	// Engine defaults
	v.SetDefault("engine.kind", "none")
	v.SetDefault("engine.defaultCdpEndpoint", "")
	v.SetDefault("engine.maxSteps", 100)

	// Detector defaults (spec defaults; all tunable)
	v.SetDefault("detector.windowSize", 10)
	v.SetDefault("detector.repeatWindow", 3)
	v.SetDefault("detector.checkInterval", 3)
	v.SetDefault("detector.stepTimeoutSecs", 120)
	v.SetDefault("detector.noProgressSecs", 300)
	v.SetDefault("detector.cooldownSecs", 60)
	v.SetDefault("detector.similarityThreshold", 0.7)

	// Bus defaults
	v.SetDefault("bus.ringSize", 1000)
	v.SetDefault("bus.replayWindow", 50)
	v.SetDefault("bus.clientQueue", 256)

	// Task defaults
	v.SetDefault("task.helpTimeoutSecs", 300)
	v.SetDefault("task.abandonTimeoutSecs", 120)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix BROWSERAI_ with
// underscore-separated keys.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BROWSERAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known credential env vars that do not carry the prefix.
	_ = v.BindEnv("llm.apiKey", "OPENAI_API_KEY", "BROWSERAI_LLM_API_KEY")
	_ = v.BindEnv("engine.defaultCdpEndpoint", "CDP_ENDPOINT", "BROWSERAI_ENGINE_DEFAULT_CDP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/browserai/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are sane.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Detector.WindowSize <= 0 {
		errs = append(errs, "detector.windowSize must be positive")
	}
	if cfg.Detector.RepeatWindow <= 0 {
		errs = append(errs, "detector.repeatWindow must be positive")
	}
	if cfg.Detector.CheckInterval <= 0 {
		errs = append(errs, "detector.checkInterval must be positive")
	}
	if cfg.Detector.SimilarityThreshold < 0 || cfg.Detector.SimilarityThreshold > 1 {
		errs = append(errs, "detector.similarityThreshold must be in [0,1]")
	}

	if cfg.Bus.RingSize <= 0 {
		errs = append(errs, "bus.ringSize must be positive")
	}
	if cfg.Bus.ReplayWindow < 0 || cfg.Bus.ReplayWindow > cfg.Bus.RingSize {
		errs = append(errs, "bus.replayWindow must be between 0 and bus.ringSize")
	}
	if cfg.Bus.ClientQueue <= 0 {
		errs = append(errs, "bus.clientQueue must be positive")
	}

	switch cfg.Engine.Kind {
	case "none", "scripted":
	default:
		errs = append(errs, "engine.kind must be one of: none, scripted")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
