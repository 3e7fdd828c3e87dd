// ABOUTME: Configuration structures, defaults and loading
// ABOUTME: viper for sources, validator for constraints
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "MP3REC"

// Config is the complete application configuration
type Config struct {
	Codec    CodecConfig    `mapstructure:"codec"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// CodecConfig locates and sizes the wasm codec
type CodecConfig struct {
	URL         string `mapstructure:"url" validate:"required"`
	Origin      string `mapstructure:"origin"`
	MemoryPages uint32 `mapstructure:"memory_pages" validate:"min=1,max=65536"`
	StackSize   uint32 `mapstructure:"stack_size"`
}

// RecorderConfig controls capture and framing
type RecorderConfig struct {
	SampleRate    int     `mapstructure:"sample_rate" validate:"min=8000,max=192000"`
	BufferSize    int     `mapstructure:"buffer_size" validate:"oneof=256 512 1024 2048 4096 8192 16384"`
	Source        string  `mapstructure:"source" validate:"oneof=tone mic"`
	ToneFrequency float64 `mapstructure:"tone_frequency" validate:"gt=0"`
	Channels      int     `mapstructure:"channels" validate:"min=1,max=2"`
}

// WorkerConfig selects where encoding runs
type WorkerConfig struct {
	Mode     string `mapstructure:"mode" validate:"oneof=local remote"`
	Addr     string `mapstructure:"addr"`
	Discover bool   `mapstructure:"discover"`
}

// ServerConfig configures the worker daemon
type ServerConfig struct {
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	Name        string `mapstructure:"name" validate:"required"`
	EnableMDNS  bool   `mapstructure:"enable_mdns"`
	MetricsPath string `mapstructure:"metrics_path" validate:"startswith=/"`
}

// LogConfig configures logging
type LogConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb" validate:"min=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("codec__url", "vmsg.wasm")
	v.SetDefault("codec__origin", "")
	v.SetDefault("codec__memory_pages", 2048)
	v.SetDefault("codec__stack_size", 5*1024*1024)

	v.SetDefault("recorder__sample_rate", 44100)
	v.SetDefault("recorder__buffer_size", 4096)
	v.SetDefault("recorder__source", "tone")
	v.SetDefault("recorder__tone_frequency", 440.0)
	v.SetDefault("recorder__channels", 1)

	v.SetDefault("worker__mode", "local")
	v.SetDefault("worker__addr", "")
	v.SetDefault("worker__discover", false)

	v.SetDefault("server__port", 8928)
	v.SetDefault("server__name", "mp3rec-worker")
	v.SetDefault("server__enable_mdns", true)
	v.SetDefault("server__metrics_path", "/metrics")

	v.SetDefault("log__level", "info")
	v.SetDefault("log__file", "mp3rec.log")
	v.SetDefault("log__max_size_mb", 10)
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration. path may be empty to skip the config file.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	var cfg Config
	// defaults always decode
	_ = newViper().Unmarshal(&cfg)
	return &cfg
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Worker.Mode == "remote" && c.Worker.Addr == "" && !c.Worker.Discover {
		return errors.New("invalid config: remote worker needs worker.addr or worker.discover")
	}
	return nil
}
