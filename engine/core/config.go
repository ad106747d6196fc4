package core

import (
	"fmt"
	"math"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LogConfig struct {
	Level string `toml:"level"`
}

// RendererConfig holds the constructor-time constants of the renderer.
// They are read once at startup; reloading the file does not resize any table.
type RendererConfig struct {
	FramesInFlight    uint32 `toml:"frames_in_flight"`
	CommandBuffers    uint32 `toml:"command_buffers"`
	MaxTextures       uint32 `toml:"max_textures"`
	MaxUniformBuffers uint32 `toml:"max_uniform_buffers"`
	MaxStorageBuffers uint32 `toml:"max_storage_buffers"`
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Renderer RendererConfig `toml:"renderer"`
}

const (
	DefaultFramesInFlight  uint32 = 2
	DefaultDescriptorCount uint32 = 1024
)

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			FramesInFlight:    DefaultFramesInFlight,
			CommandBuffers:    DefaultFramesInFlight,
			MaxTextures:       DefaultDescriptorCount,
			MaxUniformBuffers: DefaultDescriptorCount,
			MaxStorageBuffers: DefaultDescriptorCount,
		},
	}
}

// LoadConfig decodes the TOML file at path on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	return c.Renderer.Validate()
}

func (r RendererConfig) Validate() error {
	if r.FramesInFlight == 0 {
		return fmt.Errorf("renderer.frames_in_flight must be at least 1: %w", ErrInvalidConfig)
	}
	if r.CommandBuffers < r.FramesInFlight {
		return fmt.Errorf("renderer.command_buffers (%d) must be at least renderer.frames_in_flight (%d): %w",
			r.CommandBuffers, r.FramesInFlight, ErrInvalidConfig)
	}
	capacities := map[string]uint32{
		"max_textures":        r.MaxTextures,
		"max_uniform_buffers": r.MaxUniformBuffers,
		"max_storage_buffers": r.MaxStorageBuffers,
	}
	for name, v := range capacities {
		// the max value is reserved for the invalid handle
		if v == 0 || v == math.MaxUint32 {
			return fmt.Errorf("renderer.%s must be in [1, %d): %w", name, uint32(math.MaxUint32), ErrInvalidConfig)
		}
	}
	return nil
}

// Apply pushes the reloadable part of the config into the running engine.
func (c *Config) Apply() error {
	if c.Log.Level == "" {
		return nil
	}
	return SetLogLevel(c.Log.Level)
}
