// Package config loads the replication server's YAML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// RingConfig controls the ring buffer and slab allocator sizing.
type RingConfig struct {
	Capacity       int               `yaml:"capacity"`
	MaxReplicas    int               `yaml:"max_replicas"`
	SlabSize       datasize.ByteSize `yaml:"slab_size"`
	SlabObjectSize datasize.ByteSize `yaml:"slab_object_size"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Development bool `yaml:"development"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the top-level configuration for the replication server.
type Config struct {
	Listen  string        `yaml:"listen"`
	Ring    RingConfig    `yaml:"ring"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the spec's default sizing: a 100-element ring,
// 32 replicas, and 4 MiB slabs.
func DefaultConfig() Config {
	return Config{
		Listen: ":7712",
		Ring: RingConfig{
			Capacity:       100,
			MaxReplicas:    32,
			SlabSize:       4 * datasize.MB,
			SlabObjectSize: 256 * datasize.B,
		},
		Logging: LoggingConfig{Development: false},
		Metrics: MetricsConfig{Enabled: true, Listen: ":9112"},
	}
}

// Load reads a YAML config file at path, applying it on top of
// DefaultConfig so unspecified fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
