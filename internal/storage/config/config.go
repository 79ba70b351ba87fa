// Package config loads the datastreams daemon configuration.
//
// A YAML file is read over DefaultConfig, so every key is optional.
// Environment variables in the file are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	defaults "github.com/xtxerr/datastreams/config"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration.
type Config struct {
	// Log configures the global logger.
	Log LogConfig `yaml:"log"`

	// Wire configures framed sequence streams.
	Wire WireConfig `yaml:"wire"`

	// Snapshot configures parquet export and import of deployments.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Stats configures service statistics.
	Stats StatsConfig `yaml:"stats"`

	// Metrics configures the prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Analytics configures DuckDB queries over snapshots.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Deployments are opened when the daemon starts.
	Deployments []DeploymentConfig `yaml:"deployments"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text, json or auto. Auto picks json when stdout is not a
	// terminal.
	Format string `yaml:"format"`
}

// WireConfig configures framed sequence streams.
type WireConfig struct {
	// MaxMessageSize is the largest accepted frame in bytes.
	MaxMessageSize int `yaml:"max_message_size"`
}

// SnapshotConfig configures parquet export and import of deployments.
type SnapshotConfig struct {
	// Dir holds one <deployment>.parquet file per deployment.
	Dir string `yaml:"dir"`

	// Compression is the parquet codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// RowGroupSize is the number of rows per parquet row group.
	RowGroupSize int `yaml:"row_group_size"`

	// ExportOnShutdown writes every deployment to Dir on shutdown.
	ExportOnShutdown bool `yaml:"export_on_shutdown"`

	// ImportOnStart restores configured deployments from Dir on start.
	ImportOnStart bool `yaml:"import_on_start"`
}

// StatsConfig configures service statistics.
type StatsConfig struct {
	// SketchAccuracy is the relative accuracy of sequence length
	// percentiles (0.01 = 1% error). Zero disables percentiles.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// AnalyticsConfig configures DuckDB queries over snapshots.
type AnalyticsConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	// Format: "512MB", "2GB"
	MemoryLimit string `yaml:"memory_limit"`

	// QueryTimeout bounds a single query.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// DeploymentConfig lists the streams of one deployment.
type DeploymentConfig struct {
	ID      string         `yaml:"id"`
	Streams []StreamConfig `yaml:"streams"`
}

// StreamConfig is one expected stream of a deployment.
type StreamConfig struct {
	DeviceRole string `yaml:"device_role"`

	// DataType in dotted form, e.g. dk.cachet.carp.heartrate.
	DataType string `yaml:"data_type"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Wire: WireConfig{
			MaxMessageSize: defaults.DefaultMaxMessageSize,
		},
		Snapshot: SnapshotConfig{
			Dir:          defaults.DefaultSnapshotDir,
			Compression:  defaults.DefaultSnapshotCompression,
			RowGroupSize: defaults.DefaultSnapshotRowGroupSize,
		},
		Stats: StatsConfig{
			SketchAccuracy: defaults.DefaultSketchAccuracy,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  defaults.DefaultMetricsListen,
			Path:    defaults.DefaultMetricsPath,
		},
		Analytics: AnalyticsConfig{
			MemoryLimit:  defaults.DefaultQueryMemoryLimit,
			QueryTimeout: defaults.DefaultQueryTimeout,
		},
	}
}

// Configuration converts the deployment into a data streams configuration.
func (d *DeploymentConfig) Configuration() (types.DataStreamsConfiguration, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return types.DataStreamsConfiguration{}, fmt.Errorf("id %q: %w", d.ID, err)
	}

	cfg := types.DataStreamsConfiguration{DeploymentID: id}
	for i, s := range d.Streams {
		dt, err := types.ParseDataType(s.DataType)
		if err != nil {
			return types.DataStreamsConfiguration{}, fmt.Errorf("streams[%d]: %w", i, err)
		}
		cfg.ExpectedStreams = append(cfg.ExpectedStreams, types.ExpectedStream{
			DeviceRole: s.DeviceRole,
			DataType:   dt,
		})
	}

	if err := cfg.Validate(); err != nil {
		return types.DataStreamsConfiguration{}, err
	}
	return cfg, nil
}

// SnapshotPath returns the snapshot file of a deployment.
func (c *Config) SnapshotPath(deploymentID uuid.UUID) string {
	return filepath.Join(c.Snapshot.Dir, deploymentID.String()+".parquet")
}
