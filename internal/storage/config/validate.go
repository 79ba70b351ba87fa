package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// Log
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	// Wire
	if c.Wire.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("wire: max_message_size must be positive"))
	}

	// Snapshot
	if err := c.Snapshot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot: %w", err))
	}

	// Stats
	if c.Stats.SketchAccuracy < 0 || c.Stats.SketchAccuracy >= 1 {
		errs = append(errs, errors.New("stats: sketch_accuracy must be in [0, 1)"))
	}

	// Metrics
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}

	// Analytics
	if err := c.Analytics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analytics: %w", err))
	}

	// Deployments
	seen := make(map[string]bool, len(c.Deployments))
	for i := range c.Deployments {
		d := &c.Deployments[i]
		if _, err := d.Configuration(); err != nil {
			errs = append(errs, fmt.Errorf("deployments[%d]: %w", i, err))
			continue
		}
		key := strings.ToLower(d.ID)
		if seen[key] {
			errs = append(errs, fmt.Errorf("deployments[%d]: duplicate id %s", i, d.ID))
		}
		seen[key] = true
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the log configuration.
func (c *LogConfig) Validate() error {
	var errs []error

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"":      true, // Empty defaults to info
	}
	if !validLevels[c.Level] {
		errs = append(errs, errors.New("level must be one of: debug, info, warn, error"))
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"auto": true,
		"":     true, // Empty defaults to auto
	}
	if !validFormats[c.Format] {
		errs = append(errs, errors.New("format must be one of: text, json, auto"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the snapshot configuration.
func (c *SnapshotConfig) Validate() error {
	var errs []error

	if c.Dir == "" && (c.ExportOnShutdown || c.ImportOnStart) {
		errs = append(errs, errors.New("dir is required when export_on_shutdown or import_on_start is set"))
	}

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty means uncompressed
	}
	if !validAlgorithms[c.Compression] {
		errs = append(errs, errors.New("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.RowGroupSize < 0 {
		errs = append(errs, errors.New("row_group_size must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required when enabled"))
	}
	if !strings.HasPrefix(c.Path, "/") {
		errs = append(errs, errors.New("path must start with /"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the analytics configuration.
func (c *AnalyticsConfig) Validate() error {
	var errs []error

	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query_timeout must be positive"))
	}

	if c.MemoryLimit != "" {
		if _, err := ParseMemoryLimit(c.MemoryLimit); err != nil {
			errs = append(errs, fmt.Errorf("memory_limit: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	if c.Snapshot.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Snapshot.Dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", c.Snapshot.Dir, err)
	}
	return nil
}
