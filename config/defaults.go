// Package config provides configuration defaults for the datastreams
// daemon.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Wire Defaults
// =============================================================================

const (
	// DefaultMaxMessageSize limits a single framed sequence to prevent OOM.
	// 16 MiB should be sufficient for any reasonable sequence.
	// Override via config: wire.max_message_size
	DefaultMaxMessageSize = 16 * 1024 * 1024
)

// =============================================================================
// Snapshot Defaults
// =============================================================================

const (
	// DefaultSnapshotDir is where deployment snapshots are exported to and
	// imported from.
	// Override via config: snapshot.dir
	DefaultSnapshotDir = "/var/lib/datastreams/snapshots"

	// DefaultSnapshotCompression is the parquet codec of exported snapshots.
	// Override via config: snapshot.compression
	DefaultSnapshotCompression = "zstd"

	// DefaultSnapshotRowGroupSize is the number of measurement rows per
	// parquet row group.
	// Override via config: snapshot.row_group_size
	DefaultSnapshotRowGroupSize = 100000
)

// =============================================================================
// Statistics Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the relative accuracy of sequence length
	// percentiles.
	// Range: 0.001-0.1
	// Override via config: stats.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Metrics Defaults
// =============================================================================

const (
	// DefaultMetricsListen is the address of the prometheus endpoint.
	// Override via config: metrics.listen
	DefaultMetricsListen = "127.0.0.1:9464"

	// DefaultMetricsPath is the HTTP path of the prometheus endpoint.
	// Override via config: metrics.path
	DefaultMetricsPath = "/metrics"
)

// =============================================================================
// Analytics Defaults
// =============================================================================

const (
	// DefaultQueryTimeout bounds a single DuckDB query over a snapshot.
	// Override via config: analytics.query_timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultQueryMemoryLimit is passed to DuckDB as memory_limit.
	// Override via config: analytics.memory_limit
	DefaultQueryMemoryLimit = "512MB"
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultDrainTimeout is how long shutdown waits for the metrics server
	// and snapshot export.
	DefaultDrainTimeout = 30 * time.Second
)
