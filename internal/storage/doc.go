// Package storage stores the data streams of study deployments.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│    Wire     │────▶│   Service   │────▶│   Parquet   │
//	│   Reader    │     │ (per-dep    │     │  Snapshot   │
//	└─────────────┘     │   batches)  │     └─────────────┘
//	                    └─────────────┘            │
//	                           │                   ▼
//	                           ▼            ┌─────────────┐
//	                    ┌─────────────┐     │   DuckDB    │
//	                    │  Aggregate  │     │   Query     │
//	                    │   Manager   │     └─────────────┘
//	                    └─────────────┘
//
// A deployment is opened with the streams it expects. Appended batches are
// checked against that configuration and against the ordering rules of
// package batch; a rejected batch leaves the deployment unchanged. Adjacent
// sequences with the same sync point and trigger ids are merged on append.
//
// Snapshots of a deployment can be exported to parquet and imported into a
// freshly opened deployment, for example across restarts. Package query
// reads the same files for analytics.
package storage
