// Package types defines the value types shared by the data stream engine.
//
// Key types:
//   - StreamID: names one ordered channel (deployment, device role, data type)
//   - SyncPoint: maps device-local sensor time to UTC
//   - Measurement: one sensor reading carrying a tagged Data payload
//   - Point: a measurement expanded with its sequence id and metadata
package types
