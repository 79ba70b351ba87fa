package types

import (
	"math"
	"time"
)

// SyncPoint relates sensor timestamps of a device to UTC.
//
// A sensor timestamp t (microseconds on the device clock) maps to
// SynchronizedOn + (t - SensorTimestampAtSyncPoint) * RelativeClockSpeed.
// Sync points are ordered by SynchronizedOn.
type SyncPoint struct {
	// SynchronizedOn is the UTC time at which the device clock was read.
	SynchronizedOn time.Time

	// SensorTimestampAtSyncPoint is the device clock reading at SynchronizedOn.
	SensorTimestampAtSyncPoint int64

	// RelativeClockSpeed is the ratio of UTC time to device time.
	RelativeClockSpeed float64
}

// UnknownSyncPoint is used when a device provides UTC sensor timestamps;
// it maps every timestamp to itself.
var UnknownSyncPoint = SyncPoint{
	SynchronizedOn:             time.UnixMicro(0).UTC(),
	SensorTimestampAtSyncPoint: 0,
	RelativeClockSpeed:         1,
}

// NewSyncPoint returns a canonical sync point.
func NewSyncPoint(synchronizedOn time.Time, sensorTimestamp int64, relativeClockSpeed float64) SyncPoint {
	return SyncPoint{
		SynchronizedOn:             synchronizedOn,
		SensorTimestampAtSyncPoint: sensorTimestamp,
		RelativeClockSpeed:         relativeClockSpeed,
	}.Canonical()
}

// Canonical returns p with SynchronizedOn truncated to microseconds in UTC,
// the precision sensor timestamps and snapshots carry.
func (p SyncPoint) Canonical() SyncPoint {
	p.SynchronizedOn = time.UnixMicro(p.SynchronizedOn.UnixMicro()).UTC()
	return p
}

// ToUTC converts a device sensor timestamp (microseconds) to a UTC
// timestamp in microseconds since the Unix epoch.
func (p SyncPoint) ToUTC(sensorTimestamp int64) int64 {
	delta := float64(sensorTimestamp-p.SensorTimestampAtSyncPoint) * p.RelativeClockSpeed
	return p.SynchronizedOn.UnixMicro() + int64(math.Round(delta))
}

// ToUTCTime is ToUTC as a time.Time.
func (p SyncPoint) ToUTCTime(sensorTimestamp int64) time.Time {
	return time.UnixMicro(p.ToUTC(sensorTimestamp)).UTC()
}

// Before reports whether p was synchronized strictly before o.
func (p SyncPoint) Before(o SyncPoint) bool {
	return p.SynchronizedOn.Before(o.SynchronizedOn)
}

// Equal reports whether both sync points are identical. time.Time values
// are compared with Equal so location differences do not matter.
func (p SyncPoint) Equal(o SyncPoint) bool {
	return p.SynchronizedOn.Equal(o.SynchronizedOn) &&
		p.SensorTimestampAtSyncPoint == o.SensorTimestampAtSyncPoint &&
		p.RelativeClockSpeed == o.RelativeClockSpeed
}
