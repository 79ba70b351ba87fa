package types

import (
	"fmt"
	"time"

	"github.com/xtxerr/datastreams/internal/errors"
)

// Measurement is a single reading of a sensor. Sensor times are device
// clock timestamps in microseconds; a SyncPoint maps them to UTC.
type Measurement struct {
	SensorStartTime int64
	SensorEndTime   *int64 // nil for instantaneous readings
	Data            Data
}

// NewMeasurement returns a measurement, rejecting an end time before the
// start time.
func NewMeasurement(start int64, end *int64, data Data) (Measurement, error) {
	if data == nil {
		return Measurement{}, fmt.Errorf("payload is nil: %w", errors.ErrInvalidMeasurement)
	}
	if end != nil && *end < start {
		return Measurement{}, fmt.Errorf("sensor end time %d precedes start time %d: %w", *end, start, errors.ErrInvalidMeasurement)
	}

	m := Measurement{SensorStartTime: start, Data: data}
	if end != nil {
		e := *end
		m.SensorEndTime = &e
	}
	return m, nil
}

// Instant is NewMeasurement for a reading without an end time. Creation
// cannot fail for a non-nil payload.
func Instant(at int64, data Data) Measurement {
	return Measurement{SensorStartTime: at, Data: data}
}

// Clone returns m with its own copy of the end time.
func (m Measurement) Clone() Measurement {
	if m.SensorEndTime != nil {
		e := *m.SensorEndTime
		m.SensorEndTime = &e
	}
	return m
}

// DataType returns the tag of the payload.
func (m Measurement) DataType() DataType {
	if m.Data == nil {
		return DataType{}
	}
	return m.Data.DataType()
}

// Duration returns the time covered by the measurement; zero for instants.
func (m Measurement) Duration() time.Duration {
	if m.SensorEndTime == nil {
		return 0
	}
	return time.Duration(*m.SensorEndTime-m.SensorStartTime) * time.Microsecond
}
