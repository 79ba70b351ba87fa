// Package proto converts sequences to and from protobuf well-known Struct
// messages.
//
// int64 values (sequence ids, sensor timestamps) are carried as decimal
// strings, the same way protojson maps int64, because Struct numbers are
// doubles.
package proto

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the sequence message.
const (
	FieldDeploymentID    = "deployment_id"
	FieldDeviceRole      = "device_role"
	FieldDataType        = "data_type"
	FieldFirstSequenceID = "first_sequence_id"
	FieldTriggerIDs      = "trigger_ids"
	FieldSyncPoint       = "sync_point"
	FieldMeasurements    = "measurements"

	FieldSynchronizedOn     = "synchronized_on"
	FieldSensorTimestamp    = "sensor_timestamp_at_sync_point"
	FieldRelativeClockSpeed = "relative_clock_speed"

	FieldSensorStartTime = "sensor_start_time"
	FieldSensorEndTime   = "sensor_end_time"
	FieldData            = "data"
)

// ============================================================================
// Sequence Conversion
// ============================================================================

// SequenceToStruct converts a sequence to a Struct message.
func SequenceToStruct(s sequence.Sequence) (*structpb.Struct, error) {
	stream := s.Stream()

	triggers := make([]any, 0, len(s.TriggerIDs()))
	for _, id := range s.TriggerIDs() {
		triggers = append(triggers, float64(id))
	}

	measurements := make([]any, s.Len())
	for i := 0; i < s.Len(); i++ {
		m, err := MeasurementToMap(s.Measurement(i))
		if err != nil {
			return nil, fmt.Errorf("measurement %d: %w", i, err)
		}
		measurements[i] = m
	}

	st, err := structpb.NewStruct(map[string]any{
		FieldDeploymentID:    stream.DeploymentID.String(),
		FieldDeviceRole:      stream.DeviceRole,
		FieldDataType:        stream.DataType.String(),
		FieldFirstSequenceID: strconv.FormatInt(s.FirstSequenceID(), 10),
		FieldTriggerIDs:      triggers,
		FieldSyncPoint:       SyncPointToMap(s.SyncPoint()),
		FieldMeasurements:    measurements,
	})
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", s, err)
	}
	return st, nil
}

// SequenceFromStruct converts a Struct message back into a validated
// sequence.
func SequenceFromStruct(st *structpb.Struct) (sequence.Sequence, error) {
	if st == nil {
		return sequence.Sequence{}, errors.NewMissingField("sequence")
	}
	fields := st.AsMap()

	stream, err := streamFromMap(fields)
	if err != nil {
		return sequence.Sequence{}, err
	}

	first, err := int64Field(fields, FieldFirstSequenceID)
	if err != nil {
		return sequence.Sequence{}, err
	}

	rawTriggers, ok := fields[FieldTriggerIDs].([]any)
	if !ok {
		return sequence.Sequence{}, errors.NewMissingField(FieldTriggerIDs)
	}
	triggers := make([]int, len(rawTriggers))
	for i, raw := range rawTriggers {
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) {
			return sequence.Sequence{}, errors.NewInvalidValue(FieldTriggerIDs, raw, "must be an integer")
		}
		triggers[i] = int(f)
	}

	rawSync, ok := fields[FieldSyncPoint].(map[string]any)
	if !ok {
		return sequence.Sequence{}, errors.NewMissingField(FieldSyncPoint)
	}
	sp, err := SyncPointFromMap(rawSync)
	if err != nil {
		return sequence.Sequence{}, err
	}

	rawMeasurements, _ := fields[FieldMeasurements].([]any)
	measurements := make([]types.Measurement, len(rawMeasurements))
	for i, raw := range rawMeasurements {
		m, ok := raw.(map[string]any)
		if !ok {
			return sequence.Sequence{}, errors.NewInvalidValue(FieldMeasurements, raw, "must be an object")
		}
		if measurements[i], err = MeasurementFromMap(stream.DataType, m); err != nil {
			return sequence.Sequence{}, fmt.Errorf("measurement %d: %w", i, err)
		}
	}

	return sequence.New(stream, first, measurements, triggers, sp)
}

func streamFromMap(fields map[string]any) (types.StreamID, error) {
	depStr, _ := fields[FieldDeploymentID].(string)
	dep, err := uuid.Parse(depStr)
	if err != nil {
		return types.StreamID{}, errors.NewInvalidValue(FieldDeploymentID, depStr, err.Error())
	}

	role, _ := fields[FieldDeviceRole].(string)
	dtStr, _ := fields[FieldDataType].(string)
	dt, err := types.ParseDataType(dtStr)
	if err != nil {
		return types.StreamID{}, err
	}

	return types.NewStreamID(dep, role, dt)
}

// ============================================================================
// Sync Point Conversion
// ============================================================================

// SyncPointToMap converts a sync point to its Struct representation.
func SyncPointToMap(p types.SyncPoint) map[string]any {
	return map[string]any{
		FieldSynchronizedOn:     p.SynchronizedOn.UTC().Format(time.RFC3339Nano),
		FieldSensorTimestamp:    strconv.FormatInt(p.SensorTimestampAtSyncPoint, 10),
		FieldRelativeClockSpeed: p.RelativeClockSpeed,
	}
}

// SyncPointFromMap parses the Struct representation of a sync point.
func SyncPointFromMap(m map[string]any) (types.SyncPoint, error) {
	onStr, _ := m[FieldSynchronizedOn].(string)
	on, err := time.Parse(time.RFC3339Nano, onStr)
	if err != nil {
		return types.SyncPoint{}, errors.NewInvalidValue(FieldSynchronizedOn, onStr, "must be an RFC 3339 timestamp")
	}

	sensorTs, err := int64Field(m, FieldSensorTimestamp)
	if err != nil {
		return types.SyncPoint{}, err
	}

	speed, ok := m[FieldRelativeClockSpeed].(float64)
	if !ok {
		return types.SyncPoint{}, errors.NewMissingField(FieldRelativeClockSpeed)
	}

	return types.SyncPoint{
		SynchronizedOn:             on,
		SensorTimestampAtSyncPoint: sensorTs,
		RelativeClockSpeed:         speed,
	}, nil
}

// ============================================================================
// Measurement Conversion
// ============================================================================

// MeasurementToMap converts a measurement to its Struct representation.
func MeasurementToMap(m types.Measurement) (map[string]any, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("payload is nil: %w", errors.ErrInvalidMeasurement)
	}

	out := map[string]any{
		FieldSensorStartTime: strconv.FormatInt(m.SensorStartTime, 10),
		FieldData:            m.Data.Fields(),
	}
	if m.SensorEndTime != nil {
		out[FieldSensorEndTime] = strconv.FormatInt(*m.SensorEndTime, 10)
	}
	return out, nil
}

// MeasurementFromMap parses a measurement whose payload has data type dt.
func MeasurementFromMap(dt types.DataType, m map[string]any) (types.Measurement, error) {
	start, err := int64Field(m, FieldSensorStartTime)
	if err != nil {
		return types.Measurement{}, err
	}

	var end *int64
	if _, ok := m[FieldSensorEndTime]; ok {
		e, err := int64Field(m, FieldSensorEndTime)
		if err != nil {
			return types.Measurement{}, err
		}
		end = &e
	}

	fields, ok := m[FieldData].(map[string]any)
	if !ok {
		return types.Measurement{}, errors.NewMissingField(FieldData)
	}
	data, err := types.DecodeData(dt, fields)
	if err != nil {
		return types.Measurement{}, err
	}

	return types.NewMeasurement(start, end, data)
}

// PayloadToStruct converts a measurement payload to a Struct message.
func PayloadToStruct(d types.Data) (*structpb.Struct, error) {
	if d == nil {
		return nil, fmt.Errorf("payload is nil: %w", errors.ErrInvalidMeasurement)
	}
	return structpb.NewStruct(d.Fields())
}

// PayloadFromStruct decodes a Struct message as a payload of data type dt.
func PayloadFromStruct(dt types.DataType, st *structpb.Struct) (types.Data, error) {
	if st == nil {
		return nil, errors.NewMissingField(FieldData)
	}
	return types.DecodeData(dt, st.AsMap())
}

// ============================================================================
// Helpers
// ============================================================================

func int64Field(m map[string]any, key string) (int64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, errors.NewMissingField(key)
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.NewInvalidValue(key, v, "must be a decimal int64")
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, errors.NewInvalidValue(key, v, "must be an exactly representable integer")
		}
		return int64(v), nil
	default:
		return 0, errors.NewInvalidValue(key, raw, "must be an integer")
	}
}
