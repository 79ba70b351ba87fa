package types

import (
	"fmt"
	"maps"
	"sync"

	"github.com/xtxerr/datastreams/internal/errors"
)

// CARPNamespace is the namespace of the built-in data types.
const CARPNamespace = "dk.cachet.carp"

// Built-in data types.
var (
	GeolocationType    = DataType{Namespace: CARPNamespace, Name: "geolocation"}
	HeartRateType      = DataType{Namespace: CARPNamespace, Name: "heartrate"}
	ECGType            = DataType{Namespace: CARPNamespace, Name: "ecg"}
	StepCountType      = DataType{Namespace: CARPNamespace, Name: "stepcount"}
	AccelerationType   = DataType{Namespace: CARPNamespace, Name: "acceleration"}
	SignalStrengthType = DataType{Namespace: CARPNamespace, Name: "signalstrength"}
	TriggeredTaskType  = DataType{Namespace: CARPNamespace, Name: "triggeredtask"}
	CompletedTaskType  = DataType{Namespace: CARPNamespace, Name: "completedtask"}
)

// Data is the payload of a measurement. Every payload carries the tag of
// the data type it represents and can be reduced to a field map holding
// only strings, float64s, bools, nested maps and slices, so that any
// payload serializes without reflection on its concrete type.
type Data interface {
	DataType() DataType
	Fields() map[string]any
}

// Decoder rebuilds a payload from its field map.
type Decoder func(fields map[string]any) (Data, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[DataType]Decoder{
		GeolocationType:    decodeGeolocation,
		HeartRateType:      decodeHeartRate,
		ECGType:            decodeECG,
		StepCountType:      decodeStepCount,
		AccelerationType:   decodeAcceleration,
		SignalStrengthType: decodeSignalStrength,
		TriggeredTaskType:  decodeTriggeredTask,
		CompletedTaskType:  decodeCompletedTask,
	}
)

// RegisterDataType registers a decoder for a custom data type. Payloads of
// unregistered types decode to Generic.
func RegisterDataType(dt DataType, dec Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[dt] = dec
}

// DecodeData rebuilds the payload of type dt from fields.
func DecodeData(dt DataType, fields map[string]any) (Data, error) {
	decodersMu.RLock()
	dec, ok := decoders[dt]
	decodersMu.RUnlock()

	if !ok {
		return Generic{Type: dt, Values: maps.Clone(fields)}, nil
	}

	d, err := dec(fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v: %w", dt, err, errors.ErrInvalidMeasurement)
	}
	return d, nil
}

// =============================================================================
// Built-in payloads
// =============================================================================

// Geolocation is a position in decimal degrees.
type Geolocation struct {
	Latitude  float64
	Longitude float64
}

func (Geolocation) DataType() DataType { return GeolocationType }

func (g Geolocation) Fields() map[string]any {
	return map[string]any{"latitude": g.Latitude, "longitude": g.Longitude}
}

// HeartRate in beats per minute.
type HeartRate struct {
	BPM int
}

func (HeartRate) DataType() DataType { return HeartRateType }

func (h HeartRate) Fields() map[string]any {
	return map[string]any{"bpm": float64(h.BPM)}
}

// ECG is a single-lead electrocardiogram sample.
type ECG struct {
	LeadI float64
}

func (ECG) DataType() DataType { return ECGType }

func (e ECG) Fields() map[string]any {
	return map[string]any{"lead_i": e.LeadI}
}

// StepCount is the number of steps since the previous measurement.
type StepCount struct {
	Steps int
}

func (StepCount) DataType() DataType { return StepCountType }

func (s StepCount) Fields() map[string]any {
	return map[string]any{"steps": float64(s.Steps)}
}

// Acceleration along three axes in m/s².
type Acceleration struct {
	X, Y, Z float64
}

func (Acceleration) DataType() DataType { return AccelerationType }

func (a Acceleration) Fields() map[string]any {
	return map[string]any{"x": a.X, "y": a.Y, "z": a.Z}
}

// SignalStrength of a nearby device in dBm.
type SignalStrength struct {
	RSSI int
}

func (SignalStrength) DataType() DataType { return SignalStrengthType }

func (s SignalStrength) Fields() map[string]any {
	return map[string]any{"rssi": float64(s.RSSI)}
}

// TriggeredTask records that a trigger sent a task control to a device.
type TriggeredTask struct {
	TriggerID             int
	TaskName              string
	DestinationDeviceRole string
	Control               string
}

func (TriggeredTask) DataType() DataType { return TriggeredTaskType }

func (t TriggeredTask) Fields() map[string]any {
	return map[string]any{
		"trigger_id":              float64(t.TriggerID),
		"task_name":               t.TaskName,
		"destination_device_role": t.DestinationDeviceRole,
		"control":                 t.Control,
	}
}

// CompletedTask records that a participant finished a task.
type CompletedTask struct {
	TaskName string
}

func (CompletedTask) DataType() DataType { return CompletedTaskType }

func (c CompletedTask) Fields() map[string]any {
	return map[string]any{"task_name": c.TaskName}
}

// Generic holds a payload of a data type without a registered decoder.
type Generic struct {
	Type   DataType
	Values map[string]any
}

func (g Generic) DataType() DataType { return g.Type }

func (g Generic) Fields() map[string]any { return maps.Clone(g.Values) }

// =============================================================================
// Decoders
// =============================================================================

func decodeGeolocation(f map[string]any) (Data, error) {
	lat, err := number(f, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := number(f, "longitude")
	if err != nil {
		return nil, err
	}
	return Geolocation{Latitude: lat, Longitude: lon}, nil
}

func decodeHeartRate(f map[string]any) (Data, error) {
	bpm, err := integer(f, "bpm")
	if err != nil {
		return nil, err
	}
	return HeartRate{BPM: bpm}, nil
}

func decodeECG(f map[string]any) (Data, error) {
	v, err := number(f, "lead_i")
	if err != nil {
		return nil, err
	}
	return ECG{LeadI: v}, nil
}

func decodeStepCount(f map[string]any) (Data, error) {
	steps, err := integer(f, "steps")
	if err != nil {
		return nil, err
	}
	return StepCount{Steps: steps}, nil
}

func decodeAcceleration(f map[string]any) (Data, error) {
	var a Acceleration
	var err error
	if a.X, err = number(f, "x"); err != nil {
		return nil, err
	}
	if a.Y, err = number(f, "y"); err != nil {
		return nil, err
	}
	if a.Z, err = number(f, "z"); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeSignalStrength(f map[string]any) (Data, error) {
	rssi, err := integer(f, "rssi")
	if err != nil {
		return nil, err
	}
	return SignalStrength{RSSI: rssi}, nil
}

func decodeTriggeredTask(f map[string]any) (Data, error) {
	var t TriggeredTask
	var err error
	if t.TriggerID, err = integer(f, "trigger_id"); err != nil {
		return nil, err
	}
	if t.TaskName, err = str(f, "task_name"); err != nil {
		return nil, err
	}
	if t.DestinationDeviceRole, err = str(f, "destination_device_role"); err != nil {
		return nil, err
	}
	if t.Control, err = str(f, "control"); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeCompletedTask(f map[string]any) (Data, error) {
	name, err := str(f, "task_name")
	if err != nil {
		return nil, err
	}
	return CompletedTask{TaskName: name}, nil
}

func number(f map[string]any, key string) (float64, error) {
	switch v := f[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("missing field %q", key)
	default:
		return 0, fmt.Errorf("field %q: expected number, got %T", key, v)
	}
}

func integer(f map[string]any, key string) (int, error) {
	v, err := number(f, key)
	if err != nil {
		return 0, err
	}
	if v != float64(int(v)) {
		return 0, fmt.Errorf("field %q: expected integer, got %v", key, v)
	}
	return int(v), nil
}

func str(f map[string]any, key string) (string, error) {
	switch v := f[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("missing field %q", key)
	default:
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
}
