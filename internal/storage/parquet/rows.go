package parquet

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/proto"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EmptySequenceIndex marks the single row stored for a sequence without
// measurements. Such rows carry no payload.
const EmptySequenceIndex = -1

// MeasurementRow is one measurement of a sequence, denormalized with the
// metadata of its sequence.
type MeasurementRow struct {
	DeploymentID    string `parquet:"deployment_id,dict,zstd"`
	DeviceRole      string `parquet:"device_role,dict,zstd"`
	DataType        string `parquet:"data_type,dict,zstd"`
	FirstSequenceID int64  `parquet:"first_sequence_id"`
	SequenceIndex   int32  `parquet:"sequence_index"`
	SequenceID      int64  `parquet:"sequence_id"`

	TriggerIDs []int64 `parquet:"trigger_ids,list"`

	// Sync point
	SynchronizedOn     int64   `parquet:"synchronized_on_us"`
	SensorTimestamp    int64   `parquet:"sensor_timestamp_at_sync_point"`
	RelativeClockSpeed float64 `parquet:"relative_clock_speed"`

	SensorStartTime int64  `parquet:"sensor_start_time"`
	SensorEndTime   *int64 `parquet:"sensor_end_time,optional"`
	Payload         string `parquet:"payload,zstd"`
}

// IsEmptySequence reports whether the row stands for an empty sequence.
func (r *MeasurementRow) IsEmptySequence() bool {
	return r.SequenceIndex == EmptySequenceIndex
}

// SequenceToRows converts a sequence into its rows.
func SequenceToRows(s sequence.Sequence) ([]MeasurementRow, error) {
	stream := s.Stream()
	sp := s.SyncPoint()

	triggers := make([]int64, 0, len(s.TriggerIDs()))
	for _, id := range s.TriggerIDs() {
		triggers = append(triggers, int64(id))
	}

	template := MeasurementRow{
		DeploymentID:       stream.DeploymentID.String(),
		DeviceRole:         stream.DeviceRole,
		DataType:           stream.DataType.String(),
		FirstSequenceID:    s.FirstSequenceID(),
		TriggerIDs:         triggers,
		SynchronizedOn:     sp.SynchronizedOn.UnixMicro(),
		SensorTimestamp:    sp.SensorTimestampAtSyncPoint,
		RelativeClockSpeed: sp.RelativeClockSpeed,
	}

	if s.Len() == 0 {
		row := template
		row.SequenceIndex = EmptySequenceIndex
		row.SequenceID = s.FirstSequenceID()
		return []MeasurementRow{row}, nil
	}

	rows := make([]MeasurementRow, s.Len())
	for i := range rows {
		m := s.Measurement(i)
		st, err := proto.PayloadToStruct(m.Data)
		if err != nil {
			return nil, fmt.Errorf("sequence %s measurement %d: %w", s, i, err)
		}
		payload, err := protojson.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}

		row := template
		row.SequenceIndex = int32(i)
		row.SequenceID = s.FirstSequenceID() + int64(i)
		row.SensorStartTime = m.SensorStartTime
		if m.SensorEndTime != nil {
			end := *m.SensorEndTime
			row.SensorEndTime = &end
		}
		row.Payload = string(payload)
		rows[i] = row
	}
	return rows, nil
}

// RowsToSequences groups rows back into sequences. Rows of one sequence must
// be contiguous and ordered by sequence index, which is how Writer lays
// them out.
func RowsToSequences(rows []MeasurementRow) ([]sequence.Sequence, error) {
	var (
		out   []sequence.Sequence
		group []MeasurementRow
	)

	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		s, err := sequenceFromRows(group)
		if err != nil {
			return err
		}
		out = append(out, s)
		group = group[:0]
		return nil
	}

	for i := range rows {
		r := rows[i]
		if len(group) > 0 && !sameSequence(group[len(group)-1], r) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		group = append(group, r)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// sameSequence reports whether next continues the sequence of prev.
func sameSequence(prev, next MeasurementRow) bool {
	return !prev.IsEmptySequence() &&
		next.SequenceIndex == prev.SequenceIndex+1 &&
		prev.DeploymentID == next.DeploymentID &&
		prev.DeviceRole == next.DeviceRole &&
		prev.DataType == next.DataType &&
		prev.FirstSequenceID == next.FirstSequenceID
}

func sequenceFromRows(rows []MeasurementRow) (sequence.Sequence, error) {
	head := rows[0]

	dep, err := uuid.Parse(head.DeploymentID)
	if err != nil {
		return sequence.Sequence{}, errors.NewInvalidValue("deployment_id", head.DeploymentID, err.Error())
	}
	dt, err := types.ParseDataType(head.DataType)
	if err != nil {
		return sequence.Sequence{}, err
	}
	stream, err := types.NewStreamID(dep, head.DeviceRole, dt)
	if err != nil {
		return sequence.Sequence{}, err
	}

	triggers := make([]int, len(head.TriggerIDs))
	for i, id := range head.TriggerIDs {
		triggers[i] = int(id)
	}
	sp := types.SyncPoint{
		SynchronizedOn:             time.UnixMicro(head.SynchronizedOn).UTC(),
		SensorTimestampAtSyncPoint: head.SensorTimestamp,
		RelativeClockSpeed:         head.RelativeClockSpeed,
	}

	if head.IsEmptySequence() {
		return sequence.New(stream, head.FirstSequenceID, nil, triggers, sp)
	}
	if head.SequenceIndex != 0 {
		return sequence.Sequence{}, fmt.Errorf("sequence %s at %d starts at index %d: %w", head.DeviceRole, head.FirstSequenceID, head.SequenceIndex, errors.ErrCorruptSnapshot)
	}

	measurements := make([]types.Measurement, len(rows))
	for i := range rows {
		r := &rows[i]
		if !slices.Equal(r.TriggerIDs, head.TriggerIDs) ||
			r.SynchronizedOn != head.SynchronizedOn ||
			r.SensorTimestamp != head.SensorTimestamp ||
			r.RelativeClockSpeed != head.RelativeClockSpeed {
			return sequence.Sequence{}, fmt.Errorf("sequence %s at %d: metadata differs at index %d: %w", head.DeviceRole, head.FirstSequenceID, r.SequenceIndex, errors.ErrCorruptSnapshot)
		}

		st := &structpb.Struct{}
		if err := protojson.Unmarshal([]byte(r.Payload), st); err != nil {
			return sequence.Sequence{}, errors.NewInvalidValue("payload", r.Payload, err.Error())
		}
		data, err := proto.PayloadFromStruct(dt, st)
		if err != nil {
			return sequence.Sequence{}, err
		}

		var end *int64
		if r.SensorEndTime != nil {
			e := *r.SensorEndTime
			end = &e
		}
		if measurements[i], err = types.NewMeasurement(r.SensorStartTime, end, data); err != nil {
			return sequence.Sequence{}, err
		}
	}

	return sequence.New(stream, head.FirstSequenceID, measurements, triggers, sp)
}
