// Package sequence implements contiguous runs of measurements of one data
// stream that share trigger attribution and clock synchronization.
//
// A Sequence is sealed: once constructed, the measurements it exposes never
// change. Merging happens on a Mutable working copy owned by exactly one
// batch, which hands out sealed snapshots.
package sequence

import (
	"fmt"
	"math"
	"slices"

	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"github.com/xtxerr/datastreams/internal/validation"
)

// Sequence is a contiguous run of measurements of one stream, starting at
// FirstSequenceID and numbered consecutively.
type Sequence struct {
	stream       types.StreamID
	first        int64
	measurements []types.Measurement
	triggerIDs   []int
	syncPoint    types.SyncPoint
}

// New validates and returns a sequence. The inputs are copied and the sync
// point is stored in canonical form.
//
// The first sequence id must be non-negative, at least one trigger id is
// required, the clock speed must be positive, and every measurement must
// carry the stream's data type.
func New(stream types.StreamID, firstSequenceID int64, measurements []types.Measurement, triggerIDs []int, syncPoint types.SyncPoint) (Sequence, error) {
	if err := stream.Validate(); err != nil {
		return Sequence{}, err
	}
	if err := validation.ValidateFirstSequenceID(firstSequenceID); err != nil {
		return Sequence{}, err
	}
	if err := validation.ValidateTriggerIDs(triggerIDs); err != nil {
		return Sequence{}, err
	}
	if err := validation.ValidateClockSpeed(syncPoint.RelativeClockSpeed); err != nil {
		return Sequence{}, err
	}
	if err := checkDataTypes(stream, measurements); err != nil {
		return Sequence{}, err
	}
	if err := checkCapacity(firstSequenceID, len(measurements)); err != nil {
		return Sequence{}, err
	}

	return Sequence{
		stream:       stream,
		first:        firstSequenceID,
		measurements: cloneMeasurements(measurements),
		triggerIDs:   slices.Clone(triggerIDs),
		syncPoint:    syncPoint.Canonical(),
	}, nil
}

// MustNew is New for tests and fixtures.
func MustNew(stream types.StreamID, firstSequenceID int64, measurements []types.Measurement, triggerIDs []int, syncPoint types.SyncPoint) Sequence {
	s, err := New(stream, firstSequenceID, measurements, triggerIDs, syncPoint)
	if err != nil {
		panic(err)
	}
	return s
}

func cloneMeasurements(ms []types.Measurement) []types.Measurement {
	out := make([]types.Measurement, len(ms))
	for i := range ms {
		out[i] = ms[i].Clone()
	}
	return out
}

func checkDataTypes(stream types.StreamID, measurements []types.Measurement) error {
	for i := range measurements {
		if measurements[i].Data == nil {
			return fmt.Errorf("measurement %d: payload is nil: %w", i, errors.ErrInvalidMeasurement)
		}
		if dt := measurements[i].DataType(); dt != stream.DataType {
			return fmt.Errorf("measurement %d has data type %s, stream %s expects %s: %w",
				i, dt, stream, stream.DataType, errors.ErrDataTypeMismatch)
		}
	}
	return nil
}

func checkCapacity(first int64, n int) error {
	if int64(n) > math.MaxInt64-first {
		return fmt.Errorf("sequence starting at %d with %d measurements: %w", first, n, errors.ErrIndexCapacity)
	}
	return nil
}

// Stream returns the stream the sequence belongs to.
func (s Sequence) Stream() types.StreamID { return s.stream }

// FirstSequenceID returns the sequence id of the first measurement.
func (s Sequence) FirstSequenceID() int64 { return s.first }

// Len returns the number of measurements.
func (s Sequence) Len() int { return len(s.measurements) }

// Measurements returns a copy of the measurements.
func (s Sequence) Measurements() []types.Measurement { return cloneMeasurements(s.measurements) }

// Measurement returns a copy of the i-th measurement.
func (s Sequence) Measurement(i int) types.Measurement { return s.measurements[i].Clone() }

// TriggerIDs returns a copy of the ids of the triggers that caused the data
// to be collected.
func (s Sequence) TriggerIDs() []int { return slices.Clone(s.triggerIDs) }

// SyncPoint returns the clock synchronization shared by all measurements.
func (s Sequence) SyncPoint() types.SyncPoint { return s.syncPoint }

// Range returns [FirstSequenceID, FirstSequenceID+Len).
func (s Sequence) Range() Range {
	return Range{First: s.first, End: s.first + int64(len(s.measurements))}
}

// IsImmediatelyFollowedBy reports whether other continues s without a gap
// and with identical trigger ids and sync point, so that both can be stored
// as one sequence.
func (s Sequence) IsImmediatelyFollowedBy(other Sequence) bool {
	if other.stream != s.stream ||
		!slices.Equal(other.triggerIDs, s.triggerIDs) ||
		!other.syncPoint.Equal(s.syncPoint) {
		return false
	}

	r := s.Range()
	if r.IsEmpty() {
		return other.first == s.first
	}
	return r.End == other.first
}

// Expand returns one point per measurement, numbered from FirstSequenceID.
// Each point owns its trigger ids and measurement.
func (s Sequence) Expand() []types.Point {
	points := make([]types.Point, len(s.measurements))
	for i, m := range s.measurements {
		points[i] = types.Point{
			SequenceID:  s.first + int64(i),
			Stream:      s.stream,
			Measurement: m.Clone(),
			TriggerIDs:  slices.Clone(s.triggerIDs),
			SyncPoint:   s.syncPoint,
		}
	}
	return points
}

// Slice returns the part of s whose sequence ids fall in window. ok is
// false when the window does not overlap s. The result shares storage with
// s, which is safe since neither exposes it.
func (s Sequence) Slice(window Range) (Sequence, bool) {
	overlap := s.Range().Intersect(window)
	if overlap.IsEmpty() {
		return Sequence{}, false
	}

	from := overlap.First - s.first
	to := overlap.End - s.first
	return Sequence{
		stream:       s.stream,
		first:        overlap.First,
		measurements: s.measurements[from:to:to],
		triggerIDs:   s.triggerIDs,
		syncPoint:    s.syncPoint,
	}, true
}

// String summarizes the sequence for logs.
func (s Sequence) String() string {
	return fmt.Sprintf("%s%s triggers=%v synced=%s", s.stream, s.Range(), s.triggerIDs,
		s.syncPoint.SynchronizedOn.Format("2006-01-02T15:04:05.000000Z07:00"))
}
