package sequence

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

var (
	stepStream = types.StreamID{
		DeploymentID: uuid.MustParse("c9cc5317-48da-45f2-958e-58bc07f34681"),
		DeviceRole:   "phone",
		DataType:     types.StepCountType,
	}
	t0 = types.NewSyncPoint(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0, 1)
)

func steps(n int, offset int) []types.Measurement {
	out := make([]types.Measurement, n)
	for i := range out {
		out[i] = types.Instant(int64(offset+i)*1000, types.StepCount{Steps: offset + i})
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		first   int64
		ms      []types.Measurement
		trigger []int
		want    error
	}{
		{"negative first id", -1, steps(1, 0), []int{1}, errors.ErrInvalidSequence},
		{"no trigger ids", 0, steps(1, 0), nil, errors.ErrInvalidSequence},
		{"mismatched data type", 0, []types.Measurement{types.Instant(0, types.HeartRate{BPM: 60})}, []int{1}, errors.ErrDataTypeMismatch},
		{"nil payload", 0, []types.Measurement{{SensorStartTime: 0}}, []int{1}, errors.ErrInvalidMeasurement},
		{"capacity", math.MaxInt64, steps(1, 0), []int{1}, errors.ErrIndexCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(stepStream, tt.first, tt.ms, tt.trigger, t0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if !errors.IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}

	if _, err := New(types.StreamID{}, 0, nil, []int{1}, t0); !errors.IsInvalidArgument(err) {
		t.Errorf("zero stream id: got %v", err)
	}
}

func TestNew_SyncPoint(t *testing.T) {
	fine := types.SyncPoint{
		SynchronizedOn:             time.Date(2024, 3, 1, 12, 0, 0, 1_500, time.UTC),
		SensorTimestampAtSyncPoint: 500,
		RelativeClockSpeed:         0.99,
	}

	s := MustNew(stepStream, 0, steps(1, 0), []int{1}, fine)
	if got := s.SyncPoint(); !got.Equal(fine.Canonical()) || got.SynchronizedOn.Nanosecond() != 1_000 {
		t.Errorf("sync point not canonical: %+v", got)
	}
	if !s.IsImmediatelyFollowedBy(MustNew(stepStream, 1, steps(1, 1), []int{1}, fine.Canonical())) {
		t.Error("canonical sync point should continue the sequence")
	}

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		bad := fine
		bad.RelativeClockSpeed = speed
		if _, err := New(stepStream, 0, steps(1, 0), []int{1}, bad); !errors.Is(err, errors.ErrInvalidSequence) {
			t.Errorf("clock speed %v: got %v", speed, err)
		}
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	end := int64(5_000)
	ms := append(steps(1, 0), types.Measurement{SensorStartTime: 1_000, SensorEndTime: &end, Data: types.StepCount{Steps: 1}})
	triggers := []int{1, 2}
	s := MustNew(stepStream, 0, ms, triggers, t0)

	ms[0] = types.Instant(0, types.StepCount{Steps: 999})
	triggers[0] = 42
	end = 9_000
	if got := *s.Measurement(1).SensorEndTime; got != 5_000 {
		t.Errorf("end time aliased caller value: %d", got)
	}

	if got := s.Measurement(0).Data.(types.StepCount).Steps; got != 0 {
		t.Errorf("measurement aliased caller slice, steps = %d", got)
	}
	if got := s.TriggerIDs(); got[0] != 1 {
		t.Errorf("trigger ids aliased caller slice: %v", got)
	}
}

func TestRange(t *testing.T) {
	s := MustNew(stepStream, 5, steps(3, 0), []int{1}, t0)
	r := s.Range()
	if r.First != 5 || r.End != 8 || r.Len() != 3 || r.IsEmpty() {
		t.Fatalf("Range() = %v", r)
	}
	if !r.Contains(7) || r.Contains(8) || r.Contains(4) {
		t.Error("Contains is not half-open")
	}

	empty := MustNew(stepStream, 5, nil, []int{1}, t0)
	if !empty.Range().IsEmpty() || empty.Range().Len() != 0 {
		t.Errorf("empty range = %v", empty.Range())
	}

	if got := r.Intersect(Range{First: 7, End: 20}); got != (Range{First: 7, End: 8}) {
		t.Errorf("Intersect = %v", got)
	}
	if got := r.Intersect(Range{First: 10, End: 20}); !got.IsEmpty() {
		t.Errorf("disjoint Intersect = %v", got)
	}

	to := int64(9)
	if w := Window(2, &to); w != (Range{First: 2, End: 10}) {
		t.Errorf("Window = %v", w)
	}
	if w := Window(2, nil); w.End != math.MaxInt64 {
		t.Errorf("unbounded Window = %v", w)
	}
}

func TestIsImmediatelyFollowedBy(t *testing.T) {
	a := MustNew(stepStream, 0, steps(2, 0), []int{1}, t0)
	later := types.NewSyncPoint(t0.SynchronizedOn.Add(time.Minute), 0, 1)
	other := stepStream
	other.DeviceRole = "watch"

	tests := []struct {
		name string
		next Sequence
		want bool
	}{
		{"contiguous", MustNew(stepStream, 2, steps(1, 2), []int{1}, t0), true},
		{"gap", MustNew(stepStream, 3, steps(1, 3), []int{1}, t0), false},
		{"overlap", MustNew(stepStream, 1, steps(1, 1), []int{1}, t0), false},
		{"different triggers", MustNew(stepStream, 2, steps(1, 2), []int{2}, t0), false},
		{"different sync point", MustNew(stepStream, 2, steps(1, 2), []int{1}, later), false},
		{"different stream", MustNew(other, 2, steps(1, 2), []int{1}, t0), false},
	}

	for _, tt := range tests {
		if got := a.IsImmediatelyFollowedBy(tt.next); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	empty := MustNew(stepStream, 4, nil, []int{1}, t0)
	if !empty.IsImmediatelyFollowedBy(MustNew(stepStream, 4, steps(1, 4), []int{1}, t0)) {
		t.Error("empty sequence should be followed by a sequence with the same first id")
	}
	if empty.IsImmediatelyFollowedBy(MustNew(stepStream, 5, steps(1, 5), []int{1}, t0)) {
		t.Error("empty sequence should not be followed by a different first id")
	}
}

func TestExpand(t *testing.T) {
	s := MustNew(stepStream, 10, steps(4, 0), []int{3, 7}, t0)
	points := s.Expand()

	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}
	for i, p := range points {
		if p.SequenceID != 10+int64(i) {
			t.Errorf("point %d: sequence id %d", i, p.SequenceID)
		}
		if p.Stream != stepStream || !p.SyncPoint.Equal(t0) || len(p.TriggerIDs) != 2 {
			t.Errorf("point %d: metadata not copied: %+v", i, p)
		}
		if p.Measurement.Data.(types.StepCount).Steps != i {
			t.Errorf("point %d: wrong measurement", i)
		}
	}

	points[0].TriggerIDs[0] = 99
	if s.TriggerIDs()[0] != 3 {
		t.Error("expanded points alias the sequence trigger ids")
	}
	if points[1].TriggerIDs[0] != 3 {
		t.Error("expanded points share trigger ids")
	}

	end := int64(2_000)
	timed := MustNew(stepStream, 0, []types.Measurement{{SensorStartTime: 1_000, SensorEndTime: &end, Data: types.StepCount{Steps: 1}}}, []int{1}, t0)
	*timed.Expand()[0].Measurement.SensorEndTime = 99
	*timed.Measurement(0).SensorEndTime = 99
	*timed.Measurements()[0].SensorEndTime = 99
	if got := *timed.Expand()[0].Measurement.SensorEndTime; got != 2_000 {
		t.Errorf("stored end time changed through a copy: %d", got)
	}
}

func TestSlice(t *testing.T) {
	s := MustNew(stepStream, 10, steps(5, 0), []int{1}, t0)

	sub, ok := s.Slice(Range{First: 12, End: 14})
	if !ok {
		t.Fatal("expected overlap")
	}
	if sub.FirstSequenceID() != 12 || sub.Len() != 2 {
		t.Fatalf("Slice = %v", sub)
	}
	if sub.Measurement(0).Data.(types.StepCount).Steps != 2 {
		t.Error("slice starts at the wrong measurement")
	}

	if _, ok := s.Slice(Range{First: 0, End: 10}); ok {
		t.Error("window before the sequence should not overlap")
	}
	if whole, _ := s.Slice(Window(0, nil)); whole.Range() != s.Range() {
		t.Errorf("unbounded window = %v", whole.Range())
	}

	sub.Expand()[0].TriggerIDs[0] = 42
	if s.TriggerIDs()[0] != 1 || sub.TriggerIDs()[0] != 1 {
		t.Error("slice trigger ids changed through expanded points")
	}
}

func TestMutable_AppendSequence(t *testing.T) {
	m := NewMutable(MustNew(stepStream, 0, steps(2, 0), []int{1}, t0))

	if err := m.AppendSequence(MustNew(stepStream, 2, steps(1, 2), []int{1}, t0)); err != nil {
		t.Fatalf("AppendSequence: %v", err)
	}
	if r := m.Range(); r != (Range{First: 0, End: 3}) {
		t.Errorf("Range = %v", r)
	}

	err := m.AppendSequence(MustNew(stepStream, 5, steps(1, 5), []int{1}, t0))
	if !errors.Is(err, errors.ErrNotFollowing) {
		t.Errorf("gap: got %v", err)
	}
	if m.Len() != 3 {
		t.Errorf("failed append changed the length to %d", m.Len())
	}
}

func TestMutable_AppendMeasurementsChecksDataType(t *testing.T) {
	m := NewMutable(MustNew(stepStream, 0, steps(1, 0), []int{1}, t0))

	err := m.AppendMeasurements(types.Instant(1, types.StepCount{Steps: 1}), types.Instant(2, types.HeartRate{BPM: 70}))
	if !errors.Is(err, errors.ErrDataTypeMismatch) {
		t.Fatalf("got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("partial append: len = %d", m.Len())
	}
}

func TestMutable_SnapshotIsSealed(t *testing.T) {
	m := NewMutable(MustNew(stepStream, 0, steps(2, 0), []int{1}, t0))
	snap := m.Snapshot()

	for i := 2; i < 10; i++ {
		if err := m.AppendMeasurements(types.Instant(int64(i), types.StepCount{Steps: i})); err != nil {
			t.Fatalf("AppendMeasurements: %v", err)
		}
	}

	if snap.Len() != 2 || snap.Range().End != 2 {
		t.Errorf("snapshot observed later appends: %v", snap.Range())
	}
	if got := m.Snapshot().Measurement(2).Data.(types.StepCount).Steps; got != 2 {
		t.Errorf("working copy steps = %d, want 2", got)
	}
}

func TestMutable_DoesNotShareSource(t *testing.T) {
	src := MustNew(stepStream, 0, steps(2, 0), []int{1}, t0)
	a := NewMutable(src)
	b := NewMutable(src)

	if err := a.AppendMeasurements(types.Instant(2, types.StepCount{Steps: 100})); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendMeasurements(types.Instant(2, types.StepCount{Steps: 200})); err != nil {
		t.Fatal(err)
	}

	if got := a.Snapshot().Measurement(2).Data.(types.StepCount).Steps; got != 100 {
		t.Errorf("working copies share storage, a[2] = %d", got)
	}
	if src.Len() != 2 {
		t.Errorf("source changed length to %d", src.Len())
	}
}
