package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

var (
	depA = uuid.MustParse("c9cc5317-48da-45f2-958e-58bc07f34681")
	depB = uuid.MustParse("0d1f5c3e-2b4a-4c8e-9f6d-7a1b2c3d4e5f")

	syncT0 = types.NewSyncPoint(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0, 1)
	syncT1 = types.NewSyncPoint(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), 0, 1)
)

func stepsOf(dep uuid.UUID) types.StreamID {
	return types.StreamID{DeploymentID: dep, DeviceRole: "phone", DataType: types.StepCountType}
}

func heartRateOf(dep uuid.UUID) types.StreamID {
	return types.StreamID{DeploymentID: dep, DeviceRole: "chest strap", DataType: types.HeartRateType}
}

func configFor(dep uuid.UUID) types.DataStreamsConfiguration {
	return types.DataStreamsConfiguration{
		DeploymentID: dep,
		ExpectedStreams: []types.ExpectedStream{
			{DeviceRole: "phone", DataType: types.StepCountType},
			{DeviceRole: "chest strap", DataType: types.HeartRateType},
		},
	}
}

func seqOf(stream types.StreamID, first int64, n int, sp types.SyncPoint) sequence.Sequence {
	ms := make([]types.Measurement, n)
	for i := range ms {
		var data types.Data = types.StepCount{Steps: i}
		if stream.DataType == types.HeartRateType {
			data = types.HeartRate{BPM: 60 + i}
		}
		ms[i] = types.Instant(int64(i)*1000, data)
	}
	return sequence.MustNew(stream, first, ms, []int{1}, sp)
}

func batchOf(t *testing.T, seqs ...sequence.Sequence) *batch.Batch {
	t.Helper()
	b, err := batch.FromSequences(seqs...)
	if err != nil {
		t.Fatalf("FromSequences: %v", err)
	}
	return b
}

func openService(t *testing.T, deps ...uuid.UUID) *Service {
	t.Helper()
	svc := New()
	for _, dep := range deps {
		if err := svc.OpenStreams(configFor(dep)); err != nil {
			t.Fatalf("OpenStreams(%s): %v", dep, err)
		}
	}
	return svc
}

func ptr(v int64) *int64 { return &v }

func TestService_OpenStreams(t *testing.T) {
	svc := openService(t, depA)

	err := svc.OpenStreams(configFor(depA))
	if !errors.Is(err, errors.ErrAlreadyConfigured) {
		t.Fatalf("second OpenStreams: got %v", err)
	}
	if !errors.IsInvalidState(err) {
		t.Error("duplicate open should be an invalid state")
	}

	cfg, ok := svc.Configuration(depA)
	if !ok || len(cfg.ExpectedStreams) != 2 {
		t.Errorf("Configuration = %+v, %v", cfg, ok)
	}
	if _, ok := svc.Configuration(depB); ok {
		t.Error("unconfigured deployment should have no configuration")
	}
}

func TestService_OpenStreamsValidates(t *testing.T) {
	svc := New()

	tests := []struct {
		name string
		cfg  types.DataStreamsConfiguration
	}{
		{"nil deployment", types.DataStreamsConfiguration{ExpectedStreams: configFor(depA).ExpectedStreams}},
		{"no streams", types.DataStreamsConfiguration{DeploymentID: depA}},
		{"duplicate streams", types.DataStreamsConfiguration{
			DeploymentID: depA,
			ExpectedStreams: []types.ExpectedStream{
				{DeviceRole: "phone", DataType: types.StepCountType},
				{DeviceRole: "phone", DataType: types.StepCountType},
			},
		}},
		{"bad role", types.DataStreamsConfiguration{
			DeploymentID:    depA,
			ExpectedStreams: []types.ExpectedStream{{DeviceRole: "a/b", DataType: types.StepCountType}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.OpenStreams(tt.cfg); !errors.IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}

	if len(svc.Deployments()) != 0 {
		t.Error("invalid configurations should not be registered")
	}
}

func TestService_AppendBeforeOpen(t *testing.T) {
	svc := New()
	err := svc.Append(depA, batchOf(t, seqOf(stepsOf(depA), 0, 1, syncT0)))
	if !errors.Is(err, errors.ErrStreamsNotConfigured) {
		t.Fatalf("got %v", err)
	}
	if !errors.IsInvalidState(err) {
		t.Error("append before open should be an invalid state")
	}
}

func TestService_AppendAndQuery(t *testing.T) {
	svc := openService(t, depA)
	steps := stepsOf(depA)

	if err := svc.Append(depA, batchOf(t, seqOf(steps, 0, 2, syncT0))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := svc.Append(depA, batchOf(t, seqOf(steps, 2, 1, syncT0))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := svc.Query(steps, 0, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.Len() != 1 || got.PointCount() != 3 {
		t.Errorf("expected one merged sequence of 3 points, got %d/%d", got.Len(), got.PointCount())
	}

	one, err := svc.Query(steps, 0, ptr(0))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if points := one.Points(steps); len(points) != 1 || points[0].SequenceID != 0 {
		t.Errorf("query(X, 0, 0) returned %d points", len(points))
	}

	empty, err := svc.Query(heartRateOf(depA), 0, nil)
	if err != nil {
		t.Fatalf("Query of empty stream: %v", err)
	}
	if !empty.IsEmpty() {
		t.Error("stream without data should yield an empty batch")
	}
}

func TestService_AppendRejectsForeignStreams(t *testing.T) {
	svc := openService(t, depA, depB)

	err := svc.Append(depA, batchOf(t, seqOf(stepsOf(depB), 0, 1, syncT0)))
	if !errors.Is(err, errors.ErrDeploymentMismatch) {
		t.Errorf("foreign deployment: got %v", err)
	}

	unexpected := types.StreamID{DeploymentID: depA, DeviceRole: "watch", DataType: types.StepCountType}
	err = svc.Append(depA, batchOf(t, seqOf(unexpected, 0, 1, syncT0)))
	if !errors.Is(err, errors.ErrStreamNotConfigured) {
		t.Errorf("unexpected stream: got %v", err)
	}

	if stats := svc.Stats(); stats.AppendsRejected != 2 || stats.StoredMeasurements != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestService_AppendPropagatesOrderingErrors(t *testing.T) {
	svc := openService(t, depA)
	steps := stepsOf(depA)

	if err := svc.Append(depA, batchOf(t, seqOf(steps, 0, 2, syncT1))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := svc.Append(depA, batchOf(t, seqOf(steps, 1, 1, syncT1))); !errors.Is(err, errors.ErrOutOfOrder) {
		t.Errorf("overlap: got %v", err)
	}
	if err := svc.Append(depA, batchOf(t, seqOf(steps, 2, 1, syncT0))); !errors.Is(err, errors.ErrNonMonotonicSync) {
		t.Errorf("older sync: got %v", err)
	}
}

func TestService_AppendIsAtomicAcrossStreams(t *testing.T) {
	svc := openService(t, depA)
	steps, hr := stepsOf(depA), heartRateOf(depA)

	if err := svc.Append(depA, batchOf(t, seqOf(hr, 0, 3, syncT0))); err != nil {
		t.Fatal(err)
	}

	// Steps is new and valid, heart rate overlaps.
	bad := batchOf(t, seqOf(steps, 0, 2, syncT0), seqOf(hr, 1, 1, syncT0))
	if err := svc.Append(depA, bad); !errors.Is(err, errors.ErrOutOfOrder) {
		t.Fatalf("got %v", err)
	}

	got, err := svc.Query(steps, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsEmpty() {
		t.Errorf("rejected append stored %d step points", got.PointCount())
	}
}

func TestService_CloseStreams(t *testing.T) {
	svc := openService(t, depA)
	steps := stepsOf(depA)

	if err := svc.Append(depA, batchOf(t, seqOf(steps, 0, 2, syncT0))); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseStreams(depA); err != nil {
		t.Fatalf("CloseStreams: %v", err)
	}
	if err := svc.CloseStreams(depA); err != nil {
		t.Fatalf("CloseStreams should be idempotent: %v", err)
	}
	if !svc.IsClosed(depA) {
		t.Error("deployment should be closed")
	}

	err := svc.Append(depA, batchOf(t, seqOf(steps, 2, 1, syncT0)))
	if !errors.Is(err, errors.ErrStreamsClosed) || !errors.IsInvalidState(err) {
		t.Errorf("append after close: got %v", err)
	}

	got, err := svc.Query(steps, 0, nil)
	if err != nil {
		t.Fatalf("query after close: %v", err)
	}
	if got.PointCount() != 2 {
		t.Errorf("query after close returned %d points", got.PointCount())
	}
}

func TestService_CloseStreamsUnknownClosesNothing(t *testing.T) {
	svc := openService(t, depA)

	err := svc.CloseStreams(depA, depB)
	if !errors.Is(err, errors.ErrDeploymentNotConfigured) || !errors.IsInvalidArgument(err) {
		t.Fatalf("got %v", err)
	}
	if svc.IsClosed(depA) {
		t.Error("known deployment closed although the request failed")
	}
}

func TestService_QueryErrors(t *testing.T) {
	svc := openService(t, depA)

	if _, err := svc.Query(stepsOf(depB), 0, nil); !errors.Is(err, errors.ErrDeploymentNotConfigured) {
		t.Errorf("unconfigured deployment: got %v", err)
	}

	unexpected := types.StreamID{DeploymentID: depA, DeviceRole: "watch", DataType: types.StepCountType}
	if _, err := svc.Query(unexpected, 0, nil); !errors.Is(err, errors.ErrStreamNotConfigured) {
		t.Errorf("unexpected stream: got %v", err)
	}

	if _, err := svc.Query(stepsOf(depA), 3, ptr(1)); !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("inverted range: got %v", err)
	}
}

func TestService_RemoveStreams(t *testing.T) {
	svc := openService(t, depA, depB)
	if err := svc.Append(depA, batchOf(t, seqOf(stepsOf(depA), 0, 2, syncT0))); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseStreams(depA); err != nil {
		t.Fatal(err)
	}

	unknown := uuid.MustParse("11111111-2222-4333-8444-555555555555")
	removed := svc.RemoveStreams(depB, unknown, depA, depA)
	if len(removed) != 2 || removed[0] != depB || removed[1] != depA {
		t.Fatalf("RemoveStreams = %v", removed)
	}

	if svc.IsClosed(depA) {
		t.Error("closed state should be cleared")
	}
	if _, err := svc.Query(stepsOf(depA), 0, nil); !errors.IsInvalidArgument(err) {
		t.Errorf("query after remove: got %v", err)
	}
	if got := svc.RemoveStreams(depA); len(got) != 0 {
		t.Errorf("second remove = %v", got)
	}

	// A removed deployment can be configured again from scratch.
	if err := svc.OpenStreams(configFor(depA)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := svc.Query(stepsOf(depA), 0, nil)
	if err != nil || !got.IsEmpty() {
		t.Errorf("reopened deployment should be empty: %v", err)
	}
}

func TestService_SnapshotAndRestore(t *testing.T) {
	svc := openService(t, depA)
	steps := stepsOf(depA)
	if err := svc.Append(depA, batchOf(t, seqOf(steps, 0, 3, syncT0), seqOf(heartRateOf(depA), 0, 2, syncT0))); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.Snapshot(depA)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// Later appends do not show up in the snapshot.
	if err := svc.Append(depA, batchOf(t, seqOf(steps, 3, 1, syncT0))); err != nil {
		t.Fatal(err)
	}
	if snap.PointCount() != 5 {
		t.Errorf("snapshot changed to %d points", snap.PointCount())
	}

	restored := openService(t, depA)
	if err := restored.Restore(depA, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := restored.Query(steps, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.PointCount() != 3 {
		t.Errorf("restored %d step points, want 3", got.PointCount())
	}

	if _, err := svc.Snapshot(depB); !errors.Is(err, errors.ErrDeploymentNotConfigured) {
		t.Errorf("snapshot of unknown deployment: got %v", err)
	}
	if err := New().Restore(depA, snap); !errors.Is(err, errors.ErrStreamsNotConfigured) {
		t.Errorf("restore into unconfigured service: got %v", err)
	}
}

func TestService_Stats(t *testing.T) {
	svc := openService(t, depA, depB)
	if err := svc.Append(depA, batchOf(t, seqOf(stepsOf(depA), 0, 2, syncT0), seqOf(stepsOf(depA), 5, 4, syncT0))); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseStreams(depB); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Query(stepsOf(depA), 0, nil); err != nil {
		t.Fatal(err)
	}

	stats := svc.Stats()
	if stats.Deployments != 2 || stats.Open != 1 || stats.Closed != 1 {
		t.Errorf("deployment counts = %+v", stats)
	}
	if stats.SequencesAppended != 2 || stats.MeasurementsAppended != 6 {
		t.Errorf("append counts = %d/%d", stats.SequencesAppended, stats.MeasurementsAppended)
	}
	if stats.StoredSequences != 2 || stats.StoredMeasurements != 6 || stats.Queries != 1 {
		t.Errorf("stored = %d/%d queries = %d", stats.StoredSequences, stats.StoredMeasurements, stats.Queries)
	}
	if l := stats.SequenceLength; l.Count != 2 || l.Min != 2 || l.Max != 4 || !l.HasPercentiles {
		t.Errorf("sequence length = %+v", l)
	}

	svc.RemoveStreams(depA)
	if l := svc.Stats().SequenceLength; l.Count != 0 {
		t.Errorf("removed deployment still counted: %+v", l)
	}
}

func TestService_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	svc := openService(t, depA)
	svc.RegisterMetrics(registry)

	if err := svc.OpenStreams(configFor(depB)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Append(depA, batchOf(t, seqOf(stepsOf(depA), 0, 3, syncT0))); err != nil {
		t.Fatal(err)
	}
	_ = svc.Append(depA, batchOf(t, seqOf(stepsOf(depA), 0, 1, syncT0)))
	if _, err := svc.Query(stepsOf(depA), 0, nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseStreams(depA); err != nil {
		t.Fatal(err)
	}

	m := svc.metrics.Load()
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"accepted", testutil.ToFloat64(m.appends.WithLabelValues("accepted")), 1},
		{"rejected", testutil.ToFloat64(m.appends.WithLabelValues("rejected")), 1},
		{"measurements", testutil.ToFloat64(m.measurements), 3},
		{"queries", testutil.ToFloat64(m.queries), 1},
		{"open", testutil.ToFloat64(m.deployments.WithLabelValues("open")), 1},
		{"closed", testutil.ToFloat64(m.deployments.WithLabelValues("closed")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n, err := testutil.GatherAndCount(registry); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}
