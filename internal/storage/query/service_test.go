package query

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/config"
	"github.com/xtxerr/datastreams/internal/storage/parquet"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

var (
	deployment = uuid.MustParse("c9cc5317-48da-45f2-958e-58bc07f34681")
	steps      = types.StreamID{DeploymentID: deployment, DeviceRole: "phone", DataType: types.StepCountType}
	heartRate  = types.StreamID{DeploymentID: deployment, DeviceRole: "chest strap", DataType: types.HeartRateType}
	location   = types.StreamID{DeploymentID: deployment, DeviceRole: "phone", DataType: types.GeolocationType}
	syncT0     = types.NewSyncPoint(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 0, 1)
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(config.DefaultConfig().Analytics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// writeSnapshot exports steps [0,3) and [5,9), heart rate [0,2) and one empty
// location sequence.
func writeSnapshot(t *testing.T) string {
	t.Helper()

	stepSeq := func(first int64, n int) sequence.Sequence {
		ms := make([]types.Measurement, n)
		for i := range ms {
			ms[i] = types.Instant(int64(i), types.StepCount{Steps: i})
		}
		return sequence.MustNew(steps, first, ms, []int{1}, syncT0)
	}

	b, err := batch.FromSequences(
		stepSeq(0, 3),
		stepSeq(5, 4),
		sequence.MustNew(heartRate, 0, []types.Measurement{
			types.Instant(1, types.HeartRate{BPM: 60}),
			types.Instant(2, types.HeartRate{BPM: 61}),
		}, []int{1}, syncT0),
		sequence.MustNew(location, 7, nil, []int{1}, syncT0),
	)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), deployment.String()+".parquet")
	if _, err := parquet.WriteBatch(path, b, parquet.DefaultOptions()); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	return path
}

func TestService_New(t *testing.T) {
	svc := newService(t)
	if svc == nil {
		t.Fatal("service is nil")
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc := newService(t)

	// Simple query
	results, err := svc.ExecuteSQL(context.Background(), "SELECT 1 AS value")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 {
		t.Errorf("expected 1 query executed, got %d", stats.QueriesExecuted)
	}
}

func TestService_StreamSummaries(t *testing.T) {
	svc := newService(t)
	path := writeSnapshot(t)

	summaries, err := svc.StreamSummaries(context.Background(), path)
	if err != nil {
		t.Fatalf("StreamSummaries: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(summaries))
	}

	byStream := make(map[types.StreamID]StreamSummary)
	for _, s := range summaries {
		byStream[s.Stream] = s
	}

	tests := []struct {
		stream    types.StreamID
		sequences int64
		points    int64
		min, max  int64
	}{
		{steps, 2, 7, 0, 8},
		{heartRate, 1, 2, 0, 1},
		{location, 1, 0, -1, -1},
	}
	for _, tt := range tests {
		got, ok := byStream[tt.stream]
		if !ok {
			t.Errorf("%s: missing summary", tt.stream)
			continue
		}
		if got.Sequences != tt.sequences || got.Points != tt.points ||
			got.MinSequenceID != tt.min || got.MaxSequenceID != tt.max {
			t.Errorf("%s: got %+v", tt.stream, got)
		}
	}
}

func TestService_StreamSummariesConcurrent(t *testing.T) {
	svc := newService(t)
	path := writeSnapshot(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries, err := svc.StreamSummaries(context.Background(), path)
			if err == nil && len(summaries) != 3 {
				err = fmt.Errorf("expected 3 summaries, got %d", len(summaries))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestService_CountRange(t *testing.T) {
	svc := newService(t)
	path := writeSnapshot(t)
	ctx := context.Background()
	ptr := func(v int64) *int64 { return &v }

	tests := []struct {
		name   string
		stream types.StreamID
		from   int64
		to     *int64
		want   int64
	}{
		{"all steps", steps, 0, nil, 7},
		{"across gap", steps, 2, ptr(5), 2},
		{"inside gap", steps, 3, ptr(4), 0},
		{"single point", steps, 8, ptr(8), 1},
		{"heart rate", heartRate, 0, ptr(0), 1},
		{"empty stream", location, 0, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CountRange(ctx, path, tt.stream, tt.from, tt.to)
			if err != nil {
				t.Fatalf("CountRange: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestService_CountRangeInvalid(t *testing.T) {
	svc := newService(t)
	path := writeSnapshot(t)
	to := int64(1)

	if _, err := svc.CountRange(context.Background(), path, steps, 2, &to); !errors.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for to < from, got %v", err)
	}
	if _, err := svc.CountRange(context.Background(), path, steps, -1, nil); !errors.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for negative from, got %v", err)
	}
}

func TestService_MissingSnapshot(t *testing.T) {
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "missing.parquet")

	if _, err := svc.StreamSummaries(context.Background(), path); err == nil {
		t.Error("expected error for missing snapshot")
	}
	if _, err := svc.CountRange(context.Background(), path, steps, 0, nil); err == nil {
		t.Error("expected error for missing snapshot")
	}
	if svc.Stats().Errors != 2 {
		t.Errorf("expected 2 errors, got %d", svc.Stats().Errors)
	}
}
