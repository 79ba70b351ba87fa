package aggregate

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestDistribution_Basic(t *testing.T) {
	now := time.Now()
	d := New("dep-1", 0)

	if !d.IsEmpty() {
		t.Error("new distribution should be empty")
	}

	d.Add(10.0, now)
	d.Add(20.0, now.Add(time.Second))
	d.Add(30.0, now.Add(2*time.Second))

	if d.Count() != 3 {
		t.Errorf("expected count=3, got %d", d.Count())
	}

	result := d.Result()
	if result.Key != "dep-1" {
		t.Errorf("expected key dep-1, got %q", result.Key)
	}
	if result.Sum != 60.0 {
		t.Errorf("expected sum=60, got %f", result.Sum)
	}
	if result.Min != 10.0 || result.Max != 30.0 {
		t.Errorf("expected min=10 max=30, got %f %f", result.Min, result.Max)
	}
	if math.Abs(result.Avg-20.0) > 0.001 {
		t.Errorf("expected avg=20, got %f", result.Avg)
	}
	if !result.First.Equal(now) || !result.Last.Equal(now.Add(2*time.Second)) {
		t.Errorf("first/last = %v %v", result.First, result.Last)
	}
	if result.HasPercentiles {
		t.Error("should not have percentiles")
	}
}

func TestDistribution_EmptyResult(t *testing.T) {
	r := New("x", DefaultAccuracy).Result()
	if r.Count != 0 || r.Min != 0 || r.Max != 0 || r.HasPercentiles {
		t.Errorf("empty result = %+v", r)
	}
}

func TestDistribution_WithPercentiles(t *testing.T) {
	d := New("dep-1", DefaultAccuracy)
	now := time.Now()

	for i := 1; i <= 100; i++ {
		d.Add(float64(i), now)
	}

	result := d.Result()
	if !result.HasPercentiles {
		t.Fatal("should have percentiles")
	}

	// 1% relative accuracy, with slack for rank rounding.
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"p50", result.P50, 50},
		{"p90", result.P90, 90},
		{"p99", result.P99, 99},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > c.want*0.03 {
			t.Errorf("%s = %f, want ~%f", c.name, c.got, c.want)
		}
	}
}

func TestDistribution_Reset(t *testing.T) {
	d := New("dep-1", DefaultAccuracy)
	d.Add(5, time.Now())
	d.Reset()

	if !d.IsEmpty() {
		t.Error("distribution should be empty after reset")
	}
	if r := d.Result(); r.HasPercentiles || r.Sum != 0 {
		t.Errorf("result after reset = %+v", r)
	}

	d.Add(7, time.Now())
	if r := d.Result(); !r.HasPercentiles || r.Min != 7 {
		t.Errorf("result after re-add = %+v", r)
	}
}

func TestDistribution_Merge(t *testing.T) {
	now := time.Now()
	a := New("a", DefaultAccuracy)
	b := New("b", DefaultAccuracy)

	a.Add(1, now)
	a.Add(2, now)
	b.Add(10, now.Add(-time.Minute))

	a.Merge(b)
	a.Merge(nil)
	a.Merge(a)

	r := a.Result()
	if r.Count != 3 || r.Sum != 13 || r.Max != 10 || r.Min != 1 {
		t.Errorf("merged result = %+v", r)
	}
	if !r.First.Equal(now.Add(-time.Minute)) {
		t.Errorf("first = %v", r.First)
	}
	if b.Count() != 1 {
		t.Error("merge should not change the source")
	}
}

func TestDistribution_Concurrent(t *testing.T) {
	d := New("dep-1", DefaultAccuracy)
	now := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				d.Add(float64(i), now)
			}
		}()
	}
	wg.Wait()

	if d.Count() != 8000 {
		t.Errorf("expected 8000, got %d", d.Count())
	}
}

func TestManager_ObserveAndResults(t *testing.T) {
	m := NewManager(DefaultAccuracy)
	now := time.Now()

	m.Observe("b", 4, now)
	m.Observe("a", 1, now)
	m.Observe("a", 3, now)

	r, ok := m.Result("a")
	if !ok || r.Count != 2 || r.Sum != 4 {
		t.Errorf("Result(a) = %+v, %v", r, ok)
	}
	if _, ok := m.Result("missing"); ok {
		t.Error("missing key should not be found")
	}

	results := m.Results()
	if len(results) != 2 || results[0].Key != "a" || results[1].Key != "b" {
		t.Errorf("Results() = %+v", results)
	}

	total := m.Total("all")
	if total.Key != "all" || total.Count != 3 || total.Max != 4 {
		t.Errorf("Total = %+v", total)
	}

	stats := m.Stats()
	if stats.ActiveDistributions != 2 || stats.ValuesObserved != 3 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(0)
	m.Observe("a", 1, time.Now())

	if !m.Remove("a") {
		t.Error("Remove(a) should report removal")
	}
	if m.Remove("a") {
		t.Error("second Remove(a) should report nothing removed")
	}
	if total := m.Total("all"); total.Count != 0 {
		t.Errorf("Total after remove = %+v", total)
	}
	if stats := m.Stats(); stats.Removed != 1 || stats.ActiveDistributions != 0 {
		t.Errorf("Stats = %+v", stats)
	}
}

func BenchmarkDistribution_Add(b *testing.B) {
	d := New("bench", 0)
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Add(float64(i), now)
	}
}

func BenchmarkDistribution_AddWithPercentile(b *testing.B) {
	d := New("bench", DefaultAccuracy)
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Add(float64(i), now)
	}
}
