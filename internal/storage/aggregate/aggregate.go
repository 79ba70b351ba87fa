// Package aggregate maintains running statistics over observed values, such
// as the lengths of appended sequences, with optional DDSketch quantiles.
package aggregate

import (
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of quantiles when none is given.
const DefaultAccuracy = 0.01

// Distribution maintains running statistics for one key.
// It supports optional percentile calculation using DDSketch.
type Distribution struct {
	mu sync.Mutex

	key string

	// Running statistics
	count int64
	sum   float64
	min   float64
	max   float64
	first time.Time
	last  time.Time

	// DDSketch for percentiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// Result is a point-in-time view of a distribution.
type Result struct {
	Key   string
	Count int64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
	First time.Time
	Last  time.Time

	P50, P90, P99  float64
	HasPercentiles bool
}

// New creates a distribution. An accuracy <= 0 disables percentiles.
func New(key string, accuracy float64) *Distribution {
	d := &Distribution{
		key:      key,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	d.sketch = newSketch(accuracy)
	return d
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add adds a value observed at the given time.
func (d *Distribution) Add(value float64, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.sum += value
	if value < d.min {
		d.min = value
	}
	if value > d.max {
		d.max = value
	}
	if d.first.IsZero() || at.Before(d.first) {
		d.first = at
	}
	if at.After(d.last) {
		d.last = at
	}

	if d.sketch != nil {
		d.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (d *Distribution) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// IsEmpty returns true if no values have been added.
func (d *Distribution) IsEmpty() bool {
	return d.Count() == 0
}

// Result returns the current statistics.
func (d *Distribution) Result() Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Result{
		Key:   d.key,
		Count: d.count,
		Sum:   d.sum,
		First: d.first,
		Last:  d.last,
	}
	if d.count == 0 {
		return r
	}

	r.Avg = d.sum / float64(d.count)
	r.Min = d.min
	r.Max = d.max

	if d.sketch != nil && !d.sketch.IsEmpty() {
		r.P50, _ = d.sketch.GetValueAtQuantile(0.50)
		r.P90, _ = d.sketch.GetValueAtQuantile(0.90)
		r.P99, _ = d.sketch.GetValueAtQuantile(0.99)
		r.HasPercentiles = true
	}
	return r
}

// Reset clears all statistics.
func (d *Distribution) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count = 0
	d.sum = 0
	d.min = math.MaxFloat64
	d.max = -math.MaxFloat64
	d.first = time.Time{}
	d.last = time.Time{}

	// DDSketch has no Clear method
	d.sketch = newSketch(d.accuracy)
}

// Merge folds other into d. Sketches are merged only when both have one
// with the same accuracy.
func (d *Distribution) Merge(other *Distribution) {
	if other == nil || other == d {
		return
	}

	d.mu.Lock()
	other.mu.Lock()
	defer d.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}

	d.count += other.count
	d.sum += other.sum
	if other.min < d.min {
		d.min = other.min
	}
	if other.max > d.max {
		d.max = other.max
	}
	if d.first.IsZero() || (!other.first.IsZero() && other.first.Before(d.first)) {
		d.first = other.first
	}
	if other.last.After(d.last) {
		d.last = other.last
	}

	if d.sketch != nil && other.sketch != nil && d.accuracy == other.accuracy {
		d.sketch.MergeWith(other.sketch)
	}
}

// Key returns the key the distribution was created for.
func (d *Distribution) Key() string {
	return d.key
}
