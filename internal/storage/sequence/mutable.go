package sequence

import (
	"fmt"
	"slices"

	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

// Mutable is the working copy of a stored sequence. It is owned by exactly
// one batch and is the only place measurements are appended.
//
// Snapshots taken from a Mutable are capacity-clipped, so appends that
// happen afterwards never become visible through them.
type Mutable struct {
	seq Sequence
}

// NewMutable returns a working copy of s. The measurements are copied so
// that the working copy never writes into storage shared with s.
func NewMutable(s Sequence) *Mutable {
	s.measurements = slices.Clone(s.measurements)
	s.triggerIDs = slices.Clone(s.triggerIDs)
	return &Mutable{seq: s}
}

// Snapshot returns a sealed view of the current contents.
func (m *Mutable) Snapshot() Sequence {
	s := m.seq
	n := len(s.measurements)
	s.measurements = s.measurements[:n:n]
	return s
}

// Stream returns the stream of the working copy.
func (m *Mutable) Stream() types.StreamID { return m.seq.stream }

// Range returns the current range of the working copy.
func (m *Mutable) Range() Range { return m.seq.Range() }

// SyncPoint returns the sync point shared by the working copy.
func (m *Mutable) SyncPoint() types.SyncPoint { return m.seq.syncPoint }

// Len returns the current number of measurements.
func (m *Mutable) Len() int { return len(m.seq.measurements) }

// IsImmediatelyFollowedBy reports whether other can be merged onto the tail
// of the working copy.
func (m *Mutable) IsImmediatelyFollowedBy(other Sequence) bool {
	return m.seq.IsImmediatelyFollowedBy(other)
}

// AppendMeasurements extends the run. All measurements must carry the
// stream's data type; on error nothing is appended.
func (m *Mutable) AppendMeasurements(measurements ...types.Measurement) error {
	if err := checkDataTypes(m.seq.stream, measurements); err != nil {
		return err
	}
	if err := checkCapacity(m.seq.first, len(m.seq.measurements)+len(measurements)); err != nil {
		return err
	}
	m.seq.measurements = append(m.seq.measurements, measurements...)
	return nil
}

// AppendSequence merges other onto the tail. other must immediately follow
// the working copy.
func (m *Mutable) AppendSequence(other Sequence) error {
	if !m.seq.IsImmediatelyFollowedBy(other) {
		return fmt.Errorf("%s does not continue %s: %w", other, m.seq, errors.ErrNotFollowing)
	}
	return m.AppendMeasurements(other.measurements...)
}
