// Package batch implements the in-memory multi-stream store of sequences.
//
// For every stream a Batch holds an ordered list of non-overlapping
// sequences whose sync points never move backwards. Appending a sequence
// that immediately follows the last stored one merges it in place, so
// there is one physical entry per contiguous run of identical trigger ids
// and sync point.
//
// A Batch performs no locking. Callers serialize writes per stream.
package batch

import (
	"fmt"

	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"github.com/xtxerr/datastreams/internal/validation"
)

// Batch is an ordered collection of sequences across streams.
type Batch struct {
	streams map[types.StreamID][]*sequence.Mutable
	order   []types.StreamID
}

// New creates an empty batch.
func New() *Batch {
	return &Batch{
		streams: make(map[types.StreamID][]*sequence.Mutable),
	}
}

// FromSequences creates a batch by appending seqs in order.
func FromSequences(seqs ...sequence.Sequence) (*Batch, error) {
	b := New()
	for _, s := range seqs {
		if err := b.AppendSequence(s); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// tail is the state of the last stored sequence of a stream that decides
// whether the next sequence may be appended.
type tail struct {
	end  int64
	sync types.SyncPoint
}

func (b *Batch) tailOf(stream types.StreamID) (tail, bool) {
	seqs := b.streams[stream]
	if len(seqs) == 0 {
		return tail{}, false
	}
	last := seqs[len(seqs)-1]
	return tail{end: last.Range().End, sync: last.SyncPoint()}, true
}

func checkFollows(t tail, seq sequence.Sequence) error {
	if seq.FirstSequenceID() < t.end {
		return fmt.Errorf("%s starts at %d, before the end %d of the last stored sequence: %w",
			seq.Stream(), seq.FirstSequenceID(), t.end, errors.ErrOutOfOrder)
	}
	if seq.SyncPoint().Before(t.sync) {
		return fmt.Errorf("%s synchronized on %s, before the last stored sync point %s: %w",
			seq.Stream(), seq.SyncPoint().SynchronizedOn, t.sync.SynchronizedOn, errors.ErrNonMonotonicSync)
	}
	return nil
}

// AppendSequence adds seq to the stream it belongs to.
//
// It fails with ErrOutOfOrder when seq overlaps the last stored sequence of
// the stream, and with ErrNonMonotonicSync when its sync point is older.
// On error the batch is unchanged. The batch keeps its own copy of seq.
func (b *Batch) AppendSequence(seq sequence.Sequence) error {
	if t, ok := b.tailOf(seq.Stream()); ok {
		if err := checkFollows(t, seq); err != nil {
			return err
		}
	}
	return b.apply(seq)
}

// apply stores a sequence that has already been checked against the tail.
func (b *Batch) apply(seq sequence.Sequence) error {
	stream := seq.Stream()
	seqs, known := b.streams[stream]
	if !known {
		b.order = append(b.order, stream)
	}

	if n := len(seqs); n > 0 && seqs[n-1].IsImmediatelyFollowedBy(seq) {
		return seqs[n-1].AppendSequence(seq)
	}
	b.streams[stream] = append(seqs, sequence.NewMutable(seq))
	return nil
}

// AppendBatch appends all sequences of other, stream by stream in order.
//
// Every sequence is checked against the tail the batch would have at that
// point before anything is applied, so on error the batch is unchanged.
func (b *Batch) AppendBatch(other *Batch) error {
	if other == nil {
		return nil
	}

	for _, stream := range other.order {
		t, ok := b.tailOf(stream)
		for _, m := range other.streams[stream] {
			seq := m.Snapshot()
			if ok {
				if err := checkFollows(t, seq); err != nil {
					return err
				}
			}
			t, ok = tail{end: seq.Range().End, sync: seq.SyncPoint()}, true
		}
	}

	for _, stream := range other.order {
		for _, m := range other.streams[stream] {
			if err := b.apply(m.Snapshot()); err != nil {
				return errors.Wrapf(errors.ErrInternal, "apply checked sequence: %v", err)
			}
		}
	}
	return nil
}

// Streams returns the streams held by the batch in the order they were
// first appended.
func (b *Batch) Streams() []types.StreamID {
	out := make([]types.StreamID, len(b.order))
	copy(out, b.order)
	return out
}

// Sequences returns sealed snapshots of all stored sequences, grouped by
// stream in insertion order and ordered by sequence id within a stream.
func (b *Batch) Sequences() []sequence.Sequence {
	out := make([]sequence.Sequence, 0, b.Len())
	for _, stream := range b.order {
		for _, m := range b.streams[stream] {
			out = append(out, m.Snapshot())
		}
	}
	return out
}

// SequencesFor returns sealed snapshots of the stored sequences of stream.
func (b *Batch) SequencesFor(stream types.StreamID) []sequence.Sequence {
	seqs := b.streams[stream]
	out := make([]sequence.Sequence, len(seqs))
	for i, m := range seqs {
		out[i] = m.Snapshot()
	}
	return out
}

// Points returns the expanded points of stream, ordered by sequence id.
func (b *Batch) Points(stream types.StreamID) []types.Point {
	var out []types.Point
	for _, m := range b.streams[stream] {
		out = append(out, m.Snapshot().Expand()...)
	}
	return out
}

// Range returns a new batch with the measurements of stream whose sequence
// ids lie in [from, toInclusive]. A nil upper bound is unbounded. Adjacent
// slices are merged again. A stream without data in the window yields an
// empty batch.
func (b *Batch) Range(stream types.StreamID, from int64, toInclusive *int64) (*Batch, error) {
	if err := validation.ValidateSequenceRange(from, toInclusive); err != nil {
		return nil, err
	}

	window := sequence.Window(from, toInclusive)
	out := New()
	for _, m := range b.streams[stream] {
		slice, ok := m.Snapshot().Slice(window)
		if !ok {
			continue
		}
		if err := out.AppendSequence(slice); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns a deep copy of the batch structure. Payloads are shared.
func (b *Batch) Clone() *Batch {
	out := New()
	for _, stream := range b.order {
		out.order = append(out.order, stream)
		for _, m := range b.streams[stream] {
			out.streams[stream] = append(out.streams[stream], sequence.NewMutable(m.Snapshot()))
		}
	}
	return out
}

// IsEmpty returns true if no stream holds any point.
func (b *Batch) IsEmpty() bool {
	return b.PointCount() == 0
}

// Len returns the number of physically stored sequences.
func (b *Batch) Len() int {
	n := 0
	for _, seqs := range b.streams {
		n += len(seqs)
	}
	return n
}

// PointCount returns the number of stored measurements across all streams.
func (b *Batch) PointCount() int {
	n := 0
	for _, seqs := range b.streams {
		for _, m := range seqs {
			n += m.Len()
		}
	}
	return n
}

// PointCountFor returns the number of stored measurements of stream.
func (b *Batch) PointCountFor(stream types.StreamID) int {
	n := 0
	for _, m := range b.streams[stream] {
		n += m.Len()
	}
	return n
}
