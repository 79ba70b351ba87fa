// Package wire provides length-delimited framing of sequences.
//
// Every frame is a protobuf Struct prefixed with its varint-encoded length,
// so a batch can be streamed as an ordered list of sequence snapshots and
// rebuilt by re-appending them in order.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/xtxerr/datastreams/config"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/proto"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of an error frame.
const (
	fieldError   = "error"
	fieldCode    = "code"
	fieldMessage = "message"
)

// RemoteError is an error frame read from the stream.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", errors.CodeName(e.Code), e.Message)
}

// Unwrap maps the frame code back onto the error categories.
func (e *RemoteError) Unwrap() error {
	return errors.CodeToError(e.Code)
}

// Reader reads length-delimited frames from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize int
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader with the default
// message size limit.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, config.DefaultMaxMessageSize)
}

// NewReaderSize creates a Reader that rejects frames larger than maxSize.
func NewReaderSize(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Read reads the next raw frame. It returns io.EOF at a clean end of stream.
func (r *Reader) Read() (*structpb.Struct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: int64(r.maxSize),
	}
	if err := opts.UnmarshalFrom(r.r, st); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return st, nil
}

// ReadSequence reads the next frame as a sequence. An error frame is
// returned as a *RemoteError.
func (r *Reader) ReadSequence() (sequence.Sequence, error) {
	st, err := r.Read()
	if err != nil {
		return sequence.Sequence{}, err
	}
	if remote := errorFromFrame(st); remote != nil {
		return sequence.Sequence{}, remote
	}
	seq, err := proto.SequenceFromStruct(st)
	if err != nil {
		return sequence.Sequence{}, fmt.Errorf("decode sequence: %w", err)
	}
	return seq, nil
}

// Writer writes length-delimited frames to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes a frame with length prefix.
func (w *Writer) Write(st *structpb.Struct) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, st); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteSequence writes a sequence frame.
func (w *Writer) WriteSequence(s sequence.Sequence) error {
	st, err := proto.SequenceToStruct(s)
	if err != nil {
		return err
	}
	return w.Write(st)
}

// WriteError writes an error frame. The code is derived from err with
// errors.ErrorToCode.
func (w *Writer) WriteError(err error) error {
	st, serr := structpb.NewStruct(map[string]any{
		fieldError: map[string]any{
			fieldCode:    float64(errors.ErrorToCode(err)),
			fieldMessage: err.Error(),
		},
	})
	if serr != nil {
		return serr
	}
	return w.Write(st)
}

func errorFromFrame(st *structpb.Struct) *RemoteError {
	v, ok := st.GetFields()[fieldError]
	if !ok {
		return nil
	}
	fields := v.GetStructValue().GetFields()
	return &RemoteError{
		Code:    int32(fields[fieldCode].GetNumberValue()),
		Message: fields[fieldMessage].GetStringValue(),
	}
}

// =============================================================================
// Batch Helpers
// =============================================================================

// WriteBatch writes every sequence of b in order and returns the number of
// frames written.
func WriteBatch(w *Writer, b *batch.Batch) (int, error) {
	n := 0
	for _, s := range b.Sequences() {
		if err := w.WriteSequence(s); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ReadBatch reads sequence frames until end of stream and re-appends them
// in order.
func ReadBatch(r *Reader) (*batch.Batch, error) {
	b := batch.New()
	for {
		s, err := r.ReadSequence()
		if errors.Is(err, io.EOF) {
			return b, nil
		}
		if err != nil {
			return nil, err
		}
		if err := b.AppendSequence(s); err != nil {
			return nil, fmt.Errorf("append sequence %s: %w", s, err)
		}
	}
}
