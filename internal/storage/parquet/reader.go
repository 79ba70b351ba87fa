package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
)

// Reader reads measurement rows from a snapshot file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[MeasurementRow]
	path   string
}

// NewReader opens a snapshot file for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[MeasurementRow](f, parquet.ReadBufferSize(1024*1024))

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n rows. It returns io.EOF once the file is exhausted.
func (r *Reader) Read(n int) ([]MeasurementRow, error) {
	rows := make([]MeasurementRow, n)
	count, err := r.reader.Read(rows)
	if count > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return rows[:count], err
}

// ReadAll reads all rows of the file.
func (r *Reader) ReadAll() ([]MeasurementRow, error) {
	rows := make([]MeasurementRow, r.reader.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}

	n, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return rows[:n], nil
}

// ReadSequences reads all rows and groups them back into sequences.
func (r *Reader) ReadSequences() ([]sequence.Sequence, error) {
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return RowsToSequences(rows)
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// ReadBatch imports a snapshot file written by WriteBatch. Sequences are
// re-appended in file order, so the result holds the same points as the
// exported batch.
func ReadBatch(path string) (*batch.Batch, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	seqs, err := r.ReadSequences()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	b := batch.New()
	for _, s := range seqs {
		if err := b.AppendSequence(s); err != nil {
			return nil, fmt.Errorf("append sequence %s: %w", s, err)
		}
	}
	return b, nil
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path     string
	Size     int64
	NumRows  int64
	NumCols  int
	Metadata map[string]string
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	info := &FileInfo{
		Path:     path,
		Size:     stat.Size(),
		NumRows:  pf.NumRows(),
		NumCols:  len(pf.Schema().Fields()),
		Metadata: make(map[string]string),
	}
	for _, kv := range pf.Metadata().KeyValueMetadata {
		info.Metadata[kv.Key] = kv.Value
	}

	return info, nil
}
