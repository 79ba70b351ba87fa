package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/datastreams/config"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
)

// FormatVersion is written into the key/value metadata of every snapshot.
const FormatVersion = "1"

// Metadata keys of snapshot files.
const (
	MetaFormat     = "datastreams.format"
	MetaSequences  = "datastreams.sequences"
	MetaDeployment = "datastreams.deployment"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the maximum number of rows per row group
	RowGroupSize int

	// PageSize is the target page buffer size in bytes
	PageSize int

	// Deployment is recorded in the file metadata when set
	Deployment string
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  ParseCompressionType(config.DefaultSnapshotCompression),
		RowGroupSize: config.DefaultSnapshotRowGroupSize,
		PageSize:     1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// String returns the config name of the compression type.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Writer writes sequences to a Parquet file, one row per measurement.
type Writer struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *parquet.GenericWriter[MeasurementRow]
	rowCount  int64
	sequences int64
	closed    bool
}

// NewWriter creates a new snapshot Parquet writer.
func NewWriter(path string, opts Options) (*Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
		parquet.KeyValueMetadata(MetaFormat, FormatVersion),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}
	if opts.PageSize > 0 {
		writerOpts = append(writerOpts, parquet.PageBufferSize(opts.PageSize))
	}
	if opts.Deployment != "" {
		writerOpts = append(writerOpts, parquet.KeyValueMetadata(MetaDeployment, opts.Deployment))
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[MeasurementRow](f, writerOpts...),
	}, nil
}

// Write writes sequences to the Parquet file.
func (w *Writer) Write(seqs []sequence.Sequence) error {
	if len(seqs) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	var rows []MeasurementRow
	for _, s := range seqs {
		seqRows, err := SequenceToRows(s)
		if err != nil {
			return err
		}
		rows = append(rows, seqRows...)
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	w.sequences += int64(len(seqs))
	return nil
}

// Close closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.writer.SetKeyValueMetadata(MetaSequences, fmt.Sprint(w.sequences))
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteBatch exports every sequence of b to path. The file is written next
// to path and renamed into place once complete. It returns the number of
// rows written.
func WriteBatch(path string, b *batch.Batch, opts Options) (int64, error) {
	tmp := path + ".tmp"

	w, err := NewWriter(tmp, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Write(b.Sequences()); err != nil {
		w.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename snapshot: %w", err)
	}
	return w.RowCount(), nil
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
