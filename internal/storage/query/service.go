// Package query runs analytical SQL over exported parquet snapshots.
//
// An in-memory DuckDB database reads snapshot files directly with
// read_parquet, so the live store is never touched by analytics.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/datastreams/internal/storage/config"
	"github.com/xtxerr/datastreams/internal/storage/types"
	"github.com/xtxerr/datastreams/internal/validation"
	"golang.org/x/sync/singleflight"
)

// Service provides query capabilities over snapshot files.
type Service struct {
	db      *sql.DB
	timeout time.Duration
	group   singleflight.Group

	queries atomic.Int64
	rows    atomic.Int64
	errors  atomic.Int64
	shared  atomic.Int64
}

// StreamSummary describes the stored data of one stream in a snapshot.
type StreamSummary struct {
	Stream    types.StreamID
	Sequences int64
	Points    int64

	// MinSequenceID and MaxSequenceID are -1 when the stream holds only
	// empty sequences.
	MinSequenceID int64
	MaxSequenceID int64
}

// New creates a new query service.
func New(cfg config.AnalyticsConfig) (*Service, error) {
	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Configure DuckDB
	if cfg.MemoryLimit != "" {
		_, err = db.Exec("SET memory_limit=" + validation.QuoteLiteral(cfg.MemoryLimit))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		db:      db,
		timeout: cfg.QueryTimeout,
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func checkSnapshot(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	return nil
}

// StreamSummaries summarizes every stream of the snapshot at path, ordered
// by stream. Concurrent calls for the same path share one query.
func (s *Service) StreamSummaries(ctx context.Context, path string) ([]StreamSummary, error) {
	v, err, shared := s.group.Do("summaries:"+path, func() (any, error) {
		return s.streamSummaries(ctx, path)
	})
	if shared {
		s.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	// Shared callers must not alias each other's result.
	return slices.Clone(v.([]StreamSummary)), nil
}

func (s *Service) streamSummaries(ctx context.Context, path string) ([]StreamSummary, error) {
	if err := checkSnapshot(path); err != nil {
		s.errors.Add(1)
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			deployment_id, device_role, data_type,
			count(*) FILTER (WHERE sequence_index <= 0) AS sequences,
			count(*) FILTER (WHERE sequence_index >= 0) AS points,
			min(sequence_id) FILTER (WHERE sequence_index >= 0) AS min_id,
			max(sequence_id) FILTER (WHERE sequence_index >= 0) AS max_id
		FROM read_parquet(` + validation.QuoteLiteral(path) + `)
		GROUP BY deployment_id, device_role, data_type
		ORDER BY deployment_id, device_role, data_type
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.errors.Add(1)
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var results []StreamSummary
	for rows.Next() {
		var (
			dep, role, dt string
			minID, maxID  sql.NullInt64
			summary       StreamSummary
		)
		if err := rows.Scan(&dep, &role, &dt, &summary.Sequences, &summary.Points, &minID, &maxID); err != nil {
			s.errors.Add(1)
			return nil, fmt.Errorf("scan row: %w", err)
		}

		stream, err := parseStream(dep, role, dt)
		if err != nil {
			s.errors.Add(1)
			return nil, err
		}
		summary.Stream = stream
		summary.MinSequenceID, summary.MaxSequenceID = -1, -1
		if minID.Valid {
			summary.MinSequenceID = minID.Int64
			summary.MaxSequenceID = maxID.Int64
		}
		results = append(results, summary)
	}
	if err := rows.Err(); err != nil {
		s.errors.Add(1)
		return nil, err
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))
	return results, nil
}

// CountRange counts the points of stream in the snapshot at path whose
// sequence id lies in [from, toInclusive]. A nil upper bound is unbounded.
func (s *Service) CountRange(ctx context.Context, path string, stream types.StreamID, from int64, toInclusive *int64) (int64, error) {
	if err := validation.ValidateSequenceRange(from, toInclusive); err != nil {
		return 0, err
	}
	if err := checkSnapshot(path); err != nil {
		s.errors.Add(1)
		return 0, err
	}

	to := int64(math.MaxInt64)
	if toInclusive != nil {
		to = *toInclusive
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT count(*)
		FROM read_parquet(` + validation.QuoteLiteral(path) + `)
		WHERE deployment_id = $1
		  AND device_role = $2
		  AND data_type = $3
		  AND sequence_index >= 0
		  AND sequence_id >= $4
		  AND sequence_id <= $5
	`

	var n int64
	err := s.db.QueryRowContext(ctx, query,
		stream.DeploymentID.String(),
		stream.DeviceRole,
		stream.DataType.String(),
		from,
		to,
	).Scan(&n)
	if err != nil {
		s.errors.Add(1)
		return 0, fmt.Errorf("count range: %w", err)
	}

	s.queries.Add(1)
	s.rows.Add(1)
	return n, nil
}

func parseStream(dep, role, dt string) (types.StreamID, error) {
	id, err := uuid.Parse(dep)
	if err != nil {
		return types.StreamID{}, fmt.Errorf("deployment id %q: %w", dep, err)
	}
	dataType, err := types.ParseDataType(dt)
	if err != nil {
		return types.StreamID{}, err
	}
	return types.NewStreamID(id, role, dataType)
}

// Stats returns query statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.errors.Load(),
		SharedQueries:   s.shared.Load(),
	}
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64

	// SharedQueries counts calls answered by an in-flight identical query.
	SharedQueries int64
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]any, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.errors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any)
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))

	return results, rows.Err()
}
