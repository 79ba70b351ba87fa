package storage

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/parquet"
)

// Export writes everything stored for a deployment to a parquet snapshot
// at path and returns the number of rows written.
func (s *Service) Export(id uuid.UUID, path string, opts parquet.Options) (int64, error) {
	start := time.Now()

	b, err := s.Snapshot(id)
	if err != nil {
		return 0, err
	}

	if opts.Deployment == "" {
		opts.Deployment = id.String()
	}
	rows, err := parquet.WriteBatch(path, b, opts)
	if err != nil {
		return 0, errors.Wrapf(err, "export deployment %s", id)
	}

	s.logger.Info("snapshot exported",
		"deployment", id,
		"path", path,
		"sequences", b.Len(),
		"rows", rows,
		"duration", time.Since(start))
	return rows, nil
}

// Import restores a parquet snapshot into an open deployment. A missing
// file is not an error; ok reports whether a snapshot was found.
func (s *Service) Import(id uuid.UUID, path string) (ok bool, err error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.logger.Debug("no snapshot to import", "deployment", id, "path", path)
		return false, nil
	}

	b, err := parquet.ReadBatch(path)
	if err != nil {
		return false, errors.Wrapf(err, "import deployment %s", id)
	}
	if err := s.Restore(id, b); err != nil {
		return false, err
	}
	return true, nil
}
