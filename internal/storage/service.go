package storage

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/logging"
	"github.com/xtxerr/datastreams/internal/storage/aggregate"
	"github.com/xtxerr/datastreams/internal/storage/batch"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

// deployment holds the configured streams and stored data of one study
// deployment. Its mutex serializes appends, close and remove against
// queries of the same deployment.
type deployment struct {
	mu sync.RWMutex

	config   types.DataStreamsConfiguration
	expected map[types.StreamID]struct{}
	data     *batch.Batch
	closed   bool
	removed  bool
}

func (d *deployment) expects(stream types.StreamID) bool {
	_, ok := d.expected[stream]
	return ok
}

// Service manages the data streams of study deployments: it opens the
// expected streams, validates appended batches against them, answers range
// queries, and closes or removes deployments.
type Service struct {
	mu          sync.RWMutex
	deployments map[uuid.UUID]*deployment

	logger  *slog.Logger
	lengths *aggregate.Manager
	metrics atomic.Pointer[serviceMetrics]

	// Statistics
	sequencesAppended    atomic.Int64
	measurementsAppended atomic.Int64
	appendsRejected      atomic.Int64
	queries              atomic.Int64
	startTime            time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is the "storage" component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSketchAccuracy sets the relative accuracy of the sequence length
// percentiles. An accuracy <= 0 disables percentiles.
func WithSketchAccuracy(accuracy float64) Option {
	return func(s *Service) {
		s.lengths = aggregate.NewManager(accuracy)
	}
}

// New creates a service without any configured deployments.
func New(opts ...Option) *Service {
	s := &Service{
		deployments: make(map[uuid.UUID]*deployment),
		logger:      logging.Component("storage"),
		lengths:     aggregate.NewManager(aggregate.DefaultAccuracy),
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the live deployment registered for id.
func (s *Service) lookup(id uuid.UUID) (*deployment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deployments[id]
	return d, ok
}

// OpenStreams registers the streams expected for a deployment.
func (s *Service) OpenStreams(cfg types.DataStreamsConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	expected := make(map[types.StreamID]struct{}, len(cfg.ExpectedStreams))
	for _, id := range cfg.StreamIDs() {
		expected[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deployments[cfg.DeploymentID]; ok {
		return fmt.Errorf("deployment %s: %w", cfg.DeploymentID, errors.ErrAlreadyConfigured)
	}

	s.deployments[cfg.DeploymentID] = &deployment{
		config: types.DataStreamsConfiguration{
			DeploymentID:    cfg.DeploymentID,
			ExpectedStreams: append([]types.ExpectedStream(nil), cfg.ExpectedStreams...),
		},
		expected: expected,
		data:     batch.New(),
	}
	s.metrics.Load().deploymentOpened()

	s.logger.Info("data streams opened",
		"deployment", cfg.DeploymentID,
		"streams", len(cfg.ExpectedStreams))
	return nil
}

// Append stores b for the given deployment.
//
// The deployment must have been opened and must not be closed. Every
// sequence in b must belong to the deployment and to one of its expected
// streams. Ordering failures of the underlying batch are returned
// unchanged; on any error nothing is stored.
func (s *Service) Append(deploymentID uuid.UUID, b *batch.Batch) error {
	err := s.append(deploymentID, b)
	if err != nil {
		s.appendsRejected.Add(1)
		s.metrics.Load().appendRejected()
		s.logger.Debug("append rejected", "deployment", deploymentID, "error", err)
		return err
	}
	return nil
}

func (s *Service) append(deploymentID uuid.UUID, b *batch.Batch) error {
	d, ok := s.lookup(deploymentID)
	if !ok {
		return fmt.Errorf("deployment %s: %w", deploymentID, errors.ErrStreamsNotConfigured)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed {
		return fmt.Errorf("deployment %s: %w", deploymentID, errors.ErrStreamsNotConfigured)
	}
	if b == nil {
		b = batch.New()
	}
	for _, stream := range b.Streams() {
		if stream.DeploymentID != deploymentID {
			return fmt.Errorf("stream %s appended to deployment %s: %w", stream, deploymentID, errors.ErrDeploymentMismatch)
		}
		if !d.expects(stream) {
			return fmt.Errorf("stream %s: %w", stream, errors.ErrStreamNotConfigured)
		}
	}
	if d.closed {
		return fmt.Errorf("deployment %s: %w", deploymentID, errors.ErrStreamsClosed)
	}

	if err := d.data.AppendBatch(b); err != nil {
		return err
	}

	s.recordAppend(deploymentID, b)
	return nil
}

func (s *Service) recordAppend(deploymentID uuid.UUID, b *batch.Batch) {
	now := time.Now()
	key := deploymentID.String()

	seqs := b.Sequences()
	measurements := 0
	for _, seq := range seqs {
		measurements += seq.Len()
		s.lengths.Observe(key, float64(seq.Len()), now)
	}

	s.sequencesAppended.Add(int64(len(seqs)))
	s.measurementsAppended.Add(int64(measurements))
	s.metrics.Load().appendAccepted(measurements)
}

// Query returns the measurements of stream with sequence ids in
// [from, toInclusive]. A nil upper bound is unbounded. Streams without data
// yield an empty batch. Closed deployments can still be queried.
func (s *Service) Query(stream types.StreamID, from int64, toInclusive *int64) (*batch.Batch, error) {
	s.queries.Add(1)
	s.metrics.Load().queried()

	d, ok := s.lookup(stream.DeploymentID)
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", stream.DeploymentID, errors.ErrDeploymentNotConfigured)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.removed {
		return nil, fmt.Errorf("deployment %s: %w", stream.DeploymentID, errors.ErrDeploymentNotConfigured)
	}
	if !d.expects(stream) {
		return nil, fmt.Errorf("stream %s: %w", stream, errors.ErrStreamNotConfigured)
	}

	return d.data.Range(stream, from, toInclusive)
}

// CloseStreams stops accepting appends for the given deployments. Closing
// is idempotent. If any deployment was never opened nothing is closed.
func (s *Service) CloseStreams(ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make([]*deployment, 0, len(ids))
	for _, id := range ids {
		d, ok := s.deployments[id]
		if !ok {
			return fmt.Errorf("close deployment %s: %w", id, errors.ErrDeploymentNotConfigured)
		}
		targets = append(targets, d)
	}

	for i, d := range targets {
		d.mu.Lock()
		if !d.closed {
			d.closed = true
			s.metrics.Load().deploymentClosed()
			s.logger.Info("data streams closed", "deployment", ids[i])
		}
		d.mu.Unlock()
	}
	return nil
}

// RemoveStreams deletes the configuration and stored data of the given
// deployments. It returns the ids that were removed, in request order.
// Unknown ids are ignored.
func (s *Service) RemoveStreams(ids ...uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uuid.UUID
	for _, id := range ids {
		d, ok := s.deployments[id]
		if !ok {
			continue
		}

		d.mu.Lock()
		d.removed = true
		d.data = batch.New()
		wasClosed := d.closed
		d.closed = false
		d.mu.Unlock()

		delete(s.deployments, id)
		s.lengths.Remove(id.String())
		s.metrics.Load().deploymentRemoved(wasClosed)
		removed = append(removed, id)

		s.logger.Info("data streams removed", "deployment", id)
	}
	return removed
}

// IsClosed reports whether the deployment has been closed. Unknown
// deployments are not closed.
func (s *Service) IsClosed(id uuid.UUID) bool {
	d, ok := s.lookup(id)
	if !ok {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Configuration returns the streams configured for a deployment.
func (s *Service) Configuration(id uuid.UUID) (types.DataStreamsConfiguration, bool) {
	d, ok := s.lookup(id)
	if !ok {
		return types.DataStreamsConfiguration{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	cfg := d.config
	cfg.ExpectedStreams = append([]types.ExpectedStream(nil), d.config.ExpectedStreams...)
	return cfg, true
}

// Deployments returns the ids of all configured deployments in byte order.
func (s *Service) Deployments() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.deployments))
	for id := range s.deployments {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// Snapshot returns a copy of everything stored for a deployment.
func (s *Service) Snapshot(id uuid.UUID) (*batch.Batch, error) {
	d, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", id, errors.ErrDeploymentNotConfigured)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.removed {
		return nil, fmt.Errorf("deployment %s: %w", id, errors.ErrDeploymentNotConfigured)
	}
	return d.data.Clone(), nil
}

// Restore appends a previously exported snapshot to an open deployment.
// It applies the same checks as Append.
func (s *Service) Restore(id uuid.UUID, b *batch.Batch) error {
	if err := s.Append(id, b); err != nil {
		return errors.Wrapf(err, "restore deployment %s", id)
	}
	if b != nil {
		s.logger.Info("snapshot restored",
			"deployment", id,
			"sequences", b.Len(),
			"measurements", b.PointCount())
	}
	return nil
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	stats := ServiceStats{
		Deployments: len(s.deployments),
	}
	deps := make([]*deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		deps = append(deps, d)
	}
	s.mu.RUnlock()

	for _, d := range deps {
		d.mu.RLock()
		if d.closed {
			stats.Closed++
		} else {
			stats.Open++
		}
		stats.StoredSequences += int64(d.data.Len())
		stats.StoredMeasurements += int64(d.data.PointCount())
		d.mu.RUnlock()
	}

	stats.SequencesAppended = s.sequencesAppended.Load()
	stats.MeasurementsAppended = s.measurementsAppended.Load()
	stats.AppendsRejected = s.appendsRejected.Load()
	stats.Queries = s.queries.Load()
	stats.SequenceLength = s.lengths.Total("all")
	stats.Uptime = time.Since(s.startTime)
	return stats
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Deployments int
	Open        int
	Closed      int

	SequencesAppended    int64
	MeasurementsAppended int64
	AppendsRejected      int64
	Queries              int64

	StoredSequences    int64
	StoredMeasurements int64

	// Lengths of appended sequences, with p50/p90/p99 when enabled.
	SequenceLength aggregate.Result

	Uptime time.Duration
}
