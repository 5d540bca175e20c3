package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/element-grid-service/internal/domain"
	"github.com/couchcryptid/element-grid-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Source reads the raw dataset rows.
type Source interface {
	Load(ctx context.Context) ([]domain.RawRow, error)
}

// Publisher announces a freshly built snapshot to downstream consumers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap *Snapshot) error
}

// Snapshot is an immutable, fully built grid together with everything that
// was rejected on the way. Readers never observe a partially built grid.
// Samples, when configured, were loaded in the same cycle as the grid.
type Snapshot struct {
	ID         string
	BuiltAt    time.Time
	RowsLoaded int
	Grid       *domain.Grid
	Rejections []domain.Rejection

	Samples          []domain.Sample
	SampleFields     domain.SampleFields
	SampleRejections []domain.Rejection
}

// LatestSample returns the newest sample joined to rec.
func (s *Snapshot) LatestSample(rec *domain.Record) (domain.Sample, bool) {
	return domain.LatestSample(s.Samples, s.SampleFields.JoinKey(rec))
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithGeocoder enables attribute enrichment for every normalized record.
func WithGeocoder(g domain.Geocoder, fields domain.GeoFields) Option {
	return func(p *Pipeline) {
		p.geocoder = g
		p.geoFields = fields
	}
}

// WithSamples loads timestamped samples from src on every reload and joins
// them to records per fields.
func WithSamples(src Source, fields domain.SampleFields) Option {
	return func(p *Pipeline) {
		p.samples = src
		p.sampleFields = fields
	}
}

// WithPublisher sends every new snapshot to pub after it becomes current.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithReloadInterval rebuilds the grid every d. Zero loads once.
func WithReloadInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithClock overrides the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline loads the dataset, normalizes it, and swaps in a new grid snapshot.
type Pipeline struct {
	source    Source
	opts      domain.Options
	geocoder  domain.Geocoder
	geoFields domain.GeoFields
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	interval  time.Duration

	samples      Source
	sampleFields domain.SampleFields

	current atomic.Pointer[Snapshot]
}

// New creates a Pipeline reading from src and laying records out per opts.
func New(src Source, opts domain.Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Pipeline {
	p := &Pipeline{
		source:  src,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, o := range options {
		o(p)
	}
	if p.geocoder != nil {
		metrics.GeocodeEnabled.Set(1)
	}
	return p
}

// CheckReadiness returns nil once a snapshot has been built.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.current.Load() == nil {
		return errors.New("grid has not been built yet")
	}
	return nil
}

// Current returns the active snapshot, or nil before the first build.
func (p *Pipeline) Current() *Snapshot {
	return p.current.Load()
}

// Lookup resolves key against the current snapshot.
func (p *Pipeline) Lookup(key string) (*domain.Record, bool) {
	return p.LookupIn(p.current.Load(), key)
}

// LookupIn resolves key against snap, which callers pin for the length of a
// request so a concurrent reload cannot split it across two grids.
func (p *Pipeline) LookupIn(snap *Snapshot, key string) (*domain.Record, bool) {
	if snap == nil {
		p.metrics.Lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	rec, ok := snap.Grid.Lookup(key)
	if ok {
		p.metrics.Lookups.WithLabelValues("hit").Inc()
	} else {
		p.metrics.Lookups.WithLabelValues("miss").Inc()
	}
	return rec, ok
}

// Reload runs one load-normalize-build cycle and makes the result current.
// On error the previous snapshot stays in place.
func (p *Pipeline) Reload(ctx context.Context) (*Snapshot, error) {
	start := p.clock.Now()

	rows, err := p.source.Load(ctx)
	if err != nil {
		p.metrics.ReloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	var (
		samples          []domain.Sample
		sampleRejections []domain.Rejection
	)
	if p.samples != nil {
		sampleRows, err := p.samples.Load(ctx)
		if err != nil {
			p.metrics.ReloadsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("load samples: %w", err)
		}
		samples, sampleRejections = domain.NormalizeSamples(sampleRows, p.sampleFields)
	}

	normalized := domain.Normalize(rows, p.opts)
	records := normalized.Records
	if p.geocoder != nil {
		for i := range records {
			if ctx.Err() != nil {
				p.metrics.ReloadsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("enrich records: %w", ctx.Err())
			}
			records[i] = domain.EnrichWithGeocoding(ctx, records[i], p.geoFields, p.geocoder, p.logger)
		}
	}

	grid, layoutRejections := domain.Build(records, p.opts.Bounds)

	rejections := make([]domain.Rejection, 0, len(normalized.Rejections)+len(layoutRejections))
	rejections = append(rejections, normalized.Rejections...)
	rejections = append(rejections, layoutRejections...)

	now := p.clock.Now()
	snap := &Snapshot{
		ID:               snapshotID(grid, samples),
		BuiltAt:          now.UTC(),
		RowsLoaded:       len(rows),
		Grid:             grid,
		Rejections:       rejections,
		Samples:          samples,
		SampleFields:     p.sampleFields,
		SampleRejections: sampleRejections,
	}
	p.current.Store(snap)
	p.report(snap, now.Sub(start))

	if p.publisher != nil {
		if err := p.publisher.PublishSnapshot(ctx, snap); err != nil {
			p.logger.Error("publish snapshot failed", "error", err, "snapshot_id", snap.ID)
		}
	}
	return snap, nil
}

// snapshotID is the grid fingerprint, extended by the sample fingerprint when
// samples were loaded so new readings alone still produce a new id.
func snapshotID(grid *domain.Grid, samples []domain.Sample) string {
	if len(samples) == 0 {
		return grid.Fingerprint()
	}
	return grid.Fingerprint() + "." + domain.SamplesFingerprint(samples)
}

func (p *Pipeline) report(snap *Snapshot, elapsed time.Duration) {
	p.metrics.ReloadsTotal.WithLabelValues("success").Inc()
	p.metrics.ReloadDuration.Observe(elapsed.Seconds())
	p.metrics.RowsLoaded.Set(float64(snap.RowsLoaded))
	p.metrics.RecordsPlaced.Set(float64(snap.Grid.Len()))
	p.metrics.SnapshotTimestamp.Set(float64(snap.BuiltAt.Unix()))
	p.metrics.SamplesLoaded.Set(float64(len(snap.Samples)))

	counts := domain.CountByKind(snap.Rejections)
	for kind, n := range domain.CountByKind(snap.SampleRejections) {
		counts[kind] += n
	}
	for _, kind := range domain.RejectionKinds {
		p.metrics.Rejections.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}

	for _, r := range snap.Rejections {
		p.logger.Warn("row rejected",
			"kind", r.Kind,
			"index", r.Index,
			"field", r.Field,
			"reason", r.String(),
		)
	}
	for _, r := range snap.SampleRejections {
		p.logger.Warn("sample rejected",
			"kind", r.Kind,
			"index", r.Index,
			"field", r.Field,
			"reason", r.String(),
		)
	}
	p.logger.Info("grid rebuilt",
		"snapshot_id", snap.ID,
		"rows", snap.RowsLoaded,
		"placed", snap.Grid.Len(),
		"rejected", len(snap.Rejections),
		"samples", len(snap.Samples),
		"duration", elapsed,
	)
}

// Run builds the first snapshot, retrying with backoff until it succeeds,
// then rebuilds on every reload tick until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "reload_interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for p.current.Load() == nil {
		if _, err := p.Reload(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("initial build failed", "error", err, "retry_in", backoff)
			if !p.sleepWithContext(ctx, backoff) {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}
	}

	if p.interval <= 0 {
		<-ctx.Done()
		p.logger.Info("pipeline stopping", "reason", ctx.Err())
		return nil
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if _, err := p.Reload(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("reload failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// sleepWithContext waits on the pipeline clock rather than retry.SleepWithContext
// so a fake clock can drive the initial-build backoff.
func (p *Pipeline) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
