// Package atlas owns the in-memory region datasets: it loads each region's
// boundary and case sources on first use, joins them, and serves rendered
// time slices through a bounded cache. A region that fails to load stays
// failed until restart; other regions are unaffected.
package atlas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/ingest"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

// ErrUnknownRegion is returned for region ids no descriptor defines.
var ErrUnknownRegion = errors.New("unknown region")

// Exporter publishes reconciled case records after a successful region
// build. A nil Exporter disables publishing.
type Exporter interface {
	ExportCases(ctx context.Context, region string, records []domain.CaseRecord) error
}

// buildResult is everything one region build produces.
type buildResult struct {
	regions  []domain.AdminRegion
	cases    domain.CaseTable
	coverage domain.Coverage
	stats    ingest.Stats
}

// slot holds one region's lifecycle. The first caller triggers the build;
// everyone else waits on done. Build errors are cached alongside results.
type slot struct {
	spec   config.RegionSpec
	once   sync.Once
	done   chan struct{}
	result *buildResult
	err    error
}

// Atlas serves joined region datasets.
type Atlas struct {
	slots     map[string]*slot
	order     []string
	cache     *sliceCache
	tolerance float64
	exporter  Exporter
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Int64

	// buildRegion is swapped out by tests to avoid touching the filesystem.
	buildRegion func(spec config.RegionSpec, tolerance float64) (*buildResult, error)
}

// New creates an Atlas over the given region descriptors. Pass a nil
// exporter to disable case publishing.
func New(specs []config.RegionSpec, exporter Exporter, logger *slog.Logger, metrics *observability.Metrics, tolerance float64, cacheSize int) *Atlas {
	a := &Atlas{
		slots:       make(map[string]*slot, len(specs)),
		cache:       newSliceCache(cacheSize),
		tolerance:   tolerance,
		exporter:    exporter,
		logger:      logger,
		metrics:     metrics,
		buildRegion: buildRegion,
	}
	for _, spec := range specs {
		a.slots[spec.ID] = &slot{spec: spec, done: make(chan struct{})}
		a.order = append(a.order, spec.ID)
	}
	return a
}

// Regions returns the configured region ids in descriptor order.
func (a *Atlas) Regions() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Has reports whether a region id is configured.
func (a *Atlas) Has(region string) bool {
	_, ok := a.slots[region]
	return ok
}

// CheckReadiness returns nil once at least one region has loaded
// successfully, or an error describing why the service is not yet ready.
func (a *Atlas) CheckReadiness(_ context.Context) error {
	if a.ready.Load() == 0 {
		return errors.New("no region has loaded yet")
	}
	return nil
}

// Warm builds the named regions, blocking until each finishes. Build
// failures are logged by the build itself and not returned; warming is
// best effort.
func (a *Atlas) Warm(ctx context.Context, regions ...string) {
	for _, region := range regions {
		s, ok := a.slots[region]
		if !ok {
			continue
		}
		if err := a.ensure(ctx, s); err != nil && ctx.Err() != nil {
			return
		}
	}
}

// Weeks returns the sorted time buckets a region's case table covers.
func (a *Atlas) Weeks(ctx context.Context, region string) ([]string, error) {
	s, ok := a.slots[region]
	if !ok {
		return nil, ErrUnknownRegion
	}
	if err := a.ensure(ctx, s); err != nil {
		return nil, err
	}
	return s.result.cases.Buckets(), nil
}

// Slice returns the enriched records for one region and bucket: every
// boundary unit, zero-filled where the case table is silent.
func (a *Atlas) Slice(ctx context.Context, region, bucket string) ([]domain.EnrichedRecord, error) {
	s, ok := a.slots[region]
	if !ok {
		return nil, ErrUnknownRegion
	}
	if err := a.ensure(ctx, s); err != nil {
		return nil, err
	}

	key := sliceKey(region, bucket)
	if records, ok := a.cache.get(key); ok {
		a.metrics.SliceCache.WithLabelValues("hit").Inc()
		return records, nil
	}
	a.metrics.SliceCache.WithLabelValues("miss").Inc()

	records := domain.TimeSlice(s.result.regions, s.result.cases, bucket)
	a.cache.put(key, records)
	return records, nil
}

// CaseTable returns a region's reshaped case table, for consumers that
// need the full history rather than one slice.
func (a *Atlas) CaseTable(ctx context.Context, region string) (domain.CaseTable, error) {
	s, ok := a.slots[region]
	if !ok {
		return domain.CaseTable{}, ErrUnknownRegion
	}
	if err := a.ensure(ctx, s); err != nil {
		return domain.CaseTable{}, err
	}
	return s.result.cases, nil
}

// Population returns the per-unit population map for a region, keyed like
// its case table. Units without population data are absent.
func (a *Atlas) Population(ctx context.Context, region string) (map[string]float64, error) {
	s, ok := a.slots[region]
	if !ok {
		return nil, ErrUnknownRegion
	}
	if err := a.ensure(ctx, s); err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, r := range s.result.regions {
		if r.Population > 0 {
			out[r.Key] = r.Population
		}
	}
	return out, nil
}

// ensure triggers the slot's build exactly once and waits for it.
func (a *Atlas) ensure(ctx context.Context, s *slot) error {
	s.once.Do(func() {
		go a.build(s)
	})

	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Atlas) build(s *slot) {
	defer close(s.done)

	region := s.spec.ID
	start := domain.Clock().Now()
	a.logger.Info("region load started", "region", region)

	result, err := a.buildRegion(s.spec, a.tolerance)
	elapsed := domain.Clock().Since(start)
	a.metrics.RegionLoadDuration.WithLabelValues(region).Observe(elapsed.Seconds())

	if err != nil {
		s.err = fmt.Errorf("load region %s: %w", region, err)
		a.metrics.RegionLoads.WithLabelValues(region, "failure").Inc()
		a.logger.Error("region load failed", "region", region, "error", err, "elapsed", elapsed)
		return
	}

	s.result = result
	a.ready.Add(1)
	a.metrics.RegionLoads.WithLabelValues(region, "success").Inc()
	a.observeCoverage(region, result.coverage)
	a.observeDrops(region, result.stats)
	a.logger.Info("region load finished",
		"region", region,
		"units", len(result.regions),
		"case_records", len(result.cases.Records),
		"shared_keys", result.coverage.Shared,
		"elapsed", elapsed,
	)

	if a.exporter != nil {
		if err := a.exporter.ExportCases(context.Background(), region, result.cases.Records); err != nil {
			a.logger.Error("case export failed", "region", region, "error", err)
		} else {
			a.metrics.RecordsExported.Add(float64(len(result.cases.Records)))
		}
	}
}

func (a *Atlas) observeCoverage(region string, cov domain.Coverage) {
	a.metrics.JoinCoverage.WithLabelValues(region, "geometry").Set(float64(cov.GeometryKeys))
	a.metrics.JoinCoverage.WithLabelValues(region, "cases").Set(float64(cov.CaseKeys))
	a.metrics.JoinCoverage.WithLabelValues(region, "shared").Set(float64(cov.Shared))

	if cov.Shared == 0 {
		a.logger.Warn("join produced no shared keys, maps will render empty",
			"region", region,
			"geometry_keys", cov.GeometryKeys,
			"case_keys", cov.CaseKeys,
		)
	}
}

func (a *Atlas) observeDrops(region string, stats ingest.Stats) {
	drops := map[string]int{
		ingest.ReasonBadTime:   stats.DroppedBadTime,
		ingest.ReasonYearRange: stats.DroppedYearRange,
		ingest.ReasonNoKey:     stats.DroppedNoKey,
	}
	for reason, n := range drops {
		if n > 0 {
			a.metrics.RowsDropped.WithLabelValues(region, reason).Add(float64(n))
		}
	}
}

// buildRegion loads and joins one region's sources.
func buildRegion(spec config.RegionSpec, tolerance float64) (*buildResult, error) {
	regions, err := ingest.LoadGeometry(spec.Geometry, tolerance)
	if err != nil {
		return nil, err
	}

	cases, stats, err := ingest.LoadCaseTable(spec.Cases)
	if err != nil {
		return nil, err
	}

	if spec.Population != nil {
		pop, err := ingest.LoadPopulation(*spec.Population)
		if err != nil {
			return nil, err
		}
		for i := range regions {
			regions[i].Population = pop[regions[i].Key]
		}
	}

	return &buildResult{
		regions:  regions,
		cases:    cases,
		coverage: domain.KeyCoverage(regions, cases),
		stats:    stats,
	}, nil
}
