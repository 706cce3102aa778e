// Package pipeline coordinates one ingestion run: it expands the regional
// station lists into dataset-station-year work units, fans them out over a
// worker pool, and drives each unit through fetch, parse, normalize, and
// write. Units fail independently; a failed unit lands in the failure log
// and the run moves on.
package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/faillog"
	"github.com/wxarchive/station-etl/internal/normalize"
	"github.com/wxarchive/station-etl/internal/observability"
	"github.com/wxarchive/station-etl/internal/parser"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Step selects how much of a unit's lifecycle a run executes.
type Step string

const (
	// StepDownload stages raw payloads and stops.
	StepDownload Step = "download"
	// StepProcess turns staged payloads into canonical partitions,
	// fetching any payload not staged yet.
	StepProcess Step = "process"
	// StepAll is download plus process.
	StepAll Step = "all"
)

// ParseStep validates a step name from the command line.
func ParseStep(s string) (Step, error) {
	switch Step(s) {
	case StepDownload, StepProcess, StepAll:
		return Step(s), nil
	}
	return "", fmt.Errorf("unknown step %q", s)
}

// StationLister resolves the regional station list for a dataset.
type StationLister interface {
	Stations(ctx context.Context, name domain.Dataset) ([]domain.Station, error)
}

// Fetcher returns the raw archive payload for a work unit.
type Fetcher interface {
	Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error)
}

// PartitionWriter persists one unit's canonical records.
type PartitionWriter interface {
	Exists(unit domain.WorkUnit) bool
	Write(unit domain.WorkUnit, recs []domain.CanonicalRecord) error
}

// FailureSink records units that failed.
type FailureSink interface {
	Append(e faillog.Entry) error
}

// RecordSink receives each successful unit's canonical records. Sinks are
// optional destinations beside the partition files; a sink error is logged
// but does not fail the unit.
type RecordSink interface {
	Publish(ctx context.Context, unit domain.WorkUnit, recs []domain.CanonicalRecord) error
}

type namedSink struct {
	name string
	sink RecordSink
}

type unitResult string

const (
	resultSuccess      unitResult = "success"
	resultNotAvailable unitResult = "not_available"
	resultSkipped      unitResult = "skipped"
	resultFailed       unitResult = "failed"
)

// Coordinator owns one run at a time.
type Coordinator struct {
	reg      *registry.Registry
	stations StationLister
	fetcher  Fetcher
	writer   PartitionWriter
	failures FailureSink
	parsers  map[domain.Dataset]parser.Parser
	sinks    []namedSink
	logger   *slog.Logger
	metrics  *observability.Metrics
	workers  int
	force    bool

	active atomic.Bool
	mu     sync.Mutex
	runID  string
	step   Step
	units  int

	completed    atomic.Int64
	succeeded    atomic.Int64
	notAvailable atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	records      atomic.Int64
}

// New creates a Coordinator. workers bounds concurrent units; force
// refetches staged payloads and rewrites existing partitions.
func New(reg *registry.Registry, stations StationLister, fetcher Fetcher, writer PartitionWriter, failures FailureSink, logger *slog.Logger, metrics *observability.Metrics, workers int, force bool) (*Coordinator, error) {
	parsers := make(map[domain.Dataset]parser.Parser, len(reg.Datasets))
	for name, spec := range reg.Datasets {
		p, err := parser.ForDataset(name, spec)
		if err != nil {
			return nil, err
		}
		parsers[name] = p
	}
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		reg:      reg,
		stations: stations,
		fetcher:  fetcher,
		writer:   writer,
		failures: failures,
		parsers:  parsers,
		logger:   logger,
		metrics:  metrics,
		workers:  workers,
		force:    force,
	}, nil
}

// AddSink registers an optional destination for canonical records. The
// name appears in logs.
func (c *Coordinator) AddSink(name string, sink RecordSink) {
	c.sinks = append(c.sinks, namedSink{name: name, sink: sink})
}

// Progress is a point-in-time view of the current or most recent run.
type Progress struct {
	RunID     string
	Active    bool
	Step      string
	Units     int
	Completed int
	Failed    int
}

// Progress reports run state for the status endpoint.
func (c *Coordinator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Progress{
		RunID:     c.runID,
		Active:    c.active.Load(),
		Step:      string(c.step),
		Units:     c.units,
		Completed: int(c.completed.Load()),
		Failed:    int(c.failed.Load()),
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID        string
	Step         Step
	Units        int
	Succeeded    int
	NotAvailable int
	Skipped      int
	Failed       int
	Records      int
	Duration     time.Duration
}

// Run executes one pass over every dataset-station-year unit of the given
// datasets. Per-unit failures land in the failure log and the summary, not
// in the returned error; the error is non-nil only when the run could not
// start or was cut short by ctx.
func (c *Coordinator) Run(ctx context.Context, datasets []domain.Dataset, step Step) (Summary, error) {
	units, err := c.collectUnits(ctx, datasets)
	if err != nil {
		return Summary{}, err
	}

	runID := uuid.NewString()
	start := domain.Clock().Now()
	c.beginRun(runID, step, len(units))
	defer c.active.Store(false)
	c.metrics.RunActive.Set(1)
	defer c.metrics.RunActive.Set(0)

	c.logger.Info("run started",
		"run_id", runID,
		"step", string(step),
		"units", len(units),
		"workers", c.workers,
		"force", c.force,
	)

	jobs := make(chan domain.WorkUnit)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range jobs {
				c.runUnit(ctx, runID, step, unit)
			}
		}()
	}

	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case jobs <- unit:
		}
	}
	close(jobs)
	wg.Wait()

	summary := Summary{
		RunID:        runID,
		Step:         step,
		Units:        len(units),
		Succeeded:    int(c.succeeded.Load()),
		NotAvailable: int(c.notAvailable.Load()),
		Skipped:      int(c.skipped.Load()),
		Failed:       int(c.failed.Load()),
		Records:      int(c.records.Load()),
		Duration:     domain.Clock().Since(start),
	}

	if ctx.Err() != nil {
		c.logger.Warn("run interrupted",
			"run_id", runID,
			"completed", c.completed.Load(),
			"units", len(units),
		)
		return summary, ctx.Err()
	}

	c.logger.Info("run finished",
		"run_id", runID,
		"units", summary.Units,
		"succeeded", summary.Succeeded,
		"not_available", summary.NotAvailable,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"records", summary.Records,
		"duration", summary.Duration.String(),
	)
	return summary, nil
}

func (c *Coordinator) beginRun(runID string, step Step, units int) {
	c.mu.Lock()
	c.runID = runID
	c.step = step
	c.units = units
	c.mu.Unlock()

	c.completed.Store(0)
	c.succeeded.Store(0)
	c.notAvailable.Store(0)
	c.skipped.Store(0)
	c.failed.Store(0)
	c.records.Store(0)
	c.active.Store(true)
}

// collectUnits expands the run's scope into its work list: every station
// of each dataset's inventory crossed with the dataset's years. Yearless
// datasets contribute one unit per station.
func (c *Coordinator) collectUnits(ctx context.Context, datasets []domain.Dataset) ([]domain.WorkUnit, error) {
	var units []domain.WorkUnit
	for _, name := range datasets {
		spec, err := c.reg.Dataset(name)
		if err != nil {
			return nil, err
		}
		list, err := c.stations.Stations(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("stations for %s: %w", name, err)
		}
		years := c.reg.Years(spec)
		for _, st := range list {
			for _, year := range years {
				units = append(units, domain.WorkUnit{
					Dataset:   name,
					Country:   st.Country,
					StationID: st.ID,
					FileID:    st.FileID,
					Year:      year,
				})
			}
		}
		c.logger.Info("work collected",
			"dataset", string(name),
			"stations", len(list),
			"years", len(years),
		)
	}
	return units, nil
}

func (c *Coordinator) runUnit(ctx context.Context, runID string, step Step, unit domain.WorkUnit) {
	start := time.Now()
	result := c.processUnit(ctx, runID, step, unit)

	c.metrics.UnitsCompleted.WithLabelValues(string(unit.Dataset), string(result)).Inc()
	c.metrics.UnitDuration.WithLabelValues(string(unit.Dataset), stepLabel(step)).Observe(time.Since(start).Seconds())

	c.completed.Add(1)
	switch result {
	case resultSuccess:
		c.succeeded.Add(1)
	case resultNotAvailable:
		c.notAvailable.Add(1)
	case resultSkipped:
		c.skipped.Add(1)
	case resultFailed:
		c.failed.Add(1)
	}
}

// stepLabel collapses the combined step for the duration metric: a unit
// that downloads and processes is observed once, under process.
func stepLabel(step Step) string {
	if step == StepDownload {
		return "download"
	}
	return "process"
}

// processUnit drives one unit through its lifecycle and classifies the
// outcome. A panic in any stage is contained to the unit.
func (c *Coordinator) processUnit(ctx context.Context, runID string, step Step, unit domain.WorkUnit) (result unitResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("unit panicked", "unit", unit.String(), "panic", r)
			c.recordFailure(runID, unit, "process", domain.KindInternal, fmt.Sprintf("panic: %v", r))
			result = resultFailed
		}
	}()

	if step != StepDownload && !c.force && c.writer.Exists(unit) {
		return resultSkipped
	}

	payload, err := c.fetcher.Fetch(ctx, unit)
	if err != nil {
		if domain.IsNotAvailable(err) {
			return resultNotAvailable
		}
		if ctx.Err() != nil {
			// Shutdown, not a data problem. The unit stays eligible for
			// the next run without a failure-log entry.
			return resultFailed
		}
		c.recordFailure(runID, unit, "download", domain.KindOf(err), err.Error())
		return resultFailed
	}

	if step == StepDownload {
		return resultSuccess
	}

	canon, err := c.transform(unit, payload)
	if err != nil {
		c.recordFailure(runID, unit, "process", domain.KindOf(err), err.Error())
		return resultFailed
	}

	if err := c.writer.Write(unit, canon); err != nil {
		c.recordFailure(runID, unit, "process", domain.KindInternal, err.Error())
		return resultFailed
	}

	c.publish(ctx, unit, canon)

	c.metrics.RecordsNormalized.WithLabelValues(string(unit.Dataset)).Add(float64(len(canon)))
	c.records.Add(int64(len(canon)))
	return resultSuccess
}

// transform turns a staged payload into the unit's canonical records:
// decompress, parse, keep the unit's year, normalize. The per-station
// daily archive stages one file for a station's whole history; the year
// filter is what splits it into per-year partitions.
func (c *Coordinator) transform(unit domain.WorkUnit, payload []byte) ([]domain.CanonicalRecord, error) {
	spec, err := c.reg.Dataset(unit.Dataset)
	if err != nil {
		return nil, err
	}

	payload, err = decompress(spec.Compression, payload)
	if err != nil {
		return nil, &domain.ParseError{Dataset: unit.Dataset, Reason: err.Error()}
	}

	recs, err := c.parsers[unit.Dataset].Parse(payload)
	if err != nil {
		return nil, err
	}

	// Partitions are keyed by the inventory identity, not whatever
	// identifier the payload carries.
	kept := make([]domain.ObservationRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Time.Year != unit.Year {
			continue
		}
		rec.StationID = unit.StationID
		kept = append(kept, rec)
	}

	return normalize.Normalize(spec, kept)
}

// publish hands the records to each optional sink. Partitions on disk are
// the source of truth, so a sink outage must not fail the unit.
func (c *Coordinator) publish(ctx context.Context, unit domain.WorkUnit, recs []domain.CanonicalRecord) {
	for _, s := range c.sinks {
		if err := s.sink.Publish(ctx, unit, recs); err != nil {
			c.logger.Warn("sink publish failed",
				"sink", s.name,
				"unit", unit.String(),
				"error", err,
			)
		}
	}
}

func (c *Coordinator) recordFailure(runID string, unit domain.WorkUnit, stage string, kind domain.ErrorKind, msg string) {
	c.logger.Warn("unit failed",
		"unit", unit.String(),
		"stage", stage,
		"kind", string(kind),
		"error", msg,
	)
	err := c.failures.Append(faillog.Entry{
		RunID:   runID,
		Dataset: unit.Dataset,
		Country: unit.Country,
		Station: unit.StationID,
		Year:    unit.Year,
		Stage:   stage,
		Kind:    kind,
		Message: msg,
	})
	if err != nil {
		c.logger.Error("failure log append failed", "unit", unit.String(), "error", err)
	}
}

// decompress unwraps the payload per the dataset's compression. Fetchers
// stage bytes exactly as served, so gzip archives stay gzipped on disk.
func decompress(compression string, payload []byte) ([]byte, error) {
	if compression != "gzip" {
		return payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}
