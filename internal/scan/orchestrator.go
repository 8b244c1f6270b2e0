package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sentraguard/internal/alerts"
	"sentraguard/internal/bots"
	"sentraguard/internal/detect"
	"sentraguard/internal/metrics"
	"sentraguard/internal/processor"
	"sentraguard/internal/shutdown"
)

const (
	DefaultTimeout = 5 * time.Second
	statusWindow   = time.Hour
	statusLimit    = 200
)

type Registry interface {
	EnsureDefaults(ctx context.Context, defaults []bots.Bot) error
	List(ctx context.Context) ([]bots.Bot, error)
	ListActive(ctx context.Context) ([]bots.Bot, error)
	RecordScan(ctx context.Context, id string, at time.Time) error
}

type StateMachine interface {
	Current(ctx context.Context) (*shutdown.Status, error)
	Reconcile(ctx context.Context) (*shutdown.Status, error)
}

type AlertLister interface {
	List(ctx context.Context, f alerts.ListFilter) ([]alerts.Alert, error)
}

type Processor interface {
	Process(ctx context.Context, cycleID uuid.UUID, inds []detect.Indicator) processor.Result
}

// DetectorError is a detector run that failed or did not finish in time. It
// contributes no indicators to the cycle.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string { return fmt.Sprintf("detector %s: %v", e.Detector, e.Err) }

func (e *DetectorError) Unwrap() error { return e.Err }

// Timeout reports whether the detector ran past the cycle deadline.
func (e *DetectorError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Report summarizes one scan cycle.
type Report struct {
	CycleID             uuid.UUID     `json:"cycle_id" yaml:"cycle_id"`
	StartedAt           time.Time     `json:"started_at" yaml:"started_at"`
	Duration            time.Duration `json:"duration" yaml:"duration"`
	BotsScanned         int           `json:"bots_scanned" yaml:"bots_scanned"`
	Indicators          int           `json:"indicators" yaml:"indicators"`
	Stored              int           `json:"stored" yaml:"stored"`
	AutoResponses       int           `json:"auto_responses" yaml:"auto_responses"`
	DetectorFailures    int           `json:"detector_failures" yaml:"detector_failures"`
	PersistenceFailures int           `json:"persistence_failures" yaml:"persistence_failures"`
	ErrorCount          int           `json:"error_count" yaml:"error_count"`
	Errors              []error       `json:"-" yaml:"-"`
	Restored            *uuid.UUID    `json:"restored_shutdown,omitempty" yaml:"restored_shutdown,omitempty"`
}

// Messages renders the cycle's errors for display.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, err := range r.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Status is the snapshot shown on dashboards.
type Status struct {
	State        shutdown.State   `json:"state" yaml:"state"`
	Shutdown     *shutdown.Status `json:"shutdown,omitempty" yaml:"shutdown,omitempty"`
	Bots         []bots.Bot       `json:"bots" yaml:"bots"`
	RecentAlerts []alerts.Alert   `json:"recent_alerts" yaml:"recent_alerts"`
	GeneratedAt  time.Time        `json:"generated_at" yaml:"generated_at"`
}

type Option func(*Orchestrator)

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator runs scan cycles: detectors of active bots in parallel, then
// the processor over everything they found.
type Orchestrator struct {
	registry  Registry
	machine   StateMachine
	alerts    AlertLister
	source    detect.EventSource
	detectors []detect.Detector
	processor Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

func New(registry Registry, machine StateMachine, alertLister AlertLister, source detect.EventSource,
	detectors []detect.Detector, proc Processor, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		machine:   machine,
		alerts:    alertLister,
		source:    source,
		detectors: detectors,
		processor: proc,
		logger:    logger,
		timeout:   DefaultTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type detectorResult struct {
	index      int
	indicators []detect.Indicator
	err        error
}

// Run executes one cycle. It always returns a report; failures are counted
// and listed in it.
func (o *Orchestrator) Run(ctx context.Context) Report {
	started := o.now()
	rep := Report{CycleID: uuid.New(), StartedAt: started}
	log := o.logger.With("cycle_id", rep.CycleID)

	if restored, err := o.machine.Reconcile(ctx); err != nil {
		log.Error("reconcile shutdown", "err", err)
		rep.Errors = append(rep.Errors, fmt.Errorf("reconcile shutdown: %w", err))
	} else if restored != nil {
		log.Info("restored expired shutdown", "shutdown_id", restored.ID)
		rep.Restored = &restored.ID
	}

	if err := o.registry.EnsureDefaults(ctx, bots.Defaults()); err != nil {
		log.Error("ensure default bots", "err", err)
		rep.Errors = append(rep.Errors, fmt.Errorf("ensure default bots: %w", err))
	}
	active, err := o.registry.ListActive(ctx)
	if err != nil {
		log.Error("load active bots", "err", err)
		rep.Errors = append(rep.Errors, fmt.Errorf("load active bots: %w", err))
	}

	enabled := make(map[detect.Category]detect.Sensitivity, len(active))
	for _, b := range active {
		enabled[b.Category] = b.Sensitivity
	}
	var selected []detect.Detector
	for _, d := range o.detectors {
		level, ok := enabled[d.Category()]
		if !ok {
			continue
		}
		if t, tunable := d.(detect.Tunable); tunable && level.Valid() {
			d = t.WithSensitivity(level)
		}
		selected = append(selected, d)
	}
	rep.BotsScanned = len(active)

	inds, detErrs := o.detect(ctx, selected, started)
	for _, err := range detErrs {
		var de *DetectorError
		if errors.As(err, &de) {
			o.metrics.DetectorFailed(de.Detector)
		}
		log.Error("detector failed", "err", err)
	}
	rep.DetectorFailures = len(detErrs)
	rep.Errors = append(rep.Errors, detErrs...)
	rep.Indicators = len(inds)

	res := o.processor.Process(ctx, rep.CycleID, inds)
	rep.Stored = res.Stored
	rep.AutoResponses = res.AutoResponses
	rep.PersistenceFailures = res.Failures
	rep.Errors = append(rep.Errors, res.Errors...)

	finished := o.now()
	for _, b := range active {
		if err := o.registry.RecordScan(ctx, b.ID, finished); err != nil {
			log.Error("record bot scan", "err", err, "bot", b.ID)
			rep.Errors = append(rep.Errors, fmt.Errorf("record scan for %s: %w", b.ID, err))
		}
	}

	rep.ErrorCount = len(rep.Errors)
	rep.Duration = finished.Sub(started)
	o.metrics.ObserveCycle(rep.Duration)
	log.Info("scan cycle complete",
		"bots", rep.BotsScanned,
		"indicators", rep.Indicators,
		"stored", rep.Stored,
		"auto_responses", rep.AutoResponses,
		"errors", rep.ErrorCount,
		"duration", rep.Duration)
	return rep
}

// detect runs every detector in its own goroutine under the cycle timeout.
// Detectors still running at the deadline are abandoned; the buffered channel
// lets them finish without blocking.
func (o *Orchestrator) detect(ctx context.Context, ds []detect.Detector, now time.Time) ([]detect.Indicator, []error) {
	if len(ds) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	results := make(chan detectorResult, len(ds))
	for i, d := range ds {
		go func(i int, d detect.Detector) {
			inds, err := d.Detect(ctx, o.source, now)
			results <- detectorResult{index: i, indicators: inds, err: err}
		}(i, d)
	}

	found, errs := collect(ctx, ds, results)

	var out []detect.Indicator
	for _, inds := range found {
		out = append(out, inds...)
	}
	return out, errs
}

// collect reads one result per detector until ctx ends. Detectors without a
// result by then fail with the context error.
func collect(ctx context.Context, ds []detect.Detector, results <-chan detectorResult) ([][]detect.Indicator, []error) {
	found := make([][]detect.Indicator, len(ds))
	done := make([]bool, len(ds))
	var errs []error
	received := 0
	take := func(r detectorResult) {
		received++
		done[r.index] = true
		if r.err != nil {
			errs = append(errs, &DetectorError{Detector: ds[r.index].Name(), Err: r.err})
			return
		}
		found[r.index] = r.indicators
	}
	for received < len(ds) {
		select {
		case r := <-results:
			take(r)
		case <-ctx.Done():
			// Results already sent count even when the deadline wins the select.
		drain:
			for received < len(ds) {
				select {
				case r := <-results:
					take(r)
				default:
					break drain
				}
			}
			for i, d := range ds {
				if !done[i] {
					errs = append(errs, &DetectorError{Detector: d.Name(), Err: ctx.Err()})
				}
			}
			received = len(ds)
		}
	}
	return found, errs
}

// Status returns bots, alerts of the last hour and the current shutdown.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	botList, err := o.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	now := o.now()
	recent, err := o.alerts.List(ctx, alerts.ListFilter{Since: now.Add(-statusWindow), Limit: statusLimit})
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	current, err := o.machine.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shutdown status: %w", err)
	}
	return &Status{
		State:        current.State(),
		Shutdown:     current,
		Bots:         botList,
		RecentAlerts: recent,
		GeneratedAt:  now,
	}, nil
}
