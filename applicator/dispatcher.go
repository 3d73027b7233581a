package applicator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skdltmxn/pdb-apply/codeview"
)

// Outcome is what happened to one record during a run.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSkipped
	OutcomeFaulted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Event is passed to the observer after each dispatched record.
type Event struct {
	Position int
	Kind     codeview.Kind
	Outcome  Outcome
	Fault    *Fault // nil when applied
	Jumped   int    // records passed over by the applier without being applied
}

// Status is the terminal state of a run.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
)

func (s Status) String() string {
	if s == StatusCancelled {
		return "cancelled"
	}
	return "completed"
}

// Result summarizes a run. Processed, Skipped and Faulted add up to the
// number of records the run went past.
type Result struct {
	Processed int // applied without fault
	Skipped   int // unsupported, or inside a scope whose body was skipped
	Faulted   int // applied with a fault

	// Faults holds the faults of faulted records in stream order.
	Faults []*Fault
	// Skips holds an ErrUnsupportedKind fault per unsupported record.
	Skips []*Fault

	Status Status
}

// Err aggregates Faults into a single error, or returns nil when the run
// had none. Unsupported kinds are not included.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, f := range r.Faults {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-record diagnostics.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithRegisterer registers the dispatcher metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) { d.reg = reg }
}

// WithRegistry replaces the default registry.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithObserver sets a function called after every dispatched record. It
// runs on the dispatch goroutine.
func WithObserver(fn func(Event)) Option {
	return func(d *Dispatcher) { d.observer = fn }
}

// Dispatcher walks a Stream and hands each record to the applier
// registered for its kind.
type Dispatcher struct {
	cfg      Config
	registry *Registry
	logger   log.Logger
	reg      prometheus.Registerer
	metrics  *metrics
	observer func(Event)
}

// NewDispatcher returns a Dispatcher for cfg. Without WithRegistry it uses
// DefaultRegistry(cfg).
func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = DefaultRegistry(cfg)
	}
	d.metrics = newMetrics(d.reg)
	return d, nil
}

// Run applies the records of s to c, from the cursor to the end of the
// stream. Faults are collected in the Result and never stop the run. When
// ctx is done the run stops before the next record and returns the partial
// Result with an error wrapping ErrCancelled and ctx.Err(); c then holds
// the effects of every record that was dispatched.
func (d *Dispatcher) Run(ctx context.Context, s *Stream, c *Context) (*Result, error) {
	start := time.Now()
	defer func() {
		d.metrics.runDuration.Observe(time.Since(start).Seconds())
	}()

	res := &Result{Status: StatusCompleted}
	for {
		if err := ctx.Err(); err != nil {
			res.Status = StatusCancelled
			level.Warn(d.logger).Log("msg", "run cancelled", "position", s.Position(), "remaining", s.Remaining(), "err", err)
			return res, fmt.Errorf("%w at record %d: %w", ErrCancelled, s.Position(), err)
		}
		rec, err := s.Peek()
		if err != nil {
			break
		}
		d.dispatch(s, c, rec, res)
	}

	level.Info(d.logger).Log(
		"msg", "run completed",
		"records", s.Len(),
		"processed", res.Processed,
		"skipped", res.Skipped,
		"faulted", res.Faulted,
		"duration", time.Since(start),
	)
	return res, nil
}

// dispatch handles the record at the cursor. The cursor always ends up past
// it, whatever the applier does.
func (d *Dispatcher) dispatch(s *Stream, c *Context, rec codeview.Record, res *Result) {
	pos := s.Position()
	kind := rec.Kind()

	a, ok := d.registry.Lookup(kind)
	if !ok {
		s.advancePast(pos)
		f := &Fault{
			Class:    ClassUnsupportedKind,
			Position: pos,
			Offset:   rec.StreamOffset(),
			Kind:     kind,
			Err:      fmt.Errorf("%w: %s", ErrUnsupportedKind, kind),
		}
		d.finish(res, pos, kind, f, 0)
		return
	}

	err := a.Apply(s, c)
	if s.advancePast(pos) && err == nil {
		err = fmt.Errorf("%w: applier for %s did not consume its record", ErrDispatchMismatch, kind)
	}

	// Records the applier seeked past are counted as skipped.
	next := s.Position()
	jumped := next - pos - 1
	for _, r := range s.records[pos+1 : next] {
		d.metrics.records.WithLabelValues(r.Kind().String(), OutcomeSkipped.String()).Inc()
	}
	res.Skipped += jumped

	var f *Fault
	if err != nil {
		f = &Fault{
			Class:    classify(err),
			Position: pos,
			Offset:   rec.StreamOffset(),
			Kind:     kind,
			Err:      err,
		}
	}
	d.finish(res, pos, kind, f, jumped)
}

func (d *Dispatcher) finish(res *Result, pos int, kind codeview.Kind, f *Fault, jumped int) {
	outcome := OutcomeApplied
	switch {
	case f == nil:
		res.Processed++
	case f.Class == ClassUnsupportedKind:
		outcome = OutcomeSkipped
		res.Skipped++
		res.Skips = append(res.Skips, f)
		level.Debug(d.logger).Log("msg", "skipping unsupported record", "position", pos, "kind", kind)
	default:
		outcome = OutcomeFaulted
		res.Faulted++
		res.Faults = append(res.Faults, f)
		lvl := level.Debug
		if f.Class.Severity() == SeverityProgramming {
			lvl = level.Error
		}
		lvl(d.logger).Log("msg", "record fault", "position", pos, "offset", f.Offset, "kind", kind, "class", f.Class, "err", f.Err)
	}

	d.metrics.records.WithLabelValues(kind.String(), outcome.String()).Inc()
	if d.observer != nil {
		d.observer(Event{
			Position: pos,
			Kind:     kind,
			Outcome:  outcome,
			Fault:    f,
			Jumped:   jumped,
		})
	}
}

// Run applies s to c with a dispatcher using DefaultConfig and the default
// registry.
func Run(ctx context.Context, s *Stream, c *Context) (*Result, error) {
	d, err := NewDispatcher(DefaultConfig())
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, s, c)
}
