// Package bench drives a backend through the two benchmark phases. Load
// bulk-inserts the initial record space and syncs once; Run replays the
// mixed operation stream with a periodic, time-boxed sync. Both phases are
// strictly sequential and abort on the first anomaly.
package bench

import (
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/weiihann/ycsbkv/backend"
	"github.com/weiihann/ycsbkv/report"
	"github.com/weiihann/ycsbkv/workload"
)

// Source is the workload stream the driver consumes, one operation at a
// time and strictly in order.
type Source interface {
	ReadAllFields() bool
	WriteAllFields() bool
	NextInsert() workload.Operation
	NextOperation() workload.Operation
}

// Driver runs the phases of one benchmark against one backend.
type Driver struct {
	backend backend.Backend
	source  Source
	logger  *slog.Logger
	now     func() time.Time
	verbose bool
	latency bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the progress logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithClock replaces time.Now as the phase clock.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithLatency enables per-call latency histograms.
func WithLatency(on bool) Option {
	return func(d *Driver) { d.latency = on }
}

// WithVerbose logs every dispatched operation at debug level.
func WithVerbose(on bool) Option {
	return func(d *Driver) { d.verbose = on }
}

// New returns a Driver for b fed by src.
func New(b backend.Backend, src Source, opts ...Option) *Driver {
	d := &Driver{
		backend: b,
		source:  src,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.With(slog.String("backend", b.Name()))

	return d
}

// phaseState is the bookkeeping of one phase invocation.
type phaseState struct {
	phase string
	start time.Time
	ops   int
	syncs int
	lat   *latencyRecorder
}

func (d *Driver) begin(phase string) *phaseState {
	st := &phaseState{phase: phase}
	if d.latency {
		st.lat = newLatencyRecorder()
	}
	st.start = d.now()

	return st
}

func (d *Driver) finish(st *phaseState) report.Summary {
	end := d.now()

	return report.Summary{
		Backend:    d.backend.Name(),
		Phase:      st.phase,
		ElapsedNs:  end.Sub(st.start).Nanoseconds(),
		Operations: st.ops,
		Syncs:      st.syncs,
		Latency:    st.lat.stats(),
	}
}

func (d *Driver) fatal(st *phaseState, op string, err error) error {
	return &FatalError{
		Backend:   d.backend.Name(),
		Phase:     st.phase,
		Op:        op,
		Completed: st.ops,
		Err:       err,
	}
}

// Load issues n inserts drawn from the source, then a single sync. The
// elapsed time covers the sync.
func (d *Driver) Load(n int) (report.Summary, error) {
	d.logger.Info("loading", slog.Int("ops", n))

	st := d.begin(report.PhaseLoad)

	for i := 0; i < n; i++ {
		op := d.source.NextInsert()
		if op.Kind != workload.KindInsert {
			return report.Summary{}, d.fatal(st, op.Kind.String(),
				errors.Wrapf(ErrInvalidOperation, "load drew %s", op.Kind))
		}

		if err := d.timed(st, op, d.dispatch); err != nil {
			return report.Summary{}, d.fatal(st, op.Kind.String(), err)
		}
		st.ops++
	}

	d.logger.Info("sync")
	if err := d.sync(st); err != nil {
		return report.Summary{}, d.fatal(st, opSync, err)
	}

	s := d.finish(st)
	d.logger.Info("loading complete",
		slog.Int("ops", s.Operations),
		slog.Duration("elapsed", time.Duration(s.ElapsedNs)),
	)

	return s, nil
}

// Run replays m operations from the source. After each one the backend
// is synced if more than syncIntervalMs whole milliseconds have passed
// since the previous sync.
func (d *Driver) Run(m, syncIntervalMs int) (report.Summary, error) {
	d.logger.Info("running experiment",
		slog.Int("ops", m),
		slog.Int("sync_interval_ms", syncIntervalMs),
	)

	st := d.begin(report.PhaseRun)
	sched := newSyncScheduler(syncIntervalMs, st.start, d.now)

	for i := 0; i < m; i++ {
		op := d.source.NextOperation()

		if err := d.timed(st, op, d.dispatch); err != nil {
			return report.Summary{}, d.fatal(st, op.Kind.String(), err)
		}
		st.ops++

		if !sched.due() {
			continue
		}

		d.logger.Debug("sync", slog.Int("completed", st.ops))
		if err := d.sync(st); err != nil {
			return report.Summary{}, d.fatal(st, opSync, err)
		}
		sched.synced()
	}

	s := d.finish(st)
	d.logger.Info("experiment complete",
		slog.Int("ops", s.Operations),
		slog.Int("syncs", s.Syncs),
		slog.Duration("elapsed", time.Duration(s.ElapsedNs)),
	)

	return s, nil
}

func (d *Driver) timed(st *phaseState, op workload.Operation, fn func(workload.Operation) error) error {
	if st.lat == nil {
		return fn(op)
	}

	t0 := d.now()
	err := fn(op)
	st.lat.record(op.Kind.String(), d.now().Sub(t0))

	return err
}

func (d *Driver) sync(st *phaseState) error {
	var t0 time.Time
	if st.lat != nil {
		t0 = d.now()
	}

	if err := d.backend.Sync(); err != nil {
		return backendFailure(opSync, err)
	}
	st.syncs++

	if st.lat != nil {
		st.lat.record("sync", d.now().Sub(t0))
	}

	return nil
}

// dispatch validates op against the supported workload shape and issues
// the matching backend call.
func (d *Driver) dispatch(op workload.Operation) error {
	switch op.Kind {
	case workload.KindRead:
		if !d.source.ReadAllFields() {
			return errors.Wrap(ErrUnsupportedMode, "reading a subset of fields")
		}
		d.trace(op, nil)

		return backendFailure("query", d.backend.Query([]byte(op.Key)))

	case workload.KindInsert:
		value, err := singleValue(op)
		if err != nil {
			return err
		}
		d.trace(op, value)

		return backendFailure("insert", d.backend.Insert([]byte(op.Key), value))

	case workload.KindUpdate:
		if !d.source.WriteAllFields() {
			return errors.Wrap(ErrUnsupportedMode, "writing a subset of fields")
		}
		value, err := singleValue(op)
		if err != nil {
			return err
		}
		d.trace(op, value)

		return backendFailure("update", d.backend.Update([]byte(op.Key), value))

	case workload.KindScan, workload.KindReadModifyWrite:
		return errors.Wrap(ErrUnsupportedOperation, op.Kind.String())

	default:
		return errors.Wrap(ErrInvalidOperation, op.Kind.String())
	}
}

func singleValue(op workload.Operation) ([]byte, error) {
	if len(op.Fields) != 1 {
		return nil, errors.Wrapf(ErrFieldCount, "%s of %q carries %d fields",
			op.Kind, op.Key, len(op.Fields))
	}
	return op.Fields[0].Value, nil
}

func (d *Driver) trace(op workload.Operation, value []byte) {
	if !d.verbose {
		return
	}

	attrs := []any{
		slog.String("op", op.Kind.String()),
		slog.String("table", op.Table),
		slog.String("key", op.Key),
	}
	if value != nil {
		attrs = append(attrs, slog.String("value", string(value)))
	}

	d.logger.Debug("op", attrs...)
}
