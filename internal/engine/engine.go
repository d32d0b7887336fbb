// Package engine drives a configured set of indicators across many
// instruments. States are created lazily on the first bar of each instrument
// and owned by the engine's single processing goroutine, so no locks are
// needed on the hot path.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"tickcore/internal/indicator"
	"tickcore/internal/metrics"
	"tickcore/internal/series"
)

// Spec names one indicator the engine computes for every instrument.
type Spec struct {
	Kind   string
	Config indicator.Config
}

// Name returns the spec's display name, e.g. "ema_12".
func (s Spec) Name() string { return indicator.SpecName(s.Kind, s.Config) }

// InstrumentBar is one bar tagged with its instrument key.
type InstrumentBar struct {
	Instrument string     `json:"instrument"`
	Bar        series.Bar `json:"bar"`
}

// Result is one indicator output point for one instrument.
type Result struct {
	Instrument string
	Name       string
	TS         time.Time
	Value      series.Value
}

// instrumentStates holds the live indicator instances for one instrument.
type instrumentStates struct {
	names  []string
	states []indicator.State
	warm   []bool
}

// Engine computes the configured indicators per instrument.
// Designed for single-goroutine usage — no locks needed.
type Engine struct {
	specs []Spec
	reg   *indicator.Registry
	log   *slog.Logger
	mx    *metrics.Metrics // optional

	state     map[string]*instrumentStates
	warmCount int
}

// New creates an engine. Specs are validated eagerly so a bad configuration
// fails at startup, not on the first bar. Metrics may be nil.
func New(specs []Spec, log *slog.Logger, mx *metrics.Metrics) (*Engine, error) {
	reg := indicator.Default()
	for _, sp := range specs {
		if _, err := reg.New(sp.Kind, sp.Config); err != nil {
			return nil, errors.Wrapf(err, "spec %s", sp.Name())
		}
	}
	return &Engine{
		specs: specs,
		reg:   reg,
		log:   log,
		mx:    mx,
		state: make(map[string]*instrumentStates, 64),
	}, nil
}

// Specs returns the engine's indicator specs.
func (e *Engine) Specs() []Spec { return e.specs }

// Instruments returns the instrument keys seen so far.
func (e *Engine) Instruments() []string {
	keys := make([]string, 0, len(e.state))
	for k := range e.state {
		keys = append(keys, k)
	}
	return keys
}

// Clock returns the last accepted bar timestamp of an instrument; false when
// the instrument is unknown or has not seen a bar yet. After a snapshot
// restore this bounds the replay read from storage.
func (e *Engine) Clock(instrument string) (time.Time, bool) {
	is, ok := e.state[instrument]
	if !ok || len(is.states) == 0 {
		return time.Time{}, false
	}
	// All states of one instrument share the monotonic clock.
	c, ok := is.states[0].(interface{ LastTS() (time.Time, bool) })
	if !ok {
		return time.Time{}, false
	}
	return c.LastTS()
}

// Process feeds one bar to every indicator of its instrument and returns the
// resulting output points. A bar rejected for a non-monotonic timestamp
// leaves all states unchanged and returns the error.
func (e *Engine) Process(ib InstrumentBar) ([]Result, error) {
	is, ok := e.state[ib.Instrument]
	if !ok {
		var err error
		is, err = e.createStates()
		if err != nil {
			return nil, err
		}
		e.state[ib.Instrument] = is
		e.log.Info("instrument registered",
			slog.String("instrument", ib.Instrument),
			slog.Int("indicators", len(is.states)))
	}

	start := time.Now()
	results := make([]Result, 0, len(is.states))
	for i, st := range is.states {
		v, err := st.Update(ib.Bar)
		if err != nil {
			if errors.Is(err, indicator.ErrNonMonotonicTimestamp) && e.mx != nil {
				e.mx.BarsRejected.Inc()
			}
			// All states share the monotonic clock: the first rejection means
			// none advanced.
			return nil, errors.Wrapf(err, "instrument %s %s", ib.Instrument, is.names[i])
		}
		if e.mx != nil {
			e.mx.IndicatorUpdatesTotal.WithLabelValues(st.Kind()).Inc()
		}
		if !is.warm[i] && st.WarmupRemaining() == 0 {
			is.warm[i] = true
			e.warmCount++
		}
		results = append(results, Result{
			Instrument: ib.Instrument,
			Name:       is.names[i],
			TS:         ib.Bar.TS,
			Value:      v,
		})
	}

	if e.mx != nil {
		e.mx.BarsTotal.Inc()
		if ib.Bar.Missing {
			e.mx.MissingBarsTotal.Inc()
		}
		e.mx.IndicatorComputeDur.Observe(time.Since(start).Seconds())
		e.mx.WarmIndicators.Set(float64(e.warmCount))
		e.mx.BarLag.Set(time.Since(ib.Bar.TS).Seconds())
	}
	return results, nil
}

// Run consumes bars and emits results. Rejected bars are logged and skipped.
// Blocks until ctx is done or barCh is closed.
func (e *Engine) Run(ctx context.Context, barCh <-chan InstrumentBar, resultCh chan<- Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case ib, ok := <-barCh:
			if !ok {
				return
			}
			results, err := e.Process(ib)
			if err != nil {
				e.log.Warn("bar dropped", slog.Any("err", err))
				continue
			}
			for _, r := range results {
				select {
				case resultCh <- r:
				default:
					// drop if channel full
				}
			}
		}
	}
}

// recountWarm recomputes the warm-indicator count from scratch. Called after
// a snapshot restore, where states may come back already past warm-up.
func (e *Engine) recountWarm() {
	n := 0
	for _, is := range e.state {
		for i, st := range is.states {
			w := st.WarmupRemaining() == 0
			is.warm[i] = w
			if w {
				n++
			}
		}
	}
	e.warmCount = n
	if e.mx != nil {
		e.mx.WarmIndicators.Set(float64(n))
	}
}

// createStates builds fresh indicator instances for one instrument.
func (e *Engine) createStates() (*instrumentStates, error) {
	is := &instrumentStates{
		names:  make([]string, len(e.specs)),
		states: make([]indicator.State, len(e.specs)),
		warm:   make([]bool, len(e.specs)),
	}
	for i, sp := range e.specs {
		st, err := e.reg.New(sp.Kind, sp.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "spec %s", sp.Name())
		}
		is.names[i] = sp.Name()
		is.states[i] = st
	}
	return is, nil
}
