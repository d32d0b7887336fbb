package indicator

import "tickcore/internal/series"

// EMA is the exponential moving average. O(1) per update, no window storage;
// seeding convention comes from the configuration.
type EMA struct {
	sampler
	period int
	w      ewma
}

// NewEMA constructs an exponential moving average state.
func NewEMA(cfg Config) (*EMA, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	if err := cfg.validateAlpha(); err != nil {
		return nil, err
	}
	return &EMA{
		sampler: newSampler(cfg),
		period:  cfg.Period,
		w:       newEWMA(cfg.alpha(cfg.Period), cfg.Period, cfg.Seed),
	}, nil
}

func (e *EMA) Kind() string { return KindEMA }

func (e *EMA) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := e.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		e.w.update(v)
	}
	return e.value(), nil
}

func (e *EMA) value() series.Value {
	if !e.w.ready() {
		return series.None()
	}
	return series.Some(e.w.value)
}

func (e *EMA) WarmupRemaining() int { return e.w.warmupRemaining() }

func (e *EMA) Reset() {
	e.sampler.reset()
	e.w.reset()
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() Snapshot {
	snap := Snapshot{
		Kind:    KindEMA,
		Period:  e.period,
		Count:   e.w.count,
		SeedSum: e.w.sum,
		Value:   e.w.value,
	}
	e.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the EMA state from a checkpoint.
func (e *EMA) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindEMA, e.period); err != nil {
		return err
	}
	e.restoreFrom(snap)
	e.w.count = snap.Count
	e.w.sum = snap.SeedSum
	e.w.value = snap.Value
	return nil
}
