package indicator

import (
	"tickcore/internal/series"
	"tickcore/internal/window"
)

// Bollinger maintains moving-average bands at k population standard
// deviations around the window mean. The primary value is the middle band;
// Upper and Lower expose the other two.
type Bollinger struct {
	sampler
	period int
	k      float64
	win    *window.Accumulator
}

// NewBollinger constructs a Bollinger bands state.
func NewBollinger(cfg Config) (*Bollinger, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	if cfg.BandK < 0 {
		return nil, wrapInvalidf("band multiplier must be positive, got %g", cfg.BandK)
	}
	win, err := window.NewAccumulator(cfg.Period)
	if err != nil {
		return nil, err
	}
	return &Bollinger{sampler: newSampler(cfg), period: cfg.Period, k: cfg.bandK(), win: win}, nil
}

func (b *Bollinger) Kind() string { return KindBollinger }

func (b *Bollinger) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := b.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		b.win.Push(v)
	}
	return b.Middle(), nil
}

// Middle is the window mean; the primary value.
func (b *Bollinger) Middle() series.Value {
	if !b.win.Full() {
		return series.None()
	}
	mean, err := b.win.Mean()
	if err != nil {
		return series.None()
	}
	return series.Some(mean)
}

// Upper is middle + k*stddev.
func (b *Bollinger) Upper() series.Value { return b.band(1) }

// Lower is middle - k*stddev.
func (b *Bollinger) Lower() series.Value { return b.band(-1) }

func (b *Bollinger) band(sign float64) series.Value {
	mid := b.Middle()
	if !mid.Valid {
		return series.None()
	}
	sd, err := b.win.StdDev()
	if err != nil {
		return series.None()
	}
	return series.Some(mid.Float + sign*b.k*sd)
}

func (b *Bollinger) WarmupRemaining() int { return b.period - b.win.Len() }

func (b *Bollinger) Reset() {
	b.sampler.reset()
	b.win.Reset()
}

// Snapshot serializes the state for checkpoint persistence.
func (b *Bollinger) Snapshot() Snapshot {
	snap := Snapshot{Kind: KindBollinger, Period: b.period, BandK: b.k, Window: b.win.Values()}
	b.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the state from a checkpoint.
func (b *Bollinger) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindBollinger, b.period); err != nil {
		return err
	}
	b.Reset()
	b.restoreFrom(snap)
	for _, v := range snap.Window {
		b.win.Push(v)
	}
	return nil
}
