package indicator

import (
	"tickcore/internal/series"
	"tickcore/internal/window"
)

// Donchian is the min/max channel over a fixed window: the upper band is the
// highest high, the lower band the lowest low, the middle their average. The
// middle band is the primary value. The monotonic deques inside the window
// accumulators keep both extremes O(1) amortized.
type Donchian struct {
	sampler
	period int
	highs  *window.Accumulator
	lows   *window.Accumulator
}

// NewDonchian constructs a Donchian channel state.
func NewDonchian(cfg Config) (*Donchian, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	highs, err := window.NewAccumulator(cfg.Period)
	if err != nil {
		return nil, err
	}
	lows, err := window.NewAccumulator(cfg.Period)
	if err != nil {
		return nil, err
	}
	return &Donchian{sampler: newSampler(cfg), period: cfg.Period, highs: highs, lows: lows}, nil
}

func (d *Donchian) Kind() string { return KindDonchian }

func (d *Donchian) Update(bar series.Bar) (series.Value, error) {
	advance, err := d.observeBar(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		d.highs.Push(bar.High)
		d.lows.Push(bar.Low)
	}
	return d.Middle(), nil
}

// Upper is the highest high in the window.
func (d *Donchian) Upper() series.Value {
	if !d.highs.Full() {
		return series.None()
	}
	mx, err := d.highs.Max()
	if err != nil {
		return series.None()
	}
	return series.Some(mx)
}

// Lower is the lowest low in the window.
func (d *Donchian) Lower() series.Value {
	if !d.lows.Full() {
		return series.None()
	}
	mn, err := d.lows.Min()
	if err != nil {
		return series.None()
	}
	return series.Some(mn)
}

// Middle is the average of the bands; the primary value.
func (d *Donchian) Middle() series.Value {
	up, lo := d.Upper(), d.Lower()
	if !up.Valid || !lo.Valid {
		return series.None()
	}
	return series.Some((up.Float + lo.Float) / 2)
}

func (d *Donchian) WarmupRemaining() int { return d.period - d.highs.Len() }

func (d *Donchian) Reset() {
	d.sampler.reset()
	d.highs.Reset()
	d.lows.Reset()
}

// Snapshot serializes the state for checkpoint persistence.
func (d *Donchian) Snapshot() Snapshot {
	snap := Snapshot{
		Kind:       KindDonchian,
		Period:     d.period,
		HighWindow: d.highs.Values(),
		LowWindow:  d.lows.Values(),
	}
	d.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the state from a checkpoint.
func (d *Donchian) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindDonchian, d.period); err != nil {
		return err
	}
	d.Reset()
	d.restoreFrom(snap)
	for _, v := range snap.HighWindow {
		d.highs.Push(v)
	}
	for _, v := range snap.LowWindow {
		d.lows.Push(v)
	}
	return nil
}
