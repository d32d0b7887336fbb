package indicator

import (
	"math"

	"tickcore/internal/series"
)

// ATR is the average true range: the true range of each bar (accounting for
// gaps against the previous close) under Wilder smoothing with an SMA seed.
// Consumes High, Low, and Close regardless of the configured source field;
// missing bars are always skipped.
type ATR struct {
	sampler
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR constructs an average true range state.
func NewATR(cfg Config) (*ATR, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	return &ATR{sampler: newSampler(cfg), period: cfg.Period}, nil
}

func (a *ATR) Kind() string { return KindATR }

func (a *ATR) Update(bar series.Bar) (series.Value, error) {
	advance, err := a.observeBar(bar)
	if err != nil {
		return series.None(), err
	}
	if !advance {
		return a.value(), nil
	}

	a.count++
	tr := bar.High - bar.Low
	if a.count > 1 {
		tr = math.Max(tr, math.Max(
			math.Abs(bar.High-a.prevClose),
			math.Abs(bar.Low-a.prevClose),
		))
	}
	a.prevClose = bar.Close

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return a.value(), nil
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
	return a.value(), nil
}

func (a *ATR) value() series.Value {
	if a.count < a.period {
		return series.None()
	}
	return series.Some(a.current)
}

func (a *ATR) WarmupRemaining() int {
	if a.count >= a.period {
		return 0
	}
	return a.period - a.count
}

func (a *ATR) Reset() {
	a.sampler.reset()
	a.count = 0
	a.prevClose = 0
	a.sum = 0
	a.current = 0
}

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() Snapshot {
	snap := Snapshot{
		Kind:    KindATR,
		Period:  a.period,
		Count:   a.count,
		Prev:    a.prevClose,
		SeedSum: a.sum,
		Value:   a.current,
	}
	a.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the ATR state from a checkpoint.
func (a *ATR) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindATR, a.period); err != nil {
		return err
	}
	a.restoreFrom(snap)
	a.count = snap.Count
	a.prevClose = snap.Prev
	a.sum = snap.SeedSum
	a.current = snap.Value
	return nil
}
