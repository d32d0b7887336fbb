package indicator

import "tickcore/internal/series"

// WMA is the linearly weighted moving average: the newest sample carries
// weight N, the oldest weight 1. The weighted numerator is maintained
// incrementally (wsum' = wsum - sum + N*v), so updates stay O(1) without
// rescanning the window.
type WMA struct {
	sampler
	period int
	buf    []float64
	idx    int
	count  int
	sum    float64
	wsum   float64
	denom  float64 // N(N+1)/2
}

// NewWMA constructs a weighted moving average state.
func NewWMA(cfg Config) (*WMA, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	n := cfg.Period
	return &WMA{
		sampler: newSampler(cfg),
		period:  n,
		buf:     make([]float64, n),
		denom:   float64(n) * float64(n+1) / 2,
	}, nil
}

func (w *WMA) Kind() string { return KindWMA }

func (w *WMA) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := w.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		w.push(v)
	}
	return w.value(), nil
}

func (w *WMA) push(v float64) {
	if w.count < w.period {
		// Warm-up: the new sample takes the next weight slot.
		w.count++
		w.wsum += float64(w.count) * v
		w.sum += v
		w.buf[w.idx] = v
		w.idx = (w.idx + 1) % w.period
		return
	}

	oldest := w.buf[w.idx]
	w.wsum += float64(w.period)*v - w.sum
	w.sum += v - oldest
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % w.period
}

func (w *WMA) value() series.Value {
	if w.count < w.period {
		return series.None()
	}
	return series.Some(w.wsum / w.denom)
}

func (w *WMA) WarmupRemaining() int { return w.period - w.count }

func (w *WMA) Reset() {
	w.sampler.reset()
	w.idx = 0
	w.count = 0
	w.sum = 0
	w.wsum = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}

// Snapshot serializes the WMA state for checkpoint persistence.
func (w *WMA) Snapshot() Snapshot {
	win := make([]float64, 0, w.count)
	start := w.idx - w.count
	for i := 0; i < w.count; i++ {
		win = append(win, w.buf[((start+i)%w.period+w.period)%w.period])
	}
	snap := Snapshot{Kind: KindWMA, Period: w.period, Window: win}
	w.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the WMA state from a checkpoint.
func (w *WMA) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindWMA, w.period); err != nil {
		return err
	}
	w.Reset()
	w.restoreFrom(snap)
	for _, v := range snap.Window {
		w.push(v)
	}
	return nil
}
