package indicator

import "tickcore/internal/series"

// RSI is the relative strength index with Wilder's smoothing: average gains
// and losses are SMA-seeded over the first period deltas, then smoothed with
// avg = (prev*(period-1) + x) / period. O(1) per update, no history scans.
// The flat-series edge (avgLoss == 0) yields 100 per Wilder's convention.
type RSI struct {
	sampler
	period  int
	count   int
	prev    float64
	avgGain float64
	avgLoss float64
	current float64
}

// NewRSI constructs a relative strength index state.
func NewRSI(cfg Config) (*RSI, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	return &RSI{sampler: newSampler(cfg), period: cfg.Period}, nil
}

func (r *RSI) Kind() string { return KindRSI }

func (r *RSI) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := r.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if !advance {
		return r.value(), nil
	}

	r.count++
	if r.count == 1 {
		// First sample only anchors the delta chain.
		r.prev = v
		return series.None(), nil
	}

	delta := v - r.prev
	r.prev = v

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return r.value(), nil
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFromAverages(r.avgGain, r.avgLoss)
	return r.value(), nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func (r *RSI) value() series.Value {
	if r.count <= r.period {
		return series.None()
	}
	return series.Some(r.current)
}

func (r *RSI) WarmupRemaining() int {
	if r.count > r.period {
		return 0
	}
	return r.period + 1 - r.count
}

func (r *RSI) Reset() {
	r.sampler.reset()
	r.count = 0
	r.prev = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = 0
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() Snapshot {
	snap := Snapshot{
		Kind:    KindRSI,
		Period:  r.period,
		Count:   r.count,
		Prev:    r.prev,
		AvgGain: r.avgGain,
		AvgLoss: r.avgLoss,
		Value:   r.current,
	}
	r.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the RSI state from a checkpoint.
func (r *RSI) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindRSI, r.period); err != nil {
		return err
	}
	r.restoreFrom(snap)
	r.count = snap.Count
	r.prev = snap.Prev
	r.avgGain = snap.AvgGain
	r.avgLoss = snap.AvgLoss
	r.current = snap.Value
	return nil
}
