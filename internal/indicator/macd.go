package indicator

import "tickcore/internal/series"

// MACD is the moving average convergence/divergence composite: a fast and a
// slow EMA over the source, their difference as the line, and a signal EMA
// over the line. Sub-states advance in a fixed order on every update — fast,
// slow, then signal once the line is defined. The line is the primary value;
// Signal and Histogram expose the rest.
type MACD struct {
	sampler
	fastPeriod, slowPeriod, signalPeriod int

	fast   ewma
	slow   ewma
	signal ewma
}

// NewMACD constructs a MACD state. Fast must be shorter than slow.
func NewMACD(cfg Config) (*MACD, error) {
	if err := cfg.validateAlpha(); err != nil {
		return nil, err
	}
	fast, slow, signal := cfg.macdPeriods()
	if fast < 1 || slow < 1 || signal < 1 {
		return nil, wrapInvalidf("macd periods must be >= 1, got %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return nil, wrapInvalidf("macd fast period %d must be shorter than slow period %d", fast, slow)
	}
	return &MACD{
		sampler:      newSampler(cfg),
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		fast:         newEWMA(cfg.alpha(fast), fast, cfg.Seed),
		slow:         newEWMA(cfg.alpha(slow), slow, cfg.Seed),
		signal:       newEWMA(cfg.alpha(signal), signal, cfg.Seed),
	}, nil
}

func (m *MACD) Kind() string { return KindMACD }

func (m *MACD) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := m.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		m.fast.update(v)
		m.slow.update(v)
		if m.fast.ready() && m.slow.ready() {
			m.signal.update(m.fast.value - m.slow.value)
		}
	}
	return m.Line(), nil
}

// Line is fast EMA minus slow EMA; the primary value.
func (m *MACD) Line() series.Value {
	if !m.fast.ready() || !m.slow.ready() {
		return series.None()
	}
	return series.Some(m.fast.value - m.slow.value)
}

// Signal is the EMA of the line.
func (m *MACD) Signal() series.Value {
	if !m.signal.ready() {
		return series.None()
	}
	return series.Some(m.signal.value)
}

// Histogram is line minus signal.
func (m *MACD) Histogram() series.Value {
	line, sig := m.Line(), m.Signal()
	if !line.Valid || !sig.Valid {
		return series.None()
	}
	return series.Some(line.Float - sig.Float)
}

func (m *MACD) WarmupRemaining() int {
	r := m.fast.warmupRemaining()
	if s := m.slow.warmupRemaining(); s > r {
		r = s
	}
	return r
}

func (m *MACD) Reset() {
	m.sampler.reset()
	m.fast.reset()
	m.slow.reset()
	m.signal.reset()
}

// Snapshot serializes the MACD state, one sub-snapshot per smoother.
func (m *MACD) Snapshot() Snapshot {
	snap := Snapshot{
		Kind: KindMACD,
		Subs: []Snapshot{
			{Kind: "macd.fast", Period: m.fastPeriod, Count: m.fast.count, SeedSum: m.fast.sum, Value: m.fast.value},
			{Kind: "macd.slow", Period: m.slowPeriod, Count: m.slow.count, SeedSum: m.slow.sum, Value: m.slow.value},
			{Kind: "macd.signal", Period: m.signalPeriod, Count: m.signal.count, SeedSum: m.signal.sum, Value: m.signal.value},
		},
	}
	m.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the MACD state from a checkpoint.
func (m *MACD) Restore(snap Snapshot) error {
	if snap.Kind != KindMACD || len(snap.Subs) != 3 {
		return wrapInvalidf("macd snapshot mismatch: kind=%q subs=%d", snap.Kind, len(snap.Subs))
	}
	m.restoreFrom(snap)
	for i, w := range []*ewma{&m.fast, &m.slow, &m.signal} {
		sub := snap.Subs[i]
		w.count = sub.Count
		w.sum = sub.SeedSum
		w.value = sub.Value
	}
	return nil
}
