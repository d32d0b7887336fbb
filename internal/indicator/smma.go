package indicator

import "tickcore/internal/series"

// SMMA is the smoothed (Wilder) moving average: a simple-average seed over
// the period, then value = (prev*(period-1) + sample) / period. The seed
// convention is fixed — Wilder smoothing is defined with the SMA seed, so
// Config.Seed does not apply here.
type SMMA struct {
	sampler
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA constructs a smoothed moving average state.
func NewSMMA(cfg Config) (*SMMA, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	return &SMMA{sampler: newSampler(cfg), period: cfg.Period}, nil
}

func (s *SMMA) Kind() string { return KindSMMA }

func (s *SMMA) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := s.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if !advance {
		return s.value(), nil
	}

	s.count++
	if s.count <= s.period {
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return s.value(), nil
	}

	p := float64(s.period)
	s.current = (s.current*(p-1) + v) / p
	return s.value(), nil
}

func (s *SMMA) value() series.Value {
	if s.count < s.period {
		return series.None()
	}
	return series.Some(s.current)
}

func (s *SMMA) WarmupRemaining() int {
	if s.count >= s.period {
		return 0
	}
	return s.period - s.count
}

func (s *SMMA) Reset() {
	s.sampler.reset()
	s.count = 0
	s.sum = 0
	s.current = 0
}

// Snapshot serializes the SMMA state for checkpoint persistence.
func (s *SMMA) Snapshot() Snapshot {
	snap := Snapshot{
		Kind:    KindSMMA,
		Period:  s.period,
		Count:   s.count,
		SeedSum: s.sum,
		Value:   s.current,
	}
	s.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the SMMA state from a checkpoint.
func (s *SMMA) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindSMMA, s.period); err != nil {
		return err
	}
	s.restoreFrom(snap)
	s.count = snap.Count
	s.sum = snap.SeedSum
	s.current = snap.Value
	return nil
}
