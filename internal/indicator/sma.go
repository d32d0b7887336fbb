package indicator

import (
	"tickcore/internal/window"

	"tickcore/internal/series"
)

// SMA is the simple moving average over a fixed window. O(1) per update via
// the window accumulator's running sum.
type SMA struct {
	sampler
	period int
	win    *window.Accumulator
}

// NewSMA constructs a simple moving average state.
func NewSMA(cfg Config) (*SMA, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	win, err := window.NewAccumulator(cfg.Period)
	if err != nil {
		return nil, err
	}
	return &SMA{sampler: newSampler(cfg), period: cfg.Period, win: win}, nil
}

func (s *SMA) Kind() string { return KindSMA }

func (s *SMA) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := s.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		s.win.Push(v)
	}
	return s.value(), nil
}

func (s *SMA) value() series.Value {
	if !s.win.Full() {
		return series.None()
	}
	mean, err := s.win.Mean()
	if err != nil {
		return series.None()
	}
	return series.Some(mean)
}

func (s *SMA) WarmupRemaining() int { return s.period - s.win.Len() }

func (s *SMA) Reset() {
	s.sampler.reset()
	s.win.Reset()
}

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *SMA) Snapshot() Snapshot {
	snap := Snapshot{Kind: KindSMA, Period: s.period, Window: s.win.Values()}
	s.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the SMA state from a checkpoint.
func (s *SMA) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindSMA, s.period); err != nil {
		return err
	}
	s.Reset()
	s.restoreFrom(snap)
	for _, v := range snap.Window {
		s.win.Push(v)
	}
	return nil
}
