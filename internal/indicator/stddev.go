package indicator

import (
	"tickcore/internal/series"
	"tickcore/internal/window"
)

// StdDev is the rolling population standard deviation over a fixed window,
// computed by the accumulator's Welford updates.
type StdDev struct {
	sampler
	period int
	win    *window.Accumulator
}

// NewStdDev constructs a rolling standard deviation state.
func NewStdDev(cfg Config) (*StdDev, error) {
	if err := cfg.validatePeriod(); err != nil {
		return nil, err
	}
	win, err := window.NewAccumulator(cfg.Period)
	if err != nil {
		return nil, err
	}
	return &StdDev{sampler: newSampler(cfg), period: cfg.Period, win: win}, nil
}

func (s *StdDev) Kind() string { return KindStdDev }

func (s *StdDev) Update(bar series.Bar) (series.Value, error) {
	v, advance, err := s.observe(bar)
	if err != nil {
		return series.None(), err
	}
	if advance {
		s.win.Push(v)
	}
	return s.value(), nil
}

func (s *StdDev) value() series.Value {
	if !s.win.Full() {
		return series.None()
	}
	sd, err := s.win.StdDev()
	if err != nil {
		return series.None()
	}
	return series.Some(sd)
}

func (s *StdDev) WarmupRemaining() int { return s.period - s.win.Len() }

func (s *StdDev) Reset() {
	s.sampler.reset()
	s.win.Reset()
}

// Snapshot serializes the state for checkpoint persistence.
func (s *StdDev) Snapshot() Snapshot {
	snap := Snapshot{Kind: KindStdDev, Period: s.period, Window: s.win.Values()}
	s.snapshotInto(&snap)
	return snap
}

// Restore rebuilds the state from a checkpoint.
func (s *StdDev) Restore(snap Snapshot) error {
	if err := checkSnapshot(snap, KindStdDev, s.period); err != nil {
		return err
	}
	s.Reset()
	s.restoreFrom(snap)
	for _, v := range snap.Window {
		s.win.Push(v)
	}
	return nil
}
