package indicator

import (
	"time"

	"github.com/pkg/errors"

	"tickcore/internal/series"
)

// sampler is the per-state input front end shared by all indicators: it
// enforces strictly increasing timestamps and applies the configured source
// field and missing-data policy. Embedded by value in each concrete state.
type sampler struct {
	src    series.Source
	policy MissingPolicy

	lastTS  time.Time
	seen    bool
	prev    float64
	hasPrev bool
}

func newSampler(cfg Config) sampler {
	return sampler{src: cfg.Source, policy: cfg.Missing}
}

// checkTS rejects a bar that does not advance the clock. Nothing is mutated
// on rejection.
func (sp *sampler) checkTS(bar series.Bar) error {
	if sp.seen && !bar.TS.After(sp.lastTS) {
		return errors.Wrapf(ErrNonMonotonicTimestamp,
			"bar at %s does not advance past %s",
			bar.TS.Format(time.RFC3339Nano), sp.lastTS.Format(time.RFC3339Nano))
	}
	return nil
}

// observe validates the bar's timestamp, commits it, and resolves the input
// value per the missing-data policy. advance=false means the state must not
// consume the bar (skip: no window slot, no smoothing step).
func (sp *sampler) observe(bar series.Bar) (v float64, advance bool, err error) {
	if err := sp.checkTS(bar); err != nil {
		return 0, false, err
	}
	sp.lastTS, sp.seen = bar.TS, true

	if bar.Missing {
		if sp.policy == MissingHold && sp.hasPrev {
			return sp.prev, true, nil
		}
		return 0, false, nil
	}

	v = sp.src.Apply(bar)
	sp.prev, sp.hasPrev = v, true
	return v, true, nil
}

// observeBar is the multi-field variant used by indicators that consume the
// whole bar (atr, donchian). Missing bars are always skipped: there is no
// meaningful forward-fill for a full OHLC bar.
func (sp *sampler) observeBar(bar series.Bar) (advance bool, err error) {
	if err := sp.checkTS(bar); err != nil {
		return false, err
	}
	sp.lastTS, sp.seen = bar.TS, true
	return !bar.Missing, nil
}

// LastTS returns the timestamp of the last accepted bar; false before any
// bar has been accepted.
func (sp *sampler) LastTS() (time.Time, bool) {
	return sp.lastTS, sp.seen
}

func (sp *sampler) reset() {
	sp.lastTS = time.Time{}
	sp.seen = false
	sp.prev = 0
	sp.hasPrev = false
}

func (sp *sampler) snapshotInto(s *Snapshot) {
	if sp.seen {
		s.LastTS = sp.lastTS.UnixNano()
	}
	s.Seen = sp.seen
	s.PrevInput = sp.prev
	s.HasPrevInput = sp.hasPrev
}

func (sp *sampler) restoreFrom(s Snapshot) {
	sp.seen = s.Seen
	if s.Seen {
		sp.lastTS = time.Unix(0, s.LastTS).UTC()
	} else {
		sp.lastTS = time.Time{}
	}
	sp.prev = s.PrevInput
	sp.hasPrev = s.HasPrevInput
}
