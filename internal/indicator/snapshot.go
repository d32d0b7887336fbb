package indicator

import "github.com/pkg/errors"

// Snapshottable is implemented by states that support exact checkpoint and
// restore of their accumulated history. All built-in indicators do.
type Snapshottable interface {
	State
	Snapshot() Snapshot
	Restore(snap Snapshot) error
}

// Snapshot holds the serialized state of a single indicator instance as a
// tagged flat struct; unused fields stay at their zero value per kind.
type Snapshot struct {
	Kind   string  `json:"kind"`
	Period int     `json:"period,omitempty"`
	BandK  float64 `json:"band_k,omitempty"`

	// Input front end: last accepted timestamp and previous input value.
	LastTS       int64   `json:"last_ts,omitempty"`
	Seen         bool    `json:"seen,omitempty"`
	PrevInput    float64 `json:"prev_input,omitempty"`
	HasPrevInput bool    `json:"has_prev_input,omitempty"`

	// Window family: retained values, oldest first.
	Window     []float64 `json:"window,omitempty"`
	HighWindow []float64 `json:"high_window,omitempty"`
	LowWindow  []float64 `json:"low_window,omitempty"`

	// Recursive family.
	Count   int     `json:"count,omitempty"`
	SeedSum float64 `json:"seed_sum,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Prev    float64 `json:"prev,omitempty"` // rsi previous input / atr previous close
	AvgGain float64 `json:"avg_gain,omitempty"`
	AvgLoss float64 `json:"avg_loss,omitempty"`

	// Composites: one sub-snapshot per component, in documented order.
	Subs []Snapshot `json:"subs,omitempty"`
}

// checkSnapshot guards a restore against a snapshot taken from a different
// kind or period.
func checkSnapshot(snap Snapshot, kind string, period int) error {
	if snap.Kind != kind || snap.Period != period {
		return errors.Wrapf(ErrInvalidConfig,
			"snapshot mismatch: have %s/%d, snapshot is %s/%d", kind, period, snap.Kind, snap.Period)
	}
	return nil
}

func wrapInvalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}
