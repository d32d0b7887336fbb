// Package indicator provides incremental technical indicator state machines
// over bar data. Every indicator implements the State interface: feed bars
// one at a time, read back an optional value that stays undefined until the
// indicator's warm-up completes. Batch evaluation folds the same state over
// a full series, so both paths share one recurrence.
package indicator

import (
	"strings"

	"github.com/pkg/errors"

	"tickcore/internal/series"
)

// Typed error kinds. Callers match with errors.Is; wrapped context carries
// the specifics.
var (
	ErrInvalidConfig         = errors.New("invalid indicator configuration")
	ErrUnknownIndicator      = errors.New("unknown indicator")
	ErrNonMonotonicTimestamp = series.ErrNonMonotonicTimestamp
)

// State is one live indicator instance. Update feeds the next bar and
// returns the indicator's value, which is invalid until warm-up completes.
// Update is not reentrant and carries no synchronization: a State is owned
// by exactly one goroutine at a time.
type State interface {
	// Kind returns the registry kind, e.g. "sma".
	Kind() string

	// Update feeds a bar and returns the current value. A bar whose
	// timestamp does not strictly exceed the previously accepted one is
	// rejected with ErrNonMonotonicTimestamp and leaves the state
	// unchanged, so the caller may retry with corrected input.
	Update(bar series.Bar) (series.Value, error)

	// Reset returns the state to its construction-time condition.
	Reset()

	// WarmupRemaining returns how many further bars are needed before the
	// value becomes defined. Zero once warm.
	WarmupRemaining() int
}

// MissingPolicy decides how a bar marked Missing is treated.
type MissingPolicy int

const (
	// MissingSkip ignores the bar entirely: no window slot is consumed, no
	// smoothing step runs, the current value is re-emitted. The default.
	MissingSkip MissingPolicy = iota
	// MissingHold forward-fills the previous input value and processes it
	// as a normal sample. Falls back to skip before any input was seen,
	// and for indicators consuming multiple bar fields (atr, donchian),
	// where a forward-filled bar is ill-defined.
	MissingHold
)

// ParseMissingPolicy parses a policy name; empty selects skip.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return MissingSkip, nil
	case "hold":
		return MissingHold, nil
	default:
		return MissingSkip, errors.Wrapf(ErrInvalidConfig, "unknown missing-data policy %q", s)
	}
}

// SeedMode selects how exponential indicators produce their first value.
type SeedMode int

const (
	// SeedFirst seeds from the first sample: output defined immediately.
	// The default.
	SeedFirst SeedMode = iota
	// SeedSMA warms up with a simple average over Period samples before the
	// recurrence takes over.
	SeedSMA
)

// ParseSeedMode parses a seed mode name; empty selects first-sample seeding.
func ParseSeedMode(s string) (SeedMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return SeedFirst, nil
	case "sma":
		return SeedSMA, nil
	default:
		return SeedFirst, errors.Wrapf(ErrInvalidConfig, "unknown seed mode %q", s)
	}
}

// Config is the immutable parameter set of one indicator instance. It is
// validated once at construction; invalid values are rejected, never
// clamped. Zero values select documented defaults where one exists.
type Config struct {
	// Period is the window length or smoothing period.
	Period int
	// Alpha optionally overrides the smoothing coefficient of exponential
	// indicators; must lie in (0,1]. Zero derives 2/(Period+1).
	Alpha float64
	// Source selects the bar field consumed; close by default.
	Source series.Source
	// Missing is the missing-data policy; skip by default.
	Missing MissingPolicy
	// Seed is the exponential seeding convention; first-sample by default.
	Seed SeedMode
	// BandK is the Bollinger band width multiplier; zero selects 2.
	BandK float64
	// Fast, Slow, Signal are the MACD periods; zero selects 12/26/9.
	Fast, Slow, Signal int
}

func (c Config) validatePeriod() error {
	if c.Period < 1 {
		return errors.Wrapf(ErrInvalidConfig, "period must be >= 1, got %d", c.Period)
	}
	return nil
}

func (c Config) validateAlpha() error {
	if c.Alpha != 0 && (c.Alpha <= 0 || c.Alpha > 1) {
		return errors.Wrapf(ErrInvalidConfig, "alpha must be in (0,1], got %g", c.Alpha)
	}
	return nil
}

// bandK returns the effective Bollinger multiplier.
func (c Config) bandK() float64 {
	if c.BandK == 0 {
		return 2
	}
	return c.BandK
}

// macdPeriods returns the effective fast/slow/signal periods.
func (c Config) macdPeriods() (fast, slow, signal int) {
	fast, slow, signal = c.Fast, c.Slow, c.Signal
	if fast == 0 {
		fast = 12
	}
	if slow == 0 {
		slow = 26
	}
	if signal == 0 {
		signal = 9
	}
	return fast, slow, signal
}

// alpha returns the effective smoothing coefficient for the given period.
func (c Config) alpha(period int) float64 {
	if c.Alpha != 0 {
		return c.Alpha
	}
	return 2.0 / (float64(period) + 1.0)
}
