// Package series defines the time-series substrate the indicator engine
// consumes: timestamped OHLCV bars, the optional-value type used for
// indicator outputs, and validation of the strictly-increasing timestamp
// invariant.
package series

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrEmptySeries is returned when a computation is requested over a series
// with no bars.
var ErrEmptySeries = errors.New("empty series")

// ErrNonMonotonicTimestamp is returned when a bar's timestamp does not
// strictly exceed that of the bar before it.
var ErrNonMonotonicTimestamp = errors.New("non-monotonic timestamp")

// Bar is one timestamped OHLCV observation. A bar marked Missing carries a
// valid timestamp but no usable prices; how it is treated is up to the
// consuming indicator's missing-data policy.
type Bar struct {
	TS      time.Time `json:"ts"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Missing bool      `json:"missing,omitempty"`
}

// Series is an ordered sequence of bars with strictly increasing timestamps.
type Series []Bar

// Validate checks the series invariants: non-empty, timestamps strictly
// increasing. The returned error wraps ErrEmptySeries or
// ErrNonMonotonicTimestamp.
func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(s); i++ {
		if !s[i].TS.After(s[i-1].TS) {
			return errors.Wrapf(ErrNonMonotonicTimestamp,
				"bar %d at %s does not advance past %s", i, s[i].TS.Format(time.RFC3339Nano), s[i-1].TS.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// Closes returns the close prices of all non-missing bars.
func (s Series) Closes() []float64 {
	out := make([]float64, 0, len(s))
	for _, b := range s {
		if b.Missing {
			continue
		}
		out = append(out, b.Close)
	}
	return out
}

// Value is an optional float64. Valid=false means "no value yet" (warm-up or
// missing input) and is the only representation of absence; NaN is reserved
// for legitimate floating-point results.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps a defined value.
func Some(f float64) Value { return Value{Float: f, Valid: true} }

// None is the absent value.
func None() Value { return Value{} }

// Point is one entry of an output series, aligned to an input bar.
type Point struct {
	TS    time.Time
	Value Value
}

// OutputSeries is an indicator's output, aligned 1:1 with the input series.
type OutputSeries []Point

// Defined returns the defined values of the output series, in order.
func (o OutputSeries) Defined() []float64 {
	out := make([]float64, 0, len(o))
	for _, p := range o {
		if p.Value.Valid {
			out = append(out, p.Value.Float)
		}
	}
	return out
}

// WarmupLen returns the number of leading points carrying no value.
func (o OutputSeries) WarmupLen() int {
	for i, p := range o {
		if p.Value.Valid {
			return i
		}
	}
	return len(o)
}

// Source selects which price field of a bar an indicator consumes.
type Source int

const (
	SourceClose Source = iota
	SourceOpen
	SourceHigh
	SourceLow
	SourceVolume
	SourceHL2  // (high+low)/2
	SourceHLC3 // (high+low+close)/3
	SourceOHLC4
)

// Apply extracts the source value from a bar.
func (src Source) Apply(b Bar) float64 {
	switch src {
	case SourceOpen:
		return b.Open
	case SourceHigh:
		return b.High
	case SourceLow:
		return b.Low
	case SourceVolume:
		return b.Volume
	case SourceHL2:
		return (b.High + b.Low) / 2
	case SourceHLC3:
		return (b.High + b.Low + b.Close) / 3
	case SourceOHLC4:
		return (b.Open + b.High + b.Low + b.Close) / 4
	default:
		return b.Close
	}
}

func (src Source) String() string {
	switch src {
	case SourceOpen:
		return "open"
	case SourceHigh:
		return "high"
	case SourceLow:
		return "low"
	case SourceVolume:
		return "volume"
	case SourceHL2:
		return "hl2"
	case SourceHLC3:
		return "hlc3"
	case SourceOHLC4:
		return "ohlc4"
	default:
		return "close"
	}
}

// ParseSource parses a source field name. Empty selects close.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "close":
		return SourceClose, nil
	case "open":
		return SourceOpen, nil
	case "high":
		return SourceHigh, nil
	case "low":
		return SourceLow, nil
	case "volume":
		return SourceVolume, nil
	case "hl2":
		return SourceHL2, nil
	case "hlc3":
		return SourceHLC3, nil
	case "ohlc4":
		return SourceOHLC4, nil
	default:
		return SourceClose, errors.Errorf("unknown source field %q", s)
	}
}
