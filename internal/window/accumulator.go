// Package window provides a bounded view over the most recent N observations
// with running aggregates: sum and mean in O(1), variance via Welford-style
// add/remove updates, and min/max via monotonic deques so every query is
// amortized O(1) regardless of eviction order.
package window

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInsufficientData is returned when an aggregate is queried before the
// accumulator holds enough samples to define it. Zero is a legitimate data
// value and is never used to signal "no data".
var ErrInsufficientData = errors.New("insufficient data")

// Accumulator maintains the last N pushed values and their aggregates.
// Aggregates are exactly consistent with the retained values after every
// Push; eviction and aggregate updates are a single step.
//
// Not safe for concurrent use.
type Accumulator struct {
	capacity int
	buf      []float64 // circular buffer, preallocated
	idx      int       // next write position
	count    int       // retained values, <= capacity
	pushes   uint64    // total pushes, used as sequence for the deques

	sum  float64
	mean float64 // Welford running mean over retained values
	m2   float64 // Welford sum of squared deviations

	minq monotonicDeque
	maxq monotonicDeque
}

// NewAccumulator creates an accumulator retaining the last capacity values.
// capacity must be >= 1.
func NewAccumulator(capacity int) (*Accumulator, error) {
	if capacity < 1 {
		return nil, errors.Errorf("window capacity must be >= 1, got %d", capacity)
	}
	return &Accumulator{
		capacity: capacity,
		buf:      make([]float64, capacity),
		minq:     newMonotonicDeque(lessMin),
		maxq:     newMonotonicDeque(lessMax),
	}, nil
}

// Push appends v, evicting the oldest retained value when the window is
// full. Returns the evicted value and whether an eviction happened.
func (a *Accumulator) Push(v float64) (evicted float64, ok bool) {
	if a.count == a.capacity {
		evicted = a.buf[a.idx]
		ok = true
		a.remove(evicted)
		a.minq.evict(a.pushes - uint64(a.capacity))
		a.maxq.evict(a.pushes - uint64(a.capacity))
	}

	a.buf[a.idx] = v
	a.idx = (a.idx + 1) % a.capacity
	if a.count < a.capacity {
		a.count++
	}
	a.add(v)
	a.minq.push(v, a.pushes)
	a.maxq.push(v, a.pushes)
	a.pushes++

	return evicted, ok
}

// add applies the Welford forward update.
func (a *Accumulator) add(v float64) {
	a.sum += v
	n := float64(a.count)
	delta := v - a.mean
	a.mean += delta / n
	a.m2 += delta * (v - a.mean)
}

// remove applies the Welford reverse update for an evicted value, going from
// count retained values to count-1.
func (a *Accumulator) remove(v float64) {
	a.sum -= v
	if a.count == 1 {
		a.count = 0
		a.mean = 0
		a.m2 = 0
		return
	}
	n := float64(a.count)
	oldMean := a.mean
	a.mean = (n*a.mean - v) / (n - 1)
	a.m2 -= (v - oldMean) * (v - a.mean)
	if a.m2 < 0 {
		a.m2 = 0 // floating-point guard; m2 is a sum of squares
	}
	a.count--
}

// Len returns the number of retained values.
func (a *Accumulator) Len() int { return a.count }

// Cap returns the window capacity.
func (a *Accumulator) Cap() int { return a.capacity }

// Full reports whether the window has reached capacity.
func (a *Accumulator) Full() bool { return a.count == a.capacity }

// Sum returns the sum of retained values. Zero for an empty accumulator.
func (a *Accumulator) Sum() float64 { return a.sum }

// Mean returns the arithmetic mean of retained values.
func (a *Accumulator) Mean() (float64, error) {
	if a.count == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "mean of empty window")
	}
	return a.sum / float64(a.count), nil
}

// Variance returns the population variance of retained values.
func (a *Accumulator) Variance() (float64, error) {
	if a.count == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "variance of empty window")
	}
	return a.m2 / float64(a.count), nil
}

// SampleVariance returns the n-1 variance; requires at least two values.
func (a *Accumulator) SampleVariance() (float64, error) {
	if a.count < 2 {
		return 0, errors.Wrap(ErrInsufficientData, "sample variance needs >= 2 values")
	}
	return a.m2 / float64(a.count-1), nil
}

// StdDev returns the population standard deviation of retained values.
func (a *Accumulator) StdDev() (float64, error) {
	v, err := a.Variance()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// Min returns the minimum retained value.
func (a *Accumulator) Min() (float64, error) {
	if a.count == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "min of empty window")
	}
	return a.minq.best(), nil
}

// Max returns the maximum retained value.
func (a *Accumulator) Max() (float64, error) {
	if a.count == 0 {
		return 0, errors.Wrap(ErrInsufficientData, "max of empty window")
	}
	return a.maxq.best(), nil
}

// Reset returns the accumulator to its freshly constructed state.
func (a *Accumulator) Reset() {
	a.idx = 0
	a.count = 0
	a.pushes = 0
	a.sum = 0
	a.mean = 0
	a.m2 = 0
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.minq.reset()
	a.maxq.reset()
}

// Values returns the retained values oldest first. Allocates; intended for
// snapshots and tests, not the hot path.
func (a *Accumulator) Values() []float64 {
	out := make([]float64, 0, a.count)
	start := a.idx - a.count
	for i := 0; i < a.count; i++ {
		out = append(out, a.buf[((start+i)%a.capacity+a.capacity)%a.capacity])
	}
	return out
}
