package series

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats is a descriptive summary of a slice of values.
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summary computes descriptive statistics over xs. Returns a zero Stats for
// an empty slice. StdDev is the population standard deviation, matching the
// convention used by the window accumulator.
func Summary(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	variance := 0.0
	if len(xs) > 1 {
		// stat.Variance is the sample variance; rescale to population.
		variance = stat.Variance(xs, nil) * float64(len(xs)-1) / float64(len(xs))
	}
	if variance < 0 {
		variance = 0
	}
	return Stats{
		Count:  len(xs),
		Mean:   stat.Mean(xs, nil),
		StdDev: math.Sqrt(variance),
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
	}
}
