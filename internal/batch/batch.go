// Package batch evaluates indicators over full historical series. It folds
// the same incremental state machine the streaming path uses, so batch and
// streaming outputs are observationally identical — batch mode is a
// convenience over already-resident data, not a different algorithm.
package batch

import (
	"github.com/pkg/errors"

	"tickcore/internal/indicator"
	"tickcore/internal/series"
)

// Job names one indicator evaluation: a registry kind plus its config.
type Job struct {
	Kind   string
	Config indicator.Config
}

// Name returns the job's display name, e.g. "sma_20".
func (j Job) Name() string { return indicator.SpecName(j.Kind, j.Config) }

// Evaluate computes one indicator over the whole series. The output is
// aligned 1:1 with the input; points before warm-up completes carry no
// value. The series is validated first, so per-bar updates cannot fail on
// timestamps.
func Evaluate(s series.Series, kind string, cfg indicator.Config) (series.OutputSeries, error) {
	return EvaluateWith(indicator.Default(), s, kind, cfg)
}

// EvaluateWith is Evaluate against an explicit registry.
func EvaluateWith(reg *indicator.Registry, s series.Series, kind string, cfg indicator.Config) (series.OutputSeries, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	st, err := reg.New(kind, cfg)
	if err != nil {
		return nil, err
	}

	out := make(series.OutputSeries, 0, len(s))
	for i, bar := range s {
		v, err := st.Update(bar)
		if err != nil {
			return nil, errors.Wrapf(err, "bar %d", i)
		}
		out = append(out, series.Point{TS: bar.TS, Value: v})
	}
	return out, nil
}

// EvaluateAll runs several independent jobs over one series, one fresh state
// per job. Results are keyed by job name.
func EvaluateAll(s series.Series, jobs []Job) (map[string]series.OutputSeries, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]series.OutputSeries, len(jobs))
	for _, job := range jobs {
		res, err := Evaluate(s, job.Kind, job.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s", job.Name())
		}
		out[job.Name()] = res
	}
	return out, nil
}

// Report summarises an output series for human consumption.
type Report struct {
	Points  int
	Defined int
	Warmup  int // leading points without a value
	Stats   series.Stats
}

// Summarize builds a Report over an output series.
func Summarize(out series.OutputSeries) Report {
	defined := out.Defined()
	return Report{
		Points:  len(out),
		Defined: len(defined),
		Warmup:  out.WarmupLen(),
		Stats:   series.Summary(defined),
	}
}
