// Package feed brings bars into the system: a CSV loader for historical
// files and a WebSocket client for live streams.
package feed

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tickcore/internal/series"
)

// csv columns; header order is flexible, names are not.
var requiredColumns = []string{"time", "open", "high", "low", "close"}

// LoadCSV reads an OHLCV series from a CSV file. The header must name time,
// open, high, low, close; volume is optional. The time column accepts RFC3339
// or unix seconds. A row with empty price fields becomes a missing bar. The
// resulting series is validated before it is returned.
func LoadCSV(path string) (series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader) (series.Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("csv header missing %q column", name)
		}
	}
	volIdx, hasVolume := cols["volume"]

	var out series.Series
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line+1)
		}
		line++

		ts, err := parseTime(rec[cols["time"]])
		if err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}

		if strings.TrimSpace(rec[cols["close"]]) == "" {
			out = append(out, series.Bar{TS: ts, Missing: true})
			continue
		}

		bar := series.Bar{TS: ts}
		for _, fld := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[fld.name]]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "csv line %d: %s", line, fld.name)
			}
			*fld.dst = v
		}
		if hasVolume && strings.TrimSpace(rec[volIdx]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[volIdx]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "csv line %d: volume", line)
			}
			bar.Volume = v
		}
		out = append(out, bar)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, errors.Errorf("unparseable time %q", s)
}
