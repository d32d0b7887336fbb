package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/indicator"
	"tickcore/internal/metrics"
	"tickcore/internal/series"
)

// Prometheus metrics register globally, so the test binary creates them once.
var testMX = metrics.NewMetrics()

var base = time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSpecs() []Spec {
	return []Spec{
		{indicator.KindSMA, indicator.Config{Period: 3}},
		{indicator.KindEMA, indicator.Config{Period: 5}},
		{indicator.KindRSI, indicator.Config{Period: 3}},
	}
}

func mkBar(i int, close float64) series.Bar {
	return series.Bar{
		TS:    base.Add(time.Duration(i) * time.Minute),
		Open:  close,
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New([]Spec{{indicator.KindSMA, indicator.Config{Period: 0}}}, testLogger(), nil)
	assert.ErrorIs(t, err, indicator.ErrInvalidConfig)

	_, err = New([]Spec{{"vortex", indicator.Config{Period: 3}}}, testLogger(), nil)
	assert.ErrorIs(t, err, indicator.ErrUnknownIndicator)
}

func TestProcess_MatchesStandaloneStates(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	sma, _ := indicator.NewSMA(indicator.Config{Period: 3})
	ema, _ := indicator.NewEMA(indicator.Config{Period: 5})
	rsi, _ := indicator.NewRSI(indicator.Config{Period: 3})
	witnesses := []indicator.State{sma, ema, rsi}

	closes := []float64{10, 12, 11, 14, 13, 16}
	for i, c := range closes {
		b := mkBar(i, c)
		results, err := e.Process(InstrumentBar{Instrument: "RELIANCE", Bar: b})
		require.NoError(t, err)
		require.Len(t, results, 3)

		for j, w := range witnesses {
			want, err := w.Update(b)
			require.NoError(t, err)
			assert.Equal(t, want, results[j].Value, "bar %d indicator %d", i, j)
			assert.True(t, results[j].TS.Equal(b.TS))
			assert.Equal(t, "RELIANCE", results[j].Instrument)
		}
	}

	assert.Equal(t, []string{"sma_3", "ema_5", "rsi_3"},
		[]string{e.state["RELIANCE"].names[0], e.state["RELIANCE"].names[1], e.state["RELIANCE"].names[2]})
}

func TestProcess_InstrumentsAreIndependent(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	// Both instruments get the same bar stream; identical outputs, separate
	// clocks and windows.
	for i, c := range []float64{10, 20, 30} {
		b := mkBar(i, c)
		ra, err := e.Process(InstrumentBar{Instrument: "A", Bar: b})
		require.NoError(t, err)
		rb, err := e.Process(InstrumentBar{Instrument: "B", Bar: b})
		require.NoError(t, err)
		for j := range ra {
			assert.Equal(t, ra[j].Value, rb[j].Value)
		}
	}
	assert.Len(t, e.Instruments(), 2)
}

func TestProcess_RejectsNonMonotonicBar(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(0, 10)})
	require.NoError(t, err)
	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(0, 11)})
	assert.True(t, errors.Is(err, indicator.ErrNonMonotonicTimestamp))

	// The stale bar must not disturb state: the next valid bar produces the
	// same results as an uninterrupted run.
	witness, _ := New(testSpecs(), testLogger(), nil)
	witness.Process(InstrumentBar{Instrument: "A", Bar: mkBar(0, 10)})
	want, err := witness.Process(InstrumentBar{Instrument: "A", Bar: mkBar(1, 12)})
	require.NoError(t, err)
	got, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(1, 12)})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClock_TracksLastAcceptedBar(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	_, ok := e.Clock("A")
	assert.False(t, ok, "unknown instrument has no clock")

	for i, c := range []float64{10, 12, 11} {
		_, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
	}
	ts, ok := e.Clock("A")
	require.True(t, ok)
	assert.True(t, ts.Equal(mkBar(2, 0).TS))

	// A rejected bar does not move the clock.
	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(2, 13)})
	require.Error(t, err)
	ts, ok = e.Clock("A")
	require.True(t, ok)
	assert.True(t, ts.Equal(mkBar(2, 0).TS))
}

func TestClock_SurvivesSnapshotRestore(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)
	for i, c := range []float64{10, 12, 11, 14} {
		_, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
	}

	snap, err := e.Snapshot()
	require.NoError(t, err)
	restored, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, restored.RestoreSnapshot(snap))

	// The restored clock bounds the replay read from storage: only bars
	// strictly after it need to be fed back.
	ts, ok := restored.Clock("A")
	require.True(t, ok)
	assert.True(t, ts.Equal(mkBar(3, 0).TS))
}

func TestProcess_TracksWarmIndicators(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), testMX)
	require.NoError(t, err)

	warm := func() float64 { return testutil.ToFloat64(testMX.WarmIndicators) }

	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(0, 10)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, warm(), "ema_5 seeds from the first sample")

	for i, c := range []float64{12, 11} {
		_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i+1, c)})
		require.NoError(t, err)
	}
	assert.Equal(t, 2.0, warm(), "sma_3 warm after three bars")

	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(3, 14)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, warm(), "rsi_3 warm after four bars")
}

func TestRun_DrainsChannel(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	barCh := make(chan InstrumentBar, 8)
	resultCh := make(chan Result, 64)
	for i, c := range []float64{10, 12, 11, 14} {
		barCh <- InstrumentBar{Instrument: "A", Bar: mkBar(i, c)}
	}
	close(barCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.Run(ctx, barCh, resultCh)
	close(resultCh)

	count := 0
	for range resultCh {
		count++
	}
	assert.Equal(t, 4*len(testSpecs()), count)
}

func TestSnapshot_RoundTripThroughJSON(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)

	closes := []float64{10, 12, 11, 14, 13, 16, 15}
	for i, c := range closes {
		_, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
		_, err = e.Process(InstrumentBar{Instrument: "B", Bar: mkBar(i, c+5)})
		require.NoError(t, err)
	}

	snap, err := e.Snapshot()
	require.NoError(t, err)
	data, err := snap.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalSnapshot(data)
	require.NoError(t, err)

	restored, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, restored.RestoreSnapshot(decoded))

	// Continued updates must agree on both instruments.
	for i := len(closes); i < len(closes)+5; i++ {
		for _, inst := range []string{"A", "B"} {
			b := mkBar(i, float64(10+i))
			want, err := e.Process(InstrumentBar{Instrument: inst, Bar: b})
			require.NoError(t, err)
			got, err := restored.Process(InstrumentBar{Instrument: inst, Bar: b})
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for j := range want {
				assert.Equal(t, want[j].Value.Valid, got[j].Value.Valid, "%s bar %d ind %d", inst, i, j)
				if want[j].Value.Valid {
					assert.InDelta(t, want[j].Value.Float, got[j].Value.Float, 1e-9, "%s bar %d ind %d", inst, i, j)
				}
			}
		}
	}
}

func TestRestoreSnapshot_AddedSpecStartsCold(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)
	for i, c := range []float64{10, 12, 11, 14} {
		_, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
	}
	snap, err := e.Snapshot()
	require.NoError(t, err)

	wider := append(testSpecs(), Spec{indicator.KindWMA, indicator.Config{Period: 4}})
	restored, err := New(wider, testLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, restored.RestoreSnapshot(snap))

	results, err := restored.Process(InstrumentBar{Instrument: "A", Bar: mkBar(4, 13)})
	require.NoError(t, err)
	require.Len(t, results, 4)
	// The restored SMA(3) is warm; the new WMA(4) has seen one bar.
	assert.True(t, results[0].Value.Valid)
	assert.False(t, results[3].Value.Valid)
}

func TestRestorer_ChainFallsThrough(t *testing.T) {
	specs := testSpecs()

	// Build a valid checkpoint.
	src, err := New(specs, testLogger(), nil)
	require.NoError(t, err)
	for i, c := range []float64{10, 12, 11, 14} {
		_, err := src.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
	}
	snap, err := src.Snapshot()
	require.NoError(t, err)
	good, err := snap.Marshal()
	require.NoError(t, err)

	r := NewRestorer(specs, testLogger(), nil)
	ctx := context.Background()

	failing := SnapshotSource{Name: "redis", Load: func(context.Context) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}
	empty := SnapshotSource{Name: "empty", Load: func(context.Context) ([]byte, error) {
		return nil, nil
	}}
	corrupt := SnapshotSource{Name: "corrupt", Load: func(context.Context) ([]byte, error) {
		return []byte("{not json"), nil
	}}
	working := SnapshotSource{Name: "sqlite", Load: func(context.Context) ([]byte, error) {
		return good, nil
	}}

	e, err := r.Restore(ctx, failing, empty, corrupt, working)
	require.NoError(t, err)
	assert.Len(t, e.Instruments(), 1, "restored from the last source")

	// All sources exhausted: cold start.
	cold, err := r.Restore(ctx, failing, empty, corrupt)
	require.NoError(t, err)
	assert.Empty(t, cold.Instruments())
}

func TestReplayBars_SkipsBarsBeforeCheckpoint(t *testing.T) {
	e, err := New(testSpecs(), testLogger(), nil)
	require.NoError(t, err)
	for i, c := range []float64{10, 12, 11} {
		_, err := e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(i, c)})
		require.NoError(t, err)
	}

	// Replay overlaps the processed range by two bars.
	bars := series.Series{mkBar(1, 12), mkBar(2, 11), mkBar(3, 14), mkBar(4, 13)}
	n := ReplayBars(e, "A", bars)
	assert.Equal(t, 2, n)

	// Engine clock sits at bar 4 now.
	_, err = e.Process(InstrumentBar{Instrument: "A", Bar: mkBar(4, 99)})
	assert.True(t, errors.Is(err, indicator.ErrNonMonotonicTimestamp))
}
