package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/series"
)

var testBase = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

// bar builds a close-driven bar at minute offset i.
func bar(i int, close float64) series.Bar {
	return series.Bar{
		TS:    testBase.Add(time.Duration(i) * time.Minute),
		Open:  close,
		High:  close + 0.5,
		Low:   close - 0.5,
		Close: close,
	}
}

func missingBar(i int) series.Bar {
	return series.Bar{TS: testBase.Add(time.Duration(i) * time.Minute), Missing: true}
}

// feed pushes closes through a state and collects the outputs.
func feed(t *testing.T, st State, closes ...float64) []series.Value {
	t.Helper()
	out := make([]series.Value, 0, len(closes))
	for i, c := range closes {
		v, err := st.Update(bar(i, c))
		require.NoError(t, err, "bar %d", i)
		out = append(out, v)
	}
	return out
}

func assertValues(t *testing.T, got []series.Value, want []series.Value, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Valid, got[i].Valid, "output %d validity", i)
		if want[i].Valid {
			assert.InDelta(t, want[i].Float, got[i].Float, tol, "output %d", i)
		}
	}
}

func none() series.Value          { return series.None() }
func some(f float64) series.Value { return series.Some(f) }

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_WarmupAndValues(t *testing.T) {
	// Window 3 over [1,2,3,4,5]: first two undefined, then 2, 3, 4.
	sma, err := NewSMA(Config{Period: 3})
	require.NoError(t, err)

	got := feed(t, sma, 1, 2, 3, 4, 5)
	assertValues(t, got, []series.Value{none(), none(), some(2), some(3), some(4)}, 1e-12)
}

func TestSMA_WarmupRemaining(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 3})
	assert.Equal(t, 3, sma.WarmupRemaining())
	sma.Update(bar(0, 10))
	assert.Equal(t, 2, sma.WarmupRemaining())
	sma.Update(bar(1, 11))
	sma.Update(bar(2, 12))
	assert.Equal(t, 0, sma.WarmupRemaining())
	sma.Update(bar(3, 13))
	assert.Equal(t, 0, sma.WarmupRemaining())
}

func TestSMA_SourceField(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 2, Source: series.SourceHigh})
	sma.Update(bar(0, 10)) // high 10.5
	v, err := sma.Update(bar(1, 20))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 15.5, v.Float, 1e-12) // (10.5+20.5)/2
}

// ────────────────────────────────────────────────────────────
// WMA
// ────────────────────────────────────────────────────────────

func TestWMA_HandCalculated(t *testing.T) {
	// WMA(3) weights 1,2,3 oldest→newest, denominator 6.
	// [1,2,3]   → (1+4+9)/6  = 2.3333
	// [2,3,4]   → (2+6+12)/6 = 3.3333
	// [3,4,5]   → (3+8+15)/6 = 4.3333
	wma, err := NewWMA(Config{Period: 3})
	require.NoError(t, err)

	got := feed(t, wma, 1, 2, 3, 4, 5)
	assertValues(t, got, []series.Value{
		none(), none(), some(14.0 / 6), some(20.0 / 6), some(26.0 / 6),
	}, 1e-12)
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_SeedFirst(t *testing.T) {
	// alpha=0.5 seeded from the first sample: [10,20] → [10,15].
	ema, err := NewEMA(Config{Period: 3, Alpha: 0.5, Seed: SeedFirst})
	require.NoError(t, err)

	got := feed(t, ema, 10, 20)
	assertValues(t, got, []series.Value{some(10), some(15)}, 1e-12)
}

func TestEMA_SeedSMA(t *testing.T) {
	// EMA(3) multiplier 0.5, SMA seed over first 3 samples:
	// seed = (100+102+104)/3 = 102; then 103*.5+102*.5 = 102.5;
	// then 105*.5+102.5*.5 = 103.75.
	ema, err := NewEMA(Config{Period: 3, Seed: SeedSMA})
	require.NoError(t, err)

	got := feed(t, ema, 100, 102, 104, 103, 105)
	assertValues(t, got, []series.Value{
		none(), none(), some(102), some(102.5), some(103.75),
	}, 1e-9)
}

func TestEMA_InvalidAlpha(t *testing.T) {
	for _, alpha := range []float64{-0.5, 1.5, 2} {
		_, err := NewEMA(Config{Period: 3, Alpha: alpha})
		assert.ErrorIs(t, err, ErrInvalidConfig, "alpha %g", alpha)
	}
	// Alpha of exactly 1 is legal: the EMA tracks the input.
	_, err := NewEMA(Config{Period: 3, Alpha: 1})
	assert.NoError(t, err)
}

// ────────────────────────────────────────────────────────────
// SMMA (Wilder smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_HandCalculated(t *testing.T) {
	// SMMA(3): seed (100+102+104)/3 = 102, then
	// (102*2+103)/3 = 102.3333, (102.3333*2+105)/3 = 103.2222.
	smma, err := NewSMMA(Config{Period: 3})
	require.NoError(t, err)

	got := feed(t, smma, 100, 102, 104, 103, 105)
	assertValues(t, got, []series.Value{
		none(), none(), some(102), some(102.0 + 1.0/3), some(929.0 / 9),
	}, 1e-3)
}

// ────────────────────────────────────────────────────────────
// RSI (Wilder's method)
// ────────────────────────────────────────────────────────────

func TestRSI_HandCalculated(t *testing.T) {
	// RSI(5) over 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84.
	// First RSI after 6 samples: avgGain = 1.56/5, avgLoss = 0.73/5 → 68.112.
	// Then Wilder smoothing: 72.219, 76.658, 81.509.
	rsi, err := NewRSI(Config{Period: 5})
	require.NoError(t, err)

	closes := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	got := feed(t, rsi, closes...)

	for i := 0; i < 5; i++ {
		assert.False(t, got[i].Valid, "output %d should be warm-up", i)
	}
	want := []float64{68.112, 72.219, 76.658, 81.509}
	for i, w := range want {
		require.True(t, got[5+i].Valid)
		assert.InDelta(t, w, got[5+i].Float, 0.2, "rsi output %d", 5+i)
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi, _ := NewRSI(Config{Period: 5})
	var last series.Value
	for i := 0; i < 10; i++ {
		last, _ = rsi.Update(bar(i, 100+float64(i)))
	}
	require.True(t, last.Valid)
	assert.InDelta(t, 100, last.Float, 1e-9)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi, _ := NewRSI(Config{Period: 5})
	var last series.Value
	for i := 0; i < 10; i++ {
		last, _ = rsi.Update(bar(i, 200-float64(i)))
	}
	require.True(t, last.Valid)
	assert.InDelta(t, 0, last.Float, 1e-9)
}

// ────────────────────────────────────────────────────────────
// StdDev / Bollinger
// ────────────────────────────────────────────────────────────

func TestStdDev_HandCalculated(t *testing.T) {
	// Population stddev of {1,2,3} is sqrt(2/3).
	sd, err := NewStdDev(Config{Period: 3})
	require.NoError(t, err)

	got := feed(t, sd, 1, 2, 3)
	require.True(t, got[2].Valid)
	assert.InDelta(t, math.Sqrt(2.0/3.0), got[2].Float, 1e-12)
}

func TestBollinger_Bands(t *testing.T) {
	boll, err := NewBollinger(Config{Period: 3, BandK: 2})
	require.NoError(t, err)

	feed(t, boll, 1, 2, 3)
	mid, up, lo := boll.Middle(), boll.Upper(), boll.Lower()
	require.True(t, mid.Valid && up.Valid && lo.Valid)

	sd := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, 2, mid.Float, 1e-12)
	assert.InDelta(t, 2+2*sd, up.Float, 1e-12)
	assert.InDelta(t, 2-2*sd, lo.Float, 1e-12)
}

func TestBollinger_NegativeBandK(t *testing.T) {
	_, err := NewBollinger(Config{Period: 3, BandK: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ────────────────────────────────────────────────────────────
// Donchian
// ────────────────────────────────────────────────────────────

func TestDonchian_Channel(t *testing.T) {
	d, err := NewDonchian(Config{Period: 2})
	require.NoError(t, err)

	mk := func(i int, high, low float64) series.Bar {
		return series.Bar{TS: testBase.Add(time.Duration(i) * time.Minute), High: high, Low: low, Close: (high + low) / 2}
	}

	v, err := d.Update(mk(0, 10, 8))
	require.NoError(t, err)
	assert.False(t, v.Valid)

	v, err = d.Update(mk(1, 11, 9))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 9.5, v.Float, 1e-12) // (11+8)/2
	assert.InDelta(t, 11, d.Upper().Float, 1e-12)
	assert.InDelta(t, 8, d.Lower().Float, 1e-12)

	v, err = d.Update(mk(2, 9, 7))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 9, v.Float, 1e-12) // (11+7)/2
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_HandCalculated(t *testing.T) {
	atr, err := NewATR(Config{Period: 2})
	require.NoError(t, err)

	mk := func(i int, high, low, close float64) series.Bar {
		return series.Bar{TS: testBase.Add(time.Duration(i) * time.Minute), High: high, Low: low, Close: close}
	}

	// TRs: 2, 2 (seed → 2), 4 (→ (2+4)/2 = 3), 2 (→ (3+2)/2 = 2.5).
	v, _ := atr.Update(mk(0, 10, 8, 9))
	assert.False(t, v.Valid)

	v, _ = atr.Update(mk(1, 11, 9, 10))
	require.True(t, v.Valid)
	assert.InDelta(t, 2, v.Float, 1e-12)

	v, _ = atr.Update(mk(2, 14, 10, 12))
	assert.InDelta(t, 3, v.Float, 1e-12)

	v, _ = atr.Update(mk(3, 13, 11, 12))
	assert.InDelta(t, 2.5, v.Float, 1e-12)
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_MatchesComposedEMAs(t *testing.T) {
	// The line must equal fast EMA minus slow EMA computed independently.
	cfg := Config{Fast: 3, Slow: 6, Signal: 4, Seed: SeedFirst}
	macd, err := NewMACD(cfg)
	require.NoError(t, err)

	fast, _ := NewEMA(Config{Period: 3, Seed: SeedFirst})
	slow, _ := NewEMA(Config{Period: 6, Seed: SeedFirst})

	closes := []float64{10, 11, 13, 12, 14, 16, 15, 17, 18, 16}
	for i, c := range closes {
		b := bar(i, c)
		line, err := macd.Update(b)
		require.NoError(t, err)
		fv, _ := fast.Update(b)
		sv, _ := slow.Update(b)

		require.True(t, line.Valid && fv.Valid && sv.Valid)
		assert.InDelta(t, fv.Float-sv.Float, line.Float, 1e-12, "bar %d", i)
	}

	// Histogram = line - signal once the signal is defined.
	line, sig, hist := macd.Line(), macd.Signal(), macd.Histogram()
	require.True(t, sig.Valid && hist.Valid)
	assert.InDelta(t, line.Float-sig.Float, hist.Float, 1e-12)
}

func TestMACD_FastMustBeShorter(t *testing.T) {
	_, err := NewMACD(Config{Fast: 26, Slow: 12, Signal: 9})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMACD(Config{Fast: 12, Slow: 12, Signal: 9})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ────────────────────────────────────────────────────────────
// Monotonic timestamps
// ────────────────────────────────────────────────────────────

func TestUpdate_RejectsNonMonotonicTimestamp(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 2})
	feed(t, sma, 10, 20)

	before, err := sma.Update(bar(2, 30))
	require.NoError(t, err)

	// Same timestamp and an earlier one must both be rejected.
	for _, i := range []int{2, 1} {
		_, err := sma.Update(bar(i, 999))
		assert.ErrorIs(t, err, ErrNonMonotonicTimestamp, "offset %d", i)
	}

	// State unchanged: the next good bar behaves as if the bad ones were
	// never offered.
	witness, _ := NewSMA(Config{Period: 2})
	feed(t, witness, 10, 20, 30)
	wantNext, err := witness.Update(bar(3, 40))
	require.NoError(t, err)

	gotNext, err := sma.Update(bar(3, 40))
	require.NoError(t, err)
	assert.Equal(t, wantNext, gotNext)
	_ = before
}

func TestUpdate_RejectionAcrossKinds(t *testing.T) {
	states := []State{
		mustState(t, KindEMA, Config{Period: 3}),
		mustState(t, KindRSI, Config{Period: 3}),
		mustState(t, KindDonchian, Config{Period: 3}),
		mustState(t, KindMACD, Config{Fast: 2, Slow: 4, Signal: 2}),
	}
	for _, st := range states {
		_, err := st.Update(bar(0, 10))
		require.NoError(t, err)
		_, err = st.Update(bar(0, 11))
		assert.ErrorIs(t, err, ErrNonMonotonicTimestamp, st.Kind())
	}
}

func mustState(t *testing.T, kind string, cfg Config) State {
	t.Helper()
	st, err := New(kind, cfg)
	require.NoError(t, err)
	return st
}

// ────────────────────────────────────────────────────────────
// Missing-data policies
// ────────────────────────────────────────────────────────────

func TestMissingSkip_DoesNotConsumeWindowSlot(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 3, Missing: MissingSkip})

	sma.Update(bar(0, 1))
	sma.Update(bar(1, 2))
	v, err := sma.Update(missingBar(2))
	require.NoError(t, err)
	assert.False(t, v.Valid, "missing bar must not complete the warm-up")
	assert.Equal(t, 1, sma.WarmupRemaining())

	v, err = sma.Update(bar(3, 3))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 2, v.Float, 1e-12) // mean of 1,2,3
}

func TestMissingSkip_ReemitsCurrentValue(t *testing.T) {
	ema, _ := NewEMA(Config{Period: 3, Alpha: 0.5})
	feed(t, ema, 10, 20)

	v, err := ema.Update(missingBar(2))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 15, v.Float, 1e-12, "skip re-emits the current value")
}

func TestMissingHold_ForwardFills(t *testing.T) {
	ema, _ := NewEMA(Config{Period: 3, Alpha: 0.5, Missing: MissingHold})
	feed(t, ema, 10, 20) // value 15

	v, err := ema.Update(missingBar(2))
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.InDelta(t, 17.5, v.Float, 1e-12, "hold re-applies the previous input (20)")
}

func TestMissingHold_BeforeAnyInputActsAsSkip(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 2, Missing: MissingHold})
	v, err := sma.Update(missingBar(0))
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, 2, sma.WarmupRemaining())
}

func TestMissingBar_StillAdvancesClock(t *testing.T) {
	sma, _ := NewSMA(Config{Period: 2})
	sma.Update(bar(0, 1))
	_, err := sma.Update(missingBar(1))
	require.NoError(t, err)
	// A bar at the missing bar's timestamp must now be rejected.
	_, err = sma.Update(bar(1, 2))
	assert.ErrorIs(t, err, ErrNonMonotonicTimestamp)
}

// ────────────────────────────────────────────────────────────
// Reset
// ────────────────────────────────────────────────────────────

func TestReset_ReplayReproducesOutputs(t *testing.T) {
	closes := []float64{5, 7, 6, 9, 8, 11, 10, 12}
	for _, tc := range []struct {
		kind string
		cfg  Config
	}{
		{KindSMA, Config{Period: 3}},
		{KindWMA, Config{Period: 3}},
		{KindEMA, Config{Period: 3}},
		{KindSMMA, Config{Period: 3}},
		{KindRSI, Config{Period: 3}},
		{KindATR, Config{Period: 3}},
		{KindStdDev, Config{Period: 3}},
		{KindBollinger, Config{Period: 3}},
		{KindDonchian, Config{Period: 3}},
		{KindMACD, Config{Fast: 2, Slow: 4, Signal: 3}},
	} {
		st := mustState(t, tc.kind, tc.cfg)
		first := feed(t, st, closes...)
		st.Reset()
		second := feed(t, st, closes...)
		assert.Equal(t, first, second, "kind %s", tc.kind)
	}
}
