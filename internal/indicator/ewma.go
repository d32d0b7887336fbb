package indicator

// ewma is the shared exponential smoothing recurrence:
//
//	new = alpha*sample + (1-alpha)*previous
//
// Seeding follows the configured convention: first-sample (value defined
// immediately) or a simple-average warm-up over period samples. Used by EMA
// directly and by MACD for its three smoothers.
type ewma struct {
	alpha  float64
	period int
	seed   SeedMode

	count int
	sum   float64 // simple-average accumulator during SeedSMA warm-up
	value float64
}

func newEWMA(alpha float64, period int, seed SeedMode) ewma {
	return ewma{alpha: alpha, period: period, seed: seed}
}

func (w *ewma) update(v float64) {
	w.count++

	if w.seed == SeedSMA && w.count <= w.period {
		w.sum += v
		if w.count == w.period {
			w.value = w.sum / float64(w.period)
		}
		return
	}
	if w.seed == SeedFirst && w.count == 1 {
		w.value = v
		return
	}

	w.value = w.alpha*v + (1-w.alpha)*w.value
}

func (w *ewma) ready() bool {
	if w.seed == SeedSMA {
		return w.count >= w.period
	}
	return w.count >= 1
}

func (w *ewma) warmupRemaining() int {
	need := 1
	if w.seed == SeedSMA {
		need = w.period
	}
	if w.count >= need {
		return 0
	}
	return need - w.count
}

func (w *ewma) reset() {
	w.count = 0
	w.sum = 0
	w.value = 0
}
