package window

import "github.com/gammazero/deque"

// entry pairs a pushed value with its push sequence number so expired
// candidates can be dropped from the front when their slot leaves the window.
type entry struct {
	value float64
	seq   uint64
}

// monotonicDeque keeps window extremum candidates in monotonic order: the
// front is always the current extremum. Pushing pops dominated candidates
// from the back, so each value enters and leaves at most once — amortized
// O(1) per push even though evictions arrive in arbitrary value order.
type monotonicDeque struct {
	dq   *deque.Deque[entry]
	less func(a, b float64) bool // a strictly better than b
}

func lessMin(a, b float64) bool { return a < b }
func lessMax(a, b float64) bool { return a > b }

func newMonotonicDeque(less func(a, b float64) bool) monotonicDeque {
	return monotonicDeque{dq: deque.New[entry](0, 16), less: less}
}

func (m *monotonicDeque) push(v float64, seq uint64) {
	for m.dq.Len() > 0 && !m.less(m.dq.Back().value, v) {
		m.dq.PopBack()
	}
	m.dq.PushBack(entry{value: v, seq: seq})
}

// evict drops the front candidate if it belongs to the slot with the given
// sequence number. Candidates from older slots were already dominated away.
func (m *monotonicDeque) evict(seq uint64) {
	if m.dq.Len() > 0 && m.dq.Front().seq == seq {
		m.dq.PopFront()
	}
}

func (m *monotonicDeque) best() float64 {
	return m.dq.Front().value
}

func (m *monotonicDeque) reset() {
	m.dq.Clear()
}
