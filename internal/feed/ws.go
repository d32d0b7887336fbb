package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"tickcore/internal/engine"
	"tickcore/internal/ringbuf"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
	readTimeout  = 90 * time.Second
)

// WSConfig holds configuration for the WebSocket bar feed.
type WSConfig struct {
	URL string
}

// WS connects to a WebSocket endpoint emitting JSON instrument bars and
// pushes them into the engine's ring buffer. It reconnects with exponential
// backoff until the context is cancelled.
type WS struct {
	cfg WSConfig
	log *slog.Logger

	// Optional hooks for metrics and health reporting.
	OnConnect   func()
	OnReconnect func()
	OnBar       func(engine.InstrumentBar)
}

// NewWS creates a WebSocket feed.
func NewWS(cfg WSConfig, log *slog.Logger) *WS {
	return &WS{cfg: cfg, log: log}
}

// Run streams bars into the ring buffer. Blocks until ctx is cancelled.
func (w *WS) Run(ctx context.Context, ring *ringbuf.Ring[engine.InstrumentBar]) error {
	bo := newBackoff(reconnectMin, reconnectMax)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dialed, err := w.streamOnce(ctx, ring)
		if dialed {
			// A healthy connection restarts the retry schedule, so a drop
			// after hours of streaming reconnects promptly.
			bo.reset()
		}
		delay := bo.next()
		if err != nil && ctx.Err() == nil {
			w.log.Warn("feed disconnected",
				slog.Any("err", err), slog.Duration("retry_in", delay))
			if w.OnReconnect != nil {
				w.OnReconnect()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoff yields the delay before each reconnect attempt, doubling up to a
// cap until reset.
type backoff struct {
	min, max, cur time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, cur: min}
}

// next returns the current delay and doubles it for the following attempt.
func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

func (b *backoff) reset() { b.cur = b.min }

// streamOnce dials, then reads messages until the connection breaks. The
// returned bool reports whether the dial succeeded.
func (w *WS) streamOnce(ctx context.Context, ring *ringbuf.Ring[engine.InstrumentBar]) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, errors.Wrap(err, "dial")
	}
	defer conn.Close()

	w.log.Info("feed connected", slog.String("url", w.cfg.URL))
	if w.OnConnect != nil {
		w.OnConnect()
	}

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, errors.Wrap(err, "read")
		}

		var ib engine.InstrumentBar
		if err := json.Unmarshal(msg, &ib); err != nil {
			w.log.Warn("unparseable message dropped", slog.Any("err", err))
			continue
		}
		if ib.Instrument == "" || ib.Bar.TS.IsZero() {
			w.log.Warn("incomplete message dropped")
			continue
		}

		if !ring.Push(ib) {
			w.log.Warn("ring buffer full, bar dropped",
				slog.String("instrument", ib.Instrument))
			continue
		}
		if w.OnBar != nil {
			w.OnBar(ib)
		}
	}
}
