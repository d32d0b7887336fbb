package indicator

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Registry kinds of the built-in indicators.
const (
	KindSMA       = "sma"
	KindEMA       = "ema"
	KindWMA       = "wma"
	KindSMMA      = "smma"
	KindRSI       = "rsi"
	KindATR       = "atr"
	KindStdDev    = "stddev"
	KindBollinger = "bollinger"
	KindDonchian  = "donchian"
	KindMACD      = "macd"
)

// Factory constructs a state from a validated-on-construction config.
type Factory func(cfg Config) (State, error)

// Registry maps indicator kinds to factories. It is the single extension
// point: registering a new kind requires no change anywhere else.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in indicators registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindSMA, func(cfg Config) (State, error) { return NewSMA(cfg) })
	r.Register(KindEMA, func(cfg Config) (State, error) { return NewEMA(cfg) })
	r.Register(KindWMA, func(cfg Config) (State, error) { return NewWMA(cfg) })
	r.Register(KindSMMA, func(cfg Config) (State, error) { return NewSMMA(cfg) })
	r.Register(KindRSI, func(cfg Config) (State, error) { return NewRSI(cfg) })
	r.Register(KindATR, func(cfg Config) (State, error) { return NewATR(cfg) })
	r.Register(KindStdDev, func(cfg Config) (State, error) { return NewStdDev(cfg) })
	r.Register(KindBollinger, func(cfg Config) (State, error) { return NewBollinger(cfg) })
	r.Register(KindDonchian, func(cfg Config) (State, error) { return NewDonchian(cfg) })
	r.Register(KindMACD, func(cfg Config) (State, error) { return NewMACD(cfg) })
	return r
}

// Register adds or replaces a factory for a kind. Kinds are matched
// case-insensitively.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(kind)] = factory
}

// New constructs a state for the given kind. Fails with ErrUnknownIndicator
// for an unregistered kind, or ErrInvalidConfig from the factory.
func (r *Registry) New(kind string, cfg Config) (State, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIndicator, "kind %q", kind)
	}
	return factory(cfg)
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry with built-ins registered.
func Default() *Registry { return defaultRegistry }

// New constructs a state from the default registry.
func New(kind string, cfg Config) (State, error) {
	return defaultRegistry.New(kind, cfg)
}

// ParseSpec parses a compact indicator spec of the form "kind:period"
// ("rsi:14") or "kind:fast/slow/signal" for macd ("macd:12/26/9"). Used by
// the CLI surfaces.
func ParseSpec(spec string) (kind string, cfg Config, err error) {
	parts := strings.SplitN(strings.TrimSpace(spec), ":", 2)
	kind = strings.ToLower(strings.TrimSpace(parts[0]))
	if kind == "" {
		return "", Config{}, wrapInvalidf("empty indicator spec %q", spec)
	}
	if len(parts) == 1 {
		return kind, Config{}, nil
	}

	arg := strings.TrimSpace(parts[1])
	if kind == KindMACD {
		nums := strings.Split(arg, "/")
		if len(nums) != 3 {
			return "", Config{}, wrapInvalidf("macd spec wants fast/slow/signal, got %q", arg)
		}
		vals := make([]int, 3)
		for i, s := range nums {
			vals[i], err = strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return "", Config{}, wrapInvalidf("macd period %q is not a number", s)
			}
		}
		cfg.Fast, cfg.Slow, cfg.Signal = vals[0], vals[1], vals[2]
		return kind, cfg, nil
	}

	period, err := strconv.Atoi(arg)
	if err != nil {
		return "", Config{}, wrapInvalidf("period %q is not a number", arg)
	}
	cfg.Period = period
	return kind, cfg, nil
}

// SpecName is the display name of a spec: "sma_20", "macd_12_26_9".
func SpecName(kind string, cfg Config) string {
	if kind == KindMACD {
		fast, slow, signal := cfg.macdPeriods()
		return kind + "_" + strconv.Itoa(fast) + "_" + strconv.Itoa(slow) + "_" + strconv.Itoa(signal)
	}
	return kind + "_" + strconv.Itoa(cfg.Period)
}
