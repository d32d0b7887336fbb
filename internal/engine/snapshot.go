package engine

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"tickcore/internal/indicator"
)

// snapshotVersion is bumped on incompatible schema changes.
const snapshotVersion = 1

// InstrumentSnapshot holds indicator snapshots for a single instrument.
type InstrumentSnapshot struct {
	Instrument string               `json:"instrument"`
	Indicators []indicator.Snapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the engine.
type EngineSnapshot struct {
	Version     int                  `json:"version"`
	TakenAt     int64                `json:"taken_at"` // unix nanos
	Instruments []InstrumentSnapshot `json:"instruments"`
}

// Marshal serializes the snapshot to JSON.
func (es *EngineSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(es)
}

// UnmarshalSnapshot parses a serialized engine snapshot.
func UnmarshalSnapshot(data []byte) (*EngineSnapshot, error) {
	var es EngineSnapshot
	if err := json.Unmarshal(data, &es); err != nil {
		return nil, errors.Wrap(err, "unmarshal engine snapshot")
	}
	if es.Version != snapshotVersion {
		return nil, errors.Errorf("unsupported snapshot version %d", es.Version)
	}
	return &es, nil
}

// Snapshot captures the full state of the engine.
func (e *Engine) Snapshot() (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		Version: snapshotVersion,
		TakenAt: time.Now().UnixNano(),
	}

	for key, is := range e.state {
		isnap := InstrumentSnapshot{
			Instrument: key,
			Indicators: make([]indicator.Snapshot, 0, len(is.states)),
		}
		for i, st := range is.states {
			snapper, ok := st.(indicator.Snapshottable)
			if !ok {
				return nil, errors.Errorf("indicator %s does not support snapshots", is.names[i])
			}
			isnap.Indicators = append(isnap.Indicators, snapper.Snapshot())
		}
		snap.Instruments = append(snap.Instruments, isnap)
	}

	return snap, nil
}

// RestoreSnapshot rebuilds engine state from a snapshot. It is tolerant of
// spec changes — indicators are matched by kind and position against the
// current specs. Matching indicators get their state restored; indicators
// added since the snapshot start cold; removed ones are silently skipped.
func (e *Engine) RestoreSnapshot(snap *EngineSnapshot) error {
	if snap.Version != snapshotVersion {
		return errors.Errorf("unsupported snapshot version %d", snap.Version)
	}

	for _, isnap := range snap.Instruments {
		is, err := e.createStates()
		if err != nil {
			return err
		}

		// Lookup: kind → queued snapshots in order, matched greedily against
		// the current specs.
		byKind := make(map[string][]indicator.Snapshot)
		for _, s := range isnap.Indicators {
			byKind[s.Kind] = append(byKind[s.Kind], s)
		}

		restored, cold := 0, 0
		for i, st := range is.states {
			kind := st.Kind()
			queue := byKind[kind]
			if len(queue) == 0 {
				cold++
				continue
			}
			s := queue[0]
			byKind[kind] = queue[1:]

			snapper, ok := st.(indicator.Snapshottable)
			if !ok {
				cold++
				continue
			}
			if err := snapper.Restore(s); err != nil {
				// Non-fatal: period changed or schema drift — leave cold.
				e.log.Warn("indicator left cold after restore failure",
					"instrument", isnap.Instrument, "name", is.names[i], "err", err)
				cold++
				continue
			}
			restored++
		}

		if cold > 0 {
			e.log.Info("partial restore",
				"instrument", isnap.Instrument, "restored", restored, "cold", cold)
		}
		e.state[isnap.Instrument] = is
	}
	e.recountWarm()

	return nil
}
