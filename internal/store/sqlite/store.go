// Package sqlite persists bars, indicator values, and engine snapshots in a
// single-writer SQLite database with WAL journaling and batched transactions.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"tickcore/internal/series"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite store.
type Config struct {
	Path string // path to SQLite database file, e.g. "data/tickcore.db"
}

// Store is a single-goroutine SQLite writer with transaction batching.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates a Store, initializes the database with WAL mode and schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, errors.Wrap(err, "sqlite schema")
	}

	log.Info("sqlite database opened", slog.String("path", cfg.Path))
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			missing    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_values (
			instrument TEXT    NOT NULL,
			name       TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			value      REAL,
			PRIMARY KEY (instrument, name, ts)
		);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// WriteBars inserts bars for one instrument in a single transaction.
func (s *Store) WriteBars(instrument string, bars []series.Bar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (instrument, ts, open, high, low, close, volume, missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		missing := 0
		if b.Missing {
			missing = 1
		}
		if _, err := stmt.Exec(instrument, b.TS.UnixNano(), b.Open, b.High, b.Low, b.Close, b.Volume, missing); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// BarRow is one live bar tagged with its instrument, as consumed by RunBars.
type BarRow struct {
	Instrument string
	Bar        series.Bar
}

// WriteBarRows inserts bars for mixed instruments in a single transaction.
func (s *Store) WriteBarRows(rows []BarRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (instrument, ts, open, high, low, close, volume, missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		b := r.Bar
		missing := 0
		if b.Missing {
			missing = 1
		}
		if _, err := stmt.Exec(r.Instrument, b.TS.UnixNano(), b.Open, b.High, b.Low, b.Close, b.Volume, missing); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RunBars reads live bars from barCh and inserts them in batched
// transactions, same flush rules as Run. The recorded bars are what the
// engine replays after a restart to catch up from the latest checkpoint.
// Blocks until ctx is cancelled or barCh is closed.
func (s *Store) RunBars(ctx context.Context, barCh <-chan BarRow, commitDur func(seconds float64)) {
	batch := make([]BarRow, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.WriteBarRows(batch); err != nil {
			s.log.Error("bar batch insert failed", slog.Any("err", err))
		} else {
			if commitDur != nil {
				commitDur(time.Since(start).Seconds())
			}
			s.log.Debug("bar batch committed",
				slog.Int("rows", len(batch)),
				slog.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case row, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// ReadBars returns the bars of one instrument with TS strictly after afterTS,
// in timestamp order. Used by the engine restorer to replay history recorded
// after the latest checkpoint.
func (s *Store) ReadBars(instrument string, afterTS time.Time) (series.Series, error) {
	rows, err := s.db.Query(`
		SELECT ts, open, high, low, close, volume, missing
		FROM bars WHERE instrument = ? AND ts > ?
		ORDER BY ts ASC
	`, instrument, afterTS.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "read bars")
	}
	defer rows.Close()

	var out series.Series
	for rows.Next() {
		var (
			ts      int64
			b       series.Bar
			missing int
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &missing); err != nil {
			return nil, err
		}
		b.TS = time.Unix(0, ts).UTC()
		b.Missing = missing == 1
		out = append(out, b)
	}
	return out, rows.Err()
}

// ValueRow is one persisted indicator output point.
type ValueRow struct {
	Instrument string
	Name       string
	TS         time.Time
	Value      series.Value
}

// WriteValues inserts indicator output points in a single transaction.
// Undefined (warm-up) points persist as NULL.
func (s *Store) WriteValues(rows []ValueRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO indicator_values (instrument, name, ts, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		var v interface{}
		if r.Value.Valid {
			v = r.Value.Float
		}
		if _, err := stmt.Exec(r.Instrument, r.Name, r.TS.UnixNano(), v); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Run reads indicator output points from rowCh and inserts them in batched
// transactions. Flushes every batchSize rows OR every flushDelay, whichever
// first. Blocks until ctx is cancelled or rowCh is closed.
func (s *Store) Run(ctx context.Context, rowCh <-chan ValueRow, commitDur func(seconds float64)) {
	batch := make([]ValueRow, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.WriteValues(batch); err != nil {
			s.log.Error("batch insert failed", slog.Any("err", err))
		} else {
			if commitDur != nil {
				commitDur(time.Since(start).Seconds())
			}
			s.log.Debug("batch committed",
				slog.Int("rows", len(batch)),
				slog.Duration("took", time.Since(start)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case row, ok := <-rowCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// SaveSnapshot persists an engine snapshot as opaque JSON.
func (s *Store) SaveSnapshot(data []byte) error {
	_, err := s.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data))
	return errors.Wrap(err, "save snapshot")
}

// LoadLatestSnapshot returns the most recent engine snapshot, or nil if none
// has been saved.
func (s *Store) LoadLatestSnapshot() ([]byte, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM engine_snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	return []byte(data), nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func (s *Store) PruneSnapshots(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM engine_snapshots
		WHERE id NOT IN (SELECT id FROM engine_snapshots ORDER BY id DESC LIMIT ?)
	`, keep)
	return err
}
