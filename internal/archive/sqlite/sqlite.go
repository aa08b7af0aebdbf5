// Package sqlite is an archive backend on an embedded SQLite database.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// Store implements archive.Archive on SQLite.
type Store struct {
	db    *sql.DB
	path  string
	clock clockwork.Clock
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.IOError{Op: "open sqlite", Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path, clock: clockwork.NewRealClock()}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, &domain.IOError{Op: "migrate sqlite", Path: path, Err: err}
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithClock sets the clock used to stamp written_at.
func (s *Store) WithClock(c clockwork.Clock) *Store {
	s.clock = c
	return s
}

// Ping verifies the database is reachable. The aggregator calls it from
// readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.IOError{Op: "ping sqlite", Path: s.path, Err: err}
	}
	return nil
}

// Read returns the report stored for date. A missing row is reported as absent,
// not as an error.
func (s *Store) Read(ctx context.Context, date domain.CalendarDate) (domain.DailyReport, bool, error) {
	var (
		asOf         string
		tested       int64
		positive     int64
		ratio        sql.NullFloat64
		prevPositive sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT as_of, tested, positive, yesterday_ratio, prev_positive
		FROM daily_reports WHERE date = ?
	`, date.String()).Scan(&asOf, &tested, &positive, &ratio, &prevPositive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyReport{}, false, nil
	}
	if err != nil {
		return domain.DailyReport{}, false, &domain.IOError{Op: "read report " + date.String(), Path: s.path, Err: err}
	}

	report, err := decodeRow(asOf, tested, positive, ratio, prevPositive)
	if err != nil {
		return domain.DailyReport{}, false, &domain.SerializationError{Op: "decode report " + date.String(), Err: err}
	}
	return report, true, nil
}

// Write upserts the report for date, replacing any earlier row.
func (s *Store) Write(ctx context.Context, date domain.CalendarDate, report domain.DailyReport) error {
	var ratio, prevPositive any
	if report.Ratio != nil {
		ratio = float64(report.Ratio.YesterdayRatio)
		prevPositive = int64(report.Ratio.PrevPositive)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (date, as_of, tested, positive, yesterday_ratio, prev_positive, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			as_of = excluded.as_of,
			tested = excluded.tested,
			positive = excluded.positive,
			yesterday_ratio = excluded.yesterday_ratio,
			prev_positive = excluded.prev_positive,
			written_at = excluded.written_at
	`,
		date.String(),
		report.Info.AsOf.Format(time.RFC3339Nano),
		int64(report.Info.Tested),
		int64(report.Info.Positive),
		ratio,
		prevPositive,
		s.clock.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &domain.IOError{Op: "write report " + date.String(), Path: s.path, Err: err}
	}
	return nil
}

// WriteCheck stores the snapshot as TOML text, keyed by date and local time-of-day.
func (s *Store) WriteCheck(ctx context.Context, date domain.CalendarDate, localTime time.Time, snap domain.Snapshot) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
		return &domain.SerializationError{Op: "encode raw check", Err: err}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_checks (date, check_time, body) VALUES (?, ?, ?)
		ON CONFLICT(date, check_time) DO UPDATE SET body = excluded.body
	`, date.String(), localTime.Format("15:04:05"), buf.String())
	if err != nil {
		return &domain.IOError{Op: "write raw check " + date.String(), Path: s.path, Err: err}
	}
	return nil
}

// Check returns the raw snapshot stored for date at checkTime (HH:MM:SS).
func (s *Store) Check(ctx context.Context, date domain.CalendarDate, checkTime string) (domain.Snapshot, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM raw_checks WHERE date = ? AND check_time = ?
	`, date.String(), checkTime).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, &domain.IOError{Op: "read raw check", Path: s.path, Err: err}
	}
	var snap domain.Snapshot
	if _, err := toml.Decode(body, &snap); err != nil {
		return domain.Snapshot{}, false, &domain.SerializationError{Op: "decode raw check", Err: err}
	}
	return snap, true, nil
}

// Dates lists every date with a report, ascending. Rows whose key does not
// parse are left out.
func (s *Store) Dates(ctx context.Context) ([]domain.CalendarDate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM daily_reports ORDER BY date`)
	if err != nil {
		return nil, &domain.IOError{Op: "list dates", Path: s.path, Err: err}
	}
	defer rows.Close()

	var dates []domain.CalendarDate
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &domain.IOError{Op: "list dates", Path: s.path, Err: err}
		}
		date, err := domain.ParseCalendarDate(key)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.IOError{Op: "list dates", Path: s.path, Err: err}
	}
	return dates, nil
}

func decodeRow(asOf string, tested, positive int64, ratio sql.NullFloat64, prevPositive sql.NullInt64) (domain.DailyReport, error) {
	t, err := time.Parse(time.RFC3339Nano, asOf)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("as_of: %w", err)
	}
	if !fitsUint32(tested) || !fitsUint32(positive) {
		return domain.DailyReport{}, fmt.Errorf("counts out of range: tested=%d positive=%d", tested, positive)
	}

	report := domain.DailyReport{
		Info: domain.Info{AsOf: t, Tested: uint32(tested), Positive: uint32(positive)},
	}
	if ratio.Valid {
		if !prevPositive.Valid || !fitsUint32(prevPositive.Int64) {
			return domain.DailyReport{}, errors.New("ratio without a valid prev_positive")
		}
		report.Ratio = &domain.Ratio{
			YesterdayRatio: float32(ratio.Float64),
			PrevPositive:   uint32(prevPositive.Int64),
		}
	}
	return report, nil
}

func fitsUint32(n int64) bool {
	return n >= 0 && n <= 1<<32-1
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS daily_reports (
			date TEXT NOT NULL PRIMARY KEY,
			as_of TEXT NOT NULL,
			tested INTEGER NOT NULL,
			positive INTEGER NOT NULL,
			yesterday_ratio REAL,
			prev_positive INTEGER,
			written_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS raw_checks (
			date TEXT NOT NULL,
			check_time TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (date, check_time)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}
