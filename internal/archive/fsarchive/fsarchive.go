// Package fsarchive stores daily reports as TOML files in one directory per
// calendar day:
//
//	<root>/YYYY.MM.DD/report.toml   the DailyReport
//	<root>/YYYY.MM.DD/HH:MM:SS.toml raw check, the Snapshot as fetched
package fsarchive

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// ReportFile is the name of the daily report inside a date directory.
const ReportFile = "report.toml"

// Store is a directory-tree archive. It implements archive.Archive.
type Store struct {
	root   string
	logger *slog.Logger
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &domain.IOError{Op: "create archive root", Path: root, Err: err}
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the archive directory.
func (s *Store) Root() string { return s.root }

// DatePath returns the directory holding date's artifacts.
func (s *Store) DatePath(date domain.CalendarDate) string {
	return filepath.Join(s.root, date.String())
}

// Read loads date's report. A missing file is reported as absent.
func (s *Store) Read(_ context.Context, date domain.CalendarDate) (domain.DailyReport, bool, error) {
	path := filepath.Join(s.DatePath(date), ReportFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DailyReport{}, false, nil
	}
	if err != nil {
		return domain.DailyReport{}, false, &domain.IOError{Op: "read report", Path: path, Err: err}
	}

	var report domain.DailyReport
	if _, err := toml.Decode(string(data), &report); err != nil {
		return domain.DailyReport{}, false, &domain.SerializationError{Op: "decode " + path, Err: err}
	}
	return report, true, nil
}

// Write replaces date's report.
func (s *Store) Write(_ context.Context, date domain.CalendarDate, report domain.DailyReport) error {
	return s.writeTOML(date, ReportFile, report)
}

// WriteCheck stores the raw snapshot under the local time-of-day it was taken.
func (s *Store) WriteCheck(_ context.Context, date domain.CalendarDate, localTime time.Time, snap domain.Snapshot) error {
	return s.writeTOML(date, localTime.Format("15:04:05")+".toml", snap)
}

// Dates lists every date directory in ascending key order. Entries whose
// names are not YYYY.MM.DD keys are ignored.
func (s *Store) Dates(_ context.Context) ([]domain.CalendarDate, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &domain.IOError{Op: "list archive", Path: s.root, Err: err}
	}

	dates := make([]domain.CalendarDate, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date, err := domain.ParseCalendarDate(e.Name())
		if err != nil {
			s.logger.Debug("ignoring non-date archive entry", "name", e.Name())
			continue
		}
		dates = append(dates, date)
	}
	slices.SortFunc(dates, func(a, b domain.CalendarDate) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return dates, nil
}

// Close is a no-op; the store holds no open handles.
func (s *Store) Close() error { return nil }

func (s *Store) writeTOML(date domain.CalendarDate, name string, v any) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return &domain.SerializationError{Op: "encode " + name, Err: err}
	}

	dir := s.DatePath(date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.IOError{Op: "create date directory", Path: dir, Err: err}
	}
	return writeFileAtomic(filepath.Join(dir, name), buf.Bytes())
}

// writeFileAtomic writes data to a temporary sibling and renames it over path,
// so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &domain.IOError{Op: "create temp file", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &domain.IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &domain.IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &domain.IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &domain.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
