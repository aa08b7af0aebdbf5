package archive

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-tracker/internal/archive/fsarchive"
	"github.com/couchcryptid/covid-tracker/internal/archive/sqlite"
	"github.com/couchcryptid/covid-tracker/internal/config"
)

// Open returns the backend selected by ARCHIVE_BACKEND.
func Open(cfg *config.Config, logger *slog.Logger) (Archive, error) {
	switch cfg.ArchiveBackend {
	case config.BackendFS:
		s, err := fsarchive.New(cfg.OutputDir, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
	}
}
