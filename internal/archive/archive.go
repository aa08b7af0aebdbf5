// Package archive defines the date-keyed report store and the Aggregator that
// replays it as an ordered series.
package archive

import (
	"context"
	"time"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// Archive persists one DailyReport per calendar date plus raw-check artifacts.
//
// Read reports (zero, false, nil) when no entry exists for date. Write
// overwrites any existing entry. Undecodable entries surface as
// *domain.SerializationError and storage failures as *domain.IOError.
type Archive interface {
	Read(ctx context.Context, date domain.CalendarDate) (domain.DailyReport, bool, error)
	Write(ctx context.Context, date domain.CalendarDate, report domain.DailyReport) error
	WriteCheck(ctx context.Context, date domain.CalendarDate, localTime time.Time, snap domain.Snapshot) error
	Dates(ctx context.Context) ([]domain.CalendarDate, error)
	Close() error
}
