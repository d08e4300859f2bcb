package roster

import (
	"context"

	"certgen/internal/db"
	"certgen/internal/types"
)

// EntrySource is satisfied by *db.RosterRepository.
type EntrySource interface {
	ListEntries(ctx context.Context, event string) ([]db.RosterRow, error)
}

// PostgresLoader reads rosters from the roster_entries table. A NULL name
// column is the no-name marker, so the format is always tabular. An event
// with zero rows is treated as a missing roster.
type PostgresLoader struct {
	source EntrySource
}

// NewPostgresLoader creates a loader over source.
func NewPostgresLoader(source EntrySource) *PostgresLoader {
	return &PostgresLoader{source: source}
}

// Load implements Loader.
func (l *PostgresLoader) Load(ctx context.Context, event string) (*Roster, error) {
	rows, err := l.source.ListEntries(ctx, event)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRosterUnreadable, "roster could not be queried", err)
	}
	if len(rows) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeRosterNotFound,
			"roster not found", nil, map[string]any{"event": event})
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e := Entry{Email: row.Email}
		if row.Name != nil && *row.Name != "" {
			e.Name = *row.Name
			e.HasName = true
		}
		entries = append(entries, e)
	}
	return &Roster{Event: event, Format: FormatTabular, Entries: entries}, nil
}
