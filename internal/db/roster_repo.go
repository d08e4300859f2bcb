package db

import (
	"context"
	"fmt"
)

// RosterRow is one row of roster_entries. Name is nil when no name is on file.
type RosterRow struct {
	Name  *string
	Email string
}

// RosterRepository reads allow-lists from:
//
//	CREATE TABLE roster_entries (
//	    event    TEXT NOT NULL DEFAULT '',
//	    position INTEGER NOT NULL,
//	    name     TEXT NULL,
//	    email    TEXT NOT NULL,
//	    PRIMARY KEY (event, position)
//	);
//
// The empty event is the global roster.
type RosterRepository struct {
	db DBTX
}

// NewRosterRepository creates a repository over db.
func NewRosterRepository(db DBTX) *RosterRepository {
	return &RosterRepository{db: db}
}

const listRosterEntriesSQL = `SELECT name, email FROM roster_entries WHERE event = $1 ORDER BY position`

// ListEntries returns the rows for event in file order.
func (r *RosterRepository) ListEntries(ctx context.Context, event string) ([]RosterRow, error) {
	rows, err := r.db.Query(ctx, listRosterEntriesSQL, event)
	if err != nil {
		return nil, fmt.Errorf("query roster entries: %w", err)
	}
	defer rows.Close()

	var out []RosterRow
	for rows.Next() {
		var row RosterRow
		if err := rows.Scan(&row.Name, &row.Email); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster entries: %w", err)
	}
	return out, nil
}

// Ping runs a trivial query; used by the health probe.
func (r *RosterRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
