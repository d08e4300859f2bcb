// Package roster loads the allow-lists that decide who may be issued a
// certificate. A roster is read fresh for every lookup; nothing is cached
// between requests.
package roster

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Format is the encoding of every roster in a deployment.
type Format string

const (
	// FormatFlat is one email per line with no names.
	FormatFlat Format = "flat"
	// FormatTabular is CSV with a header row carrying name and email columns.
	FormatTabular Format = "tabular"
)

// ParseFormat accepts the configuration spelling of a format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatFlat:
		return FormatFlat, nil
	case FormatTabular, "csv":
		return FormatTabular, nil
	default:
		return "", fmt.Errorf("unknown roster format %q", s)
	}
}

// Ext is the file extension used for per-event rosters.
func (f Format) Ext() string {
	if f == FormatTabular {
		return ".csv"
	}
	return ".txt"
}

// Entry is one allowed recipient. HasName is false for flat rosters and for
// tabular rows whose name is empty or the literal "null".
type Entry struct {
	Email   string `json:"email" yaml:"email"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	HasName bool   `json:"has_name" yaml:"has_name"`
}

// Roster is an ordered allow-list scoped to one event ("" for the global list).
type Roster struct {
	Event   string
	Format  Format
	Entries []Entry
}

// Lookup returns the first entry whose email equals email exactly.
// No case folding or trimming is applied to the query.
func (r *Roster) Lookup(email string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Email == email {
			return e, true
		}
	}
	return Entry{}, false
}

// Len is the number of entries, including duplicates.
func (r *Roster) Len() int {
	return len(r.Entries)
}

// Loader produces the roster for an event. Implementations return an
// AppError with ErrCodeRosterNotFound when the backing resource is absent.
type Loader interface {
	Load(ctx context.Context, event string) (*Roster, error)
}

// Layout maps an event to the name of its backing file or object.
type Layout struct {
	Format Format
	// GlobalName is used when the event is empty.
	GlobalName string
	// EventDir holds <event><ext> files.
	EventDir string
}

// Name returns the slash-separated name for event.
func (l Layout) Name(event string) string {
	if event == "" {
		return l.GlobalName
	}
	return path.Join(l.EventDir, event+l.Format.Ext())
}
