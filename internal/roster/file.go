package roster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"certgen/internal/types"
)

// osFS opens names as host paths, so absolute configuration paths work.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }

// FileLoader reads rosters from a filesystem: the host disk, or files
// bundled into a serverless binary.
type FileLoader struct {
	fsys   fs.FS
	layout Layout
}

// NewFileLoader reads rosters from fsys using layout.
func NewFileLoader(fsys fs.FS, layout Layout) *FileLoader {
	return &FileLoader{fsys: fsys, layout: layout}
}

// NewDiskLoader reads rosters from the host filesystem.
func NewDiskLoader(layout Layout) *FileLoader {
	return NewFileLoader(osFS{}, layout)
}

// Load implements Loader.
func (l *FileLoader) Load(_ context.Context, event string) (*Roster, error) {
	if !types.ValidEventID(event) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEvent, "event identifier is not valid", nil)
	}
	name := l.layout.Name(event)

	f, err := l.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeRosterNotFound,
				"roster not found", err, map[string]any{"event": event})
		}
		return nil, types.NewAppError(types.ErrCodeRosterUnreadable, "roster could not be opened", err)
	}
	defer f.Close()

	entries, err := Parse(l.layout.Format, f)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRosterUnreadable,
			fmt.Sprintf("roster %s could not be parsed", name), err)
	}
	return &Roster{Event: event, Format: l.layout.Format, Entries: entries}, nil
}

// ReadFile loads a roster from an explicit path, as the batch CLI does with
// the CSV the operator points it at.
func ReadFile(path string, format Format) (*Roster, error) {
	loader := NewDiskLoader(Layout{Format: format, GlobalName: path})
	return loader.Load(context.Background(), "")
}
