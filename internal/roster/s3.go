package roster

import (
	"context"
	"errors"
	"io"
	"path"

	"certgen/internal/storage"
	"certgen/internal/types"
)

// ObjectGetter is satisfied by *storage.S3Store.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3Loader reads rosters from a bucket. Keys are prefix + layout name.
type S3Loader struct {
	objects ObjectGetter
	bucket  string
	prefix  string
	layout  Layout
}

// NewS3Loader creates a loader for bucket.
func NewS3Loader(objects ObjectGetter, bucket, prefix string, layout Layout) *S3Loader {
	return &S3Loader{objects: objects, bucket: bucket, prefix: prefix, layout: layout}
}

// Load implements Loader.
func (l *S3Loader) Load(ctx context.Context, event string) (*Roster, error) {
	if !types.ValidEventID(event) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEvent, "event identifier is not valid", nil)
	}
	key := path.Join(l.prefix, l.layout.Name(event))

	body, err := l.objects.GetObject(ctx, l.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeRosterNotFound,
				"roster not found", err, map[string]any{"event": event})
		}
		return nil, types.NewAppError(types.ErrCodeRosterUnreadable, "roster could not be fetched", err)
	}
	defer body.Close()

	entries, err := Parse(l.layout.Format, body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRosterUnreadable, "roster could not be parsed", err)
	}
	return &Roster{Event: event, Format: l.layout.Format, Entries: entries}, nil
}
