package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path"

	// Templates may be PNG or JPEG.
	_ "image/jpeg"
	_ "image/png"

	"certgen/internal/storage"
	"certgen/internal/types"
)

// TemplateStore resolves a template identifier to a decoded image. The empty
// identifier selects the default template.
type TemplateStore interface {
	Open(ctx context.Context, id string) (image.Image, error)
}

// TemplateLayout maps identifiers to file or object names.
type TemplateLayout struct {
	Dir     string
	Default string
}

// Name returns the slash-separated name for id: Dir/Default for the empty
// id, Dir/<id>.png otherwise.
func (l TemplateLayout) Name(id string) string {
	if id == "" {
		return path.Join(l.Dir, l.Default)
	}
	return path.Join(l.Dir, id+".png")
}

type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }

// FileTemplateStore reads templates from a filesystem.
type FileTemplateStore struct {
	fsys   fs.FS
	layout TemplateLayout
}

// NewFileTemplateStore reads templates from fsys.
func NewFileTemplateStore(fsys fs.FS, layout TemplateLayout) *FileTemplateStore {
	return &FileTemplateStore{fsys: fsys, layout: layout}
}

// NewDiskTemplateStore reads templates from the host filesystem.
func NewDiskTemplateStore(layout TemplateLayout) *FileTemplateStore {
	return NewFileTemplateStore(osFS{}, layout)
}

// Open implements TemplateStore.
func (s *FileTemplateStore) Open(_ context.Context, id string) (image.Image, error) {
	if !types.ValidEventID(id) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEvent, "template identifier is not valid", nil)
	}
	name := s.layout.Name(id)
	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, templateNotFound(id, err)
		}
		return nil, types.NewAppError(types.ErrCodeRenderFailure, "template could not be opened", err)
	}
	defer f.Close()
	return decodeTemplate(name, f)
}

// ObjectGetter is satisfied by *storage.S3Store.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3TemplateStore reads templates from a bucket under prefix.
type S3TemplateStore struct {
	objects ObjectGetter
	bucket  string
	prefix  string
	layout  TemplateLayout
}

// NewS3TemplateStore creates a store for bucket.
func NewS3TemplateStore(objects ObjectGetter, bucket, prefix string, layout TemplateLayout) *S3TemplateStore {
	return &S3TemplateStore{objects: objects, bucket: bucket, prefix: prefix, layout: layout}
}

// Open implements TemplateStore.
func (s *S3TemplateStore) Open(ctx context.Context, id string) (image.Image, error) {
	if !types.ValidEventID(id) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEvent, "template identifier is not valid", nil)
	}
	key := path.Join(s.prefix, s.layout.Name(id))
	body, err := s.objects.GetObject(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, templateNotFound(id, err)
		}
		return nil, types.NewAppError(types.ErrCodeRenderFailure, "template could not be fetched", err)
	}
	defer body.Close()
	return decodeTemplate(key, body)
}

func decodeTemplate(name string, r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRenderFailure,
			fmt.Sprintf("template %s could not be decoded", name), err)
	}
	return img, nil
}

func templateNotFound(id string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeTemplateNotFound,
		"certificate template not found", err, map[string]any{"template": id})
}
