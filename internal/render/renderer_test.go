package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgen/internal/storage"
	"certgen/internal/types"
)

// blankPNG encodes a solid white w x h image.
func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testStore(t *testing.T) *FileTemplateStore {
	t.Helper()
	fsys := fstest.MapFS{
		"template/certificate.png": {Data: blankPNG(t, 400, 200)},
		"template/devfest.png":     {Data: blankPNG(t, 300, 150)},
		"template/corrupt.png":     {Data: []byte("not an image")},
	}
	return NewFileTemplateStore(fsys, TemplateLayout{Dir: "template", Default: "certificate.png"})
}

// inkBounds returns the bounding box of non-white pixels.
func inkBounds(img image.Image) image.Rectangle {
	b := img.Bounds()
	ink := image.Rectangle{Min: b.Max, Max: b.Min}
	found := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 0x8000 && g < 0x8000 && bl < 0x8000 {
				found = true
				ink.Min.X = min(ink.Min.X, x)
				ink.Min.Y = min(ink.Min.Y, y)
				ink.Max.X = max(ink.Max.X, x+1)
				ink.Max.Y = max(ink.Max.Y, y+1)
			}
		}
	}
	if !found {
		return image.Rectangle{}
	}
	return ink
}

func TestRender_CentersNameOnBaseline(t *testing.T) {
	r, err := NewRenderer(testStore(t), Options{Size: 40})
	require.NoError(t, err)

	// No descenders, so the lowest ink is the baseline.
	art, err := r.Render(context.Background(), "Ane Doe", "")
	require.NoError(t, err)
	assert.Equal(t, "Ane Doe", art.DisplayName)
	assert.Equal(t, types.ArtifactContentType, art.ContentType)
	assert.Equal(t, 400, art.Width)
	assert.Equal(t, 200, art.Height)

	img, err := png.Decode(bytes.NewReader(art.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 200), img.Bounds())

	ink := inkBounds(img)
	require.False(t, ink.Empty(), "expected text to be drawn")

	// Horizontally centered within a few pixels of side bearing.
	left := ink.Min.X
	right := 400 - ink.Max.X
	assert.InDelta(t, left, right, 6, "ink %v not centered", ink)

	// Baseline sits on the vertical center: capitals end at or just above it.
	assert.InDelta(t, 100, ink.Max.Y, 2, "ink %v bottom not on baseline", ink)
	assert.Less(t, ink.Min.Y, 100)
}

func TestRender_EventTemplateAndColour(t *testing.T) {
	r, err := NewRenderer(testStore(t), Options{Size: 30, Color: "#ff0000"})
	require.NoError(t, err)

	art, err := r.Render(context.Background(), "Ann", "devfest")
	require.NoError(t, err)
	assert.Equal(t, 300, art.Width)
	assert.Equal(t, 150, art.Height)

	img, err := png.Decode(bytes.NewReader(art.Data))
	require.NoError(t, err)

	var red int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R > 200 && c.G < 60 && c.B < 60 {
				red++
			}
		}
	}
	assert.Greater(t, red, 0, "expected red glyph pixels")
}

func TestRender_OverflowIsNotCorrected(t *testing.T) {
	r, err := NewRenderer(testStore(t), Options{Size: 100})
	require.NoError(t, err)

	art, err := r.Render(context.Background(), "Bartholomew Maximilian Featherstonehaugh", "")
	require.NoError(t, err)
	assert.Equal(t, 400, art.Width, "canvas keeps template dimensions")
}

func TestRender_TemplateErrors(t *testing.T) {
	r, err := NewRenderer(testStore(t), Options{})
	require.NoError(t, err)

	_, err = r.Render(context.Background(), "X", "missing")
	assert.True(t, types.IsCode(err, types.ErrCodeTemplateNotFound), "got %v", err)

	_, err = r.Render(context.Background(), "X", "corrupt")
	assert.True(t, types.IsCode(err, types.ErrCodeRenderFailure), "got %v", err)

	_, err = r.Render(context.Background(), "X", "../secret")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidEvent), "got %v", err)
}

func TestNewRenderer_Errors(t *testing.T) {
	_, err := NewRenderer(testStore(t), Options{FontData: []byte("garbage")})
	assert.ErrorContains(t, err, "parse font")

	_, err = NewRenderer(testStore(t), Options{FontPath: "/no/such/font.ttf"})
	assert.ErrorContains(t, err, "read font")

	_, err = NewRenderer(testStore(t), Options{Color: "blue"})
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#000000")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 0xff}, c)

	c, err = ParseHexColor("#1a2B3c")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}, c)

	c, err = ParseHexColor("fff")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)

	_, err = ParseHexColor("#12345")
	assert.Error(t, err)
	_, err = ParseHexColor("#zzzzzz")
	assert.Error(t, err)
}

type fakeObjects struct {
	objects map[string][]byte
	err     error
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestS3TemplateStore(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"certs/templates/certificate.png": blankPNG(t, 50, 20),
	}}
	store := NewS3TemplateStore(objects, "certs", "", TemplateLayout{Dir: "templates", Default: "certificate.png"})

	img, err := store.Open(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())

	_, err = store.Open(context.Background(), "devfest")
	assert.True(t, types.IsCode(err, types.ErrCodeTemplateNotFound))

	objects.err = errors.New("throttled")
	_, err = store.Open(context.Background(), "")
	assert.True(t, types.IsCode(err, types.ErrCodeRenderFailure))
}

func TestTemplateLayoutName(t *testing.T) {
	l := TemplateLayout{Dir: "template", Default: "certificate.png"}
	assert.Equal(t, "template/certificate.png", l.Name(""))
	assert.Equal(t, "template/devfest.png", l.Name("devfest"))

	explicit := TemplateLayout{Default: "/srv/certs/cert.png"}
	assert.Equal(t, "/srv/certs/cert.png", explicit.Name(""))
}
