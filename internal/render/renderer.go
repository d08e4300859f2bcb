// Package render draws display names onto certificate templates.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"certgen/internal/types"
)

// DefaultFontSize matches the 100px face the certificates were designed for.
const DefaultFontSize = 100

// Options control text placement. Zero values fall back to the embedded Go
// Regular face, DefaultFontSize and black.
type Options struct {
	FontPath string
	FontData []byte
	Size     float64
	Color    string
}

// Renderer produces certificate artifacts. It is safe for concurrent use;
// each Render call builds its own face.
type Renderer struct {
	templates TemplateStore
	font      *opentype.Font
	size      float64
	color     color.NRGBA
}

// NewRenderer parses the font once and returns a Renderer over templates.
func NewRenderer(templates TemplateStore, opts Options) (*Renderer, error) {
	data := opts.FontData
	if len(data) == 0 && opts.FontPath != "" {
		b, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", opts.FontPath, err)
		}
		data = b
	}
	if len(data) == 0 {
		data = goregular.TTF
	}
	otFont, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	size := opts.Size
	if size <= 0 {
		size = DefaultFontSize
	}

	fg := color.NRGBA{A: 0xff}
	if opts.Color != "" {
		fg, err = ParseHexColor(opts.Color)
		if err != nil {
			return nil, err
		}
	}

	return &Renderer{templates: templates, font: otFont, size: size, color: fg}, nil
}

// Render draws displayName horizontally centered with its baseline on the
// vertical center of template templateID. Long names are not wrapped or
// shrunk.
func (r *Renderer) Render(ctx context.Context, displayName, templateID string) (*types.Artifact, error) {
	tmpl, err := r.templates.Open(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := tmpl.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), tmpl, bounds.Min, draw.Src)

	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    r.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRenderFailure, "font face could not be created", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(r.color),
		Face: face,
	}
	width := d.MeasureString(displayName)
	centerX := fixed.I(bounds.Dx()) / 2
	centerY := fixed.I(bounds.Dy()) / 2
	d.Dot = fixed.Point26_6{X: centerX - width/2, Y: centerY}
	d.DrawString(displayName)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, types.NewAppError(types.ErrCodeRenderFailure, "certificate could not be encoded", err)
	}

	return &types.Artifact{
		DisplayName: displayName,
		ContentType: types.ArtifactContentType,
		Data:        buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
