// Package export implements the save-as-image collaborator: it paints the
// compiled draw list of a map into a PNG.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/render"
)

var ErrEmptyMap = errors.New("export: nothing visible to export")

const (
	DefaultWidth = 1024
	MaxWidth     = 8192
	margin       = 16
)

// Palette maps template names to fill colors. Unknown templates use
// Fallback.
type Palette struct {
	Fills      map[string]color.Color
	Fallback   color.Color
	Stroke     color.Color
	Background color.Color
}

func DefaultPalette() Palette {
	return Palette{
		Fills: map[string]color.Color{
			document.TemplateLand.Name:  color.RGBA{R: 0xc8, G: 0xb8, B: 0x8a, A: 0xff},
			document.TemplateWater.Name: color.RGBA{R: 0x7f, G: 0xb3, B: 0xd5, A: 0xff},
			document.TemplateCity.Name:  color.RGBA{R: 0x9c, G: 0x3d, B: 0x2f, A: 0xff},
		},
		Fallback:   color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff},
		Stroke:     color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff},
		Background: color.White,
	}
}

// Options control the output image.
type Options struct {
	Width    int
	Palette  Palette
	Captions bool
}

// ContentBounds is the union of every visible item's bounds.
func ContentBounds(m *document.Map) (geom.Rect, bool) {
	var b geom.Rect
	found := false
	for _, l := range m.Layers {
		if l.IsHidden {
			continue
		}
		for _, g := range l.MapItemGroups {
			for _, it := range g.MapItems {
				if it.IsHidden || len(it.Paths) == 0 {
					continue
				}
				if !found {
					b, found = it.Bounds(), true
				} else {
					b = b.Union(it.Bounds())
				}
			}
		}
	}
	return b, found
}

// PNG fits the visible content into opts.Width pixels and writes the image.
func PNG(w io.Writer, m *document.Map, opts Options) error {
	bounds, ok := ContentBounds(m)
	if !ok || bounds.Width <= 0 || bounds.Height <= 0 {
		return ErrEmptyMap
	}
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	width = min(width, MaxWidth)
	if opts.Palette.Fills == nil {
		opts.Palette = DefaultPalette()
	}

	scale := float64(width-2*margin) / bounds.Width
	height := int(bounds.Height*scale) + 2*margin
	view := render.Translate(margin, margin).Multiply(render.View(bounds.TopLeft(), scale))

	dc := gg.NewContext(width, height)
	dc.SetColor(opts.Palette.Background)
	dc.Clear()
	for _, cmd := range render.Compile(m, view, render.DefaultArcSteps) {
		switch cmd.Op {
		case render.OpPath:
			if err := tracePath(dc, cmd.Path); err != nil {
				return fmt.Errorf("export item %s: %w", cmd.ItemID, err)
			}
			if cmd.FillRule == "evenodd" {
				dc.SetFillRule(gg.FillRuleEvenOdd)
			} else {
				dc.SetFillRule(gg.FillRuleWinding)
			}
			fill, ok := opts.Palette.Fills[cmd.Template]
			if !ok {
				fill = opts.Palette.Fallback
			}
			dc.SetColor(fill)
			dc.FillPreserve()
			dc.SetColor(opts.Palette.Stroke)
			dc.SetLineWidth(1)
			dc.Stroke()
		case render.OpCaption:
			if !opts.Captions || cmd.Rect == nil {
				continue
			}
			c := cmd.Rect.Center()
			dc.SetColor(opts.Palette.Stroke)
			dc.DrawStringAnchored(cmd.Text, c.X, c.Y, 0.5, 0.5)
		}
	}
	return dc.EncodePNG(w)
}

func tracePath(dc *gg.Context, path []render.PathCommand) error {
	for _, pc := range path {
		if len(pc) == 0 {
			continue
		}
		switch pc[0] {
		case "M", "L":
			if len(pc) != 3 {
				return fmt.Errorf("malformed %v", pc)
			}
			x, okX := pc[1].(float64)
			y, okY := pc[2].(float64)
			if !okX || !okY {
				return fmt.Errorf("malformed %v", pc)
			}
			if pc[0] == "M" {
				dc.NewSubPath()
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		case "Z":
			dc.ClosePath()
		default:
			return fmt.Errorf("unknown path op %v", pc[0])
		}
	}
	return nil
}
