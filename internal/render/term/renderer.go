// Package term previews a running scene in a terminal. It records primitives
// like the memory renderer and, on Draw, plots each one's centroid onto a
// tcell screen.
package term

import (
	"math"
	"slices"

	"github.com/gdamore/tcell/v2"

	"pyre.dev/internal/render/memory"
	"pyre.dev/internal/sim/avatar"
)

type Options struct {
	// Scale is terminal columns per world unit. Rows get half of it since
	// cells are about twice as tall as they are wide. Zero means 4.
	Scale float64
	// Fallback is drawn for primitives no glyph matches. Zero means '#'.
	Fallback rune
}

type glyph struct {
	tex   avatar.TextureRef
	tc    []float64
	r     rune
	style tcell.Style
}

type Renderer struct {
	*memory.Renderer

	screen   tcell.Screen
	scale    float64
	glyphs   []glyph
	fallback rune
}

var palette = []tcell.Color{
	tcell.ColorGreen,
	tcell.ColorYellow,
	tcell.ColorAqua,
	tcell.ColorFuchsia,
	tcell.ColorOrange,
	tcell.ColorSilver,
}

func New(screen tcell.Screen, opts Options) *Renderer {
	if opts.Scale <= 0 {
		opts.Scale = 4
	}
	if opts.Fallback == 0 {
		opts.Fallback = '#'
	}
	return &Renderer{
		Renderer: memory.New(),
		screen:   screen,
		scale:    opts.Scale,
		fallback: opts.Fallback,
	}
}

func (r *Renderer) Screen() tcell.Screen { return r.screen }

// UseGlyphs maps visual keys to runes. Keys are resolved against res now;
// keys res does not know are skipped.
func (r *Renderer) UseGlyphs(res *avatar.Resources, glyphs map[string]rune) {
	keys := make([]string, 0, len(glyphs))
	for k := range glyphs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	r.glyphs = r.glyphs[:0]
	for i, k := range keys {
		v, err := res.Lookup(k)
		if err != nil {
			continue
		}
		r.glyphs = append(r.glyphs, glyph{
			tex:   v.Texture,
			tc:    v.TexCoords,
			r:     glyphs[k],
			style: tcell.StyleDefault.Foreground(palette[i%len(palette)]),
		})
	}
}

func (r *Renderer) glyphFor(p memory.Primitive) (rune, tcell.Style) {
	for _, g := range r.glyphs {
		if g.tex != p.Texture || len(p.TexCoords) < len(g.tc) {
			continue
		}
		if slices.Equal(g.tc, p.TexCoords[:len(g.tc)]) {
			return g.r, g.style
		}
	}
	return r.fallback, tcell.StyleDefault.Foreground(tcell.ColorGray)
}

// Cell maps a world position to a screen cell; the origin is the screen centre.
func (r *Renderer) Cell(x, y float64) (col, row int) {
	w, h := r.screen.Size()
	col = w/2 + int(math.Round(x*r.scale))
	row = h/2 - int(math.Round(y*r.scale/2))
	return col, row
}

// Draw repaints the screen with every live primitive and a status line.
// Primitives allocated later draw over earlier ones.
func (r *Renderer) Draw(status string) {
	r.screen.Clear()
	w, h := r.screen.Size()
	for _, p := range r.Live() {
		x, y, ok := centroid(p.VertexData)
		if !ok {
			continue
		}
		col, row := r.Cell(x, y)
		if col < 0 || col >= w || row < 1 || row >= h {
			continue
		}
		ch, st := r.glyphFor(p)
		r.screen.SetContent(col, row, ch, nil, st)
	}
	st := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	for i, ch := range []rune(status) {
		if i >= w {
			break
		}
		r.screen.SetContent(i, 0, ch, nil, st)
	}
	r.screen.Show()
}

func centroid(v []float64) (x, y float64, ok bool) {
	n := len(v) / 3
	if n == 0 {
		return 0, 0, false
	}
	for i := 0; i < n; i++ {
		x += v[3*i]
		y += v[3*i+1]
	}
	return x / float64(n), y / float64(n), true
}
