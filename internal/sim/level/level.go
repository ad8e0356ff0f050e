// Package level turns a Tiled map into avatars: one composite per layer,
// one square mesh per tile, all under a level-wide coordinate.
package level

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/avatar"
	"pyre.dev/internal/sim/geom"
)

type Options struct {
	// Scale converts pixels to world units. Zero means 1.
	Scale    float64
	Position mgl64.Vec3
	Rotation mgl64.Vec3
	// Center ignores Position's x and y and centres the map on the origin.
	Center bool
	// Textures maps a tileset image to a renderer texture. Unlisted images use the image path.
	Textures map[string]avatar.TextureRef
}

// Level is a static agent whose avatar is the whole map.
type Level struct {
	*agent.Agent

	name   string
	m      *Map
	scale  float64
	root   *avatar.Composite
	layers []*avatar.Composite
	tiles  int
}

// VisualKey is the resource key for a level's gid.
func VisualKey(level string, gid int) string {
	return fmt.Sprintf("%s#%d", level, gid)
}

// RegisterVisuals adds one visual per gid of m to res. Tiles count from the
// top-left of each tileset image, row by row.
func RegisterVisuals(res *avatar.Resources, name string, m *Map, textures map[string]avatar.TextureRef) {
	for _, ts := range m.Tilesets {
		tex, ok := textures[ts.Image]
		if !ok {
			tex = avatar.TextureRef(ts.Image)
		}
		cols, rows := ts.Grid()
		gid := ts.FirstGID
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				res.Set(VisualKey(name, gid), avatar.Visual{
					Texture:   tex,
					TexCoords: geom.TexCoord(col, row, cols, rows, true),
				})
				gid++
			}
		}
	}
}

// New registers m's visuals and builds the layer avatars. Nothing is
// allocated in the renderer until the level is shown.
func New(r avatar.Renderer, res *avatar.Resources, name string, m *Map, opts Options) (*Level, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidMap)
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	RegisterVisuals(res, name, m, opts.Textures)

	root := avatar.NewComposite()
	l := &Level{
		Agent: agent.New(root),
		name:  name,
		m:     m,
		scale: scale,
		root:  root,
	}
	l.Position = opts.Position
	l.Rotation = opts.Rotation
	rc := root.Coordinate()
	rc.TranslateFirst = true

	tw, th := float64(m.TileWidth), float64(m.TileHeight)
	for z, layer := range m.Layers {
		lc := avatar.NewComposite()
		lc.Coordinate().Position = mgl64.Vec3{0, 0, float64(z) / 10}
		switch layer.Type {
		case TileLayer:
			for idx, gid := range layer.Data {
				if gid == 0 {
					continue
				}
				mesh := avatar.NewSprite(r, res, VisualKey(name, gid))
				c := mesh.Coordinate()
				c.CenterFlag = false
				c.TranslateFirst = true
				c.Size = mgl64.Vec3{tw, th, 1}
				c.Scale = scale
				c.Position = mgl64.Vec3{float64(idx%layer.Width) * tw, -float64(idx/layer.Width) * th, 0}
				lc.Add(mesh)
				l.tiles++
			}
		case ObjectGroup:
			for _, o := range layer.Objects {
				if o.GID == 0 {
					continue
				}
				mesh := avatar.NewSprite(r, res, VisualKey(name, o.GID))
				c := mesh.Coordinate()
				c.CenterFlag = false
				c.Size = mgl64.Vec3{tw, th, 1}
				c.Scale = scale
				// Tiled rotates clockwise in degrees.
				c.Rotation = mgl64.Vec3{0, 0, -o.Rotation * math.Pi / 180}
				c.Position = mgl64.Vec3{o.X, -o.Y, 0}.Mul(scale)
				lc.Add(mesh)
				l.tiles++
			}
		}
		root.Add(lc)
		l.layers = append(l.layers, lc)
	}
	if opts.Center {
		l.Center()
	}
	return l, nil
}

func (l *Level) Kind() string { return "level" }

func (l *Level) Name() string { return l.name }

func (l *Level) Tiles() int { return l.tiles }

func (l *Level) Layers() []*avatar.Composite { return l.layers }

// Center puts the middle of the map on the origin, keeping z. Row 0 sits
// above y=0 and later rows go down, hence the one-tile correction.
func (l *Level) Center() {
	w := float64(l.m.Width * l.m.TileWidth)
	h := float64(l.m.Height * l.m.TileHeight)
	l.Position = mgl64.Vec3{
		-l.scale * w / 2,
		l.scale * (h/2 - float64(l.m.TileHeight)),
		l.Position[2],
	}
}

// Update advances the level clock. Tiles are static, so nothing is redrawn.
func (l *Level) Update(dt float64) error {
	l.T += dt
	return nil
}

func (l *Level) Show() error {
	c := l.root.Coordinate()
	c.Position = l.Position
	c.Rotation = l.Rotation
	return l.root.Show()
}

// Hide releases every shown tile. Hiding a level that is not shown is a no-op.
func (l *Level) Hide() error {
	if !l.root.Shown() {
		return nil
	}
	return l.root.Hide()
}
