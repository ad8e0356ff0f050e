package avatar

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/geom"
)

// ErrFaceCount means a state maps to a number of visual keys that is neither 1 nor the face count.
var ErrFaceCount = errors.New("avatar: visual keys do not match face count")

// Shape is a fixed set of quad faces, four vertices each.
type Shape struct {
	Name  string
	Faces [][4]mgl64.Vec3
}

func (s Shape) vertices() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, 0, 4*len(s.Faces))
	for _, f := range s.Faces {
		out = append(out, f[:]...)
	}
	return out
}

var Square = Shape{
	Name:  "square",
	Faces: [][4]mgl64.Vec3{{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}},
}

var cubeCorners = [8]mgl64.Vec3{
	{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {0, 1, 1},
	{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1},
}

func cubeFace(a, b, c, d int) [4]mgl64.Vec3 {
	return [4]mgl64.Vec3{cubeCorners[a], cubeCorners[b], cubeCorners[c], cubeCorners[d]}
}

// Cube faces in order: top, bottom, front, back, left, right.
var Cube = Shape{
	Name: "cube",
	Faces: [][4]mgl64.Vec3{
		cubeFace(1, 3, 7, 5),
		cubeFace(0, 2, 6, 4),
		cubeFace(0, 1, 5, 4),
		cubeFace(2, 3, 7, 6),
		cubeFace(0, 1, 3, 2),
		cubeFace(4, 5, 7, 6),
	},
}

// Mesh is a single renderer primitive: one shape, one texture.
type Mesh struct {
	r     Renderer
	res   *Resources
	shape Shape

	stateDict map[string][]string
	state     string

	coord  geom.Coordinate
	parent *Composite

	handle Handle
}

// NewMesh builds a mesh whose state selects visual keys through stateDict.
// A state may list one key (used on every face) or one key per face.
func NewMesh(r Renderer, res *Resources, shape Shape, stateDict map[string][]string, state string) *Mesh {
	return &Mesh{
		r:         r,
		res:       res,
		shape:     shape,
		stateDict: stateDict,
		state:     state,
		coord:     geom.NewCoordinate(),
	}
}

// NewSprite is a square showing one fixed visual key.
func NewSprite(r Renderer, res *Resources, key string) *Mesh {
	return NewMesh(r, res, Square, map[string][]string{"": {key}}, "")
}

func (m *Mesh) Show() error {
	vertexData, texCoords, tex, err := m.build()
	if err != nil {
		return err
	}
	if m.handle == 0 {
		h, err := m.r.AllocatePrimitive(vertexData, texCoords, tex)
		if err != nil {
			return fmt.Errorf("allocate %s: %w", m.shape.Name, err)
		}
		m.handle = h
		return nil
	}
	if err := m.r.UpdatePrimitive(m.handle, vertexData, texCoords); err != nil {
		return fmt.Errorf("update %s: %w", m.shape.Name, err)
	}
	return nil
}

func (m *Mesh) Hide() error {
	if m.handle == 0 {
		return fmt.Errorf("%w (%s, state %q)", ErrNotShown, m.shape.Name, m.state)
	}
	h := m.handle
	m.handle = 0
	if err := m.r.ReleasePrimitive(h); err != nil {
		return fmt.Errorf("release %s: %w", m.shape.Name, err)
	}
	return nil
}

func (m *Mesh) Shown() bool { return m.handle != 0 }

func (m *Mesh) Handle() Handle { return m.handle }

func (m *Mesh) State() string { return m.state }

func (m *Mesh) SetState(state string) { m.state = state }

func (m *Mesh) Place(position, rotation, size mgl64.Vec3) {
	m.coord.Position = position
	m.coord.Rotation = rotation
	m.coord.Size = size
}

func (m *Mesh) Coordinate() *geom.Coordinate { return &m.coord }

func (m *Mesh) attach(parent *Composite) { m.parent = parent }

// Vertices returns the placed vertices without touching the renderer.
func (m *Mesh) Vertices() []mgl64.Vec3 {
	return geom.Compose(m.shape.vertices(), parentChain(&m.coord, m.parent)...)
}

func (m *Mesh) build() (vertexData, texCoords []float64, tex TextureRef, err error) {
	keys, ok := m.stateDict[m.state]
	if !ok {
		return nil, nil, "", fmt.Errorf("%w: %q (%s)", ErrUnknownState, m.state, m.shape.Name)
	}
	faces := len(m.shape.Faces)
	if len(keys) != 1 && len(keys) != faces {
		return nil, nil, "", fmt.Errorf("%w: state %q has %d keys for %d faces", ErrFaceCount, m.state, len(keys), faces)
	}
	texCoords = make([]float64, 0, 8*faces)
	for i := 0; i < faces; i++ {
		key := keys[0]
		if len(keys) == faces {
			key = keys[i]
		}
		v, err := m.res.Lookup(key)
		if err != nil {
			return nil, nil, "", err
		}
		if i == 0 {
			tex = v.Texture
		} else if v.Texture != tex {
			return nil, nil, "", fmt.Errorf("%w: %q vs %q", ErrMixedTexture, tex, v.Texture)
		}
		texCoords = append(texCoords, v.TexCoords...)
	}
	return geom.Flatten(m.Vertices()), texCoords, tex, nil
}
