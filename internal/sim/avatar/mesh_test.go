package avatar_test

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/render/memory"
	"pyre.dev/internal/sim/avatar"
	"pyre.dev/internal/sim/geom"
)

func testResources() *avatar.Resources {
	res := avatar.NewResources()
	res.Set("worm_a", avatar.Visual{Texture: "worms", TexCoords: geom.TexCoord(0, 0, 4, 4, false)})
	res.Set("worm_b", avatar.Visual{Texture: "worms", TexCoords: geom.TexCoord(1, 0, 4, 4, false)})
	res.Set("grass", avatar.Visual{Texture: "tiles", TexCoords: geom.TexCoord(0, 0, 8, 8, true)})
	return res
}

func TestMesh_ShowAllocatesOnceThenUpdates(t *testing.T) {
	r := memory.New()
	m := avatar.NewSprite(r, testResources(), "worm_a")

	if err := m.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	h := m.Handle()
	if h == 0 || !m.Shown() {
		t.Fatalf("expected live handle after show")
	}
	m.Place(mgl64.Vec3{3, 4, 0}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	if err := m.Show(); err != nil {
		t.Fatalf("second show: %v", err)
	}
	if m.Handle() != h {
		t.Fatalf("handle changed: %d -> %d", h, m.Handle())
	}
	st := r.Stats()
	if st.Allocated != 1 || st.Updated != 1 || st.Live != 1 {
		t.Fatalf("stats: %+v", st)
	}
	p, _ := r.Primitive(h)
	if p.Texture != "worms" || len(p.VertexData) != 12 || len(p.TexCoords) != 8 {
		t.Fatalf("primitive: %+v", p)
	}
	if got := geom.Centroid(m.Vertices()); got.Sub(mgl64.Vec3{3, 4, 0}).Len() > 1e-9 {
		t.Fatalf("centroid: got %v", got)
	}
}

func TestMesh_HideWithoutShow(t *testing.T) {
	m := avatar.NewSprite(memory.New(), testResources(), "worm_a")
	if err := m.Hide(); !errors.Is(err, avatar.ErrNotShown) {
		t.Fatalf("expected ErrNotShown, got %v", err)
	}

	if err := m.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if err := m.Hide(); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if m.Shown() {
		t.Fatalf("still shown after hide")
	}
	if err := m.Hide(); !errors.Is(err, avatar.ErrNotShown) {
		t.Fatalf("second hide: expected ErrNotShown, got %v", err)
	}
}

func TestMesh_StateSelectsVisual(t *testing.T) {
	r := memory.New()
	m := avatar.NewMesh(r, testResources(), avatar.Square, map[string][]string{
		"a": {"worm_a"},
		"b": {"worm_b"},
	}, "a")
	if err := m.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	m.SetState("b")
	if err := m.Show(); err != nil {
		t.Fatalf("show b: %v", err)
	}
	p, _ := r.Primitive(m.Handle())
	want := geom.TexCoord(1, 0, 4, 4, false)
	for i := range want {
		if p.TexCoords[i] != want[i] {
			t.Fatalf("tex coords: got %v want %v", p.TexCoords, want)
		}
	}

	m.SetState("missing")
	if err := m.Show(); !errors.Is(err, avatar.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestMesh_BuildErrors(t *testing.T) {
	res := testResources()
	r := memory.New()

	mixed := avatar.NewMesh(r, res, avatar.Cube, map[string][]string{
		"": {"worm_a", "worm_a", "worm_a", "worm_a", "worm_a", "grass"},
	}, "")
	if err := mixed.Show(); !errors.Is(err, avatar.ErrMixedTexture) {
		t.Fatalf("expected ErrMixedTexture, got %v", err)
	}

	short := avatar.NewMesh(r, res, avatar.Cube, map[string][]string{"": {"worm_a", "worm_b"}}, "")
	if err := short.Show(); !errors.Is(err, avatar.ErrFaceCount) {
		t.Fatalf("expected ErrFaceCount, got %v", err)
	}

	unknown := avatar.NewSprite(r, res, "nope")
	if err := unknown.Show(); !errors.Is(err, avatar.ErrUnknownVisual) {
		t.Fatalf("expected ErrUnknownVisual, got %v", err)
	}
	if st := r.Stats(); st.Allocated != 0 {
		t.Fatalf("failed builds must not allocate: %+v", st)
	}
}

func TestMesh_CubeUsesOneKeyPerFace(t *testing.T) {
	r := memory.New()
	m := avatar.NewMesh(r, testResources(), avatar.Cube, map[string][]string{
		"up": {"worm_a", "worm_b", "worm_a", "worm_b", "worm_a", "worm_b"},
	}, "up")
	if err := m.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	p, _ := r.Primitive(m.Handle())
	if len(p.VertexData) != 6*4*3 || len(p.TexCoords) != 6*8 {
		t.Fatalf("cube sizes: %d verts %d tex", len(p.VertexData), len(p.TexCoords))
	}
}

func TestComposite_FanOutAndPlacement(t *testing.T) {
	r := memory.New()
	res := testResources()
	c := avatar.NewComposite()
	a := avatar.NewSprite(r, res, "worm_a")
	b := avatar.NewSprite(r, res, "worm_b")
	a.Place(mgl64.Vec3{2, 0, 0}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	b.Place(mgl64.Vec3{0, 2, 0}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
	c.Add(a)
	c.Add(b)
	c.Place(mgl64.Vec3{10, 0, 0}, mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})

	if c.Shown() {
		t.Fatalf("composite shown before show")
	}
	if err := c.Show(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !c.Shown() || r.Stats().Live != 2 {
		t.Fatalf("expected both children live: %+v", r.Stats())
	}
	if got := geom.Centroid(a.Vertices()); got.Sub(mgl64.Vec3{12, 0, 0}).Len() > 1e-9 {
		t.Fatalf("child a centroid: %v", got)
	}
	if got := geom.Centroid(b.Vertices()); got.Sub(mgl64.Vec3{10, 2, 0}).Len() > 1e-9 {
		t.Fatalf("child b centroid: %v", got)
	}
	live := r.Live()
	if live[0].Handle != a.Handle() || live[1].Handle != b.Handle() {
		t.Fatalf("draw order does not follow insertion order")
	}

	if err := c.Hide(); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if c.Shown() || r.Stats().Live != 0 {
		t.Fatalf("expected nothing live after hide: %+v", r.Stats())
	}
	if err := c.Hide(); !errors.Is(err, avatar.ErrNotShown) {
		t.Fatalf("second hide should report ErrNotShown, got %v", err)
	}
}
