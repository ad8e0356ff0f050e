package avatar

import (
	"fmt"
	"sort"
)

// Visual is what one visual key resolves to: a texture and the quad's tex coords in it.
type Visual struct {
	Texture   TextureRef
	TexCoords []float64
}

// Resources is the texture lookup table shared (not copied) by every avatar of a scene.
type Resources struct {
	visuals map[string]Visual
}

func NewResources() *Resources {
	return &Resources{visuals: map[string]Visual{}}
}

func (r *Resources) Set(key string, v Visual) {
	r.visuals[key] = v
}

func (r *Resources) Lookup(key string) (Visual, error) {
	if r == nil {
		return Visual{}, fmt.Errorf("%w: %q (no resource table)", ErrUnknownVisual, key)
	}
	v, ok := r.visuals[key]
	if !ok {
		return Visual{}, fmt.Errorf("%w: %q", ErrUnknownVisual, key)
	}
	return v, nil
}

func (r *Resources) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.visuals[key]
	return ok
}

func (r *Resources) Keys() []string {
	out := make([]string, 0, len(r.visuals))
	for k := range r.visuals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
