// Package memory is a headless renderer that keeps every live primitive in a map.
// The simulation runs against it when no display is attached, and tests use it to
// check what avatars asked the renderer to do.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"pyre.dev/internal/sim/avatar"
)

var ErrUnknownHandle = errors.New("memory renderer: unknown handle")

type Primitive struct {
	Handle     avatar.Handle
	Texture    avatar.TextureRef
	VertexData []float64
	TexCoords  []float64
	Updates    int
}

type Stats struct {
	Allocated int
	Updated   int
	Released  int
	Live      int
}

type Renderer struct {
	mu    sync.Mutex
	next  avatar.Handle
	live  map[avatar.Handle]*Primitive
	stats Stats
}

func New() *Renderer {
	return &Renderer{live: map[avatar.Handle]*Primitive{}}
}

func (r *Renderer) AllocatePrimitive(vertexData, texCoords []float64, tex avatar.TextureRef) (avatar.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	p := &Primitive{
		Handle:     r.next,
		Texture:    tex,
		VertexData: append([]float64(nil), vertexData...),
		TexCoords:  append([]float64(nil), texCoords...),
	}
	r.live[p.Handle] = p
	r.stats.Allocated++
	return p.Handle, nil
}

func (r *Renderer) UpdatePrimitive(h avatar.Handle, vertexData, texCoords []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.live[h]
	if p == nil {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	p.VertexData = append(p.VertexData[:0], vertexData...)
	p.TexCoords = append(p.TexCoords[:0], texCoords...)
	p.Updates++
	r.stats.Updated++
	return nil
}

func (r *Renderer) ReleasePrimitive(h avatar.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(r.live, h)
	r.stats.Released++
	return nil
}

// Primitive returns a copy of a live primitive.
func (r *Renderer) Primitive(h avatar.Handle) (Primitive, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.live[h]
	if p == nil {
		return Primitive{}, false
	}
	cp := *p
	cp.VertexData = append([]float64(nil), p.VertexData...)
	cp.TexCoords = append([]float64(nil), p.TexCoords...)
	return cp, true
}

// Live returns copies of all live primitives ordered by handle (allocation order).
func (r *Renderer) Live() []Primitive {
	r.mu.Lock()
	hs := make([]avatar.Handle, 0, len(r.live))
	for h := range r.live {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	out := make([]Primitive, 0, len(hs))
	for _, h := range hs {
		if p, ok := r.Primitive(h); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Live = len(r.live)
	return s
}
