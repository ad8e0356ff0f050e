package memory

import (
	"errors"
	"testing"
)

func TestRenderer_Lifecycle(t *testing.T) {
	r := New()
	h, err := r.AllocatePrimitive([]float64{1, 2, 3}, []float64{0, 0}, "garden")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := r.UpdatePrimitive(h, []float64{4, 5, 6}, []float64{1, 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, ok := r.Primitive(h)
	if !ok || p.VertexData[0] != 4 || p.Updates != 1 || p.Texture != "garden" {
		t.Fatalf("unexpected primitive: %+v ok=%v", p, ok)
	}
	if err := r.ReleasePrimitive(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := r.ReleasePrimitive(h); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("double release: got %v", err)
	}
	if err := r.UpdatePrimitive(h, nil, nil); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("update after release: got %v", err)
	}
	st := r.Stats()
	if st.Allocated != 1 || st.Updated != 1 || st.Released != 1 || st.Live != 0 {
		t.Fatalf("stats: %+v", st)
	}
}
