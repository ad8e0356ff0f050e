package avatar

// TextureRef names a texture owned by the renderer. Avatars never load textures themselves.
type TextureRef string

// Handle identifies a primitive allocated by a Renderer. The zero Handle is never valid.
type Handle uint64

// Renderer is the draw-side collaborator. Avatars call exactly these three methods.
type Renderer interface {
	AllocatePrimitive(vertexData, texCoords []float64, tex TextureRef) (Handle, error)
	UpdatePrimitive(h Handle, vertexData, texCoords []float64) error
	ReleasePrimitive(h Handle) error
}
