package avatar

import "errors"

var (
	// ErrUnknownState means the avatar's state has no entry in its state dict.
	ErrUnknownState = errors.New("avatar: unknown state")
	// ErrUnknownVisual means a visual key has no entry in the resource table.
	ErrUnknownVisual = errors.New("avatar: unknown visual key")
	// ErrMixedTexture means one primitive's faces resolve to different textures.
	ErrMixedTexture = errors.New("avatar: faces use different textures")
	// ErrNotShown is returned by Hide when no render resource is held.
	ErrNotShown = errors.New("avatar: hide without a live render resource")
)
