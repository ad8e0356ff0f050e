package geom

import "github.com/go-gl/mathgl/mgl64"

// RotationMatrix builds the three axis rotations for rot = [x, y, z] angles.
func RotationMatrix(rot mgl64.Vec3) (rx, ry, rz mgl64.Mat3) {
	return mgl64.Rotate3DX(rot[0]), mgl64.Rotate3DY(rot[1]), mgl64.Rotate3DZ(rot[2])
}

// Rotate returns Rz·Ry·Rx·v for every vertex.
func Rotate(vertices []mgl64.Vec3, rot mgl64.Vec3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(vertices))
	copy(out, vertices)
	return rotateInPlace(out, rot)
}

// RotateVec rotates a single vector; used for body-frame velocities.
func RotateVec(v, rot mgl64.Vec3) mgl64.Vec3 {
	if rot == (mgl64.Vec3{}) {
		return v
	}
	return combined(rot).Mul3x1(v)
}

func rotateInPlace(vertices []mgl64.Vec3, rot mgl64.Vec3) []mgl64.Vec3 {
	if rot == (mgl64.Vec3{}) {
		return vertices
	}
	m := combined(rot)
	for i, v := range vertices {
		vertices[i] = m.Mul3x1(v)
	}
	return vertices
}

func combined(rot mgl64.Vec3) mgl64.Mat3 {
	rx, ry, rz := RotationMatrix(rot)
	return rz.Mul3(ry).Mul3(rx)
}
