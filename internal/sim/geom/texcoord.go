package geom

// TexCoord returns the corners of cell (col, row) in an m×n texture atlas as
// four (u, v) pairs: bottom-left, bottom-right, top-right, top-left.
// With flipY the row counts from the top of the image.
func TexCoord(col, row, m, n int, flipY bool) []float64 {
	if m <= 0 {
		m = 1
	}
	if n <= 0 {
		n = 1
	}
	w := 1.0 / float64(m)
	h := 1.0 / float64(n)
	dx := float64(col) * w
	dy := float64(row) * h
	if flipY {
		dy = 1.0 - dy - h
	}
	return []float64{dx, dy, dx + w, dy, dx + w, dy + h, dx, dy + h}
}
