package math

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief a 4x4 column-major matrix, laid out the way shaders read it. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func NewMat4Identity() Mat4 {
	m := Mat4{}
	m.Data[0] = 1.0
	m.Data[5] = 1.0
	m.Data[10] = 1.0
	m.Data[15] = 1.0
	return m
}

// NewMat4Translation returns an identity matrix moved by (x, y, z).
func NewMat4Translation(x, y, z float32) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = x
	m.Data[13] = y
	m.Data[14] = z
	return m
}

// NewMat4Scale returns a matrix scaling each axis independently.
func NewMat4Scale(x, y, z float32) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = x
	m.Data[5] = y
	m.Data[10] = z
	return m
}
