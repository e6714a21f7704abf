package dispatch

import "math/rand"

// Mat is a dense row-major f32 matrix.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed r×c matrix.
func NewMat(r, c int) *Mat {
	return &Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// RandMat fills an r×c matrix with deterministic values in [-1, 1).
func RandMat(r, c int, seed int64) *Mat {
	m := NewMat(r, c)
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

// Row returns row i as a slice aliasing the matrix storage.
func (m *Mat) Row(i int) []float32 {
	return m.Data[i*m.C : (i+1)*m.C]
}
