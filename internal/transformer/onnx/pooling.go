package onnx

import "math"

// normEpsilon guards the division for all-zero vectors without meaningfully
// distorting non-degenerate ones.
const normEpsilon = 1e-12

// Normalize returns v scaled to unit L2 norm.
func Normalize(v []float32) []float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	n := math.Sqrt(s) + normEpsilon
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// firstTokenRow returns the hidden-state row at sequence position 0.
// hidden: [T*H] flattened row-major for one sequence.
func firstTokenRow(hidden []float32, H int) []float32 {
	row := make([]float32, H)
	copy(row, hidden[:H])
	return row
}
