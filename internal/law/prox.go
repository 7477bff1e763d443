// Package law holds the constitutive laws of links: set-valued force and
// impact laws evaluated through proximal projections, friction laws, and
// their regularized (smooth) counterparts.
package law

import "math"

// Sign returns +1 for x >= 0 and -1 otherwise.
func Sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// ProxCN projects x onto the non-negative half line.
func ProxCN(x float64) float64 {
	return math.Max(x, 0)
}

// ProxCT1D clamps x to the interval [-r, r].
func ProxCT1D(x, r float64) float64 {
	if math.Abs(x) <= r {
		return x
	}
	return Sign(x) * r
}

// ProxCT2D projects x onto the disk of radius r centred at the origin.
func ProxCT2D(x [2]float64, r float64) [2]float64 {
	n := math.Hypot(x[0], x[1])
	if n <= r {
		return x
	}
	if n == 0 {
		return [2]float64{}
	}
	s := r / n
	return [2]float64{x[0] * s, x[1] * s}
}

// Norm is the Euclidean norm of a friction-sized vector.
func Norm(x []float64) float64 {
	switch len(x) {
	case 0:
		return 0
	case 1:
		return math.Abs(x[0])
	}
	return math.Hypot(x[0], x[1])
}
