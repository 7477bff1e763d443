package law

import "math"

// RegularizedLaw is a smooth scalar force law la = f(g, gd).
type RegularizedLaw interface {
	Force(g, gd float64) float64
}

// RegularizedBilateral is a linear spring-damper acting on the gap.
type RegularizedBilateral struct {
	C float64
	D float64
}

func (l RegularizedBilateral) Force(g, gd float64) float64 {
	return -l.C*g - l.D*gd
}

// RegularizedUnilateral is a penalty contact: it only pushes while the gap is
// negative and never pulls.
type RegularizedUnilateral struct {
	C float64
	D float64
}

func (l RegularizedUnilateral) Force(g, gd float64) float64 {
	if g >= 0 {
		return 0
	}
	return math.Max(-l.C*g-l.D*gd, 0)
}

// RegularizedFriction smooths a friction law by a linear ramp for sliding
// speeds below Eps.
type RegularizedFriction struct {
	Law FrictionLaw
	Eps float64
}

func (l RegularizedFriction) Dim() int { return l.Law.Dim() }

// Force returns the friction force for tangential velocity gd and normal force laN.
func (l RegularizedFriction) Force(gd []float64, laN float64) []float64 {
	v := Norm(gd)
	bound := l.Law.Mu(v) * math.Abs(laN)
	den := math.Max(v, l.Eps)
	out := make([]float64, len(gd))
	if den == 0 {
		return out
	}
	for i := range gd {
		out[i] = -bound * gd[i] / den
	}
	return out
}
