package law

import "math"

// FrictionLaw is a Coulomb-type law in one (planar) or two (spatial)
// tangential directions. The admissible set is the disk of radius
// Mu(v)*|laN| where v is the sliding speed. The same laws serve at
// acceleration level (forces) and at velocity level (impulses).
type FrictionLaw interface {
	Dim() int
	Mu(v float64) float64
}

// PlanarCoulomb is dry friction along one tangent.
type PlanarCoulomb struct{ MuC float64 }

func (PlanarCoulomb) Dim() int {
	return 1
}

func (l PlanarCoulomb) Mu(v float64) float64 {
	return l.MuC
}

// SpatialCoulomb is isotropic dry friction in the tangent plane.
type SpatialCoulomb struct{ MuC float64 }

func (SpatialCoulomb) Dim() int {
	return 2
}

func (l SpatialCoulomb) Mu(v float64) float64 {
	return l.MuC
}

// PlanarStribeck makes the friction coefficient a function of the sliding speed.
type PlanarStribeck struct{ F StribeckFunction }

func (PlanarStribeck) Dim() int {
	return 1
}

func (l PlanarStribeck) Mu(v float64) float64 {
	return l.F.Eval(v)
}

type SpatialStribeck struct{ F StribeckFunction }

func (SpatialStribeck) Dim() int {
	return 2
}

func (l SpatialStribeck) Mu(v float64) float64 {
	return l.F.Eval(v)
}

// StribeckFunction decays from the static coefficient Mu0 at rest to the
// kinetic coefficient MuKin: mu(v) = MuKin + (Mu0-MuKin)*exp(-(|v|/Vs)^Delta).
type StribeckFunction struct {
	Mu0   float64
	MuKin float64
	Vs    float64
	Delta float64
}

func (f StribeckFunction) Eval(v float64) float64 {
	if f.Vs <= 0 {
		return f.MuKin
	}
	d := f.Delta
	if d == 0 {
		d = 2
	}
	return f.MuKin + (f.Mu0-f.MuKin)*math.Exp(-math.Pow(math.Abs(v)/f.Vs, d))
}

// ProjectFriction returns the projection of la - r*s onto the disk of the
// given radius. dst must have the length of la.
func ProjectFriction(dst, la, s []float64, radius, r float64) {
	switch len(la) {
	case 1:
		dst[0] = ProxCT1D(la[0]-r*s[0], radius)
	case 2:
		p := ProxCT2D([2]float64{la[0] - r*s[0], la[1] - r*s[1]}, radius)
		dst[0], dst[1] = p[0], p[1]
	}
}

// DiffFriction returns the derivative of ProjectFriction with respect to its
// argument (row-major dim x dim) and with respect to the radius.
func DiffFriction(la, s []float64, radius, r float64) (dArg, dRadius []float64) {
	n := len(la)
	dArg = make([]float64, n*n)
	dRadius = make([]float64, n)
	arg := make([]float64, n)
	for i := range arg {
		arg[i] = la[i] - r*s[i]
	}
	norm := Norm(arg)
	if norm <= radius {
		for i := 0; i < n; i++ {
			dArg[i*n+i] = 1
		}
		return dArg, dRadius
	}
	if n == 1 {
		dRadius[0] = Sign(arg[0])
		return dArg, dRadius
	}
	scale := radius / norm
	for i := 0; i < n; i++ {
		ni := arg[i] / norm
		dRadius[i] = ni
		for j := 0; j < n; j++ {
			d := 0.0
			if i == j {
				d = 1
			}
			dArg[i*n+j] = scale * (d - ni*arg[j]/norm)
		}
	}
	return dArg, dRadius
}

// FrictionFulfilled checks stick (|s| small, la inside the disk) or slip
// (la opposing s on the disk boundary).
func FrictionFulfilled(la, s []float64, radius, laTol, sTol float64) bool {
	v := Norm(s)
	if v <= sTol {
		return Norm(la) <= radius+laTol
	}
	for i := range la {
		if math.Abs(la[i]+radius*s[i]/v) > laTol {
			return false
		}
	}
	return true
}

// SlipDirection returns s/|s|, with the +1 convention for a zero component in
// the planar case and the first tangent for a zero vector in the spatial case.
func SlipDirection(s []float64) []float64 {
	out := make([]float64, len(s))
	v := Norm(s)
	switch {
	case len(s) == 1:
		out[0] = Sign(s[0])
	case v == 0:
		out[0] = 1
	default:
		for i := range s {
			out[i] = s[i] / v
		}
	}
	return out
}
