package link

import (
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

// Joint constrains the relative motion of frame 2 with respect to frame 1
// along force directions and about moment directions, both fixed in frame 1.
// With a regularized law it becomes an elastic joint.
type Joint struct {
	base
	ForceDirections  []spatial.Vec3
	MomentDirections []spatial.Vec3
	ForceLaw         law.ForceLaw
	ImpactLaw        law.ImpactLaw
	Regularized      law.RegularizedLaw

	f1, f2 *kinematics.Frame
	dirs   []spatial.Vec3
	rho    spatial.Vec3
	vrel   spatial.Vec3
	g, gd  []float64
	cols   [][]float64
	wb     []float64
	la     []float64
	cons   []*Constraint
}

// NewJoint creates a rigid joint with bilateral force and impact laws.
func NewJoint(name, frame1, frame2 string, forceDirs, momentDirs []spatial.Vec3) *Joint {
	return &Joint{
		base:             base{name: name, paths: []string{frame1, frame2}},
		ForceDirections:  forceDirs,
		MomentDirections: momentDirs,
		ForceLaw:         law.BilateralConstraint{},
		ImpactLaw:        law.BilateralImpact{},
	}
}

// NewElasticJoint creates a joint whose rows follow a regularized law.
func NewElasticJoint(name, frame1, frame2 string, forceDirs, momentDirs []spatial.Vec3, l law.RegularizedLaw) *Joint {
	j := NewJoint(name, frame1, frame2, forceDirs, momentDirs)
	j.ForceLaw, j.ImpactLaw, j.Regularized = nil, nil, l
	return j
}

func (j *Joint) SetValued() bool { return j.Regularized == nil }

func (j *Joint) size() int { return len(j.ForceDirections) + len(j.MomentDirections) }

func (j *Joint) Connect(resolve Resolver, nu int, tol Tolerances) error {
	k := j.size()
	if k == 0 || k > 6 {
		return dynamo.Modelf(j.name, "joint needs between 1 and 6 directions, got %d", k)
	}
	if (j.ForceLaw == nil) == (j.Regularized == nil) {
		return dynamo.Modelf(j.name, "joint needs either a set-valued or a regularized law")
	}
	if j.ForceLaw != nil && j.ImpactLaw == nil {
		j.ImpactLaw = law.BilateralImpact{}
	}
	for i, d := range append(append([]spatial.Vec3(nil), j.ForceDirections...), j.MomentDirections...) {
		if !(d.Len() > 0) {
			return dynamo.Modelf(j.name, "direction %d is zero", i)
		}
	}
	fs, err := j.resolve(resolve)
	if err != nil {
		return err
	}
	j.f1, j.f2 = fs[0], fs[1]
	if j.f1 == j.f2 {
		return dynamo.Modelf(j.name, "joint connects frame %s to itself", j.f1.Path())
	}
	j.nu, j.tol = nu, tol
	j.dirs = make([]spatial.Vec3, k)
	j.g = make([]float64, k)
	j.gd = make([]float64, k)
	j.wb = make([]float64, k)
	j.la = make([]float64, k)
	j.cols = make([][]float64, k)
	for i := range j.cols {
		j.cols[i] = make([]float64, nu)
	}
	if j.ForceLaw != nil {
		j.cons = make([]*Constraint, k)
		for i := range j.cons {
			j.cons[i] = newConstraint(j, ncp.ForceBlock(j.name, j.ForceLaw), nu)
		}
	}
	return nil
}

func (j *Joint) Update(t float64) error {
	a1 := j.f1.Orientation()
	nF := len(j.ForceDirections)
	for i, d := range j.ForceDirections {
		j.dirs[i] = a1.Mul3x1(d.Normalize())
	}
	for i, d := range j.MomentDirections {
		j.dirs[nF+i] = a1.Mul3x1(d.Normalize())
	}
	r1, r2 := j.f1.Position(), j.f2.Position()
	v1, v2 := j.f1.Velocity(), j.f2.Velocity()
	w1, w2 := j.f1.AngularVelocity(), j.f2.AngularVelocity()
	j.rho = r2.Sub(r1)
	j.vrel = v2.Sub(v1.Add(w1.Cross(j.rho)))

	// Small-angle rotation of frame 2 relative to frame 1, world coordinates.
	rel := a1.Transpose().Mul3(j.f2.Orientation())
	phi := a1.Mul3x1(spatial.Vec3{
		0.5 * (rel.At(2, 1) - rel.At(1, 2)),
		0.5 * (rel.At(0, 2) - rel.At(2, 0)),
		0.5 * (rel.At(1, 0) - rel.At(0, 1)),
	})

	gT1, gT2 := j.f1.GyroscopicAcceleration(), j.f2.GyroscopicAcceleration()
	gR1, gR2 := j.f1.GyroscopicAngularAcceleration(), j.f2.GyroscopicAngularAcceleration()
	for i, d := range j.dirs {
		col := j.cols[i]
		zero(col)
		wd := w1.Cross(d)
		if i < nF {
			j.g[i] = d.Dot(j.rho)
			j.gd[i] = d.Dot(j.vrel)
			pointColumn(col, j.f2, spatial.Zero, d, 1)
			pointColumn(col, j.f1, j.rho, d, -1)
			acc := gT2.Sub(gT1).Sub(gR1.Cross(j.rho)).Sub(w1.Cross(v2.Sub(v1)))
			j.wb[i] = wd.Dot(j.vrel) + d.Dot(acc)
		} else {
			j.g[i] = d.Dot(phi)
			j.gd[i] = d.Dot(w2.Sub(w1))
			rotationColumn(col, j.f2, d, 1)
			rotationColumn(col, j.f1, d, -1)
			j.wb[i] = wd.Dot(w2.Sub(w1)) + d.Dot(gR2.Sub(gR1))
		}
		if j.Regularized != nil {
			j.la[i] = j.Regularized.Force(j.g[i], j.gd[i])
		}
	}
	for i, c := range j.cons {
		setColumn(c.W, 0, j.cols[i])
		c.Wb[0] = j.wb[i]
		c.Gd[0] = j.gd[i]
	}
	return nil
}

// Gaps returns the current constraint violations per direction.
func (j *Joint) Gaps() []float64 { return j.g }

func (j *Joint) GapVelocities() []float64 { return j.gd }

func (j *Joint) AddSmoothForces(h []float64) {
	if j.Regularized == nil {
		return
	}
	for i, col := range j.cols {
		for k, v := range col {
			h[k] += v * j.la[i]
		}
	}
}

func (j *Joint) Constraints(level Level) []*Constraint {
	if j.ForceLaw == nil {
		return nil
	}
	if level == ForceLevel {
		return j.cons
	}
	out := make([]*Constraint, len(j.cons))
	for i, c := range j.cons {
		ic := newConstraint(j, ncp.ImpactBlock(j.name, j.ImpactLaw, j.gd[i]), j.nu)
		ic.W.Copy(c.W)
		ic.Gd[0] = j.gd[i]
		out[i] = ic
	}
	return out
}

func (j *Joint) Forces() []float64 {
	if j.ForceLaw == nil {
		return append([]float64(nil), j.la...)
	}
	out := make([]float64, len(j.cons))
	for i, c := range j.cons {
		out[i] = c.La[0]
	}
	return out
}

func (j *Joint) PotentialEnergy() float64 {
	rb, ok := j.Regularized.(law.RegularizedBilateral)
	if !ok {
		return 0
	}
	e := 0.0
	for _, g := range j.g {
		e += 0.5 * rb.C * g * g
	}
	return e
}
