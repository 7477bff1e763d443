package mbs

import (
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

// BodyState is the pose and velocity of a body's centre of mass frame.
type BodyState struct {
	Path            string
	Position        spatial.Vec3
	Orientation     spatial.Mat3
	Velocity        spatial.Vec3
	AngularVelocity spatial.Vec3
}

// LinkState holds the force values a link reports.
type LinkState struct {
	Name   string
	Forces []float64
}

// Snapshot is a read-only copy of the model at one accepted point.
type Snapshot struct {
	T      float64
	Bodies []BodyState
	Links  []LinkState
}

// Snapshot evaluates the model at x and copies out poses and link forces.
// Taking a snapshot does not change the accepted activity of any link.
func (s *Solver) Snapshot(x dynamo.State, t float64) (Snapshot, error) {
	if err := s.evaluate(x, t); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		T:      t,
		Bodies: make([]BodyState, len(s.bodies)),
		Links:  make([]LinkState, len(s.links)),
	}
	for i, b := range s.bodies {
		c := b.CenterOfMassFrame()
		snap.Bodies[i] = BodyState{
			Path:            b.Path(),
			Position:        c.Position(),
			Orientation:     c.Orientation(),
			Velocity:        c.Velocity(),
			AngularVelocity: c.AngularVelocity(),
		}
	}
	for i, l := range s.links {
		snap.Links[i] = LinkState{Name: l.Name(), Forces: l.Forces()}
	}
	return snap, nil
}
