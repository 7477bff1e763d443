package kinematics

import (
	"errors"
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// State is the arena of generalized coordinates. It is owned by the solver;
// bodies address it by offset and length only.
type State struct {
	Q  []float64
	U  []float64
	UD []float64
}

// NewState allocates the arena once for the resolved topology.
func NewState(nq, nu int) *State {
	return &State{
		Q:  make([]float64, nq),
		U:  make([]float64, nu),
		UD: make([]float64, nu),
	}
}

// Stats counts cache fills per quantity.
type Stats struct {
	Position     int
	Velocity     int
	Gyroscopic   int
	Acceleration int
	Jacobian     [2]int
}

func (s *Stats) record(q quantity) {
	switch q {
	case qPosition:
		s.Position++
	case qVelocity:
		s.Velocity++
	case qGyroscopic:
		s.Gyroscopic++
	case qAcceleration:
		s.Acceleration++
	case qJacobian0:
		s.Jacobian[0]++
	case qJacobian1:
		s.Jacobian[1]++
	}
}

func (s Stats) Total() int {
	return s.Position + s.Velocity + s.Gyroscopic + s.Acceleration + s.Jacobian[0] + s.Jacobian[1]
}

// Tree is the arena of frames and bodies. Frames are addressed by FrameID;
// the arena is sized during registration and immutable after Freeze.
type Tree struct {
	frames   []*Frame
	bodies   []*RigidBody
	state    *State
	t        float64
	frozen   bool
	accReady bool
	stats    Stats
}

// NewTree creates a tree holding only the inertial frame "I".
func NewTree() *Tree {
	t := &Tree{}
	inertial := &Frame{name: "I", path: "/I", kind: inertialFrame, ori: spatial.Identity}
	t.add(inertial)
	return t
}

func (t *Tree) add(f *Frame) {
	f.tree = t
	f.id = FrameID(len(t.frames))
	t.frames = append(t.frames, f)
}

func (t *Tree) Inertial() *Frame { return t.frames[0] }

func (t *Tree) Frame(id FrameID) *Frame { return t.frames[id] }

func (t *Tree) Frames() []*Frame { return t.frames }

func (t *Tree) Bodies() []*RigidBody { return t.bodies }

func (t *Tree) Time() float64 { return t.t }

func (t *Tree) Frozen() bool { return t.frozen }

// Register adds a frame under the given absolute path.
func (t *Tree) Register(f *Frame, path string) error {
	if t.frozen {
		return fmt.Errorf("register %s: tree is frozen", path)
	}
	if f.tree != nil {
		return dynamo.Modelf(path, "frame already registered as %s", f.Path())
	}
	f.path = path
	t.add(f)
	return nil
}

// RegisterBody adds a body and all of its frames under path and resolves the
// body-local frame references.
func (t *Tree) RegisterBody(b *RigidBody, path string) error {
	if t.frozen {
		return fmt.Errorf("register %s: tree is frozen", path)
	}
	if b.tree != nil {
		return dynamo.Modelf(path, "body already registered")
	}
	b.path = path
	b.tree = t
	t.bodies = append(t.bodies, b)
	for _, f := range b.frames {
		if err := t.Register(f, path+"/"+f.name); err != nil {
			return err
		}
	}
	for _, f := range b.frames {
		if f.kind != fixedFrame {
			continue
		}
		ref := b.Frame(f.fixed.refName)
		if ref == nil {
			return dynamo.Modelf(f.Path(), "unknown body frame %q", f.fixed.refName)
		}
		f.fixed.ref = ref
	}
	return nil
}

// parent returns the frame that drives f, or nil for the inertial frame.
func (t *Tree) parent(f *Frame) *Frame {
	switch f.kind {
	case fixedFrame:
		return f.fixed.ref
	case kinematicsFrame:
		return f.owner.ref
	}
	return nil
}

// Validate checks that every frame is resolved and that the reference graph
// is acyclic, terminating at the inertial frame.
func (t *Tree) Validate() error {
	g := simple.NewDirectedGraph()
	for _, f := range t.frames {
		g.AddNode(simple.Node(f.id))
	}
	for _, f := range t.frames {
		if f.kind == inertialFrame {
			continue
		}
		p := t.parent(f)
		if p == nil {
			return dynamo.Modelf(f.Path(), "unresolved frame of reference")
		}
		if p.tree != t {
			return dynamo.Modelf(f.Path(), "frame of reference %s is not part of the model", p.Path())
		}
		if p == f {
			return dynamo.Modelf(f.Path(), "frame references itself")
		}
		g.SetEdge(g.NewEdge(simple.Node(p.id), simple.Node(f.id)))
	}
	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 {
			path := ""
			for _, n := range cycles[0] {
				path += " " + t.frames[n.ID()].Path()
			}
			return dynamo.Modelf(t.frames[cycles[0][0].ID()].Path(), "cyclic frame references:%s", path)
		}
		return dynamo.Modelf("/", "frame graph: %v", err)
	}
	return nil
}

// Freeze binds the coordinate arena and allocates every cache. The topology
// is immutable afterwards.
func (t *Tree) Freeze(st *State) error {
	if t.frozen {
		return errors.New("tree already frozen")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	t.state = st
	nu := len(st.U)
	for _, f := range t.frames {
		f.jt[0] = spatial.NewJacobian(nu)
		f.jr[0] = spatial.NewJacobian(nu)
		f.jt[1] = spatial.NewJacobian(6)
		f.jr[1] = spatial.NewJacobian(6)
		if f.kind == kinematicsFrame {
			for i := 0; i < 3; i++ {
				f.jt[1].Set(i, i, 1)
				f.jr[1].Set(i, 3+i, 1)
			}
		}
	}
	for _, b := range t.bodies {
		if err := b.freeze(nu); err != nil {
			return err
		}
	}
	t.frozen = true
	t.Begin(0)
	return nil
}

// Begin invalidates every cache for a new evaluation at time tm. Bodies are
// unassigned until AssignCoordinates is called.
func (t *Tree) Begin(tm float64) {
	t.t = tm
	t.accReady = false
	for _, f := range t.frames {
		if f.kind != inertialFrame {
			f.dirty = qAll
		}
	}
	for _, b := range t.bodies {
		b.assigned = false
		b.paramsDirty = true
	}
}

// AssignCoordinates marks the arena contents as valid for the current time.
func (t *Tree) AssignCoordinates() {
	for _, b := range t.bodies {
		b.assigned = true
	}
}

// PublishAccelerations marks State.UD as valid and drops stale accelerations.
func (t *Tree) PublishAccelerations() {
	t.accReady = true
	for _, f := range t.frames {
		if f.kind != inertialFrame {
			f.dirty |= qAcceleration
		}
	}
}

// Update pulls position, velocity, gyroscopic accelerations and the
// generalized Jacobian of every frame.
func (t *Tree) Update() {
	for _, f := range t.frames {
		f.Position()
		f.Velocity()
		f.JacobianOfTranslation(0)
		f.GyroscopicAcceleration()
	}
}

func (t *Tree) Stats() Stats { return t.stats }

func (t *Tree) ResetStats() { t.stats = Stats{} }

// State returns the bound coordinate arena.
func (t *Tree) State() *State { return t.state }
