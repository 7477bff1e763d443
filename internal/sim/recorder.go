package sim

import (
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
)

// SnapshotRecorder keeps a model snapshot of every Every-th observed point.
type SnapshotRecorder struct {
	solver    *mbs.Solver
	every     int
	n         int
	Snapshots []mbs.Snapshot
	// Err is the first failed evaluation; later points are still tried.
	Err error
}

func NewSnapshotRecorder(s *mbs.Solver, every int) *SnapshotRecorder {
	if every < 1 {
		every = 1
	}
	return &SnapshotRecorder{solver: s, every: every}
}

func (r *SnapshotRecorder) OnStep(x dynamo.State, t float64) {
	defer func() { r.n++ }()
	if r.n%r.every != 0 {
		return
	}
	snap, err := r.solver.Snapshot(x, t)
	if err != nil {
		if r.Err == nil {
			r.Err = err
		}
		return
	}
	r.Snapshots = append(r.Snapshots, snap)
}

// Last returns the most recent snapshot.
func (r *SnapshotRecorder) Last() (mbs.Snapshot, bool) {
	if len(r.Snapshots) == 0 {
		return mbs.Snapshot{}, false
	}
	return r.Snapshots[len(r.Snapshots)-1], true
}
