package metrics

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
)

// Probe evaluates a model at a point and exposes its links.
type Probe interface {
	Snapshot(x dynamo.State, t float64) (mbs.Snapshot, error)
	AllLinks() []link.Link
}

// ConstraintViolation is the largest penetration of a contact or gap of a
// bilateral joint seen over the run.
type ConstraintViolation struct {
	name   string
	probe  Probe
	max    float64
	failed int
}

func NewConstraintViolation(probe Probe) *ConstraintViolation {
	return &ConstraintViolation{name: "constraint_violation", probe: probe}
}

func (c *ConstraintViolation) Name() string { return c.name }

func (c *ConstraintViolation) Observe(x dynamo.State, t float64) {
	if _, err := c.probe.Snapshot(x, t); err != nil {
		c.failed++
		return
	}
	for _, l := range c.probe.AllLinks() {
		switch l := l.(type) {
		case *link.Contact:
			g, _, _ := l.Gap()
			c.max = math.Max(c.max, -g)
		case *link.Joint:
			for _, g := range l.Gaps() {
				c.max = math.Max(c.max, math.Abs(g))
			}
		}
	}
}

func (c *ConstraintViolation) Value() float64 { return c.max }

// Failed returns the number of points at which the model could not be evaluated.
func (c *ConstraintViolation) Failed() int { return c.failed }

func (c *ConstraintViolation) Reset() {
	c.max = 0
	c.failed = 0
}

// PeakForce is the largest absolute force value any link reported.
type PeakForce struct {
	name  string
	probe Probe
	peak  float64
}

func NewPeakForce(probe Probe) *PeakForce {
	return &PeakForce{name: "peak_force", probe: probe}
}

func (p *PeakForce) Name() string { return p.name }

func (p *PeakForce) Observe(x dynamo.State, t float64) {
	snap, err := p.probe.Snapshot(x, t)
	if err != nil {
		return
	}
	for _, l := range snap.Links {
		for _, f := range l.Forces {
			p.peak = math.Max(p.peak, math.Abs(f))
		}
	}
}

func (p *PeakForce) Value() float64 { return p.peak }

func (p *PeakForce) Reset() { p.peak = 0 }
