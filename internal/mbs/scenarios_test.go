package mbs_test

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/integrators"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func integrate(integ dynamo.Integrator, s *mbs.Solver, x dynamo.State, dt, T float64) dynamo.State {
	steps := int(math.Round(T / dt))
	for i := 0; i < steps; i++ {
		var err error
		x, err = integ.Step(s, x, float64(i)*dt, dt)
		Expect(err).NotTo(HaveOccurred())
	}
	return x
}

var strategies = []ncp.Strategy{ncp.FixpointSingle, ncp.GaussSeidel, ncp.RootFinding}

func withStrategy(st ncp.Strategy) mbs.SolverOptions {
	opts := mbs.DefaultSolverOptions()
	opts.Strategy = st
	return opts
}

var _ = Describe("Multibody scenarios", func() {
	const g = 9.81

	Describe("a free falling body", func() {
		It("reaches v0 + g*T independent of mass and inertia", func() {
			for _, m := range []float64{0.5, 4, 80} {
				s := freeFall(mbs.DefaultSolverOptions(), m, diag(m, 2*m, 0.5*m))
				Expect(s.Init()).To(Succeed())
				x := integrate(integrators.NewRK4(), s, s.InitialState(), 0.01, 1)
				Expect(x[6]).To(BeNumerically("~", 1, 1e-10))
				Expect(x[7]).To(BeNumerically("~", -g, 1e-10))
				Expect(x[8]).To(BeNumerically("~", 0, 1e-10))
				Expect(x[1]).To(BeNumerically("~", 2-0.5*g, 1e-10))
			}
		})
	})

	Describe("two masses on a spring-damper", func() {
		const (
			m1, m2 = 1.0, 2.0
			c, d   = 100.0, 2.0
			l0, x2 = 1.0, 1.2
		)

		It("follows the damped oscillator solution", func() {
			s := springPair(mbs.DefaultSolverOptions(), m1, m2, c, d, l0, x2)
			Expect(s.Init()).To(Succeed())

			mu := m1 * m2 / (m1 + m2)
			delta := d / (2 * mu)
			wd := math.Sqrt(c/mu - delta*delta)
			dx := x2 - l0
			exact := func(t float64) float64 {
				return math.Exp(-delta*t) * (dx*math.Cos(wd*t) + delta*dx/wd*math.Sin(wd*t))
			}

			x := s.InitialState()
			integ := integrators.NewRK4()
			dt := 1e-3
			for i := 1; i <= 1000; i++ {
				var err error
				x, err = integ.Step(s, x, float64(i-1)*dt, dt)
				Expect(err).NotTo(HaveOccurred())
				if i%100 == 0 {
					Expect(x[1]-x[0]-l0).To(BeNumerically("~", exact(float64(i)*dt), 1e-6))
				}
			}
			// No external force acts along the axis.
			Expect(m1*x[0] + m2*x[1]).To(BeNumerically("~", m2*x2, 1e-10))
			Expect(m1*x[2] + m2*x[3]).To(BeNumerically("~", 0, 1e-10))
		})

		It("conserves energy without damping", func() {
			s := springPair(mbs.DefaultSolverOptions(), m1, m2, c, 0, l0, x2)
			Expect(s.Init()).To(Succeed())
			x := s.InitialState()
			e0 := s.Energy(x)
			x = integrate(integrators.NewRK4(), s, x, 1e-3, 1)
			Expect(s.Energy(x)).To(BeNumerically("~", e0, 1e-6))
		})
	})

	Describe("a body resting on a frictionless contact", func() {
		It("stays in equilibrium carrying its weight", func() {
			s, contact := ball(mbs.DefaultSolverOptions(), 3, 0, 0, 0.5)
			Expect(s.Init()).To(Succeed())
			integ := integrators.NewEventDriven(integrators.NewRK4(), logr.Discard())
			x := integrate(integ, s, s.InitialState(), 0.01, 1)

			Expect(x[1]).To(BeNumerically("~", 0.1, 1e-12))
			Expect(x[4]).To(BeNumerically("~", 0, 1e-12))
			Expect(contact.Forces()[0]).To(BeNumerically("~", 3*g, 1e-8))
			g0, _, _ := contact.Gap()
			Expect(g0).To(BeNumerically("~", 0, 1e-12))
			events, impacts := integ.Events()
			Expect(events).To(BeZero())
			Expect(impacts).To(BeZero())
		})
	})

	Describe("a dropped ball", func() {
		const h0 = 1.0
		tImpact := math.Sqrt(2 * h0 / g)
		vImpact := g * tImpact

		It("rebounds with e times the impact velocity", func() {
			e := 0.5
			s, contact := ball(mbs.DefaultSolverOptions(), 1, h0, 0, e)
			Expect(s.Init()).To(Succeed())
			integ := integrators.NewEventDriven(integrators.NewRK4(), logr.Discard())
			T := 0.6
			x := integrate(integ, s, s.InitialState(), 0.01, T)

			_, impacts := integ.Events()
			Expect(impacts).To(Equal(1))
			after := T - tImpact
			Expect(x[4]).To(BeNumerically("~", e*vImpact-g*after, 1e-6))
			Expect(x[1]).To(BeNumerically("~", 0.1+e*vImpact*after-0.5*g*after*after, 1e-6))
			Expect(contact.State().Active).To(BeFalse())
		})

		It("stays in permanent contact after a plastic impact", func() {
			s, contact := ball(mbs.DefaultSolverOptions(), 1, h0, 0, 0)
			Expect(s.Init()).To(Succeed())
			integ := integrators.NewEventDriven(integrators.NewRK4(), logr.Discard())
			x := integrate(integ, s, s.InitialState(), 0.01, 1.5)

			_, impacts := integ.Events()
			Expect(impacts).To(Equal(1))
			Expect(x[4]).To(BeNumerically("~", 0, 1e-9))
			Expect(x[1]).To(BeNumerically("~", 0.1, 1e-8))
			Expect(contact.State().Active).To(BeTrue())
			_, gdN, _ := contact.Gap()
			Expect(gdN).To(BeNumerically("~", 0, 1e-9))
			Expect(contact.Forces()[0]).To(BeNumerically("~", g, 1e-8))
		})

		It("bounces with decreasing height under time stepping", func() {
			s, _ := ball(mbs.DefaultSolverOptions(), 1, 0.5, 0, 0.5)
			Expect(s.Init()).To(Succeed())
			x := s.InitialState()
			integ := integrators.NewTimeStepping()
			dt := 1e-3
			top, prevV := 0.0, 0.0
			var tops []float64
			for i := 0; i < 2000; i++ {
				var err error
				x, err = integ.Step(s, x, float64(i)*dt, dt)
				Expect(err).NotTo(HaveOccurred())
				Expect(x[1]).To(BeNumerically(">", 0.1-1e-2))
				if prevV > 0 && x[4] <= 0 && x[1] > 0.1+1e-4 {
					tops = append(tops, x[1])
				}
				top = math.Max(top, x[1])
				prevV = x[4]
			}
			Expect(top).To(BeNumerically("<=", 0.6+1e-12))
			Expect(len(tops)).To(BeNumerically(">=", 2))
			for i := 1; i < len(tops); i++ {
				Expect(tops[i]).To(BeNumerically("<", tops[i-1]))
			}
			// The first rebound reaches about e^2 of the drop height.
			Expect(tops[0] - 0.1).To(BeNumerically("~", 0.25*0.5, 0.02))
		})
	})

	Describe("complementarity strategies", func() {
		It("agree on the tripod", func() {
			var ref dynamo.State
			for _, st := range strategies {
				s, _ := tripod(withStrategy(st))
				Expect(s.Init()).To(Succeed())
				xd, err := s.Derive(s.InitialState(), 0)
				Expect(err).NotTo(HaveOccurred(), st.String())
				if ref == nil {
					ref = xd
					continue
				}
				for i := range xd {
					Expect(xd[i]).To(BeNumerically("~", ref[i], 1e-6), "%s: x'[%d]", st, i)
				}
			}
		})

		It("satisfy the unilateral conditions at convergence", func() {
			const eps = 1e-6
			for _, st := range strategies {
				s, contacts := tripod(withStrategy(st))
				Expect(s.Init()).To(Succeed())
				_, err := s.Derive(s.InitialState(), 0)
				Expect(err).NotTo(HaveOccurred())
				box := s.AllBodies()[0]
				for i, c := range contacts {
					la := c.Forces()[0]
					gap, _, _ := c.Gap()
					a := box.Frame("P" + string(rune('1'+i))).Acceleration()[1]
					Expect(gap).To(BeNumerically(">=", -eps))
					Expect(la).To(BeNumerically(">=", -eps), "%s: %s", st, c.Name())
					Expect(a).To(BeNumerically(">=", -eps), "%s: %s", st, c.Name())
					Expect(math.Abs(la * a)).To(BeNumerically("<=", eps), "%s: %s", st, c.Name())
				}
			}
		})

		It("agree on a rolling sphere", func() {
			const push = 1.0
			for _, st := range strategies {
				s, contact := rollingSphere(withStrategy(st), push, 0.5)
				Expect(s.Init()).To(Succeed())
				xd, err := s.Derive(s.InitialState(), 0)
				Expect(err).NotTo(HaveOccurred(), st.String())
				Expect(xd[6]).To(BeNumerically("~", push/1.4, 1e-6), st.String())
				Expect(xd[7]).To(BeNumerically("~", 0, 1e-7), st.String())
				f := contact.Forces()
				Expect(f[0]).To(BeNumerically("~", g, 1e-6))
				Expect(f[1]).To(BeNumerically("~", 0.4*push/1.4, 1e-6))
				Expect(contact.State().Sliding).To(BeFalse())
			}
		})

		It("keep the friction force inside the cone", func() {
			const mu = 0.01
			for _, st := range strategies {
				s, contact := rollingSphere(withStrategy(st), 1, mu)
				Expect(s.Init()).To(Succeed())
				_, err := s.Derive(s.InitialState(), 0)
				Expect(err).NotTo(HaveOccurred(), st.String())
				f := contact.Forces()
				Expect(f[1]).To(BeNumerically("<=", mu*math.Abs(f[0])+1e-6), st.String())
				Expect(f[1]).To(BeNumerically("~", mu*g, 1e-6), st.String())
			}
		})

		It("report an exhausted iteration cap as a convergence failure", func() {
			opts := mbs.DefaultSolverOptions()
			opts.MaxIter = 1
			s, _ := tripod(opts)
			Expect(s.Init()).To(Succeed())
			integ := integrators.NewEventDriven(integrators.NewRK4(), logr.Discard())
			_, err := integ.Step(s, s.InitialState(), 0, 0.01)
			Expect(err).To(MatchError(dynamo.ErrConvergence))
		})
	})

	Describe("a hinged pendulum", func() {
		It("conserves energy and keeps the hinge closed", func() {
			s, hinge := pendulum(mbs.DefaultSolverOptions(), 0.4)
			Expect(s.Init()).To(Succeed())
			x := s.InitialState()
			e0 := s.Energy(x)
			x = integrate(integrators.NewRK4(), s, x, 1e-3, 1)
			Expect(s.Energy(x)).To(BeNumerically("~", e0, 1e-6))
			_, err := s.Derive(x, 1)
			Expect(err).NotTo(HaveOccurred())
			for _, gap := range hinge.Gaps() {
				Expect(gap).To(BeNumerically("~", 0, 1e-6))
			}
		})
	})

	Describe("model definition errors", func() {
		It("are reported before any step", func() {
			s := newSolver(mbs.DefaultSolverOptions())
			s.AddBody(pointMass("A", 1, nil, nil))
			s.AddLink(link.NewSpringDamper("S", "A/C", "B/C", 1, 0, 1))
			err := s.Init()
			Expect(err).To(MatchError(dynamo.ErrModelDefinition))
			_, err = s.Derive(make(dynamo.State, 6), 0)
			Expect(err).To(MatchError(dynamo.ErrNotInitialized))
		})
	})
})
