// Package dynamo provides the primitives shared by the simulation kernel and
// the time integrators that drive it.
//
//   - [State]: flat integrator state x = [q; u]
//   - [System]: right-hand side x' = f(x, t)
//   - [EventSystem]: a System with set-valued constraints, impacts and stop functions
//   - [ImpulsiveSystem]: a System advanced by velocity-level time stepping
//   - [Integrator]: numerical integrator interface
//
// # Errors
//
// Model definition problems are reported as [ModelError] (wrapping
// [ErrModelDefinition]) before any step runs. Run-time numeric failures wrap
// [ErrNumericDegeneracy] or [ErrConvergence] and leave the per-body state
// valid for a retry. Cache lifecycle violations panic with a
// [ProgrammingError].
//
// # Thread Safety
//
// Systems are NOT thread-safe. Independent runs must each own their system.
package dynamo
