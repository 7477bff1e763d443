// Package viz renders multibody runs in the terminal with Bubble Tea.
//
//   - [Model]: live view stepping a solver, with replay of recent history
//   - [Canvas]: braille canvas, 2x4 sub-pixels per cell
//   - [Camera], [Wireframe]: perspective projection of the scene
//
// # Key Bindings
//
//	Space - Pause/Resume simulation
//	R     - Reset to initial state
//	T     - Cycle color themes
//	x y z - Rotate the camera
//	?     - Show help overlay
//	[ ]   - Time travel (rewind/forward)
package viz
