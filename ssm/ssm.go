// Package ssm describes the continuous time linear systems
//
// m'(t) = A m(t) + B u(t)
//
// that a memory cell compresses its input history with.
package ssm

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when system matrices don't have compatible shapes.
var ErrShape = errors.New("ssm: shape mismatch")

// StateSpaceModel is a system the ode package can integrate:
//
// 1) The f function which returns the differential state evaluated at time t
// and state(t).
//
// 2) The order of the state space.
type StateSpaceModel interface {
	// This is the derivative of a state space model
	Derivative(t float64, state mat.Vector) mat.Vector
	// Returns the state space order
	StateSpaceOrder() int
}

var _ StateSpaceModel = LinearStateSpaceModel{}
