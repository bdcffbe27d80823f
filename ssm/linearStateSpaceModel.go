package ssm

import (
	"errors"
	"fmt"

	"github.com/hammal/hippo/signal"
	"gonum.org/v1/gonum/mat"
)

// LinearStateSpaceModel struct represent the system
//
// m'(t) = A m(t) + B u(t)
//
// where B is a single column, so there is one scalar input u(t).
type LinearStateSpaceModel struct {
	// State Dynamics
	A *mat.Dense
	// Input column
	B *mat.Dense
	// Optional input function driving Derivative, nil means u(t) = 0
	Input signal.Signal
}

// NewLinearStateSpaceModel creates a new Linear state space model. A must be
// square and B must be a single column with as many rows as A.
func NewLinearStateSpaceModel(A, B mat.Matrix) (*LinearStateSpaceModel, error) {
	if A == nil || B == nil {
		return nil, fmt.Errorf("%w: A and B must be defined", ErrShape)
	}
	m, n := A.Dims()
	mB, nB := B.Dims()
	if m != n {
		return nil, fmt.Errorf("%w: A is %dx%d, must be square", ErrShape, m, n)
	}
	if mB != m || nB != 1 {
		return nil, fmt.Errorf("%w: B is %dx%d, must be %dx1", ErrShape, mB, nB, m)
	}
	return &LinearStateSpaceModel{
		A: mat.DenseCopyOf(A),
		B: mat.DenseCopyOf(B),
	}, nil
}

// WithInput returns a copy of the model driven by the scalar function u.
func (model LinearStateSpaceModel) WithInput(u func(float64) float64) *LinearStateSpaceModel {
	model.Input = signal.NewInput(u, model.B.ColView(0))
	return &model
}

// Derivative returns the state derivative.
// m'(t) = Am(t) + Bu(t)
// where state = m(t) at an arbitrary time t. Furthermore, Bu is the input vector field.
func (model LinearStateSpaceModel) Derivative(t float64, state mat.Vector) mat.Vector {
	// Check if state and model parameters match.
	m2, _ := model.A.Dims()
	if m1, _ := state.Dims(); m1 != m2 {
		panic(errors.New("State vector doesn't match state transition matrix"))
	}

	// Compute state transition
	//  A m(t)
	res := mat.NewVecDense(m2, nil)
	res.MulVec(model.A, state)

	// Add input vector field
	if model.Input != nil {
		res.AddVec(res, model.Input.Value(t))
	}
	return res
}

// Scaled returns the system (A s, B s). The scale invariant dynamics at
// elapsed time t are Scaled(1/t).
func (model LinearStateSpaceModel) Scaled(s float64) *LinearStateSpaceModel {
	var A, B mat.Dense
	A.Scale(s, model.A)
	B.Scale(s, model.B)
	return &LinearStateSpaceModel{A: &A, B: &B}
}

// SteadyState returns the fixed point m* of a constant input u, the solution of
//
// A m* + B u = 0
func (model LinearStateSpaceModel) SteadyState(u float64) (*mat.VecDense, error) {
	var rhs mat.VecDense
	rhs.ScaleVec(-u, model.B.ColView(0))
	var res mat.VecDense
	if err := res.SolveVec(model.A, &rhs); err != nil {
		return nil, fmt.Errorf("ssm: steady state: %w", err)
	}
	return &res, nil
}

// StateTransition computes e^(At) where t is a scalar.
func (model LinearStateSpaceModel) StateTransition(t float64) *mat.Dense {
	var scaled, res mat.Dense
	scaled.Scale(t, model.A)
	res.Exp(&scaled)
	return &res
}

func (model LinearStateSpaceModel) StateSpaceOrder() int {
	m, _ := model.A.Dims()
	return m
}

