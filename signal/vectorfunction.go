package signal

import (
	"gonum.org/v1/gonum/mat"
)

// VectorFunction is an input abstraction that instead of returning a scalar
// associates each argument with a vector valued output. For instance in the
// memory dynamics:
//
// m'(t) = Am(t) + Bu(t)
//
// Bu(t) is a vectorial function decomposed as a scalar function U(t)-> Reals
// and a vector B \in Reals^N. Where N is the memory order.
type VectorFunction struct {
	U func(float64) float64
	B mat.Vector
}

// Value returns the vectorial function value B u(t).
func (vf VectorFunction) Value(t float64) mat.Vector {
	var res mat.VecDense
	res.CloneFromVec(vf.B)
	res.ScaleVec(vf.U(t), &res)
	return &res
}

// NewInput returns a new VectorFunction object initalised with u(t) and B
func NewInput(u func(float64) float64, B mat.Vector) VectorFunction {
	return VectorFunction{u, B}
}
