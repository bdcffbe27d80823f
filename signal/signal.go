// Package signal holds the scalar input functions that drive memory cells and
// the continuous systems they are derived from.
package signal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Signal is a vector valued input, the term Bu(t) of a state space model.
type Signal interface {
	Value(float64) mat.Vector
}

var _ Signal = VectorFunction{}

// Constant returns u(t) = value.
func Constant(value float64) func(float64) float64 {
	return func(float64) float64 { return value }
}

// Sinusoid returns u(t) = amplitude sin(2 pi frequency t + phase).
func Sinusoid(amplitude, frequency, phase float64) func(float64) float64 {
	return func(t float64) float64 {
		return amplitude * math.Sin(2*math.Pi*frequency*t+phase)
	}
}

// Step returns the unit step delayed to t = at.
func Step(at float64) func(float64) float64 {
	return func(t float64) float64 {
		if t < at {
			return 0
		}
		return 1
	}
}
