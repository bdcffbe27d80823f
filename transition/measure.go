// Package transition builds the continuous dynamics of the orthogonal
// polynomial projections a memory is expressed in, and applies them over
// arbitrary time deltas.
package transition

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrUnknownMeasure is returned for measure names without a basis.
var ErrUnknownMeasure = errors.New("transition: unknown measure")

// Measure names the polynomial basis and the measure it is orthogonal under.
type Measure string

const (
	// LegS is Legendre under the scaled uniform measure on [0, t].
	LegS Measure = "legs"
	// LegT is Legendre under the translated uniform measure on [t - 1, t].
	LegT Measure = "legt"
	// LagT is Laguerre under the translated exponential measure.
	LagT Measure = "lagt"
	// TLagT is the tilted Laguerre measure, parametrised by Beta.
	TLagT Measure = "tlagt"
)

// ParseMeasure validates a measure name.
func ParseMeasure(name string) (Measure, error) {
	switch m := Measure(name); m {
	case LegS, LegT, LagT, TLagT:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMeasure, name)
}

// Matrices returns the continuous transition (A, B) of order N, B being a
// single column. beta scales B for the Laguerre measures and tilts A for
// TLagT; beta = 1 is the untilted case.
func Matrices(measure Measure, N int, beta float64) (*mat.Dense, *mat.Dense, error) {
	if N < 1 {
		return nil, nil, fmt.Errorf("transition: order must be positive, got %d", N)
	}
	A := mat.NewDense(N, N, nil)
	B := mat.NewDense(N, 1, nil)

	switch measure {
	case LegS:
		for n := 0; n < N; n++ {
			rn := math.Sqrt(float64(2*n + 1))
			B.Set(n, 0, rn)
			for k := 0; k < n; k++ {
				A.Set(n, k, -rn*math.Sqrt(float64(2*k+1)))
			}
			A.Set(n, n, -float64(n+1))
		}
	case LegT:
		for i := 0; i < N; i++ {
			ri := math.Sqrt(float64(2*i + 1))
			B.Set(i, 0, ri)
			for j := 0; j < N; j++ {
				rj := math.Sqrt(float64(2*j + 1))
				sign := 1.
				if i < j && (j-i)%2 == 1 {
					sign = -1.
				}
				A.Set(i, j, -ri*sign*rj)
			}
		}
	case LagT, TLagT:
		diag := .5
		if measure == TLagT {
			diag = (1 - beta) / 2
		}
		for i := 0; i < N; i++ {
			B.Set(i, 0, beta)
			for j := 0; j <= i; j++ {
				A.Set(i, j, -1)
			}
			A.Set(i, i, diag-1)
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, string(measure))
	}
	return A, B, nil
}
