package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer fills a weight matrix (out by in) in place.
type Initializer func(w *mat.Dense, src rand.Source)

// gain is the recommended scale of an activation, following the usual
// convention tanh 5/3, relu sqrt(2), everything else 1.
func gain(activation string) float64 {
	switch activation {
	case "relu":
		return math.Sqrt2
	case "tanh":
		return 5. / 3.
	}
	return 1
}

// NewInitializer resolves an initializer by name for weights feeding the
// given activation.
//
//	uniform: Kaiming uniform, U(-g sqrt(3/fan_in), g sqrt(3/fan_in))
//	normal:  Kaiming normal, N(0, g^2/fan_in)
//	xavier:  Xavier normal, N(0, 2/(fan_in + fan_out))
//	zero, one: constants
func NewInitializer(name, activation string) (Initializer, error) {
	g := gain(activation)
	switch name {
	case "uniform":
		return func(w *mat.Dense, src rand.Source) {
			_, in := w.Dims()
			bound := g * math.Sqrt(3/float64(in))
			fill(w, distuv.Uniform{Min: -bound, Max: bound, Src: src}.Rand)
		}, nil
	case "normal":
		return func(w *mat.Dense, src rand.Source) {
			_, in := w.Dims()
			fill(w, distuv.Normal{Mu: 0, Sigma: g / math.Sqrt(float64(in)), Src: src}.Rand)
		}, nil
	case "xavier":
		return func(w *mat.Dense, src rand.Source) {
			out, in := w.Dims()
			fill(w, distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(in+out)), Src: src}.Rand)
		}, nil
	case "zero":
		return func(w *mat.Dense, _ rand.Source) { fill(w, func() float64 { return 0 }) }, nil
	case "one":
		return func(w *mat.Dense, _ rand.Source) { fill(w, func() float64 { return 1 }) }, nil
	}
	return nil, fmt.Errorf("%w: initializer %q", ErrUnknown, name)
}

func fill(w *mat.Dense, next func() float64) {
	r, c := w.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			w.Set(i, j, next())
		}
	}
}
