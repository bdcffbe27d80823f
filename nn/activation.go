// Package nn holds the small building blocks a memory cell is wired from:
// activations, weight initializers, linear maps and gates.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknown is returned for activation, initializer and gate names that
// don't exist.
var ErrUnknown = errors.New("nn: unknown name")

// Activation is an elementwise nonlinearity over a (batch by size) matrix.
type Activation interface {
	Name() string
	Apply(x *mat.Dense) *mat.Dense
}

type elementwise struct {
	name string
	fn   func(float64) float64
}

func (e elementwise) Name() string { return e.name }

func (e elementwise) Apply(x *mat.Dense) *mat.Dense {
	var res mat.Dense
	res.Apply(func(_, _ int, v float64) float64 { return e.fn(v) }, x)
	return &res
}

type identity struct{}

func (identity) Name() string { return "id" }

// Apply returns x itself.
func (identity) Apply(x *mat.Dense) *mat.Dense { return x }

// ModReLU is sign(x) relu(|x| + b) with a learned bias per feature.
type ModReLU struct {
	Bias *mat.VecDense
}

func (m *ModReLU) Name() string { return "modrelu" }

func (m *ModReLU) Apply(x *mat.Dense) *mat.Dense {
	_, c := x.Dims()
	if c != m.Bias.Len() {
		panic(errors.New("ModReLU: bias doesn't match features"))
	}
	var res mat.Dense
	res.Apply(func(_, j int, v float64) float64 {
		z := math.Abs(v) + m.Bias.AtVec(j)
		if z <= 0 {
			return 0
		}
		if v < 0 {
			return -z
		}
		return z
	}, x)
	return &res
}

// Sigmoid is the logistic function.
func Sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// NewActivation resolves an activation by name. size is the number of
// features, used by activations with parameters.
func NewActivation(name string, size int, src rand.Source) (Activation, error) {
	switch name {
	case "id", "identity", "linear":
		return identity{}, nil
	case "tanh":
		return elementwise{name, math.Tanh}, nil
	case "relu":
		return elementwise{name, func(v float64) float64 { return math.Max(v, 0) }}, nil
	case "sigmoid":
		return elementwise{name, Sigmoid}, nil
	case "modrelu":
		bias := mat.NewVecDense(size, nil)
		dist := distuv.Uniform{Min: -.01, Max: .01, Src: src}
		for i := 0; i < size; i++ {
			bias.SetVec(i, dist.Rand())
		}
		return &ModReLU{Bias: bias}, nil
	}
	return nil, fmt.Errorf("%w: activation %q", ErrUnknown, name)
}
