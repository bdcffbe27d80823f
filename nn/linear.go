package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape is returned when an input doesn't match a layer.
var ErrShape = errors.New("nn: shape mismatch")

// LinearArgs are the constructor arguments of a linear map.
type LinearArgs struct {
	In, Out int
	Bias    bool
}

// LinearCtor builds a linear map, typically closing over a random source.
type LinearCtor func(LinearArgs) (*Linear, error)

// Linear is the affine map x W^T + b over a batch of rows x.
type Linear struct {
	// out by in
	W *mat.Dense
	// nil without bias
	Bias *mat.VecDense
}

// NewLinear returns a linear map initialised with U(-1/sqrt(in), 1/sqrt(in))
// for both weights and bias.
func NewLinear(args LinearArgs, src rand.Source) (*Linear, error) {
	if args.In < 1 || args.Out < 1 {
		return nil, fmt.Errorf("%w: linear map %d -> %d", ErrShape, args.In, args.Out)
	}
	bound := 1 / math.Sqrt(float64(args.In))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	l := &Linear{W: mat.NewDense(args.Out, args.In, nil)}
	fill(l.W, dist.Rand)
	if args.Bias {
		l.Bias = mat.NewVecDense(args.Out, nil)
		for i := 0; i < args.Out; i++ {
			l.Bias.SetVec(i, dist.Rand())
		}
	}
	return l, nil
}

// Ctor returns a LinearCtor drawing from src.
func Ctor(src rand.Source) LinearCtor {
	return func(args LinearArgs) (*Linear, error) {
		return NewLinear(args, src)
	}
}

// In is the number of input features.
func (l *Linear) In() int {
	_, in := l.W.Dims()
	return in
}

// Out is the number of output features.
func (l *Linear) Out() int {
	out, _ := l.W.Dims()
	return out
}

// Forward computes x W^T + b for x (batch by In).
func (l *Linear) Forward(x mat.Matrix) (*mat.Dense, error) {
	batch, in := x.Dims()
	if in != l.In() {
		return nil, fmt.Errorf("%w: linear map expects %d features, got %d", ErrShape, l.In(), in)
	}
	var res mat.Dense
	res.Mul(x, l.W.T())
	if l.Bias != nil {
		for row := 0; row < batch; row++ {
			r := res.RawRowView(row)
			for j := range r {
				r[j] += l.Bias.AtVec(j)
			}
		}
	}
	return &res, nil
}
