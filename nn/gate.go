package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mechanism selects how a gate is computed.
type Mechanism string

const (
	// None is the constant gate 1.
	None Mechanism = "N"
	// Standard is sigmoid(W x + b).
	Standard Mechanism = "G"
	// UniformRefined is sigmoid(W x + b_g) with b_g drawn so that the
	// initial gate values are uniform on (1/size, 1 - 1/size).
	UniformRefined Mechanism = "UR"
	// Refine is the refine gate (1 - 2r) g^2 + 2 r g.
	Refine Mechanism = "R"
)

// Gate computes elementwise interpolation coefficients in (0, 1).
type Gate struct {
	Mechanism Mechanism
	Size      int
	W         *Linear
	// refine pre-activation, only for Refine
	R *Linear
	// extra bias, only for UniformRefined
	B *mat.VecDense
}

// NewGate builds a gate of the given size whose pre-activations come from
// linear maps built by ctor with args.
func NewGate(size int, ctor LinearCtor, args LinearArgs, mechanism Mechanism, src rand.Source) (*Gate, error) {
	if args.Out != size {
		return nil, fmt.Errorf("%w: gate of size %d with %d outputs", ErrShape, size, args.Out)
	}
	g := &Gate{Mechanism: mechanism, Size: size}
	var err error
	switch mechanism {
	case None:
		return g, nil
	case Standard:
		g.W, err = ctor(args)
	case UniformRefined:
		if g.W, err = ctor(args); err != nil {
			return nil, err
		}
		lo, hi := 1/float64(size), 1-1/float64(size)
		// a single gate sits at the midpoint
		if size == 1 {
			lo, hi = .5, .5
		}
		dist := distuv.Uniform{Min: lo, Max: hi, Src: src}
		g.B = mat.NewVecDense(size, nil)
		for i := 0; i < size; i++ {
			u := dist.Rand()
			g.B.SetVec(i, -math.Log(1/u-1))
		}
	case Refine:
		if g.W, err = ctor(args); err != nil {
			return nil, err
		}
		g.R, err = ctor(args)
	default:
		return nil, fmt.Errorf("%w: gate mechanism %q", ErrUnknown, string(mechanism))
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Forward returns the gate values (batch by Size) for the pre-activation
// inputs x.
func (g *Gate) Forward(x mat.Matrix) (*mat.Dense, error) {
	batch, _ := x.Dims()
	if g.Mechanism == None {
		res := mat.NewDense(batch, g.Size, nil)
		res.Apply(func(_, _ int, _ float64) float64 { return 1 }, res)
		return res, nil
	}

	pre, err := g.W.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("gate: %w", err)
	}
	switch g.Mechanism {
	case Standard:
		pre.Apply(func(_, _ int, v float64) float64 { return Sigmoid(v) }, pre)
	case UniformRefined:
		pre.Apply(func(_, j int, v float64) float64 { return Sigmoid(v + g.B.AtVec(j)) }, pre)
	case Refine:
		r, err := g.R.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("gate: %w", err)
		}
		pre.Apply(func(i, j int, v float64) float64 {
			gv, rv := Sigmoid(v), Sigmoid(r.At(i, j))
			return (1-2*rv)*gv*gv + 2*rv*gv
		}, pre)
	}
	return pre, nil
}
