package discretize

import (
	"errors"
	"fmt"
	"math"

	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/ssm"
	"gonum.org/v1/gonum/mat"
)

// Operator is a fixed step discretization of a linear time invariant system
// in delta form. Scale is the learning rate scale of a trainable operator:
// the stored matrices are divided by it and Effective multiplies it back.
type Operator struct {
	// dA - I
	A *mat.Dense
	// dB, a single column
	B *mat.Dense
	// Step size the operator was derived for
	Dt     float64
	Method Method
	Scale  float64

	trainable bool
}

// LTI discretizes sys with step dt once and for all.
//
//	forward:  dA = I + A dt,                        dB = B dt
//	backward: dA = (I - A dt)^-1,                    dB = (I - A dt)^-1 B dt
//	bilinear: dA = (I - A dt/2)^-1 (I + A dt/2),     dB = (I - A dt/2)^-1 B dt
//	zoh:      dA = e^(A dt),                         dB = int_0^dt e^(A s) ds B
func LTI(sys *ssm.LinearStateSpaceModel, dt float64, method Method) (*Operator, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("discretize: step size must be positive, got %v", dt)
	}
	N := sys.StateSpaceOrder()
	triangular := gonumExtensions.IsLowerTriangular(sys.A)

	var dA, dB *mat.Dense
	var err error
	switch method {
	case Forward:
		dA, dB = euler(sys, dt)
	case Backward:
		dA, dB, err = generalizedBilinear(sys, dt, 1, triangular)
	case Bilinear:
		dA, dB, err = generalizedBilinear(sys, dt, .5, triangular)
	case ZOH:
		dA, dB = zeroOrderHold(sys, dt)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMethod, method)
	}
	if err != nil {
		return nil, err
	}
	if gonumExtensions.NANORINF(dA) || gonumExtensions.NANORINF(dB) {
		return nil, fmt.Errorf("%w: %v discretization with dt=%v is not finite", ErrDegenerate, method, dt)
	}

	// puts into form: m += dA m
	dA.Sub(dA, gonumExtensions.Identity(N))
	return &Operator{A: dA, B: dB, Dt: dt, Method: method, Scale: 1}, nil
}

// Trainable returns a copy registered for training with learning rate scale
// scale. The stored values are pre-divided by sqrt(scale), so Effective is
// unchanged. A non-positive scale returns the operator as a fixed buffer.
func (op *Operator) Trainable(scale float64) *Operator {
	effA, effB := op.Effective()
	s := math.Sqrt(scale)
	if !(s > 0) {
		return &Operator{A: effA, B: effB, Dt: op.Dt, Method: op.Method, Scale: 1}
	}
	var A, B mat.Dense
	A.Scale(1/s, effA)
	B.Scale(1/s, effB)
	return &Operator{A: &A, B: &B, Dt: op.Dt, Method: op.Method, Scale: s, trainable: true}
}

// IsTrainable reports whether the operator was registered with a scale.
func (op *Operator) IsTrainable() bool {
	return op.trainable
}

// Effective returns the operator with the trainable scale multiplied in.
func (op *Operator) Effective() (A, B *mat.Dense) {
	if !op.IsTrainable() {
		return op.A, op.B
	}
	var a, b mat.Dense
	a.Scale(op.Scale, op.A)
	b.Scale(op.Scale, op.B)
	return &a, &b
}

// euler is the forward difference I + A dt, B dt.
func euler(sys *ssm.LinearStateSpaceModel, dt float64) (*mat.Dense, *mat.Dense) {
	N := sys.StateSpaceOrder()
	var dA, dB mat.Dense
	dA.Scale(dt, sys.A)
	dA.Add(&dA, gonumExtensions.Identity(N))
	dB.Scale(dt, sys.B)
	return &dA, &dB
}

// generalizedBilinear computes
//
//	dA = (I - alpha dt A)^-1 (I + (1 - alpha) dt A)
//	dB = (I - alpha dt A)^-1 dt B
//
// alpha = 1 is the backward difference, alpha = 1/2 the bilinear transform.
func generalizedBilinear(sys *ssm.LinearStateSpaceModel, dt, alpha float64, triangular bool) (*mat.Dense, *mat.Dense, error) {
	N := sys.StateSpaceOrder()
	I := gonumExtensions.Identity(N)

	var ima, ipa, rhsB mat.Dense
	ima.Scale(-alpha*dt, sys.A)
	ima.Add(&ima, I)
	ipa.Scale((1-alpha)*dt, sys.A)
	ipa.Add(&ipa, I)
	rhsB.Scale(dt, sys.B)

	dA, err := solve(&ima, &ipa, triangular)
	if err != nil {
		return nil, nil, err
	}
	dB, err := solve(&ima, &rhsB, triangular)
	if err != nil {
		return nil, nil, err
	}
	return dA, dB, nil
}

// zeroOrderHold uses the block matrix exponential
//
//	e^([A B; 0 0] dt) = [e^(A dt) int_0^dt e^(A s) ds B; 0 1]
func zeroOrderHold(sys *ssm.LinearStateSpaceModel, dt float64) (*mat.Dense, *mat.Dense) {
	N := sys.StateSpaceOrder()
	block := mat.NewDense(N+1, N+1, nil)
	block.Slice(0, N, 0, N).(*mat.Dense).Scale(dt, sys.A)
	block.Slice(0, N, N, N+1).(*mat.Dense).Scale(dt, sys.B)
	var expm mat.Dense
	expm.Exp(block)

	dA := mat.DenseCopyOf(expm.Slice(0, N, 0, N))
	dB := mat.DenseCopyOf(expm.Slice(0, N, N, N+1))
	return dA, dB
}

// solve returns a^-1 b. With triangular set only the lower triangle of a is
// used and the solve is a forward substitution.
func solve(a *mat.Dense, b mat.Matrix, triangular bool) (*mat.Dense, error) {
	var res mat.Dense
	var err error
	if triangular {
		err = res.Solve(gonumExtensions.LowerTriangle(a), b)
	} else {
		err = res.Solve(a, b)
	}
	if err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: condition number %g", ErrDegenerate, float64(cond))
		}
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	return &res, nil
}
