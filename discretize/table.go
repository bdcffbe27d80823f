package discretize

import (
	"fmt"
	"runtime"

	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/ssm"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ScaleInvariantTable holds the discretization of the scale invariant
// dynamics
//
// m'(t) = 1/t (A m(t) + B u(t))
//
// for every integer step 1..MaxLength. Entry t-1 discretizes the rescaled
// system (A/t, B/t). A is in delta form, A0 and B0 are the full boundary
// operator of the first transition.
//
// The table is immutable once built and can be shared between cells.
type ScaleInvariantTable struct {
	Method Method
	// dA - I per step
	A []*mat.Dense
	// input operator of the delayed update input per step
	B []*mat.Dense
	// input operator of the current update input per step
	Bb []*mat.Dense
	// boundary operator for t = 0
	A0 *mat.Dense
	B0 *mat.Dense
}

// LSI builds the scale invariant table for steps 1..maxLength:
//
//	forward:  A[t-1] = I + A/t,                          B[t-1] = B/t,  Bb[t-1] = 0
//	backward: A[t-1] = (I - A/(t+1))^-1,                 B[t-1] = 0,    Bb[t-1] = (I - A/t)^-1 B/t
//	bilinear: A[t-1] = (I - A/2(t+1))^-1 (I + A/2t),     B[t-1] = (I - A/2(t+1))^-1 B/2t,
//	                                                     Bb[t-1] = (I - A/2t)^-1 B/2t
//
// and A0 = (I - A/2)^-1, B0 = (I - A/2)^-1 B/2 for every method. Inversions
// are triangular solves whenever A is lower triangular.
func LSI(sys *ssm.LinearStateSpaceModel, maxLength int, method Method) (*ScaleInvariantTable, error) {
	if maxLength < 1 {
		return nil, fmt.Errorf("discretize: max length must be positive, got %d", maxLength)
	}
	switch method {
	case Forward, Backward, Bilinear:
	default:
		return nil, fmt.Errorf("%w: %v has no scale invariant table", ErrUnknownMethod, method)
	}

	N := sys.StateSpaceOrder()
	I := gonumExtensions.Identity(N)
	triangular := gonumExtensions.IsLowerTriangular(sys.A)

	table := &ScaleInvariantTable{
		Method: method,
		A:      make([]*mat.Dense, maxLength),
		B:      make([]*mat.Dense, maxLength),
		Bb:     make([]*mat.Dense, maxLength),
	}

	// boundary operator
	half := sys.Scaled(.5)
	var ima mat.Dense
	ima.Sub(I, half.A)
	A0, err := solve(&ima, I, triangular)
	if err != nil {
		return nil, fmt.Errorf("boundary operator: %w", err)
	}
	B0, err := solve(&ima, half.B, triangular)
	if err != nil {
		return nil, fmt.Errorf("boundary operator: %w", err)
	}
	table.A0, table.B0 = A0, B0

	// Every step only depends on sys and t, so the rows are computed concurrently.
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 1; t <= maxLength; t++ {
		g.Go(func() error {
			A, B, Bb, err := scaleInvariantStep(sys, t, method, triangular)
			if err != nil {
				return fmt.Errorf("step %d: %w", t, err)
			}
			if gonumExtensions.NANORINF(A) || gonumExtensions.NANORINF(B) || gonumExtensions.NANORINF(Bb) {
				return fmt.Errorf("step %d: %w: operator is not finite", t, ErrDegenerate)
			}
			// puts into form: m += A m
			A.Sub(A, I)
			table.A[t-1], table.B[t-1], table.Bb[t-1] = A, B, Bb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return table, nil
}

// scaleInvariantStep discretizes the step from t to t+1.
func scaleInvariantStep(sys *ssm.LinearStateSpaceModel, t int, method Method, triangular bool) (A, B, Bb *mat.Dense, err error) {
	N := sys.StateSpaceOrder()
	I := gonumExtensions.Identity(N)
	zero := mat.NewDense(N, 1, nil)

	switch method {
	case Forward:
		At := sys.Scaled(1 / float64(t))
		A = mat.NewDense(N, N, nil)
		A.Add(I, At.A)
		return A, At.B, zero, nil

	case Backward:
		At := sys.Scaled(1 / float64(t))
		Anext := sys.Scaled(1 / float64(t+1))
		var imaNext, ima mat.Dense
		imaNext.Sub(I, Anext.A)
		ima.Sub(I, At.A)
		if A, err = solve(&imaNext, I, triangular); err != nil {
			return nil, nil, nil, err
		}
		if Bb, err = solve(&ima, At.B, triangular); err != nil {
			return nil, nil, nil, err
		}
		return A, zero, Bb, nil

	case Bilinear:
		At := sys.Scaled(1 / (2 * float64(t)))
		Anext := sys.Scaled(1 / (2 * float64(t+1)))
		var imaNext, ima, ipa mat.Dense
		imaNext.Sub(I, Anext.A)
		ima.Sub(I, At.A)
		ipa.Add(I, At.A)
		if A, err = solve(&imaNext, &ipa, triangular); err != nil {
			return nil, nil, nil, err
		}
		if B, err = solve(&imaNext, At.B, triangular); err != nil {
			return nil, nil, nil, err
		}
		if Bb, err = solve(&ima, At.B, triangular); err != nil {
			return nil, nil, nil, err
		}
		return A, B, Bb, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: %v", ErrUnknownMethod, method)
}

// MaxLength is the number of precomputed steps.
func (table *ScaleInvariantTable) MaxLength() int {
	return len(table.A)
}

// Index saturates a step index at MaxLength()-1. Longer sequences keep
// reusing the last precomputed operator.
func (table *ScaleInvariantTable) Index(t int) int {
	if t >= table.MaxLength() {
		return table.MaxLength() - 1
	}
	return t
}

// Order is the memory order N of the table.
func (table *ScaleInvariantTable) Order() int {
	n, _ := table.A0.Dims()
	return n
}
