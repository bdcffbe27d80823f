package transition

import (
	"errors"
	"fmt"
	"math"

	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"gonum.org/v1/gonum/mat"
)

// Func applies one discrete update of length dt[r] to row r of the memory m
// driven by the scalar input u[r] (u is a single column).
type Func func(dt []float64, m, u *mat.Dense) (*mat.Dense, error)

// Transition applies the continuous dynamics m' = Am + Bu of a measure over
// a time delta that may differ per memory row.
type Transition struct {
	Measure Measure
	A       *mat.Dense
	// B as a row, so u B is the outer product with the input column
	B          *mat.Dense
	triangular bool
}

type options struct {
	beta float64
}

// Option configures the measure of a Transition.
type Option func(*options)

// WithBeta sets the Laguerre input scale and tilt, default 1.
func WithBeta(beta float64) Option {
	return func(o *options) { o.beta = beta }
}

// New builds the Transition of measure with order N.
func New(measure Measure, N int, opts ...Option) (*Transition, error) {
	o := options{beta: 1}
	for _, opt := range opts {
		opt(&o)
	}
	A, B, err := Matrices(measure, N, o.beta)
	if err != nil {
		return nil, err
	}
	return &Transition{
		Measure:    measure,
		A:          A,
		B:          mat.DenseCopyOf(B.T()),
		triangular: gonumExtensions.IsLowerTriangular(A),
	}, nil
}

// Order is the memory order N.
func (tr *Transition) Order() int {
	n, _ := tr.A.Dims()
	return n
}

// Fn returns the update rule for a discretization method. Only the finite
// difference schemes are available for a varying step.
func (tr *Transition) Fn(method discretize.Method) (Func, error) {
	switch method {
	case discretize.Forward:
		return tr.ForwardDiff, nil
	case discretize.Backward:
		return tr.BackwardDiff, nil
	case discretize.Bilinear:
		return tr.Bilinear, nil
	}
	return nil, fmt.Errorf("%w: %v has no adaptive transition", discretize.ErrUnknownMethod, method)
}

// ForwardDiff is the Euler update
//
// (I + dt A) m + dt B u
func (tr *Transition) ForwardDiff(dt []float64, m, u *mat.Dense) (*mat.Dense, error) {
	if err := tr.check(dt, m, u); err != nil {
		return nil, err
	}
	x := tr.forwardMult(m, dt, 1)
	x.Add(x, tr.input(dt, u))
	return x, nil
}

// BackwardDiff is the backward Euler update
//
// (I - dt A)^-1 (m + dt B u)
func (tr *Transition) BackwardDiff(dt []float64, m, u *mat.Dense) (*mat.Dense, error) {
	if err := tr.check(dt, m, u); err != nil {
		return nil, err
	}
	var x mat.Dense
	x.Add(m, tr.input(dt, u))
	return tr.inverseMult(&x, dt, 1)
}

// Bilinear is the trapezoidal update
//
// (I - dt/2 A)^-1 ((I + dt/2 A) m + dt B u)
func (tr *Transition) Bilinear(dt []float64, m, u *mat.Dense) (*mat.Dense, error) {
	return tr.GeneralizedBilinear(dt, m, u, .5)
}

// GeneralizedBilinear is
//
// (I - alpha dt A)^-1 ((I + (1 - alpha) dt A) m + dt B u)
//
// alpha = 0 is ForwardDiff, alpha = 1 BackwardDiff.
func (tr *Transition) GeneralizedBilinear(dt []float64, m, u *mat.Dense, alpha float64) (*mat.Dense, error) {
	if err := tr.check(dt, m, u); err != nil {
		return nil, err
	}
	x := tr.forwardMult(m, dt, 1-alpha)
	x.Add(x, tr.input(dt, u))
	if alpha == 0 {
		return x, nil
	}
	return tr.inverseMult(x, dt, alpha)
}

func (tr *Transition) check(dt []float64, m, u *mat.Dense) error {
	rows, cols := m.Dims()
	ur, uc := u.Dims()
	if cols != tr.Order() || ur != rows || uc != 1 || len(dt) != rows {
		return fmt.Errorf("transition: memory %dx%d, input %dx%d and %d deltas don't match order %d",
			rows, cols, ur, uc, len(dt), tr.Order())
	}
	for r, delta := range dt {
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return fmt.Errorf("%w: row %d has step %v", discretize.ErrDegenerate, r, delta)
		}
	}
	return nil
}

// input returns the rows dt[r] u[r] B.
func (tr *Transition) input(dt []float64, u *mat.Dense) *mat.Dense {
	rows, _ := u.Dims()
	scaled := mat.NewDense(rows, 1, nil)
	for r := 0; r < rows; r++ {
		scaled.Set(r, 0, dt[r]*u.At(r, 0))
	}
	var res mat.Dense
	res.Mul(scaled, tr.B)
	return &res
}

// forwardMult returns the rows (I + c dt[r] A) m[r].
func (tr *Transition) forwardMult(m *mat.Dense, dt []float64, c float64) *mat.Dense {
	x := gonumExtensions.Linear(m, tr.A)
	rows, _ := x.Dims()
	for r := 0; r < rows; r++ {
		row := x.RawRowView(r)
		for i := range row {
			row[i] *= c * dt[r]
		}
	}
	x.Add(x, m)
	return x
}

// inverseMult returns the rows (I - c dt[r] A)^-1 x[r]. Rows sharing a delta
// are solved together.
func (tr *Transition) inverseMult(x *mat.Dense, dt []float64, c float64) (*mat.Dense, error) {
	rows, N := x.Dims()
	groups := make(map[float64][]int)
	var order []float64
	for r := 0; r < rows; r++ {
		if _, ok := groups[dt[r]]; !ok {
			order = append(order, dt[r])
		}
		groups[dt[r]] = append(groups[dt[r]], r)
	}

	I := gonumExtensions.Identity(N)
	res := mat.NewDense(rows, N, nil)
	for _, delta := range order {
		members := groups[delta]
		var ima mat.Dense
		ima.Scale(-c*delta, tr.A)
		ima.Add(&ima, I)

		// right hand sides as columns
		rhs := mat.NewDense(N, len(members), nil)
		for col, r := range members {
			rhs.SetCol(col, x.RawRowView(r))
		}
		var sol mat.Dense
		var err error
		if tr.triangular {
			err = sol.Solve(gonumExtensions.LowerTriangle(&ima), rhs)
		} else {
			err = sol.Solve(&ima, rhs)
		}
		if err != nil {
			var cond mat.Condition
			if errors.As(err, &cond) {
				return nil, fmt.Errorf("%w: dt=%v, condition number %g", discretize.ErrDegenerate, delta, float64(cond))
			}
			return nil, fmt.Errorf("%w: dt=%v: %v", discretize.ErrDegenerate, delta, err)
		}
		for col, r := range members {
			res.SetRow(r, mat.Col(nil, col, &sol))
		}
	}
	return res, nil
}
