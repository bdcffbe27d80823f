package memory

import (
	"errors"
	"fmt"

	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/ssm"
	"gonum.org/v1/gonum/mat"
)

// LSI applies the scale invariant table of its step. With t = step - 1 + InitT:
//
//	t < 0:  m <- pad(u)
//	t = 0:  m <- A0 m + B0 u
//	t > 0:  m <- m + dA[t-1] m + B[t-1] u_prev + Bb[t] u
//
// where t saturates at MaxLength()-1. The delayed input pairs with index t-1
// and the current one with index t, which is how the bilinear scheme averages
// across the step boundary.
type LSI struct {
	Table *discretize.ScaleInvariantTable
	InitT int
}

// NewLSI wraps a precomputed table. InitT = 0 spends the first step on
// pad(u); InitT = 1 starts at the boundary operator.
func NewLSI(table *discretize.ScaleInvariantTable, initT int) (*LSI, error) {
	if table == nil {
		return nil, errors.New("memory: lsi needs a table")
	}
	if table.MaxLength() < 2 {
		return nil, fmt.Errorf("memory: lsi table needs at least 2 steps, got %d", table.MaxLength())
	}
	return &LSI{Table: table, InitT: initT}, nil
}

// NewLSIFromSystem precomputes the table of c' = (Ac + Bu)/t for maxLength
// steps and wraps it.
func NewLSIFromSystem(A, B mat.Matrix, maxLength int, method string, initT int) (*LSI, error) {
	sys, err := ssm.NewLinearStateSpaceModel(A, B)
	if err != nil {
		return nil, err
	}
	m, err := discretize.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	table, err := discretize.LSI(sys, maxLength, m)
	if err != nil {
		return nil, err
	}
	return NewLSI(table, initT)
}

func (r *LSI) Update(m, u, uPrev *mat.Dense, clock Clock) (*mat.Dense, error) {
	t := clock.Step - 1 + r.InitT
	uc := gonumExtensions.Column(u)

	if t < 0 {
		return gonumExtensions.PadFirst(u, r.Order()), nil
	}
	if t == 0 {
		res := gonumExtensions.Linear(m, r.Table.A0)
		res.Add(res, gonumExtensions.Linear(uc, r.Table.B0))
		return res, nil
	}

	t = r.Table.Index(t)
	res := gonumExtensions.Linear(m, r.Table.A[t-1])
	res.Add(res, m)
	res.Add(res, gonumExtensions.Linear(gonumExtensions.Column(uPrev), r.Table.B[t-1]))
	res.Add(res, gonumExtensions.Linear(uc, r.Table.Bb[t]))
	return res, nil
}

func (r *LSI) Order() int { return r.Table.Order() }

func (r *LSI) Timestamped() bool { return false }

func (r *LSI) Name() string { return "lsi" }
