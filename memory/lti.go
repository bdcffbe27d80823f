package memory

import (
	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/ssm"
	"gonum.org/v1/gonum/mat"
)

// LTI applies one fixed discrete operator every step:
//
// m <- m + dA m + dB u
type LTI struct {
	Op *discretize.Operator
}

// NewLTI discretizes c' = Ac + Bu with step dt. A trainableScale > 0
// registers the operator as a trainable parameter with that learning rate
// scale.
func NewLTI(A, B mat.Matrix, dt float64, method string, trainableScale float64) (*LTI, error) {
	sys, err := ssm.NewLinearStateSpaceModel(A, B)
	if err != nil {
		return nil, err
	}
	m, err := discretize.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	op, err := discretize.LTI(sys, dt, m)
	if err != nil {
		return nil, err
	}
	return &LTI{Op: op.Trainable(trainableScale)}, nil
}

func (r *LTI) Update(m, u, _ *mat.Dense, _ Clock) (*mat.Dense, error) {
	A, B := r.Op.Effective()
	res := gonumExtensions.Linear(m, A)
	res.Add(res, m)
	res.Add(res, gonumExtensions.Linear(gonumExtensions.Column(u), B))
	return res, nil
}

func (r *LTI) Order() int {
	n, _ := r.Op.A.Dims()
	return n
}

func (r *LTI) Timestamped() bool { return false }

func (r *LTI) Name() string { return "lti" }

// Parameters exposes the operator when it is trainable.
func (r *LTI) Parameters() map[string]mat.Matrix {
	if !r.Op.IsTrainable() {
		return nil
	}
	return map[string]mat.Matrix{"A": r.Op.A, "B": r.Op.B}
}
