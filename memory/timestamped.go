package memory

import (
	"fmt"

	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/transition"
	"gonum.org/v1/gonum/mat"
)

// timestamped applies a transition whose step length is derived from the
// timestamps of every batch element.
type timestamped struct {
	Transition *transition.Transition
	Method     discretize.Method
	fn         transition.Func
}

func newTimestamped(measure, method string, order int, opts ...transition.Option) (timestamped, error) {
	ms, err := transition.ParseMeasure(measure)
	if err != nil {
		return timestamped{}, err
	}
	md, err := discretize.ParseMethod(method)
	if err != nil {
		return timestamped{}, err
	}
	tr, err := transition.New(ms, order, opts...)
	if err != nil {
		return timestamped{}, err
	}
	fn, err := tr.Fn(md)
	if err != nil {
		return timestamped{}, err
	}
	return timestamped{Transition: tr, Method: md, fn: fn}, nil
}

func (r timestamped) Order() int { return r.Transition.Order() }

func (r timestamped) Timestamped() bool { return true }

// apply expands one delta per batch element to all its memory rows.
func (r timestamped) apply(delta []float64, m, u *mat.Dense) (*mat.Dense, error) {
	rows, _ := m.Dims()
	batch := len(delta)
	if batch == 0 || rows%batch != 0 {
		return nil, fmt.Errorf("%w: %d memory rows for %d timestamps", ErrShape, rows, batch)
	}
	size := rows / batch
	dt := make([]float64, rows)
	for i := range dt {
		dt[i] = delta[i/size]
	}
	return r.fn(dt, m, gonumExtensions.Column(u))
}

func (r timestamped) checkClock(clock Clock, batch int) error {
	if len(clock.Prev) != batch || len(clock.Curr) != batch {
		return fmt.Errorf("%w: %d and %d timestamps for batch %d", ErrShape, len(clock.Prev), len(clock.Curr), batch)
	}
	return nil
}

// TimeLSI is the scale invariant rule over timestamps. The step of an
// element is (t1 - t0) / t1; an element whose current timestamp is 0 starts
// a new sequence and its memory is reset to pad(u).
type TimeLSI struct {
	timestamped
}

// NewTimeLSI builds the rule for a measure and a finite difference method.
func NewTimeLSI(measure, method string, order int, opts ...transition.Option) (*TimeLSI, error) {
	base, err := newTimestamped(measure, method, order, opts...)
	if err != nil {
		return nil, err
	}
	return &TimeLSI{base}, nil
}

func (r *TimeLSI) Update(m, u, _ *mat.Dense, clock Clock) (*mat.Dense, error) {
	batch, size := u.Dims()
	if err := r.checkClock(clock, batch); err != nil {
		return nil, err
	}
	delta := make([]float64, batch)
	reset := false
	for b, t1 := range clock.Curr {
		if t1 == 0 {
			reset = true
			continue
		}
		delta[b] = (t1 - clock.Prev[b]) / t1
	}
	res, err := r.apply(delta, m, u)
	if err != nil || !reset {
		return res, err
	}
	pad := gonumExtensions.PadFirst(u, r.Order())
	for b, t1 := range clock.Curr {
		if t1 != 0 {
			continue
		}
		for i := b * size; i < (b+1)*size; i++ {
			res.SetRow(i, pad.RawRowView(i))
		}
	}
	return res, nil
}

func (r *TimeLSI) Name() string { return "tlsi" }

// TimeLTI is the time invariant rule over timestamps with step
// Rate * (t1 - t0).
type TimeLTI struct {
	timestamped
	Rate float64
}

// NewTimeLTI builds the rule for a measure and a finite difference method.
func NewTimeLTI(measure, method string, order int, rate float64, opts ...transition.Option) (*TimeLTI, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("memory: rate must be positive, got %v", rate)
	}
	base, err := newTimestamped(measure, method, order, opts...)
	if err != nil {
		return nil, err
	}
	return &TimeLTI{timestamped: base, Rate: rate}, nil
}

func (r *TimeLTI) Update(m, u, _ *mat.Dense, clock Clock) (*mat.Dense, error) {
	batch, _ := u.Dims()
	if err := r.checkClock(clock, batch); err != nil {
		return nil, err
	}
	delta := make([]float64, batch)
	for b, t1 := range clock.Curr {
		delta[b] = r.Rate * (t1 - clock.Prev[b])
	}
	return r.apply(delta, m, u)
}

func (r *TimeLTI) Name() string { return "tlti" }
