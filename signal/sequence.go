package signal

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Sequence samples one scalar function per batch element at the given
// timestamps and returns one (batch by 1) input matrix per time step.
//
// With timestamped set, every matrix is (batch by 2) and column 0 carries
// the timestamp, which is the layout the timestamp driven cells expect.
func Sequence(u []func(float64) float64, timestamps []float64, timestamped bool) []*mat.Dense {
	if len(u) == 0 {
		panic(errors.New("Sequence needs at least one input function"))
	}
	batch := len(u)
	cols := 1
	if timestamped {
		cols = 2
	}
	res := make([]*mat.Dense, len(timestamps))
	for index, t := range timestamps {
		step := mat.NewDense(batch, cols, nil)
		for b, fn := range u {
			if timestamped {
				step.Set(b, 0, t)
			}
			step.Set(b, cols-1, fn(t))
		}
		res[index] = step
	}
	return res
}

// UniformTimestamps returns n timestamps t0, t0+ts, ..., t0+(n-1)ts.
func UniformTimestamps(t0, ts float64, n int) []float64 {
	res := make([]float64, n)
	for index := range res {
		res[index] = t0 + float64(index)*ts
	}
	return res
}
