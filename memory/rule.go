// Package memory implements the HiPPO recurrent cells: a gated hidden state
// that is only updated through a compressed memory of the input history.
//
// The memory of every channel is the coefficient vector of an orthogonal
// polynomial projection that evolves as the linear system m' = Am + Bu. How
// that system is discretized is the UpdateRule of a Cell:
//
//	LTI      fixed step, time invariant dynamics
//	LSI      scale invariant dynamics precomputed per integer step
//	TimeLSI  scale invariant dynamics over explicit timestamps
//	TimeLTI  time invariant dynamics over explicit timestamps
package memory

import (
	"gonum.org/v1/gonum/mat"
)

// Clock is the step indicator handed to an UpdateRule.
type Clock struct {
	// Step counts the calls since DefaultState, starting at 0.
	Step int
	// Prev and Curr are the previous and current timestamp of every batch
	// element. Only set for timestamped rules.
	Prev, Curr []float64
}

// UpdateRule advances the memory by one step. m has one row per batch
// element and memory channel (batch*memorySize by order), u and uPrev are
// the current and previous update inputs (batch by memorySize).
type UpdateRule interface {
	Update(m, u, uPrev *mat.Dense, clock Clock) (*mat.Dense, error)
	// Order is the memory order N the rule was built for.
	Order() int
	// Timestamped rules read the first input column as a timestamp.
	Timestamped() bool
	Name() string
}
