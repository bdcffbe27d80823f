package memory

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Unroll runs the cell over a sequence of inputs (one batch by InputSize
// matrix per step) starting from DefaultState. It returns every output and
// the final state.
func Unroll(cell *Cell, inputs []*mat.Dense) ([]*mat.Dense, State, error) {
	if len(inputs) == 0 {
		return nil, State{}, errors.New("memory: empty sequence")
	}
	if inputs[0] == nil {
		return nil, State{}, fmt.Errorf("%w: missing input", ErrShape)
	}
	batch, _ := inputs[0].Dims()
	if batch < 1 {
		return nil, State{}, fmt.Errorf("%w: empty batch", ErrShape)
	}
	state := cell.DefaultState(batch)
	outputs := make([]*mat.Dense, 0, len(inputs))
	for t, x := range inputs {
		out, next, err := cell.Step(x, state)
		if err != nil {
			return nil, state, fmt.Errorf("step %d: %w", t, err)
		}
		outputs = append(outputs, out)
		state = next
	}
	return outputs, state, nil
}
