// Package simulate computes continuous time memory trajectories
//
// m'(t) = A m(t) + B u(t)
//
// which the discrete memory updates approximate. A step from t0 to t0+ts is
// split into the free response e^(A ts) m(t0) and the contribution of the
// input over the step, integrated with Runge-Kutta from a zero state. Every
// input is simulated in its own goroutine.
package simulate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hammal/hippo/ode"
	"github.com/hammal/hippo/ssm"
	"gonum.org/v1/gonum/mat"
)

// Simulator advances one memory row per input function.
type Simulator struct {
	// Ad is the free response e^(A Ts)
	Ad *mat.Dense
	Ts float64
	// Steps is the number of Runge-Kutta steps per period.
	Steps int

	rk      *ode.RungeKutta
	systems []*ssm.LinearStateSpaceModel
}

// New returns a simulator of sys with period ts driven by inputs, one per
// batch element.
func New(sys *ssm.LinearStateSpaceModel, ts float64, inputs []func(float64) float64) (*Simulator, error) {
	if len(inputs) == 0 {
		return nil, errors.New("simulate: no inputs")
	}
	if !(ts > 0) {
		return nil, fmt.Errorf("simulate: period must be positive, got %v", ts)
	}
	systems := make([]*ssm.LinearStateSpaceModel, len(inputs))
	for index, u := range inputs {
		systems[index] = sys.WithInput(u)
	}
	return &Simulator{
		Ad:      sys.StateTransition(ts),
		Ts:      ts,
		Steps:   10,
		rk:      ode.NewRK4(),
		systems: systems,
	}, nil
}

// Order is the memory order.
func (sim *Simulator) Order() int {
	n, _ := sim.Ad.Dims()
	return n
}

type contribution struct {
	index int
	value *mat.Dense
}

func (sim *Simulator) computeFunc(t0 float64, index int, returnChannel chan<- contribution, wg *sync.WaitGroup) {
	defer wg.Done()
	zero := mat.NewDense(sim.Order(), 1, nil)
	returnChannel <- contribution{index, sim.rk.Integrate(t0, t0+sim.Ts, sim.Steps, zero, sim.systems[index])}
}

// Step returns the memory at t0+ts given the memory state (one row per
// input) at t0. state is not modified.
func (sim *Simulator) Step(t0 float64, state mat.Matrix) (*mat.Dense, error) {
	r, c := state.Dims()
	if r != len(sim.systems) || c != sim.Order() {
		return nil, fmt.Errorf("%w: state is %dx%d, want %dx%d", ssm.ErrShape, r, c, len(sim.systems), sim.Order())
	}

	var wg sync.WaitGroup
	returnChannel := make(chan contribution)
	wg.Add(len(sim.systems))
	for index := range sim.systems {
		go sim.computeFunc(t0, index, returnChannel, &wg)
	}
	go func() {
		wg.Wait()
		close(returnChannel)
	}()

	// free response, row wise m Ad^T
	var res mat.Dense
	res.Mul(state, sim.Ad.T())
	for contr := range returnChannel {
		row := res.RawRowView(contr.index)
		for i := range row {
			row[i] += contr.value.At(i, 0)
		}
	}
	return &res, nil
}

// Trajectory simulates n periods from a zero memory at t0 and returns the
// memory after every period.
func (sim *Simulator) Trajectory(t0 float64, n int) ([]*mat.Dense, error) {
	state := mat.NewDense(len(sim.systems), sim.Order(), nil)
	res := make([]*mat.Dense, 0, n)
	for step := 0; step < n; step++ {
		next, err := sim.Step(t0+float64(step)*sim.Ts, state)
		if err != nil {
			return nil, err
		}
		res = append(res, next)
		state = next
	}
	return res, nil
}
