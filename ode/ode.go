// Package ode is a ordinary differential equation library that implements the
// Runge-Kutta methods https://en.wikipedia.org/wiki/Runge–Kutta_methods.
// It serves as the reference continuous to discrete conversion that the
// closed form discretizations are checked against.
package ode

import (
	"errors"
	"math"
	"sync"

	"github.com/hammal/hippo/ssm"
	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the adaptive step control gives up.
var ErrNoConvergence = errors.New("ode: maximum number of iterations reached, adaptive Runge-Kutta doesn't converge")

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// Compute makes a single Runge-Kutta step for every column of value from
// t = from to t = to and returns the result as a new matrix. The columns are
// independent initial values and are integrated concurrently.
func (rk RungeKutta) Compute(from, to float64, value mat.Matrix, system ssm.StateSpaceModel) *mat.Dense {
	M, N := value.Dims()
	if M != system.StateSpaceOrder() {
		panic(errors.New("Compute: initial values don't match the state space order"))
	}

	res := make([]*mat.VecDense, N)

	var wg sync.WaitGroup
	wg.Add(N)

	for column := 0; column < N; column++ {
		res[column] = mat.NewVecDense(M, mat.Col(nil, column, value))
		go func(state *mat.VecDense) {
			defer wg.Done()
			rk.computeVec(from, to, state, system)
		}(res[column])
	}

	wg.Wait()

	resMatrix := mat.NewDense(M, N, nil)
	for column := 0; column < N; column++ {
		resMatrix.SetCol(column, res[column].RawVector().Data)
	}

	return resMatrix
}

// computeVec the update for a Runge-Kutta system based on a current value at t = from
// , a target time t = to, a initial value x(t=from) = value and a system model ode.
// When algorithm is finished the result is copied into the value and the local
// error estimate is returned.
func (rk RungeKutta) computeVec(from, to float64, value *mat.VecDense, system ssm.StateSpaceModel) *mat.VecDense {
	var tempV mat.VecDense

	// State order
	M := value.Len()
	// The precomputed derivative points
	K := make([]mat.Vector, rk.Description.stages)
	// Step length
	h := to - from
	for index := range K {
		// Compute the relevant vector by combining previously computed derivate points
		// according to Butcher Tableau.
		tempV.CloneFromVec(value)
		for index2, a := range rk.Description.rungeKuttaMatrix[index] {
			tempV.AddScaledVec(&tempV, h*a, K[index2])
		}
		// Insert the new derivate point
		K[index] = system.Derivative(from+h*rk.Description.nodes[index], &tempV)
	}

	// Initialize the error vector
	err := mat.NewVecDense(M, nil)
	// Sum up the different contributions with relevant weights.
	tempV.CloneFromVec(value)
	for index, k := range K {
		tempV.AddScaledVec(&tempV, h*rk.Description.weights[0][index], k)
		// If the Butcher Tableau allows for adaptive error computation
		if len(rk.Description.weights) == 2 {
			err.AddScaledVec(err, h*(rk.Description.weights[1][index]-rk.Description.weights[0][index]), k)
		}
	}

	value.CopyVec(&tempV)
	return err
}

// AdaptiveCompute implements an adaptive version which for a given error
// tolerance tol makes recursive steps such that the local error never exceeds
// the error specification. value is updated in place.
func (rk RungeKutta) AdaptiveCompute(from, to, tol float64, value *mat.VecDense, system ssm.StateSpaceModel) error {
	// Set max number of iterations
	const maxNumberOfIterations int = 10000

	var (
		tnow, tnext  float64
		currentError float64
		count        int
	)

	tnow = from
	accepted := mat.NewVecDense(value.Len(), nil)
	trial := mat.NewVecDense(value.Len(), nil)
	accepted.CopyVec(value)

	// Repeat until time to is reached
	for tnow < to {
		// Set target time
		tnext = to
		// Repeat until target error is reached
		for {
			trial.CopyVec(accepted)
			errorVector := rk.computeVec(tnow, tnext, trial, system)
			currentError = 0.
			for index := 0; index < errorVector.Len(); index++ {
				currentError += math.Abs(errorVector.AtVec(index))
			}
			if currentError < tol {
				break
			}
			// Half the next integration interval and try again
			tnext = (tnext-tnow)/2. + tnow

			count++
			if count >= maxNumberOfIterations {
				return ErrNoConvergence
			}
		}
		accepted.CopyVec(trial)
		tnow = tnext
	}
	value.CopyVec(accepted)
	return nil
}

// Integrate takes n equidistant steps from t = from to t = to for every
// column of value.
func (rk RungeKutta) Integrate(from, to float64, n int, value mat.Matrix, system ssm.StateSpaceModel) *mat.Dense {
	if n < 1 {
		panic(errors.New("Integrate needs at least one step"))
	}
	h := (to - from) / float64(n)
	res := mat.DenseCopyOf(value)
	for step := 0; step < n; step++ {
		t0 := from + float64(step)*h
		res = rk.Compute(t0, t0+h, res, system)
	}
	return res
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	var temp butcherTableau
	temp.stages = 4
	temp.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	temp.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	rk := RungeKutta{temp}
	return &rk
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	var temp butcherTableau
	temp.stages = 1
	temp.nodes = []float64{0}
	temp.weights = [][]float64{{1}}
	temp.rungeKuttaMatrix = [][]float64{nil}
	rk := RungeKutta{temp}
	return &rk
}

// butcherTableau which describes the approximate solution, see https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          [][]float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// NewFehlberg45 implements https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method
func NewFehlberg45() *RungeKutta {
	var temp butcherTableau
	temp.stages = 6
	temp.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	temp.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	rk := RungeKutta{temp}
	return &rk
}
