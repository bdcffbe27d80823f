package memory

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/nn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func constantInputs(batch, features, length int, value float64) []*mat.Dense {
	inputs := make([]*mat.Dense, length)
	for t := range inputs {
		inputs[t] = gonumExtensions.Full(batch, features, value)
	}
	return inputs
}

var _ = Describe("Cell", func() {
	var (
		rule UpdateRule
		src  rand.Source
	)

	BeforeEach(func() {
		sys := legs(4)
		var err error
		rule, err = NewLTI(sys.A, sys.B, .01, "zoh", 0)
		Expect(err).NotTo(HaveOccurred())
		src = rand.NewPCG(7, 11)
	})

	It("should start from zeros", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		state := cell.DefaultState(6)
		Expect(state.Batch()).To(Equal(6))
		r, c := state.M.Dims()
		Expect([]int{r, c}).To(Equal([]int{18, 4}))
		Expect(mat.Sum(state.H) + mat.Sum(state.M) + mat.Sum(state.U)).To(BeZero())
		Expect(state.Time).To(BeNil())
	})

	It("should refuse empty batches", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { cell.DefaultState(0) }).To(Panic())

		_, _, err = cell.Step(&mat.Dense{}, cell.DefaultState(1))
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
		_, _, err = Unroll(cell, []*mat.Dense{{}})
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
		_, _, err = Unroll(cell, []*mat.Dense{nil})
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
	})

	It("should take the memory order from the rule", func() {
		cell, err := NewCell(2, 5, 3, -1, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		Expect(cell.MemoryOrder).To(Equal(4))

		_, err = NewCell(2, 5, 3, 6, rule)
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
	})

	It("should reject bad configurations", func() {
		_, err := NewCell(2, 5, 3, 4, rule, WithHiddenActivation("softplus"))
		Expect(errors.Is(err, nn.ErrUnknown)).To(BeTrue())
		_, err = NewCell(2, 5, 3, 4, rule, WithInitializers(map[string]string{"xh": "zero"}))
		Expect(errors.Is(err, nn.ErrUnknown)).To(BeTrue())
		_, err = NewCell(2, 5, 3, 4, rule, WithInitializers(map[string]string{"hm": "orthogonal"}))
		Expect(errors.Is(err, nn.ErrUnknown)).To(BeTrue())
		_, err = NewCell(2, 5, 3, 4, rule, WithArchitecture(Architecture{UX: true}))
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
		_, err = NewCell(2, 5, 3, 4, rule, WithGate("X"))
		Expect(err).To(HaveOccurred())
		_, err = NewCell(2, 5, 3, 4, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should log its construction", func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		_, err := NewCell(2, 5, 3, 4, rule, WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("rule=lti"))
		Expect(buf.String()).To(ContainSubstring("order=4"))
	})

	It("should reject mismatched inputs and states", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		state := cell.DefaultState(2)

		_, _, err = cell.Step(mat.NewDense(2, 3, nil), state)
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
		_, _, err = cell.Step(mat.NewDense(1, 2, nil), state)
		Expect(errors.Is(err, ErrShape)).To(BeTrue())

		state.M = mat.NewDense(6, 3, nil)
		_, _, err = cell.Step(mat.NewDense(2, 2, nil), state)
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
	})

	It("should advance the state without touching the old one", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		state := cell.DefaultState(2)
		out, next, err := cell.Step(gonumExtensions.Full(2, 2, 1), state)
		Expect(err).NotTo(HaveOccurred())

		Expect(next.Step).To(Equal(1))
		Expect(out).To(BeIdenticalTo(next.H))
		Expect(mat.Sum(state.M)).To(BeZero())
		Expect(mat.Norm(next.M, 2)).To(BeNumerically(">", 0))
		for _, v := range out.RawMatrix().Data {
			Expect(v).To(BeNumerically(">", -1))
			Expect(v).To(BeNumerically("<", 1))
		}
	})

	It("should append the memory to the output", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithMemoryOutput(true))
		Expect(err).NotTo(HaveOccurred())
		Expect(cell.OutputSize()).To(Equal(17))
		out, next, err := cell.Step(gonumExtensions.Full(2, 2, 1), cell.DefaultState(2))
		Expect(err).NotTo(HaveOccurred())
		_, c := out.Dims()
		Expect(c).To(Equal(17))
		Expect(out.RawRowView(1)[5:]).To(Equal(gonumExtensions.Flatten(next.M, 2).RawRowView(1)))
	})

	It("should replace the hidden state by the candidate without a gate", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithoutGate())
		Expect(err).NotTo(HaveOccurred())
		state := cell.DefaultState(2)
		state.H = gonumExtensions.Full(2, 5, .3)
		x := mat.NewDense(2, 2, []float64{1, -1, .5, 2})

		out, next, err := cell.Step(x, state)
		Expect(err).NotTo(HaveOccurred())
		want, err := cell.candidate(x, state.H, gonumExtensions.Flatten(next.M, 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(out, want, 1e-12)).To(BeTrue())
	})

	It("should interpolate between hidden state and candidate with a gate", func() {
		for _, mechanism := range []nn.Mechanism{nn.Standard, nn.UniformRefined, nn.Refine} {
			cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithGate(mechanism))
			Expect(err).NotTo(HaveOccurred())
			state := cell.DefaultState(1)
			state.H = gonumExtensions.Full(1, 5, .9)
			x := mat.NewDense(1, 2, []float64{1, -1})

			out, next, err := cell.Step(x, state)
			Expect(err).NotTo(HaveOccurred())
			hidden, err := cell.candidate(x, state.H, gonumExtensions.Flatten(next.M, 1))
			Expect(err).NotTo(HaveOccurred())
			for j := 0; j < 5; j++ {
				lo, hi := hidden.At(0, j), .9
				if lo > hi {
					lo, hi = hi, lo
				}
				Expect(out.At(0, j)).To(BeNumerically(">=", lo-1e-12))
				Expect(out.At(0, j)).To(BeNumerically("<=", hi+1e-12))
			}
		}
	})

	It("should keep a constant gate on the hidden state with mechanism N", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithGate(nn.None))
		Expect(err).NotTo(HaveOccurred())
		x := mat.NewDense(1, 2, []float64{1, -1})
		state := cell.DefaultState(1)
		state.H = gonumExtensions.Full(1, 5, .9)
		out, next, err := cell.Step(x, state)
		Expect(err).NotTo(HaveOccurred())
		want, err := cell.candidate(x, state.H, gonumExtensions.Flatten(next.M, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(out, want, 1e-12)).To(BeTrue())
	})

	It("should ignore the hidden state in the candidate without hh", func() {
		arch := Architecture{UX: true, HM: true, Bias: true}
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithArchitecture(arch))
		Expect(err).NotTo(HaveOccurred())
		x := mat.NewDense(1, 2, []float64{1, -1})
		flat := gonumExtensions.Flatten(gonumExtensions.Full(3, 4, .2), 1)

		a, err := cell.candidate(x, gonumExtensions.Full(1, 5, -.7), flat)
		Expect(err).NotTo(HaveOccurred())
		b, err := cell.candidate(x, gonumExtensions.Full(1, 5, .4), flat)
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(a, b, 0)).To(BeTrue())

		arch.HH = true
		cell, err = NewCell(2, 5, 3, 4, rule, WithSource(src), WithArchitecture(arch))
		Expect(err).NotTo(HaveOccurred())
		a, err = cell.candidate(x, gonumExtensions.Full(1, 5, -.7), flat)
		Expect(err).NotTo(HaveOccurred())
		b, err = cell.candidate(x, gonumExtensions.Full(1, 5, .4), flat)
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(a, b, 1e-9)).To(BeFalse())
	})

	It("should feed the previous memory to the update when um is on", func() {
		arch := DefaultArchitecture
		arch.UM = true
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithArchitecture(arch),
			WithInitializers(map[string]string{"um": "one"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(cell.Parameters()).To(HaveKey("W_um"))

		x := mat.NewDense(1, 2, []float64{1, -1})
		h := mat.NewDense(1, 5, nil)
		u0, err := cell.update(x, h, mat.NewDense(3, 4, nil))
		Expect(err).NotTo(HaveOccurred())
		u1, err := cell.update(x, h, gonumExtensions.Ones(3, 4))
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 3; i++ {
			Expect(u1.At(0, i) - u0.At(0, i)).To(BeNumerically("~", 4, 1e-12))
		}
	})

	It("should list its parameters", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src), WithGate(nn.UniformRefined),
			WithMemoryActivation("modrelu"))
		Expect(err).NotTo(HaveOccurred())
		params := cell.Parameters()
		Expect(params).To(HaveKey("W_uxh"))
		Expect(params).To(HaveKey("b_uxh"))
		Expect(params).To(HaveKey("W_hxm"))
		Expect(params).To(HaveKey("W_gate"))
		Expect(params).To(HaveKey("b_gate_uniform"))
		Expect(params).To(HaveKey("b_memory_modrelu"))
		Expect(params).NotTo(HaveKey("W_hh"))
		r, c := params["W_hxm"].Dims()
		Expect([]int{r, c}).To(Equal([]int{5, 2 + 12}))
	})

	It("should converge to the steady state on a constant input", func() {
		sys := legs(4)
		cell, err := NewCell(1, 3, 1, 4, rule, WithSource(src),
			WithArchitecture(Architecture{UX: true, HX: true, HM: true}),
			WithInitializers(map[string]string{"ux": "one", "uh": "zero"}))
		Expect(err).NotTo(HaveOccurred())

		// u = x exactly: unit input weight, no hidden pathway, no bias
		_, state, err := Unroll(cell, constantInputs(1, 1, 1500, .8))
		Expect(err).NotTo(HaveOccurred())
		Expect(state.U.At(0, 0)).To(BeNumerically("~", .8, 1e-12))

		want, err := sys.SteadyState(.8)
		Expect(err).NotTo(HaveOccurred())
		Expect(floats.EqualApprox(state.M.RawRowView(0), want.RawVector().Data, 1e-4)).To(BeTrue())
	})

	It("should unroll like stepping by hand", func() {
		cell, err := NewCell(2, 5, 3, 4, rule, WithSource(src))
		Expect(err).NotTo(HaveOccurred())
		inputs := make([]*mat.Dense, 6)
		for t := range inputs {
			inputs[t] = mat.NewDense(2, 2, []float64{float64(t), 1, -float64(t), .5})
		}
		outputs, final, err := Unroll(cell, inputs)
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(6))

		state := cell.DefaultState(2)
		for t, x := range inputs {
			var out *mat.Dense
			out, state, err = cell.Step(x, state)
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.EqualApprox(out, outputs[t], 0)).To(BeTrue())
		}
		Expect(final.Step).To(Equal(6))
		Expect(mat.EqualApprox(final.M, state.M, 0)).To(BeTrue())

		_, _, err = Unroll(cell, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Scale invariant cell", func() {
	It("should hold the first input in the memory after one step", func() {
		table, err := discretizeLegs(4, 10)
		Expect(err).NotTo(HaveOccurred())
		rule, err := NewLSI(table, 0)
		Expect(err).NotTo(HaveOccurred())
		cell, err := NewCell(1, 3, 2, 4, rule, WithSource(rand.NewPCG(1, 1)))
		Expect(err).NotTo(HaveOccurred())

		_, state, err := cell.Step(mat.NewDense(1, 1, []float64{2}), cell.DefaultState(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(state.M, gonumExtensions.PadFirst(state.U, 4), 0)).To(BeTrue())

		// run far past the table
		_, state, err = Unroll(cell, constantInputs(1, 1, 25, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(gonumExtensions.NANORINF(state.M)).To(BeFalse())
	})
})

var _ = Describe("Timestamped cell", func() {
	var cell *Cell

	BeforeEach(func() {
		rule, err := NewTimeLSI("legs", "bilinear", 4)
		Expect(err).NotTo(HaveOccurred())
		cell, err = NewCell(3, 5, 2, 4, rule, WithSource(rand.NewPCG(3, 5)))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should read the timestamp from the first column", func() {
		state := cell.DefaultState(2)
		Expect(state.Time).To(Equal([]float64{0, 0}))

		x := mat.NewDense(2, 3, []float64{
			0, 1, 2,
			0, -1, .5,
		})
		_, next, err := cell.Step(x, state)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Time).To(Equal([]float64{0, 0}))
		Expect(mat.EqualApprox(next.M, gonumExtensions.PadFirst(next.U, 4), 0)).To(BeTrue())

		x = mat.NewDense(2, 3, []float64{
			1, 1, 2,
			0, -1, .5,
		})
		_, last, err := cell.Step(x, next)
		Expect(err).NotTo(HaveOccurred())
		Expect(last.Time).To(Equal([]float64{1, 0}))
		// element 1 restarted
		Expect(last.M.RawRowView(2)).To(Equal([]float64{last.U.At(1, 0), 0, 0, 0}))
		Expect(last.M.RawRowView(0)).NotTo(Equal([]float64{last.U.At(0, 0), 0, 0, 0}))
	})

	It("should reject states without timestamps", func() {
		state := cell.DefaultState(2)
		state.Time = nil
		_, _, err := cell.Step(mat.NewDense(2, 3, nil), state)
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
	})

	It("should return an error for a NaN timestamp", func() {
		x := mat.NewDense(2, 3, []float64{
			math.NaN(), 1, 2,
			1, -1, .5,
		})
		_, _, err := cell.Step(x, cell.DefaultState(2))
		Expect(errors.Is(err, discretize.ErrDegenerate)).To(BeTrue())
	})
})
