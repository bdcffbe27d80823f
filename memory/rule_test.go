package memory

import (
	"errors"
	"math"

	"github.com/hammal/hippo/discretize"
	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/ssm"
	"github.com/hammal/hippo/transition"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
)

func legs(N int) *ssm.LinearStateSpaceModel {
	A, B, err := transition.Matrices(transition.LegS, N, 1)
	Expect(err).NotTo(HaveOccurred())
	sys, err := ssm.NewLinearStateSpaceModel(A, B)
	Expect(err).NotTo(HaveOccurred())
	return sys
}

// batch 2, memory size 2
func fixture(N int) (m, u, uPrev *mat.Dense) {
	m = mat.NewDense(4, N, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < N; j++ {
			m.Set(i, j, float64(i+1)/float64(j+2))
		}
	}
	u = mat.NewDense(2, 2, []float64{1, -2, .5, 3})
	uPrev = mat.NewDense(2, 2, []float64{-1, 0, 2, .25})
	return
}

var _ = Describe("LTI", func() {
	var rule *LTI

	BeforeEach(func() {
		sys := legs(4)
		var err error
		rule, err = NewLTI(sys.A, sys.B, .01, "zoh", 0)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should apply the same operator at every step", func() {
		m, u, uPrev := fixture(4)
		first, err := rule.Update(m, u, uPrev, Clock{Step: 0})
		Expect(err).NotTo(HaveOccurred())
		later, err := rule.Update(m, u, uPrev, Clock{Step: 57})
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(first, later, 0)).To(BeTrue())
	})

	It("should compute m + dA m + dB u", func() {
		m, u, _ := fixture(4)
		res, err := rule.Update(m, u, nil, Clock{})
		Expect(err).NotTo(HaveOccurred())

		var want mat.Dense
		want.Mul(m, rule.Op.A.T())
		want.Add(&want, m)
		var in mat.Dense
		in.Mul(gonumExtensions.Column(u), rule.Op.B.T())
		want.Add(&want, &in)
		Expect(mat.EqualApprox(res, &want, 1e-12)).To(BeTrue())
	})

	It("should reject unknown methods", func() {
		sys := legs(2)
		_, err := NewLTI(sys.A, sys.B, .01, "rk4", 0)
		Expect(errors.Is(err, discretize.ErrUnknownMethod)).To(BeTrue())
	})

	It("should expose the operator only when trainable", func() {
		Expect(rule.Parameters()).To(BeEmpty())
		sys := legs(2)
		trainable, err := NewLTI(sys.A, sys.B, .01, "bilinear", .1)
		Expect(err).NotTo(HaveOccurred())
		Expect(trainable.Parameters()).To(HaveKey("A"))
		Expect(trainable.Parameters()).To(HaveKey("B"))

		unit, err := NewLTI(sys.A, sys.B, .01, "bilinear", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(unit.Parameters()).To(HaveLen(2))
	})
})

var _ = Describe("LSI", func() {
	var (
		table *discretize.ScaleInvariantTable
		N     = 3
	)

	BeforeEach(func() {
		var err error
		table, err = discretize.LSI(legs(N), 5, discretize.Bilinear)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should pad the update input on the first step", func() {
		rule, err := NewLSI(table, 0)
		Expect(err).NotTo(HaveOccurred())
		m, u, uPrev := fixture(N)
		res, err := rule.Update(m, u, uPrev, Clock{Step: 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RawMatrix().Data).To(Equal([]float64{
			1, 0, 0,
			-2, 0, 0,
			.5, 0, 0,
			3, 0, 0,
		}))
	})

	It("should use the boundary operator at t = 0", func() {
		rule, err := NewLSI(table, 1)
		Expect(err).NotTo(HaveOccurred())
		m, u, uPrev := fixture(N)
		res, err := rule.Update(m, u, uPrev, Clock{Step: 0})
		Expect(err).NotTo(HaveOccurred())

		want := gonumExtensions.Linear(m, table.A0)
		want.Add(want, gonumExtensions.Linear(gonumExtensions.Column(u), table.B0))
		Expect(mat.EqualApprox(res, want, 1e-12)).To(BeTrue())
	})

	It("should pair the delayed input with t-1 and the current one with t", func() {
		rule, err := NewLSI(table, 0)
		Expect(err).NotTo(HaveOccurred())
		m, u, uPrev := fixture(N)
		res, err := rule.Update(m, u, uPrev, Clock{Step: 3})
		Expect(err).NotTo(HaveOccurred())

		t := 2
		want := gonumExtensions.Linear(m, table.A[t-1])
		want.Add(want, m)
		want.Add(want, gonumExtensions.Linear(gonumExtensions.Column(uPrev), table.B[t-1]))
		want.Add(want, gonumExtensions.Linear(gonumExtensions.Column(u), table.Bb[t]))
		Expect(mat.EqualApprox(res, want, 1e-12)).To(BeTrue())
	})

	It("should saturate past the table", func() {
		rule, err := NewLSI(table, 0)
		Expect(err).NotTo(HaveOccurred())
		m, u, uPrev := fixture(N)
		last, err := rule.Update(m, u, uPrev, Clock{Step: table.MaxLength()})
		Expect(err).NotTo(HaveOccurred())
		for _, step := range []int{table.MaxLength() + 1, 10 * table.MaxLength()} {
			res, err := rule.Update(m, u, uPrev, Clock{Step: step})
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.EqualApprox(res, last, 0)).To(BeTrue())
		}
	})

	It("should build its table from a system", func() {
		sys := legs(N)
		rule, err := NewLSIFromSystem(sys.A, sys.B, 5, "tustin", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(rule.Order()).To(Equal(N))
		Expect(mat.EqualApprox(rule.Table.A[3], table.A[3], 1e-12)).To(BeTrue())

		_, err = NewLSIFromSystem(sys.A, sys.B, 5, "zoh", 1)
		Expect(errors.Is(err, discretize.ErrUnknownMethod)).To(BeTrue())
		_, err = NewLSIFromSystem(sys.A, mat.NewDense(1, N, nil), 5, "bilinear", 1)
		Expect(errors.Is(err, ssm.ErrShape)).To(BeTrue())
	})

	It("should reject tables that are too short", func() {
		short, err := discretize.LSI(legs(N), 1, discretize.Bilinear)
		Expect(err).NotTo(HaveOccurred())
		_, err = NewLSI(short, 0)
		Expect(err).To(HaveOccurred())
		_, err = NewLSI(nil, 0)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Timestamped rules", func() {
	It("should reset elements whose timestamp is zero", func() {
		rule, err := NewTimeLSI("legs", "bilinear", 3)
		Expect(err).NotTo(HaveOccurred())
		m, u, uPrev := fixture(3)
		res, err := rule.Update(m, u, uPrev, Clock{Prev: []float64{4, 1}, Curr: []float64{0, 2}})
		Expect(err).NotTo(HaveOccurred())

		Expect(res.RawRowView(0)).To(Equal([]float64{1, 0, 0}))
		Expect(res.RawRowView(1)).To(Equal([]float64{-2, 0, 0}))

		// element 1 advanced by (2 - 1) / 2
		want, err := rule.Transition.Bilinear([]float64{.5, .5},
			mat.DenseCopyOf(m.Slice(2, 4, 0, 3)),
			mat.NewDense(2, 1, []float64{.5, 3}))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(res.Slice(2, 4, 0, 3), want, 1e-12)).To(BeTrue())
	})

	It("should scale the timestamp delta by the rate", func() {
		rule, err := NewTimeLTI("legt", "forward", 3, 2)
		Expect(err).NotTo(HaveOccurred())
		m, u, _ := fixture(3)
		res, err := rule.Update(m, u, nil, Clock{Prev: []float64{0, 1}, Curr: []float64{.5, 1.25}})
		Expect(err).NotTo(HaveOccurred())

		want, err := rule.Transition.ForwardDiff([]float64{1, 1, .5, .5}, m, gonumExtensions.Column(u))
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(res, want, 1e-12)).To(BeTrue())
	})

	It("should not reset time invariant memories", func() {
		rule, err := NewTimeLTI("lagt", "backward", 3, 1, transition.WithBeta(.5))
		Expect(err).NotTo(HaveOccurred())
		m, u, _ := fixture(3)
		res, err := rule.Update(m, u, nil, Clock{Prev: []float64{0, 0}, Curr: []float64{0, 0}})
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.EqualApprox(res, m, 1e-12)).To(BeTrue())
	})

	It("should reject zoh and unknown measures", func() {
		_, err := NewTimeLSI("legs", "zoh", 3)
		Expect(errors.Is(err, discretize.ErrUnknownMethod)).To(BeTrue())
		_, err = NewTimeLTI("fourier", "bilinear", 3, 1)
		Expect(errors.Is(err, transition.ErrUnknownMeasure)).To(BeTrue())
	})

	It("should return an error for non-finite timestamps", func() {
		lti, err := NewTimeLTI("legs", "bilinear", 3, 1)
		Expect(err).NotTo(HaveOccurred())
		m, u, _ := fixture(3)
		_, err = lti.Update(m, u, nil, Clock{Prev: []float64{0, 0}, Curr: []float64{math.NaN(), math.NaN()}})
		Expect(errors.Is(err, discretize.ErrDegenerate)).To(BeTrue())

		lsi, err := NewTimeLSI("legt", "backward", 3)
		Expect(err).NotTo(HaveOccurred())
		inf := math.Inf(1)
		_, err = lsi.Update(m, u, nil, Clock{Prev: []float64{inf, 1}, Curr: []float64{inf, 2}})
		Expect(errors.Is(err, discretize.ErrDegenerate)).To(BeTrue())
	})

	It("should reject a clock of the wrong batch", func() {
		rule, err := NewTimeLSI("legs", "forward", 3)
		Expect(err).NotTo(HaveOccurred())
		m, u, _ := fixture(3)
		_, err = rule.Update(m, u, nil, Clock{Prev: []float64{1}, Curr: []float64{2}})
		Expect(errors.Is(err, ErrShape)).To(BeTrue())
	})
})

func discretizeLegs(N, maxLength int) (*discretize.ScaleInvariantTable, error) {
	return discretize.LSI(legs(N), maxLength, discretize.Bilinear)
}
