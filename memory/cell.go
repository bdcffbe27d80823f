package memory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hammal/hippo/gonumExtensions"
	"github.com/hammal/hippo/nn"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when an input or state does not fit the cell.
var ErrShape = errors.New("shape mismatch")

// State is the recurrent state of a batch.
type State struct {
	// H is the hidden state, batch by hidden size.
	H *mat.Dense
	// M is the memory, row b*memorySize+i holds channel i of element b.
	M *mat.Dense
	// U is the previous memory update, batch by memory size.
	U *mat.Dense
	// Step counts the steps taken since DefaultState.
	Step int
	// Time holds the previous timestamp per element for timestamped rules.
	Time []float64
}

// Batch is the number of sequences carried by the state.
func (s State) Batch() int {
	r, _ := s.H.Dims()
	return r
}

// Cell is a HiPPO memory cell. A Cell is not modified by Step and can be
// shared between goroutines that each carry their own State.
type Cell struct {
	InputSize   int
	HiddenSize  int
	MemorySize  int
	MemoryOrder int

	rule         UpdateRule
	arch         Architecture
	memoryOutput bool
	// features excluding the timestamp column
	features int

	memoryActivation nn.Activation
	hiddenActivation nn.Activation

	wUXH *nn.Linear
	wUM  *mat.Dense
	wHXM *nn.Linear
	wHH  *nn.Linear
	gate *nn.Gate
}

// NewCell builds a cell around rule. For timestamped rules inputSize counts
// the timestamp column. A memoryOrder <= 0 takes the order of the rule.
func NewCell(inputSize, hiddenSize, memorySize, memoryOrder int, rule UpdateRule, opts ...Option) (*Cell, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if rule == nil {
		return nil, errors.New("memory: cell needs an update rule")
	}
	if memoryOrder <= 0 {
		memoryOrder = rule.Order()
	}
	if memoryOrder != rule.Order() {
		return nil, fmt.Errorf("%w: memory order %d, rule order %d", ErrShape, memoryOrder, rule.Order())
	}
	features := inputSize
	if rule.Timestamped() {
		features--
	}
	if features < 0 || hiddenSize < 1 || memorySize < 1 {
		return nil, fmt.Errorf("%w: input %d, hidden %d, memory %d", ErrShape, inputSize, hiddenSize, memorySize)
	}
	arch := c.architecture
	if !arch.HM && (!arch.HX || features == 0) {
		return nil, fmt.Errorf("%w: hidden state has no inputs", ErrShape)
	}
	for k := range c.initializers {
		if !initializerKeys[k] {
			return nil, fmt.Errorf("%w: initializer key %q", nn.ErrUnknown, k)
		}
	}

	cell := &Cell{
		InputSize:    inputSize,
		HiddenSize:   hiddenSize,
		MemorySize:   memorySize,
		MemoryOrder:  memoryOrder,
		rule:         rule,
		arch:         arch,
		memoryOutput: c.memoryOutput,
		features:     features,
	}
	var err error
	if cell.memoryActivation, err = nn.NewActivation(c.memoryActivation, memorySize, c.src); err != nil {
		return nil, err
	}
	if cell.hiddenActivation, err = nn.NewActivation(c.hiddenActivation, hiddenSize, c.src); err != nil {
		return nil, err
	}
	if err = cell.reset(c); err != nil {
		return nil, err
	}

	c.logger.Debug("memory cell",
		slog.String("rule", rule.Name()),
		slog.Int("input", inputSize),
		slog.Int("hidden", hiddenSize),
		slog.Int("memory", memorySize),
		slog.Int("order", memoryOrder),
		slog.Any("architecture", arch),
	)
	return cell, nil
}

func (c *Cell) inputToMemory() int {
	if c.arch.UX {
		return c.features
	}
	return 0
}

func (c *Cell) inputToHidden() int {
	if c.arch.HX {
		return c.features
	}
	return 0
}

func (c *Cell) memoryToHidden() int {
	if c.arch.HM {
		return c.MemorySize * c.MemoryOrder
	}
	return 0
}

// reset draws all weights.
func (c *Cell) reset(cfg config) error {
	ctor := nn.Ctor(cfg.src)
	var err error

	inUX := c.inputToMemory()
	if c.wUXH, err = ctor(nn.LinearArgs{In: inUX + c.HiddenSize, Out: c.MemorySize, Bias: c.arch.Bias}); err != nil {
		return err
	}
	memAct := c.memoryActivation.Name()
	if err = initialize(cfg, "uxh", memAct, c.wUXH.W, 0, inUX+c.HiddenSize); err != nil {
		return err
	}
	if err = initialize(cfg, "ux", memAct, c.wUXH.W, 0, inUX); err != nil {
		return err
	}
	if err = initialize(cfg, "uh", memAct, c.wUXH.W, inUX, inUX+c.HiddenSize); err != nil {
		return err
	}

	if c.arch.UM {
		c.wUM = mat.NewDense(c.MemorySize, c.MemoryOrder, nil)
		if err = initialize(cfg, "um", memAct, c.wUM, 0, c.MemoryOrder); err != nil {
			return err
		}
	}

	inHX, inHM := c.inputToHidden(), c.memoryToHidden()
	hidAct := c.hiddenActivation.Name()
	if c.wHXM, err = ctor(nn.LinearArgs{In: inHX + inHM, Out: c.HiddenSize, Bias: c.arch.Bias}); err != nil {
		return err
	}
	if err = initialize(cfg, "hxm", hidAct, c.wHXM.W, 0, inHX+inHM); err != nil {
		return err
	}
	if err = initialize(cfg, "hx", hidAct, c.wHXM.W, 0, inHX); err != nil {
		return err
	}
	if err = initialize(cfg, "hm", hidAct, c.wHXM.W, inHX, inHX+inHM); err != nil {
		return err
	}

	if c.arch.HH {
		if c.wHH, err = ctor(nn.LinearArgs{In: c.HiddenSize, Out: c.HiddenSize, Bias: c.arch.Bias}); err != nil {
			return err
		}
		if err = initialize(cfg, "hh", hidAct, c.wHH.W, 0, c.HiddenSize); err != nil {
			return err
		}
	}

	if cfg.gate != nil {
		args := nn.LinearArgs{In: inHX + inHM, Out: c.HiddenSize, Bias: c.arch.Bias}
		if c.arch.HH {
			args.In += c.HiddenSize
		}
		if c.gate, err = nn.NewGate(c.HiddenSize, ctor, args, *cfg.gate, cfg.src); err != nil {
			return err
		}
	}
	return nil
}

// initialize applies the initializer registered under key to the columns
// [from, to) of w. Missing keys and empty slices are skipped.
func initialize(cfg config, key, activation string, w *mat.Dense, from, to int) error {
	name, ok := cfg.initializers[key]
	if !ok || from >= to {
		return nil
	}
	fill, err := nn.NewInitializer(name, activation)
	if err != nil {
		return err
	}
	r, _ := w.Dims()
	fill(w.Slice(0, r, from, to).(*mat.Dense), cfg.src)
	return nil
}

// Rule is the memory update rule of the cell.
func (c *Cell) Rule() UpdateRule { return c.rule }

// OutputSize is the number of output features per element.
func (c *Cell) OutputSize() int {
	if c.memoryOutput {
		return c.HiddenSize + c.MemorySize*c.MemoryOrder
	}
	return c.HiddenSize
}

// DefaultState is the zero state of a batch. batch must be at least 1.
func (c *Cell) DefaultState(batch int) State {
	if batch < 1 {
		panic(errors.New("DefaultState: batch must be at least 1"))
	}
	s := State{
		H: mat.NewDense(batch, c.HiddenSize, nil),
		M: mat.NewDense(batch*c.MemorySize, c.MemoryOrder, nil),
		U: mat.NewDense(batch, c.MemorySize, nil),
	}
	if c.rule.Timestamped() {
		s.Time = make([]float64, batch)
	}
	return s
}

func (c *Cell) check(input mat.Matrix, state State) error {
	if input == nil || state.H == nil || state.M == nil || state.U == nil {
		return fmt.Errorf("%w: missing input or state", ErrShape)
	}
	batch, in := input.Dims()
	if batch < 1 {
		return fmt.Errorf("%w: empty batch", ErrShape)
	}
	if in != c.InputSize {
		return fmt.Errorf("%w: cell expects %d input features, got %d", ErrShape, c.InputSize, in)
	}
	if r, h := state.H.Dims(); r != batch || h != c.HiddenSize {
		return fmt.Errorf("%w: hidden state is %dx%d, want %dx%d", ErrShape, r, h, batch, c.HiddenSize)
	}
	if r, n := state.M.Dims(); r != batch*c.MemorySize || n != c.MemoryOrder {
		return fmt.Errorf("%w: memory is %dx%d, want %dx%d", ErrShape, r, n, batch*c.MemorySize, c.MemoryOrder)
	}
	if r, m := state.U.Dims(); r != batch || m != c.MemorySize {
		return fmt.Errorf("%w: memory update is %dx%d, want %dx%d", ErrShape, r, m, batch, c.MemorySize)
	}
	if c.rule.Timestamped() && len(state.Time) != batch {
		return fmt.Errorf("%w: %d timestamps for batch %d", ErrShape, len(state.Time), batch)
	}
	return nil
}

// Step advances the cell by one input (batch by InputSize) and returns the
// output together with the next state. The given state is not modified.
func (c *Cell) Step(input mat.Matrix, state State) (*mat.Dense, State, error) {
	if err := c.check(input, state); err != nil {
		return nil, State{}, err
	}
	batch, _ := input.Dims()

	clock := Clock{Step: state.Step}
	from := 0
	if c.rule.Timestamped() {
		clock.Prev = state.Time
		clock.Curr = mat.Col(nil, 0, input)
		from = 1
	}
	var x *mat.Dense
	if c.features > 0 {
		x = gonumExtensions.Columns(input, from, c.InputSize)
	}

	u, err := c.update(x, state.H, state.M)
	if err != nil {
		return nil, State{}, err
	}
	m, err := c.rule.Update(state.M, u, state.U, clock)
	if err != nil {
		return nil, State{}, fmt.Errorf("memory %s: %w", c.rule.Name(), err)
	}
	flat := gonumExtensions.Flatten(m, batch)

	hidden, err := c.candidate(x, state.H, flat)
	if err != nil {
		return nil, State{}, err
	}
	h := hidden
	if c.gate != nil {
		if h, err = c.interpolate(x, state.H, flat, hidden); err != nil {
			return nil, State{}, err
		}
	}

	next := State{H: h, M: m, U: u, Step: state.Step + 1}
	if c.rule.Timestamped() {
		next.Time = clock.Curr
	}
	out := h
	if c.memoryOutput {
		out = gonumExtensions.Concat(h, flat)
	}
	return out, next, nil
}

// update computes the memory update u from the input, the hidden state and
// the previous memory.
func (c *Cell) update(x, h, m *mat.Dense) (*mat.Dense, error) {
	var in mat.Matrix
	if c.arch.UX && x != nil {
		in = x
	}
	pre, err := c.wUXH.Forward(gonumExtensions.Concat(in, h))
	if err != nil {
		return nil, err
	}
	if c.arch.UM {
		// sum over the order of m * W_um, per channel
		batch, _ := pre.Dims()
		for b := 0; b < batch; b++ {
			for i := 0; i < c.MemorySize; i++ {
				v := mat.Dot(m.RowView(b*c.MemorySize+i), c.wUM.RowView(i))
				pre.Set(b, i, pre.At(b, i)+v)
			}
		}
	}
	return c.memoryActivation.Apply(pre), nil
}

func (c *Cell) hiddenInputs(x, flat *mat.Dense) []mat.Matrix {
	var parts []mat.Matrix
	if c.arch.HX && x != nil {
		parts = append(parts, x)
	}
	if c.arch.HM {
		parts = append(parts, flat)
	}
	return parts
}

// candidate is the activated hidden pre-activation.
func (c *Cell) candidate(x, h, flat *mat.Dense) (*mat.Dense, error) {
	pre, err := c.wHXM.Forward(gonumExtensions.Concat(c.hiddenInputs(x, flat)...))
	if err != nil {
		return nil, err
	}
	if c.arch.HH {
		hh, err := c.wHH.Forward(h)
		if err != nil {
			return nil, err
		}
		pre.Add(pre, hh)
	}
	return c.hiddenActivation.Apply(pre), nil
}

// interpolate is (1 - g) h + g hidden.
func (c *Cell) interpolate(x, h, flat, hidden *mat.Dense) (*mat.Dense, error) {
	parts := c.hiddenInputs(x, flat)
	if c.arch.HH {
		parts = append(parts, h)
	}
	g, err := c.gate.Forward(gonumExtensions.Concat(parts...))
	if err != nil {
		return nil, err
	}
	res := mat.DenseCopyOf(h)
	res.Apply(func(i, j int, v float64) float64 {
		gv := g.At(i, j)
		return (1-gv)*v + gv*hidden.At(i, j)
	}, res)
	return res, nil
}

// Parameters lists the trainable tensors of the cell by name.
func (c *Cell) Parameters() map[string]mat.Matrix {
	params := map[string]mat.Matrix{}
	add := func(name string, l *nn.Linear) {
		if l == nil {
			return
		}
		params["W_"+name] = l.W
		if l.Bias != nil {
			params["b_"+name] = l.Bias
		}
	}
	add("uxh", c.wUXH)
	add("hxm", c.wHXM)
	add("hh", c.wHH)
	if c.wUM != nil {
		params["W_um"] = c.wUM
	}
	if c.gate != nil {
		add("gate", c.gate.W)
		add("refine", c.gate.R)
		if c.gate.B != nil {
			params["b_gate_uniform"] = c.gate.B
		}
	}
	if m, ok := c.memoryActivation.(*nn.ModReLU); ok {
		params["b_memory_modrelu"] = m.Bias
	}
	if m, ok := c.hiddenActivation.(*nn.ModReLU); ok {
		params["b_hidden_modrelu"] = m.Bias
	}
	if p, ok := c.rule.(interface{ Parameters() map[string]mat.Matrix }); ok {
		for k, v := range p.Parameters() {
			params[k] = v
		}
	}
	return params
}
