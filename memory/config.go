package memory

import (
	"log/slog"
	"math/rand/v2"

	"github.com/hammal/hippo/nn"
)

// Architecture switches the optional pathways of a Cell.
type Architecture struct {
	// UX feeds the input to the memory update u.
	UX bool
	// UM feeds the previous memory to u.
	UM bool
	// HX feeds the input to the hidden state.
	HX bool
	// HM feeds the updated memory to the hidden state.
	HM bool
	// HH feeds the previous hidden state to the hidden state.
	HH bool
	// Bias adds biases to the linear maps.
	Bias bool
}

// DefaultArchitecture is the configuration used unless WithArchitecture is
// given.
var DefaultArchitecture = Architecture{UX: true, HX: true, HM: true, Bias: true}

var initializerKeys = map[string]bool{
	"uxh": true, "ux": true, "uh": true, "um": true,
	"hxm": true, "hx": true, "hm": true, "hh": true,
}

func defaultInitializers() map[string]string {
	return map[string]string{
		"uxh": "uniform",
		"hxm": "xavier",
		"hx":  "xavier",
		"hm":  "xavier",
		"um":  "zero",
		"hh":  "xavier",
	}
}

type config struct {
	hiddenActivation string
	memoryActivation string
	gate             *nn.Mechanism
	memoryOutput     bool
	architecture     Architecture
	initializers     map[string]string
	src              rand.Source
	logger           *slog.Logger
}

func defaultConfig() config {
	gate := nn.Standard
	return config{
		hiddenActivation: "tanh",
		memoryActivation: "id",
		gate:             &gate,
		architecture:     DefaultArchitecture,
		initializers:     defaultInitializers(),
		src:              rand.NewPCG(1, 2),
		logger:           slog.Default(),
	}
}

// Option configures a Cell.
type Option func(*config)

// WithHiddenActivation sets the hidden activation, default tanh.
func WithHiddenActivation(name string) Option {
	return func(c *config) { c.hiddenActivation = name }
}

// WithMemoryActivation sets the activation of the memory update u, default
// identity.
func WithMemoryActivation(name string) Option {
	return func(c *config) { c.memoryActivation = name }
}

// WithGate sets the gating mechanism, default nn.Standard.
func WithGate(mechanism nn.Mechanism) Option {
	return func(c *config) { c.gate = &mechanism }
}

// WithoutGate replaces the hidden state by the candidate every step.
func WithoutGate() Option {
	return func(c *config) { c.gate = nil }
}

// WithMemoryOutput appends the flattened memory to the output.
func WithMemoryOutput(on bool) Option {
	return func(c *config) { c.memoryOutput = on }
}

// WithArchitecture replaces the pathway switches.
func WithArchitecture(a Architecture) Option {
	return func(c *config) { c.architecture = a }
}

// WithInitializers overrides weight initializers per key. Keys are uxh, ux,
// uh, um, hxm, hx, hm and hh; values are nn initializer names.
func WithInitializers(init map[string]string) Option {
	return func(c *config) {
		for k, v := range init {
			c.initializers[k] = v
		}
	}
}

// WithSource sets the random source for weights.
func WithSource(src rand.Source) Option {
	return func(c *config) { c.src = src }
}

// WithLogger sets the logger, default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}
