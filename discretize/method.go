// Package discretize converts the continuous system m' = Am + Bu into the
// discrete updates a memory cell applies once per step.
//
// All operators are kept in delta form, operator minus identity, so that an
// update is the residual
//
// m <- m + dA m + dB u
package discretize

import (
	"errors"
	"fmt"
)

// ErrUnknownMethod is returned for discretization names without a scheme.
var ErrUnknownMethod = errors.New("discretize: unknown method")

// ErrDegenerate is returned when (I - A delta) can't be reliably inverted
// or an operator contains NaN or Inf.
var ErrDegenerate = errors.New("discretize: degenerate system")

// Method is a discretization scheme.
type Method int

const (
	// Forward is the explicit Euler method.
	Forward Method = iota
	// Backward is the implicit Euler method.
	Backward
	// Bilinear is the trapezoidal rule, also known as Tustin's method.
	Bilinear
	// ZOH holds the input constant over the step and is exact for such inputs.
	ZOH
)

var aliases = map[string]Method{
	"euler":          Forward,
	"forward_euler":  Forward,
	"forward":        Forward,
	"forward_diff":   Forward,
	"backward":       Backward,
	"backward_diff":  Backward,
	"backward_euler": Backward,
	"bilinear":       Bilinear,
	"tustin":         Bilinear,
	"trapezoidal":    Bilinear,
	"trapezoid":      Bilinear,
	"zoh":            ZOH,
}

// ParseMethod resolves a scheme name or one of its aliases.
func ParseMethod(name string) (Method, error) {
	method, ok := aliases[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return method, nil
}

func (m Method) String() string {
	switch m {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Bilinear:
		return "bilinear"
	case ZOH:
		return "zoh"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}
