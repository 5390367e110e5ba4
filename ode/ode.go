// Package ode integrates the fixed-size moment ODE systems the LNA core
// hands it. A Context owns the parameter vector the right-hand side
// reads, making the integrator's parameter state an explicit object
// rather than hidden global state; it satisfies the core's Engine
// collaborator interface.
package ode

import (
	"errors"
	"fmt"
	"math"

	"github.com/haoyuwlab/stemr/lna"
)

var _ lna.Engine = (*Context)(nil) // Check that Context respects the core's Engine interface.

var (
	// ErrStepUnderflow reports that the adaptive step size collapsed
	// before reaching the end of the interval.
	ErrStepUnderflow = errors.New("step size underflow")

	// ErrStepBudget reports that the step budget was exhausted.
	ErrStepBudget = errors.New("step budget exhausted")

	// ErrStateSize reports a state slice whose length differs from the
	// system dimension.
	ErrStateSize = errors.New("state length does not match system dimension")
)

const maxSteps = 100000

// System is the right-hand side of a fixed-size ODE system. Derivs
// writes dy/dt at (t, y) into dy; params is the parameter vector owned
// by the Context. Implementations may keep scratch state: Derivs is only
// ever called sequentially.
type System interface {
	Dim() int
	Derivs(t float64, y, dy, params []float64)
}

// Context pairs a System with the mutable parameter vector its
// right-hand side reads. The vector persists across Integrate calls
// until the next SetParams. Not safe for concurrent use.
type Context struct {
	sys    System
	params []float64

	// Runge-Kutta stage scratch.
	k    [6][]float64
	ytmp []float64
	yout []float64
	yerr []float64
}

func NewContext(sys System) *Context {
	n := sys.Dim()
	c := &Context{
		sys:  sys,
		ytmp: make([]float64, n),
		yout: make([]float64, n),
		yerr: make([]float64, n),
	}
	for i := range c.k {
		c.k[i] = make([]float64, n)
	}
	return c
}

// SetParams replaces the parameter state. The slice is copied.
func (c *Context) SetParams(params []float64) {
	c.params = append(c.params[:0], params...)
}

// Cash-Karp embedded Runge-Kutta 4(5) tableau.
var (
	ckA = [6]float64{0, 1.0 / 5, 3.0 / 10, 3.0 / 5, 1, 7.0 / 8}
	ckB = [6][5]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{3.0 / 10, -9.0 / 10, 6.0 / 5},
		{-11.0 / 54, 5.0 / 2, -70.0 / 27, 35.0 / 27},
		{1631.0 / 55296, 175.0 / 512, 575.0 / 13824, 44275.0 / 110592, 253.0 / 4096},
	}
	ckC = [6]float64{37.0 / 378, 0, 250.0 / 621, 125.0 / 594, 0, 512.0 / 1771}
	// Difference between the 5th and embedded 4th order weights.
	ckD = [6]float64{
		37.0/378 - 2825.0/27648,
		0,
		250.0/621 - 18575.0/48384,
		125.0/594 - 13525.0/55296,
		-277.0 / 14336,
		512.0/1771 - 1.0/4,
	}
)

// Integrate advances y in place from t0 to t1 with adaptive Cash-Karp
// steps, holding the per-step error below tol (mixed absolute/relative).
func (c *Context) Integrate(y []float64, t0, t1, tol float64) error {
	n := c.sys.Dim()
	if len(y) != n {
		return fmt.Errorf("state has length %d, system dimension is %d: %w", len(y), n, ErrStateSize)
	}
	if t1 < t0 {
		return fmt.Errorf("interval [%g, %g] is reversed", t0, t1)
	}
	if t1 == t0 {
		return nil
	}

	t := t0
	h := t1 - t0
	hmin := (t1 - t0) * 1e-12
	for step := 0; t < t1; step++ {
		if step >= maxSteps {
			return fmt.Errorf("interval [%g, %g]: %w", t0, t1, ErrStepBudget)
		}
		if t+h > t1 {
			h = t1 - t
		}

		c.stage(t, h, y)

		// Scaled max-norm of the embedded error estimate.
		errNorm := 0.0
		for i := 0; i < n; i++ {
			sk := tol * (1 + math.Abs(y[i]))
			errNorm = math.Max(errNorm, math.Abs(c.yerr[i])/sk)
		}

		if errNorm <= 1 {
			t += h
			copy(y, c.yout)
			grow := 5.0
			if errNorm > 0 {
				grow = math.Min(5, 0.9*math.Pow(errNorm, -0.2))
			}
			h *= grow
		} else {
			h *= math.Max(0.1, 0.9*math.Pow(errNorm, -0.25))
			if h < hmin {
				return fmt.Errorf("interval [%g, %g] at t=%g: %w", t0, t1, t, ErrStepUnderflow)
			}
		}
	}
	return nil
}

// stage evaluates one Cash-Karp step of size h from (t, y), leaving the
// 5th order solution in c.yout and the error estimate in c.yerr.
func (c *Context) stage(t, h float64, y []float64) {
	n := len(y)
	c.sys.Derivs(t, y, c.k[0], c.params)
	for s := 1; s < 6; s++ {
		for i := 0; i < n; i++ {
			acc := 0.0
			for p := 0; p < s; p++ {
				acc += ckB[s][p] * c.k[p][i]
			}
			c.ytmp[i] = y[i] + h*acc
		}
		c.sys.Derivs(t+ckA[s]*h, c.ytmp, c.k[s], c.params)
	}
	for i := 0; i < n; i++ {
		sum := 0.0
		errAcc := 0.0
		for s := 0; s < 6; s++ {
			sum += ckC[s] * c.k[s][i]
			errAcc += ckD[s] * c.k[s][i]
		}
		c.yout[i] = y[i] + h*sum
		c.yerr[i] = h * errAcc
	}
}
