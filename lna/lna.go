// Package lna constructs and scores sample paths of the linear noise
// approximation (LNA) to a Markov jump population process, e.g. a
// stochastic epidemic model. Paths live on the scale of the
// log-transformed counting process and are parameterized non-centrally:
// a path is a deterministic function of i.i.d. N(0,1) perturbations, so
// an outer sampler (elliptical slice sampling) can perturb the noise
// rather than the path.
//
// The moment ODEs themselves are integrated by an external collaborator
// behind the Engine interface; ode.Context is the in-repo implementation.
package lna

import "errors"

var (
	// ErrNotPosDef reports a diffusion covariance that could not be
	// factorized. The interval loop aborts; no partial path is returned.
	ErrNotPosDef = errors.New("diffusion matrix not positive definite")

	// ErrDimension reports inputs whose shapes do not agree.
	ErrDimension = errors.New("dimension mismatch")
)

// Tolerances handed to the integrator. Path construction needs tight ODE
// error control; density re-evaluation trades precision for speed.
const (
	proposalTol = 1e-3
	densityTol  = 1.0
)

// Integrator advances a fixed-size ODE system in place from t0 to t1,
// using whatever parameter state was most recently installed with
// SetParams. Integration must be deterministic given that state and the
// interval. Any error is opaque to this package and aborts the caller.
type Integrator interface {
	Integrate(state []float64, t0, t1, tol float64) error
}

// ParamSetter replaces the integrator's internal parameter state.
// Subsequent Integrate calls use the new state until it is overwritten.
// Implementations must copy the slice: the caller reuses it.
type ParamSetter interface {
	SetParams(params []float64)
}

// Engine couples an ODE integrator with its mutable parameter state.
// The state is a single shared resource: calls touching two different
// logical paths must never interleave on one Engine.
type Engine interface {
	Integrator
	ParamSetter
}
