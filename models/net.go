// Package models describes Markov jump reaction networks and derives the
// moment-closure ODE systems that the LNA core integrates over each time
// interval: the full drift+diffusion system used when proposing a path,
// and the drift+residual system used when re-scoring one.
package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/haoyuwlab/stemr/ode"
)

// Net is a reaction network: which events exist, how fast they fire, and
// what each firing does to the compartment counts.
type Net struct {
	// Stoich is n_comps x n_events; column e is the net change to each
	// compartment when event e fires once.
	Stoich *mat.Dense

	// Hazards writes the event rates at compartment state x into h
	// (length n_events). params is the full parameter row; compartment
	// volumes start at VolStart but hazards index params directly for
	// rate constants.
	Hazards func(params, x, h []float64)

	// Jacobian writes dh/dx into jac (n_events x n_comps).
	Jacobian func(params, x []float64, jac *mat.Dense)

	// VolStart is the index in a parameter row where the compartment
	// volumes begin.
	VolStart int
}

func (n *Net) NumComps() int {
	c, _ := n.Stoich.Dims()
	return c
}

func (n *Net) NumEvents() int {
	_, e := n.Stoich.Dims()
	return e
}

// MomentSystem returns the proposer's ODE system: the drift phi (mean of
// the log-transformed event increments, length E) followed by the
// row-major E x E diffusion covariance on the same scale. Both restart
// at zero at every interval; the compartment state at the interval start
// is read from the parameter vector.
func (n *Net) MomentSystem() ode.System {
	c, e := n.Stoich.Dims()
	return &momentSystem{
		net: n,
		eta: make([]float64, e),
		x:   make([]float64, c),
		h:   make([]float64, e),
		jac: mat.NewDense(e, c, nil),
		f:   mat.NewDense(e, e, nil),
		m:   mat.NewDense(e, e, nil),
	}
}

type momentSystem struct {
	net       *Net
	eta, x, h []float64
	jac, f, m *mat.Dense
}

func (s *momentSystem) Dim() int {
	e := s.net.NumEvents()
	return e + e*e
}

func (s *momentSystem) Derivs(t float64, y, dy, params []float64) {
	cN := s.net.NumComps()
	e := s.net.NumEvents()

	// eta = exp(phi) - 1: natural-scale mean increments so far.
	for i := 0; i < e; i++ {
		s.eta[i] = math.Expm1(y[i])
	}
	// x = volumes-at-interval-start + Stoich * eta, floored at zero so a
	// transient excursion below zero cannot flip a hazard's sign.
	for i := 0; i < cN; i++ {
		xi := params[s.net.VolStart+i]
		for j := 0; j < e; j++ {
			xi += s.net.Stoich.At(i, j) * s.eta[j]
		}
		s.x[i] = math.Max(xi, 0)
	}
	s.net.Hazards(params, s.x, s.h)

	// dphi_i = h_i / (1 + eta_i)
	for i := 0; i < e; i++ {
		dy[i] = s.h[i] / (1 + s.eta[i])
	}

	// F = (dh/dx) * Stoich, then conjugated onto the log scale:
	// M_ij = F_ij (1+eta_j)/(1+eta_i).
	s.net.Jacobian(params, s.x, s.jac)
	s.f.Mul(s.jac, s.net.Stoich)
	for i := 0; i < e; i++ {
		for j := 0; j < e; j++ {
			s.m.Set(i, j, s.f.At(i, j)*(1+s.eta[j])/(1+s.eta[i]))
		}
	}

	// dSigma = M Sigma + Sigma M^T + diag(h_i / (1+eta_i)^2)
	sigma := y[e:]
	dsigma := dy[e:]
	for i := 0; i < e; i++ {
		for j := 0; j < e; j++ {
			acc := 0.0
			for k := 0; k < e; k++ {
				acc += s.m.At(i, k)*sigma[k*e+j] + sigma[i*e+k]*s.m.At(j, k)
			}
			if i == j {
				d := 1 + s.eta[i]
				acc += s.h[i] / (d * d)
			}
			dsigma[i*e+j] = acc
		}
	}
}

// ResidualSystem returns the evaluator's ODE system, half the size of the
// proposer's: the compartment-space drift xi (length C) followed by the
// residual conditional mean r (length C), whose dynamics are the drift
// linearized around the current state.
func (n *Net) ResidualSystem() ode.System {
	c, e := n.Stoich.Dims()
	return &residualSystem{
		net: n,
		x:   make([]float64, c),
		h:   make([]float64, e),
		jac: mat.NewDense(e, c, nil),
		a:   mat.NewDense(c, c, nil),
	}
}

type residualSystem struct {
	net  *Net
	x, h []float64
	jac  *mat.Dense
	a    *mat.Dense
}

func (s *residualSystem) Dim() int {
	return 2 * s.net.NumComps()
}

func (s *residualSystem) Derivs(t float64, y, dy, params []float64) {
	cN := s.net.NumComps()
	e := s.net.NumEvents()

	for i := 0; i < cN; i++ {
		s.x[i] = math.Max(params[s.net.VolStart+i]+y[i], 0)
	}
	s.net.Hazards(params, s.x, s.h)

	// dxi = Stoich * h
	for i := 0; i < cN; i++ {
		acc := 0.0
		for j := 0; j < e; j++ {
			acc += s.net.Stoich.At(i, j) * s.h[j]
		}
		dy[i] = acc
	}

	// dr = (Stoich * dh/dx) r
	s.net.Jacobian(params, s.x, s.jac)
	s.a.Mul(s.net.Stoich, s.jac)
	for i := 0; i < cN; i++ {
		acc := 0.0
		for j := 0; j < cN; j++ {
			acc += s.a.At(i, j) * y[cN+j]
		}
		dy[cN+i] = acc
	}
}
