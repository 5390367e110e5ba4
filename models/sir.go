package models

import (
	"gonum.org/v1/gonum/mat"
)

// SIRVolStart is the column at which compartment volumes begin in an SIR
// parameter row [beta, mu, S, I, R].
const SIRVolStart = 2

// SIR returns the susceptible-infectious-removed network with two
// events: infection (hazard beta*S*I) and recovery (hazard mu*I).
func SIR() *Net {
	stoich := mat.NewDense(3, 2, []float64{
		-1, 0,
		1, -1,
		0, 1,
	})
	return &Net{
		Stoich:   stoich,
		VolStart: SIRVolStart,
		Hazards: func(params, x, h []float64) {
			beta, mu := params[0], params[1]
			h[0] = beta * x[0] * x[1]
			h[1] = mu * x[1]
		},
		Jacobian: func(params, x []float64, jac *mat.Dense) {
			beta, mu := params[0], params[1]
			jac.Set(0, 0, beta*x[1])
			jac.Set(0, 1, beta*x[0])
			jac.Set(0, 2, 0)
			jac.Set(1, 0, 0)
			jac.Set(1, 1, mu)
			jac.Set(1, 2, 0)
		},
	}
}
