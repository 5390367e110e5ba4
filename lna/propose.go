package lna

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/haoyuwlab/stemr/utils"
)

// Proposal is the output of one proposer call: the N(0,1) perturbations
// that were used (one column per interval) and the path they determine.
type Proposal struct {
	// Draws has one column per time interval, dimension = number of events.
	Draws *mat.Dense
	// Path has one row per time point: column 0 holds the time, column
	// 1+e the cumulative incidence of event e. Component-wise
	// non-decreasing down each event column.
	Path *mat.Dense
}

// ProposePath simulates an LNA path over the time grid using fresh
// standard-normal perturbations drawn from src.
//
// times are the interval endpoints, strictly increasing. pars has one row
// per time point: structural parameters, constants, covariates, then the
// compartment volumes starting at column initStart. updateInds flags the
// time points at which the current parameter row must be reloaded from
// the table. stoich is the n_comps x n_events stoichiometry matrix. The
// engine's parameter state is left set to the values at the final
// interval; the caller resets it before reusing the engine on another
// path.
func ProposePath(times []float64, pars *mat.Dense, initStart int, updateInds []bool,
	stoich *mat.Dense, eng Engine, src rand.Source) (*Proposal, error) {

	if len(times) < 2 {
		return nil, fmt.Errorf("time grid needs at least 2 points, got %d: %w", len(times), ErrDimension)
	}
	_, nEvents := stoich.Dims()
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	draws := mat.NewDense(nEvents, len(times)-1, nil)
	for i := 0; i < nEvents; i++ {
		for j := 0; j < len(times)-1; j++ {
			draws.Set(i, j, normal.Rand())
		}
	}
	return ProposePathFromDraws(times, pars, initStart, updateInds, stoich, eng, draws)
}

// ProposePathFromDraws replays the proposer with a fixed perturbation
// matrix (n_events x n_times-1) instead of sampling one. Given identical
// inputs the path is bit-for-bit reproducible.
func ProposePathFromDraws(times []float64, pars *mat.Dense, initStart int, updateInds []bool,
	stoich *mat.Dense, eng Engine, draws *mat.Dense) (*Proposal, error) {

	nComps, nEvents := stoich.Dims()
	nODE := nEvents + nEvents*nEvents
	nTimes := len(times)

	parRows, parCols := pars.Dims()
	if nTimes < 2 {
		return nil, fmt.Errorf("time grid needs at least 2 points, got %d: %w", nTimes, ErrDimension)
	}
	if parRows != nTimes || len(updateInds) != nTimes {
		return nil, fmt.Errorf("parameter table (%d rows) and update flags (%d) must match %d time points: %w",
			parRows, len(updateInds), nTimes, ErrDimension)
	}
	if initStart < 0 || initStart+nComps > parCols {
		return nil, fmt.Errorf("compartment volumes [%d, %d) outside parameter row of length %d: %w",
			initStart, initStart+nComps, parCols, ErrDimension)
	}
	if dr, dc := draws.Dims(); dr != nEvents || dc != nTimes-1 {
		return nil, fmt.Errorf("draws are %dx%d, want %dx%d: %w", dr, dc, nEvents, nTimes-1, ErrDimension)
	}

	// Current parameter row; the engine sees it before the first interval.
	currentParams := make([]float64, parCols)
	copy(currentParams, pars.RawRowView(0))
	eng.SetParams(currentParams)

	// Initial compartment volumes, fixed for the whole path.
	initState := make([]float64, nComps)
	copy(initState, currentParams[initStart:initStart+nComps])

	// Working objects reused across intervals.
	state := make([]float64, nODE) // ODE scratch: drift, then diffusion
	diffusion := mat.NewDense(nEvents, nEvents, state[nEvents:])
	drift := mat.NewVecDense(nEvents, state[:nEvents])
	logLNA := mat.NewVecDense(nEvents, nil)
	natLNA := make([]float64, nEvents)
	cIncid := make([]float64, nEvents)
	cIncidVec := mat.NewVecDense(nEvents, cIncid)
	volumes := mat.NewVecDense(nComps, nil)
	var chol mat.Cholesky
	var lower mat.TriDense

	path := mat.NewDense(nTimes, nEvents+1, nil)
	for j, t := range times {
		path.Set(j, 0, t)
	}

	for j := 0; j < nTimes-1; j++ {
		tL := times[j]
		tR := times[j+1]

		// Reset the scratch buffer; leftovers from the previous interval
		// must never leak into this one.
		for i := range state {
			state[i] = 0
		}
		if err := eng.Integrate(state, tL, tR, proposalTol); err != nil {
			return nil, fmt.Errorf("integrate interval %d [%g, %g]: %w", j, tL, tR, err)
		}

		// log_lna = drift + chol(diffusion, lower) * draws[:, j]
		// A zero diffusion matrix means no events can fire over the
		// interval; its factor is zero rather than a Cholesky failure.
		if utils.AllZero(state[nEvents:]) {
			logLNA.CopyVec(drift)
		} else {
			if ok := chol.Factorize(utils.SymFromUpper(diffusion)); !ok {
				return nil, fmt.Errorf("interval %d [%g, %g]: %w", j, tL, tR, ErrNotPosDef)
			}
			chol.LTo(&lower)
			logLNA.MulVec(&lower, draws.ColView(j))
			logLNA.AddVec(logLNA, drift)
		}

		// nat_lna = exp(log_lna) - 1, clamped below by 0, then
		// accumulated: each interval's increment is floored before it
		// enters the cumulative incidence.
		for e := 0; e < nEvents; e++ {
			natLNA[e] = math.Expm1(logLNA.AtVec(e))
		}
		utils.ClampNonNeg(natLNA)
		floats.Add(cIncid, natLNA)
		for e := 0; e < nEvents; e++ {
			path.Set(j+1, 1+e, cIncid[e])
		}

		// volumes = init_state + stoich * c_incid, clamped below by 0
		volumes.MulVec(stoich, cIncidVec)
		floats.Add(volumes.RawVector().Data, initState)
		utils.ClampNonNeg(volumes.RawVector().Data)

		// Reload the parameter row if flagged, then write the fresh
		// volumes into it and push the result to the engine so the next
		// interval integrates from the updated state.
		if updateInds[j+1] {
			copy(currentParams, pars.RawRowView(j+1))
		}
		copy(currentParams[initStart:initStart+nComps], volumes.RawVector().Data)
		eng.SetParams(currentParams)
	}

	return &Proposal{Draws: draws, Path: path}, nil
}
