package lna

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// PathBundle carries an LNA path together with the processes needed to
// re-score it after an elliptical slice sampling step has perturbed the
// residual path. Column 0 of LNAPath and ResPath holds the time.
//
// Diffusion holds one covariance per time point (entry 0 is unused, the
// first interval ends at index 1). The covariances are a precondition,
// not an output: the slice sampler perturbs only drift/residual-relevant
// state, so PathDensity trusts them and never recomputes diffusion.
// Recomputing it here would silently change the scored density.
type PathBundle struct {
	LNAPath    *mat.Dense      // n_times x (n_events+1), passed through
	ResPath    *mat.Dense      // n_times x (n_comps+1), the perturbed residual path
	Drift      *mat.Dense      // drift process, passed through
	Residual   *mat.Dense      // n_times x n_comps conditional means, recomputed here
	Diffusion  []*mat.SymDense // per-time-point covariances, trusted as given
	DataLogLik float64         // measurement-process log likelihood, passed through
	LNALogLik  float64         // set by PathDensity
}

// PathDensity reintegrates the drift and residual ODEs over the time grid
// and recomputes the log density of the bundle's residual path, scoring
// each time point's observed residual against the freshly integrated
// conditional mean under the stored diffusion covariance.
//
// Only b.Residual and b.LNALogLik are mutated. The ODE scratch carries
// over between intervals: the drift block continues from where the last
// interval left it, and the residual block is overwritten with the
// observed path value so each interval's integration is conditioned on
// the actual perturbed path rather than the evaluator's own prediction.
func PathDensity(b *PathBundle, times []float64, pars *mat.Dense, updateInds []bool,
	flow *mat.Dense, eng Engine) error {

	nComps, _ := flow.Dims()
	nODE := 2 * nComps
	nTimes := len(times)

	parRows, parCols := pars.Dims()
	if nTimes < 2 {
		return fmt.Errorf("time grid needs at least 2 points, got %d: %w", nTimes, ErrDimension)
	}
	if parRows != nTimes || len(updateInds) != nTimes {
		return fmt.Errorf("parameter table (%d rows) and update flags (%d) must match %d time points: %w",
			parRows, len(updateInds), nTimes, ErrDimension)
	}
	if r, c := b.ResPath.Dims(); r != nTimes || c != nComps+1 {
		return fmt.Errorf("residual path is %dx%d, want %dx%d: %w", r, c, nTimes, nComps+1, ErrDimension)
	}
	if r, c := b.Residual.Dims(); r != nTimes || c != nComps {
		return fmt.Errorf("residual process is %dx%d, want %dx%d: %w", r, c, nTimes, nComps, ErrDimension)
	}
	if len(b.Diffusion) != nTimes {
		return fmt.Errorf("diffusion process has %d slices, want %d: %w", len(b.Diffusion), nTimes, ErrDimension)
	}

	currentParams := make([]float64, parCols)
	copy(currentParams, pars.RawRowView(0))
	eng.SetParams(currentParams)

	// ODE scratch: drift block [0, n_comps), residual block [n_comps, 2n).
	// Deliberately not reset between intervals.
	state := make([]float64, nODE)
	logLik := 0.0

	for j := 1; j < nTimes; j++ {
		tL := times[j-1]
		tR := times[j]

		if updateInds[j-1] {
			copy(currentParams, pars.RawRowView(j-1))
			eng.SetParams(currentParams)
		}

		if err := eng.Integrate(state, tL, tR, densityTol); err != nil {
			return fmt.Errorf("integrate interval %d [%g, %g]: %w", j-1, tL, tR, err)
		}

		// residual_process[j] = integrated conditional mean
		resProc := b.Residual.RawRowView(j)
		copy(resProc, state[nComps:])

		// Score the observed residual against the new mean under the
		// stored covariance.
		observed := b.ResPath.RawRowView(j)[1 : nComps+1]
		normal, ok := distmv.NewNormal(resProc, b.Diffusion[j], nil)
		if !ok {
			return fmt.Errorf("time point %d: %w", j, ErrNotPosDef)
		}
		logLik += normal.LogProb(observed)

		// Condition the next interval on the observed residual, not the
		// predicted one.
		copy(state[nComps:], observed)
	}

	b.LNALogLik = logLik
	return nil
}
