package lna

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/haoyuwlab/stemr/utils"
)

// evalEngine scripts the evaluator's half-size integration: the residual
// block is set to a fixed conditional mean, and the incoming state is
// recorded so tests can check what each interval was conditioned on.
type evalEngine struct {
	nComps int
	mean   []float64
	bump   float64 // added to the drift block each call
	err    error

	tols     []float64
	incoming [][]float64
	setCalls [][]float64
}

func (s *evalEngine) Integrate(state []float64, t0, t1, tol float64) error {
	if s.err != nil {
		return s.err
	}
	s.tols = append(s.tols, tol)
	s.incoming = append(s.incoming, append([]float64(nil), state...))
	for i := 0; i < s.nComps; i++ {
		state[i] += s.bump
	}
	copy(state[s.nComps:], s.mean)
	return nil
}

func (s *evalEngine) SetParams(params []float64) {
	s.setCalls = append(s.setCalls, append([]float64(nil), params...))
}

// squareBundle builds a 2-compartment bundle over nTimes points whose
// residual path rows (after row 0) are given per interval.
func squareBundle(times []float64, resRows [][]float64, cov *mat.SymDense) *PathBundle {
	nTimes := len(times)
	resPath := mat.NewDense(nTimes, 3, nil)
	diffusion := make([]*mat.SymDense, nTimes)
	for j := 0; j < nTimes; j++ {
		resPath.Set(j, 0, times[j])
		if j > 0 {
			resPath.Set(j, 1, resRows[j-1][0])
			resPath.Set(j, 2, resRows[j-1][1])
			diffusion[j] = cov
		}
	}
	return &PathBundle{
		LNAPath:    mat.NewDense(nTimes, 3, nil),
		ResPath:    resPath,
		Drift:      mat.NewDense(nTimes, 2, nil),
		Residual:   mat.NewDense(nTimes, 2, nil),
		Diffusion:  diffusion,
		DataLogLik: -17.5,
	}
}

func squareFlow() *mat.Dense {
	return utils.Eye(2)
}

func flatTable(nTimes int) *mat.Dense {
	table := mat.NewDense(nTimes, 4, nil)
	for i := 0; i < nTimes; i++ {
		table.SetRow(i, []float64{0.5, 0.25, 100, 10})
	}
	return table
}

func TestPathDensityRoundTrip(t *testing.T) {
	// Construct a path exactly as the proposer does — log-scale
	// increments drift + L*z — then re-score it. The total must equal
	// the sum of the per-interval normal log densities the proposer
	// implicitly sampled from.
	times := []float64{0, 1, 2, 3}
	drift := []float64{0.05, 0.02}
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.03})
	zs := [][]float64{{0.6, -0.4}, {-1.1, 0.2}, {0.3, 1.5}}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		t.Fatal("test covariance must be positive definite")
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	resRows := make([][]float64, len(zs))
	want := 0.0
	normal, ok := distmv.NewNormal(drift, cov, nil)
	if !ok {
		t.Fatal("test covariance must be positive definite")
	}
	for j, z := range zs {
		var lz mat.VecDense
		lz.MulVec(&lower, mat.NewVecDense(2, z))
		resRows[j] = []float64{drift[0] + lz.AtVec(0), drift[1] + lz.AtVec(1)}
		want += normal.LogProb(resRows[j])
	}

	b := squareBundle(times, resRows, cov)
	eng := &evalEngine{nComps: 2, mean: drift}
	if err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng); err != nil {
		t.Fatalf("density: %v", err)
	}

	if math.Abs(b.LNALogLik-want) > 1e-10 {
		t.Fatalf("log likelihood: got %v, want %v", b.LNALogLik, want)
	}
	// The conditional means were stored per time point.
	for j := 1; j < len(times); j++ {
		for i := 0; i < 2; i++ {
			if b.Residual.At(j, i) != drift[i] {
				t.Fatalf("residual process row %d: got %v, want %v", j, b.Residual.At(j, i), drift[i])
			}
		}
	}
	// Everything else passes through untouched.
	if b.DataLogLik != -17.5 {
		t.Fatalf("data log likelihood mutated: %v", b.DataLogLik)
	}
	// Evaluator integrates with its loose tolerance.
	for _, tol := range eng.tols {
		if tol != 1.0 {
			t.Fatalf("evaluator tolerance: got %v, want 1.0", tol)
		}
	}
}

func TestPathDensityConditionsOnObservedPath(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	resRows := [][]float64{{0.2, -0.1}, {0.4, 0.3}, {-0.2, 0.6}}
	b := squareBundle(times, resRows, cov)
	eng := &evalEngine{nComps: 2, mean: []float64{0, 0}, bump: 1}

	if err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng); err != nil {
		t.Fatalf("density: %v", err)
	}

	// First interval starts from the zeroed scratch.
	for i, v := range eng.incoming[0] {
		if v != 0 {
			t.Fatalf("first interval state[%d] = %v, want 0", i, v)
		}
	}
	// Later intervals must see the observed (perturbed) residual, not
	// the engine's own prediction, in the residual block...
	for k := 1; k < len(eng.incoming); k++ {
		got := eng.incoming[k][2:]
		want := resRows[k-1]
		if got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("interval %d conditioned on %v, want observed residual %v", k, got, want)
		}
	}
	// ...while the drift block carries over without a reset.
	for k, state := range eng.incoming {
		if state[0] != float64(k) {
			t.Fatalf("interval %d drift block = %v, want %v (scratch must persist)", k, state[0], float64(k))
		}
	}
}

func TestPathDensityUpdateFlags(t *testing.T) {
	times := []float64{0, 1, 2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	resRows := [][]float64{{0, 0}, {0, 0}, {0, 0}}
	b := squareBundle(times, resRows, cov)
	table := flatTable(len(times))
	for i := 0; i < len(times); i++ {
		table.Set(i, 0, 0.5+float64(i))
	}
	updateInds := make([]bool, len(times))
	updateInds[1] = true

	eng := &evalEngine{nComps: 2, mean: []float64{0, 0}}
	if err := PathDensity(b, times, table, updateInds, squareFlow(), eng); err != nil {
		t.Fatalf("density: %v", err)
	}

	// Initial push of row 0, then a reload of row 1 before the interval
	// that starts at index 1. No other pushes.
	if len(eng.setCalls) != 2 {
		t.Fatalf("got %d SetParams calls, want 2", len(eng.setCalls))
	}
	if eng.setCalls[0][0] != 0.5 || eng.setCalls[1][0] != 1.5 {
		t.Fatalf("pushed betas %v / %v, want 0.5 / 1.5", eng.setCalls[0][0], eng.setCalls[1][0])
	}
}

func TestPathDensityNotPositiveDefinite(t *testing.T) {
	times := []float64{0, 1, 2}
	bad := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	resRows := [][]float64{{0, 0}, {0, 0}}
	b := squareBundle(times, resRows, bad)
	eng := &evalEngine{nComps: 2, mean: []float64{0, 0}}

	err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng)
	if !errors.Is(err, ErrNotPosDef) {
		t.Fatalf("got err %v, want ErrNotPosDef", err)
	}
}

func TestPathDensityIntegratorFaultPropagates(t *testing.T) {
	boom := errors.New("integration diverged")
	times := []float64{0, 1, 2}
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	b := squareBundle(times, [][]float64{{0, 0}, {0, 0}}, cov)
	eng := &evalEngine{nComps: 2, mean: []float64{0, 0}, err: boom}

	err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng)
	if !errors.Is(err, boom) {
		t.Fatalf("integrator fault must propagate unchanged, got %v", err)
	}
}

func TestPathDensityShapeErrors(t *testing.T) {
	times := []float64{0, 1, 2}
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	eng := &evalEngine{nComps: 2, mean: []float64{0, 0}}

	b := squareBundle(times, [][]float64{{0, 0}, {0, 0}}, cov)
	b.Residual = mat.NewDense(len(times), 3, nil) // wrong width
	if err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng); !errors.Is(err, ErrDimension) {
		t.Fatalf("residual shape: got err %v, want ErrDimension", err)
	}

	b = squareBundle(times, [][]float64{{0, 0}, {0, 0}}, cov)
	b.Diffusion = b.Diffusion[:2] // missing a slice
	if err := PathDensity(b, times, flatTable(len(times)), make([]bool, len(times)), squareFlow(), eng); !errors.Is(err, ErrDimension) {
		t.Fatalf("diffusion length: got err %v, want ErrDimension", err)
	}

	b = squareBundle(times, [][]float64{{0, 0}, {0, 0}}, cov)
	if err := PathDensity(b, times, flatTable(len(times)), make([]bool, 2), squareFlow(), eng); !errors.Is(err, ErrDimension) {
		t.Fatalf("flag length: got err %v, want ErrDimension", err)
	}
}
