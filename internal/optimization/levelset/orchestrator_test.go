package levelset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/copyleftdev/STRUT/internal/optimization"
)

// stubSolver records the area-fraction fields it is asked to solve.
type stubSolver struct {
	received [][]float64
	err      error
}

func (s *stubSolver) Solve(fractions []float64) error {
	cp := make([]float64, len(fractions))
	copy(cp, fractions)
	s.received = append(s.received, cp)
	return s.err
}

// stubSensitivity replays a scripted objective history, one value per
// ComputeElementSensitivities call; the last value repeats.
type stubSensitivity struct {
	objectives []float64
	calls      int
	cleared    int
}

func (s *stubSensitivity) ComputeElementSensitivities(optimization.ObjectiveType, float64) error {
	s.calls++
	return nil
}

func (s *stubSensitivity) InterpolateAtPoint(r2.Vec, float64, optimization.ObjectiveType, float64) (float64, error) {
	return 1.0, nil
}

func (s *stubSensitivity) Objective() float64 {
	idx := s.calls - 1
	if idx >= len(s.objectives) {
		idx = len(s.objectives) - 1
	}
	return s.objectives[idx]
}

func (s *stubSensitivity) MaxStress() float64   { return 2 * s.Objective() }
func (s *stubSensitivity) ClearBoundaryBuffer() { s.cleared++ }

// stubGeometry replays scripted areas and advection outcomes; the last entry
// of each script repeats.
type stubGeometry struct {
	fractions []float64
	areas     []float64
	advance   []bool

	nPoints int

	discretizeCalls int
	areaCalls       int
	advanceCalls    int
	extendCalls     int
	gradientCalls   int

	// reinitAfter records the iteration index (advance call count) at which
	// every explicit Reinitialize happened.
	reinitAfter []int
	timeSteps   []float64
}

func (g *stubGeometry) DiscretizeBoundary(nConstraints int) ([]optimization.BoundaryPoint, error) {
	g.discretizeCalls++
	points := make([]optimization.BoundaryPoint, g.nPoints)
	for i := range points {
		points[i] = optimization.BoundaryPoint{
			Coord:         r2.Vec{X: float64(i), Y: 0},
			Length:        1,
			Sensitivities: make([]float64, nConstraints+1),
		}
	}
	return points, nil
}

func (g *stubGeometry) ComputeAreaFractions() []float64 {
	cp := make([]float64, len(g.fractions))
	copy(cp, g.fractions)
	return cp
}

func (g *stubGeometry) Area() float64 {
	idx := g.areaCalls
	if idx >= len(g.areas) {
		idx = len(g.areas) - 1
	}
	g.areaCalls++
	return g.areas[idx]
}

func (g *stubGeometry) ExtendVelocities([]optimization.BoundaryPoint) { g.extendCalls++ }
func (g *stubGeometry) ComputeGradients()                             { g.gradientCalls++ }

func (g *stubGeometry) Advance(dt float64) bool {
	g.advanceCalls++
	g.timeSteps = append(g.timeSteps, dt)
	if g.advanceCalls-1 < len(g.advance) {
		return g.advance[g.advanceCalls-1]
	}
	return false
}

func (g *stubGeometry) Reinitialize() {
	g.reinitAfter = append(g.reinitAfter, g.advanceCalls)
}

// stubVelocity records every sub-problem it is asked to solve.
type stubVelocity struct {
	problems []optimization.VelocityProblem
	dt       float64
}

func (v *stubVelocity) Solve(points []optimization.BoundaryPoint, problem optimization.VelocityProblem) (*optimization.VelocitySolution, error) {
	v.problems = append(v.problems, problem)
	for i := range points {
		if !points[i].Fixed {
			points[i].Velocity = 0.1
		}
	}
	return &optimization.VelocitySolution{Lambdas: []float64{1, 0.25}, TimeStep: v.dt}, nil
}

// memorySink collects lifecycle calls in order.
type memorySink struct {
	records   []optimization.IterationRecord
	snapshots []int
}

func (s *memorySink) Start(optimization.RunInfo) error { return nil }

func (s *memorySink) Record(rec optimization.IterationRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Snapshot(iteration int) error {
	s.snapshots = append(s.snapshots, iteration)
	return nil
}

func (s *memorySink) Finish(optimization.RunSummary) error { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DomainWidth = 10
	cfg.DomainHeight = 10
	cfg.MeshArea = 100
	return cfg
}

func TestRunTerminatesAtFirstConvergedFeasibleIteration(t *testing.T) {
	// The objective drops by 5 per iteration until iteration 10 and stays at
	// 50 afterwards; the area meets the constraint from iteration 8 on. The
	// five-iteration stability window therefore closes exactly at iteration
	// 15, the first whose trailing window is entirely flat.
	objectives := make([]float64, 0, 16)
	for k := 1; k <= 10; k++ {
		objectives = append(objectives, 100-5*float64(k))
	}
	objectives = append(objectives, 50)

	areas := []float64{50, 50, 50, 50, 50, 50, 50, 40}

	solver := &stubSolver{}
	sens := &stubSensitivity{objectives: objectives}
	geom := &stubGeometry{fractions: []float64{0.5, 0.5}, areas: areas, nPoints: 3}
	velocity := &stubVelocity{dt: 0.3}
	sink := &memorySink{}

	orch := NewOrchestrator(testConfig(), solver, sens, geom, velocity, sink, nil)
	result, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 15, result.Iterations)
	assert.InDelta(t, 50.0, result.Objective, 1e-12)
	assert.InDelta(t, 0.4, result.AreaFraction, 1e-12)
	assert.InDelta(t, 15*0.3, result.Elapsed, 1e-12)

	require.Len(t, result.History, 15)
	for i, rec := range result.History {
		assert.Equal(t, i+1, rec.Iteration)
	}

	// The sink saw every record and one snapshot per iteration, in order.
	assert.Equal(t, result.History, sink.records)
	require.Len(t, sink.snapshots, 15)
	assert.Equal(t, 15, sink.snapshots[14])
}

func TestRunStopsAtIterationCeiling(t *testing.T) {
	solver := &stubSolver{}
	// The objective keeps moving, so the stability gate never opens.
	sens := &stubSensitivity{objectives: []float64{100, 90, 80, 70, 60, 50, 40, 30, 20, 10}}
	geom := &stubGeometry{fractions: []float64{0.5}, areas: []float64{40}, nPoints: 2}
	velocity := &stubVelocity{dt: 0.1}

	cfg := testConfig()
	cfg.MaxIterations = 7

	orch := NewOrchestrator(cfg, solver, sens, geom, velocity, nil, nil)
	result, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, 7, result.Iterations)
	assert.Len(t, result.History, 7)
}

func TestRunInfeasibleAreaBlocksTermination(t *testing.T) {
	solver := &stubSolver{}
	// Flat objective from the start, but the area never reaches the
	// constraint: the run must exhaust the ceiling.
	sens := &stubSensitivity{objectives: []float64{50}}
	geom := &stubGeometry{fractions: []float64{0.5}, areas: []float64{50}, nPoints: 2}
	velocity := &stubVelocity{dt: 0.1}

	cfg := testConfig()
	cfg.MaxIterations = 12

	orch := NewOrchestrator(cfg, solver, sens, geom, velocity, nil, nil)
	result, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, 12, result.Iterations)
}

func TestIterateClampsAreaFractions(t *testing.T) {
	solver := &stubSolver{}
	sens := &stubSensitivity{objectives: []float64{50}}
	geom := &stubGeometry{
		fractions: []float64{0, 1e-9, 0.5, 1.0},
		areas:     []float64{40},
		nPoints:   2,
	}
	velocity := &stubVelocity{dt: 0.1}

	cfg := testConfig()
	cfg.MaxIterations = 1

	orch := NewOrchestrator(cfg, solver, sens, geom, velocity, nil, nil)
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, solver.received, 1)
	assert.Equal(t, []float64{1e-6, 1e-6, 0.5, 1.0}, solver.received[0])
}

func TestIterateUsesFreshAreaEveryIteration(t *testing.T) {
	solver := &stubSolver{}
	sens := &stubSensitivity{objectives: []float64{50}}
	geom := &stubGeometry{fractions: []float64{0.5}, areas: []float64{33, 44, 55}, nPoints: 2}
	velocity := &stubVelocity{dt: 0.1}

	cfg := testConfig()
	cfg.MaxIterations = 3

	orch := NewOrchestrator(cfg, solver, sens, geom, velocity, nil, nil)
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, velocity.problems, 3)
	for i, want := range []float64{33, 44, 55} {
		assert.Equal(t, want, velocity.problems[i].CurrentArea, "iteration %d", i+1)
		assert.Equal(t, 100.0, velocity.problems[i].MeshArea)
		assert.Equal(t, 0.4, velocity.problems[i].MaxArea)
	}
}

func TestIterateSchedulesReinitializations(t *testing.T) {
	solver := &stubSolver{}
	sens := &stubSensitivity{objectives: []float64{50}}
	geom := &stubGeometry{
		fractions: []float64{0.5},
		areas:     []float64{50},
		advance:   []bool{false, false, true, false},
		nPoints:   2,
	}
	velocity := &stubVelocity{dt: 0.1}

	cfg := testConfig()
	cfg.MaxIterations = 4

	orch := NewOrchestrator(cfg, solver, sens, geom, velocity, nil, nil)
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	// The advection's own reinitialization at iteration 3 resets the skip
	// counter, so explicit reinitializations land after iterations 2 and 4
	// and not after 3.
	assert.Equal(t, []int{2, 4}, geom.reinitAfter)
	assert.Equal(t, 4, geom.extendCalls)
	assert.Equal(t, 4, geom.gradientCalls)
	assert.Equal(t, []float64{0.1, 0.1, 0.1, 0.1}, geom.timeSteps)
}

func TestRunHonorsCancellation(t *testing.T) {
	solver := &stubSolver{}
	sens := &stubSensitivity{objectives: []float64{50}}
	geom := &stubGeometry{fractions: []float64{0.5}, areas: []float64{50}, nPoints: 2}
	velocity := &stubVelocity{dt: 0.1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := NewOrchestrator(testConfig(), solver, sens, geom, velocity, nil, nil)
	_, err := orch.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, geom.discretizeCalls)
}
